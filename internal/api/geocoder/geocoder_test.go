package geocoder

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

type MockProvider struct {
	mock.Mock
	name string
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Geocode(ctx context.Context, query string, region types.Region) (*types.Coordinates, error) {
	args := m.Called(ctx, query, region)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Coordinates), args.Error(1)
}

var algarve = types.Region{
	Name:   "Algarve",
	South:  36.95,
	West:   -9.0,
	North:  37.55,
	East:   -7.4,
	Center: types.Coordinates{Lat: 37.0194, Lng: -7.9304},
}

func setupGeocoder() (*Geocoder, *MockProvider, *MockProvider) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	primary := &MockProvider{name: "google"}
	secondary := &MockProvider{name: "osm"}
	return New(primary, secondary, algarve, NewCache(time.Hour), logger, nil), primary, secondary
}

func TestGeocoder_Lookup(t *testing.T) {
	ctx := context.Background()

	t.Run("primary hit is rounded and cached", func(t *testing.T) {
		g, primary, secondary := setupGeocoder()
		primary.On("Geocode", mock.Anything, "Sé de Faro, Largo da Sé", algarve).
			Return(&types.Coordinates{Lat: 37.01234567, Lng: -7.93456789}, nil).Once()

		c, ok := g.Lookup(ctx, "Sé de Faro", "Largo da Sé")
		require.True(t, ok)
		assert.Equal(t, types.Coordinates{Lat: 37.012346, Lng: -7.934568}, c)

		again, ok := g.Lookup(ctx, "Sé de Faro", "Largo da Sé")
		require.True(t, ok)
		assert.Equal(t, c, again)

		primary.AssertNumberOfCalls(t, "Geocode", 1)
		secondary.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("out of region falls through to secondary", func(t *testing.T) {
		g, primary, secondary := setupGeocoder()
		primary.On("Geocode", mock.Anything, "Marina", algarve).
			Return(&types.Coordinates{Lat: 38.7, Lng: -9.1}, nil).Once()
		secondary.On("Geocode", mock.Anything, "Marina", algarve).
			Return(&types.Coordinates{Lat: 37.1, Lng: -8.67}, nil).Once()

		c, ok := g.Lookup(ctx, "Marina", "")

		require.True(t, ok)
		assert.Equal(t, types.Coordinates{Lat: 37.1, Lng: -8.67}, c)
	})

	t.Run("both miss returns the center and is not cached", func(t *testing.T) {
		g, primary, secondary := setupGeocoder()
		primary.On("Geocode", mock.Anything, "Atlantis", algarve).
			Return(&types.Coordinates{Lat: 40.0, Lng: -20.0}, nil).Twice()
		secondary.On("Geocode", mock.Anything, "Atlantis", algarve).
			Return(nil, nil).Twice()

		c, ok := g.Lookup(ctx, "Atlantis", "")
		assert.False(t, ok)
		assert.Equal(t, algarve.Center, c)
		assert.True(t, algarve.Contains(c))

		_, ok = g.Lookup(ctx, "Atlantis", "")
		assert.False(t, ok)
		primary.AssertNumberOfCalls(t, "Geocode", 2)
	})

	t.Run("provider errors are misses", func(t *testing.T) {
		g, primary, secondary := setupGeocoder()
		primary.On("Geocode", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("REQUEST_DENIED"))
		secondary.On("Geocode", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))

		assert.Equal(t, algarve.Center, g.Resolve(ctx, "Somewhere", "Rua 1"))
	})

	t.Run("empty query returns the center without calling providers", func(t *testing.T) {
		g, primary, _ := setupGeocoder()
		c, ok := g.Lookup(ctx, " ", "")
		assert.False(t, ok)
		assert.Equal(t, algarve.Center, c)
		primary.AssertNotCalled(t, "Geocode", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestGeocoder_GeocodeStops(t *testing.T) {
	g, primary, secondary := setupGeocoder()
	inside := &types.Coordinates{Lat: 37.08, Lng: -8.1}
	stops := []types.Stop{
		{Name: "Kept", Location: types.Location{Address: "A", Coordinates: inside}},
		{Name: "Filled", Location: types.Location{Address: "B"}},
		{Name: "Corrected", Location: types.Location{Address: "C", Coordinates: &types.Coordinates{Lat: 0, Lng: 0}}},
	}
	primary.On("Geocode", mock.Anything, "Filled, B", algarve).Return(&types.Coordinates{Lat: 37.2, Lng: -8.5}, nil).Once()
	primary.On("Geocode", mock.Anything, "Corrected, C", algarve).Return(nil, nil).Once()
	secondary.On("Geocode", mock.Anything, "Corrected, C", algarve).Return(nil, nil).Once()

	g.GeocodeStops(context.Background(), stops)

	assert.Same(t, inside, stops[0].Location.Coordinates)
	assert.Equal(t, &types.Coordinates{Lat: 37.2, Lng: -8.5}, stops[1].Location.Coordinates)
	assert.Equal(t, &algarve.Center, stops[2].Location.Coordinates)
	primary.AssertExpectations(t)
	secondary.AssertExpectations(t)
}

func TestQuery(t *testing.T) {
	assert.Equal(t, "Museu", Query("Museu", ""))
	assert.Equal(t, "Museu", Query("Museu", "museu"))
	assert.Equal(t, "Rua 1", Query("", "Rua 1"))
	assert.Equal(t, "Museu, Rua 1", Query(" Museu ", "Rua 1 "))
}
