package travel

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

type MockRouteFinder struct {
	mock.Mock
}

func (m *MockRouteFinder) TravelTime(ctx context.Context, origin, destination, mode string) (*types.RouteLeg, error) {
	args := m.Called(ctx, origin, destination, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.RouteLeg), args.Error(1)
}

func newAugmenter(routes RouteFinder) *Augmenter {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewAugmenter(routes, "", logger)
}

func stop(name, address string, c *types.Coordinates) types.Stop {
	return types.Stop{Name: name, Category: "sight", Location: types.Location{Address: address, Coordinates: c}}
}

func TestAugmenter_Augment(t *testing.T) {
	ctx := context.Background()

	t.Run("fills origin leg and consecutive legs", func(t *testing.T) {
		routes := new(MockRouteFinder)
		origin := &types.Coordinates{Lat: 37.0, Lng: -7.9}
		stops := []types.Stop{
			stop("A", "Rua A", &types.Coordinates{Lat: 37.01, Lng: -7.93}),
			stop("B", "Rua B", nil),
		}
		routes.On("TravelTime", mock.Anything, "37.000000,-7.900000", "37.010000,-7.930000", "driving").
			Return(&types.RouteLeg{DistanceMeters: 3210.4, DurationSeconds: 420}, nil).Once()
		routes.On("TravelTime", mock.Anything, "37.010000,-7.930000", "Rua B", "driving").
			Return(&types.RouteLeg{DistanceMeters: 900, DurationSeconds: 90}, nil).Once()

		newAugmenter(routes).Augment(ctx, stops, origin)

		assert.Equal(t, &types.Travel{DistanceMeters: 3210, DurationMinutes: 7}, stops[0].Travel)
		assert.Equal(t, &types.Travel{DistanceMeters: 900, DurationMinutes: 1.5}, stops[1].Travel)
		routes.AssertExpectations(t)
	})

	t.Run("never overwrites complete travel", func(t *testing.T) {
		routes := new(MockRouteFinder)
		given := &types.Travel{DistanceMeters: 500, DurationMinutes: 6}
		stops := []types.Stop{stop("A", "Rua A", nil), stop("B", "Rua B", nil)}
		stops[1].Travel = given

		newAugmenter(routes).Augment(ctx, stops, nil)

		assert.Same(t, given, stops[1].Travel)
		assert.Nil(t, stops[0].Travel)
		routes.AssertNotCalled(t, "TravelTime", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("incomplete travel is refreshed", func(t *testing.T) {
		routes := new(MockRouteFinder)
		stops := []types.Stop{stop("A", "Rua A", nil), stop("B", "Rua B", nil)}
		stops[1].Travel = &types.Travel{DistanceMeters: 700}
		routes.On("TravelTime", mock.Anything, "Rua A", "Rua B", "driving").
			Return(&types.RouteLeg{DistanceMeters: 700, DurationSeconds: 600}, nil).Once()

		newAugmenter(routes).Augment(ctx, stops, nil)

		assert.Equal(t, 10.0, stops[1].Travel.DurationMinutes)
	})

	t.Run("failed legs are skipped without aborting", func(t *testing.T) {
		routes := new(MockRouteFinder)
		origin := &types.Coordinates{Lat: 37.0, Lng: -7.9}
		stops := []types.Stop{stop("A", "Rua A", nil), stop("B", "Rua B", nil), stop("C", "Rua C", nil)}
		routes.On("TravelTime", mock.Anything, origin.Token(), "Rua A", "driving").Return(nil, errors.New("all tiers failed")).Once()
		routes.On("TravelTime", mock.Anything, "Rua A", "Rua B", "driving").Return(nil, errors.New("no route")).Once()
		routes.On("TravelTime", mock.Anything, "Rua B", "Rua C", "driving").
			Return(&types.RouteLeg{DistanceMeters: 1000, DurationSeconds: 120}, nil).Once()

		newAugmenter(routes).Augment(ctx, stops, origin)

		assert.Nil(t, stops[0].Travel)
		assert.Nil(t, stops[1].Travel)
		assert.Equal(t, &types.Travel{DistanceMeters: 1000, DurationMinutes: 2}, stops[2].Travel)
		routes.AssertExpectations(t)
	})

	t.Run("partial first leg is dropped when it cannot be completed", func(t *testing.T) {
		routes := new(MockRouteFinder)
		origin := &types.Coordinates{Lat: 37.0, Lng: -7.9}
		routes.On("TravelTime", mock.Anything, origin.Token(), "Rua A", "driving").Return(nil, errors.New("timeout")).Once()

		failed := []types.Stop{stop("A", "Rua A", nil)}
		failed[0].Travel = &types.Travel{DistanceMeters: 1200}
		newAugmenter(routes).Augment(ctx, failed, origin)
		assert.Nil(t, failed[0].Travel)

		noOrigin := []types.Stop{stop("A", "Rua A", nil)}
		noOrigin[0].Travel = &types.Travel{DurationMinutes: 4}
		newAugmenter(routes).Augment(ctx, noOrigin, nil)
		assert.Nil(t, noOrigin[0].Travel)

		routes.AssertExpectations(t)
	})

	t.Run("empty list", func(t *testing.T) {
		routes := new(MockRouteFinder)
		newAugmenter(routes).Augment(ctx, nil, &types.Coordinates{})
		routes.AssertNotCalled(t, "TravelTime", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
