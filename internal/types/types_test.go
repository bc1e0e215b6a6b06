package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRating_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in        string
		wantValue float64
		wantText  string
		wantErr   bool
	}{
		{in: `4.5`, wantValue: 4.5},
		{in: `"4.2/5"`, wantValue: 4.2, wantText: "4.2/5"},
		{in: `"excellent"`, wantText: "excellent"},
		{in: `null`},
		{in: `true`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var r Rating
			err := json.Unmarshal([]byte(tt.in), &r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, r.Value)
			assert.Equal(t, tt.wantText, r.Text)
		})
	}
}

func TestRating_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Rating{Value: 4.5, Text: "4.5 stars"})
	require.NoError(t, err)
	assert.Equal(t, `"4.5 stars"`, string(b))

	b, err = json.Marshal(Rating{Value: 3})
	require.NoError(t, err)
	assert.Equal(t, `3`, string(b))
}

func TestParseTravelMode(t *testing.T) {
	assert.Equal(t, ModeWalking, ParseTravelMode(" On Foot "))
	assert.Equal(t, ModeCycling, ParseTravelMode("bike"))
	assert.Equal(t, ModeTransit, ParseTravelMode("metro"))
	assert.Equal(t, ModeDriving, ParseTravelMode("teleport"))
	assert.Equal(t, ModeDriving, ParseTravelMode(""))
}

func TestSearchCriteria_Normalize(t *testing.T) {
	c := SearchCriteria{}.Normalize()
	assert.Equal(t, float64(DefaultRadiusMeters), c.RadiusMeters)
	assert.Equal(t, DefaultSearchLimit, c.Limit)
	assert.Equal(t, BroadCategories, c.Categories)

	c.Categories[0] = "changed"
	assert.Equal(t, "restaurant", BroadCategories[0], "defaults are copied")

	kept := SearchCriteria{RadiusMeters: 800, Limit: 3, Categories: []string{"beach"}}.Normalize()
	assert.Equal(t, 800.0, kept.RadiusMeters)
	assert.Equal(t, []string{"beach"}, kept.Categories)
}

func TestPlace_ToStop(t *testing.T) {
	s := Place{ID: "p1", Name: "Mercado de Olhão", Latitude: 37.02, Longitude: -7.84, Rating: 4.4, PriceLevel: 2, Summary: "Fish market"}.ToStop()

	assert.Equal(t, "Mercado de Olhão", s.Location.Address)
	require.NotNil(t, s.Location.Coordinates)
	assert.Equal(t, "37.020000,-7.840000", s.CoordinatesOrAddress())
	assert.Equal(t, "€€", s.Details.PriceRange)
	assert.Equal(t, 4.4, s.Details.Rating.Value)
	assert.Equal(t, []string{"Fish market"}, s.Highlights)

	bare := Place{Name: "Somewhere", Address: "Rua 1"}.ToStop()
	assert.Nil(t, bare.Location.Coordinates)
	assert.Equal(t, "Rua 1", bare.CoordinatesOrAddress())
}

func TestTravel_IsComplete(t *testing.T) {
	var nilTravel *Travel
	assert.False(t, nilTravel.IsComplete())
	assert.False(t, (&Travel{DistanceMeters: 10}).IsComplete())
	assert.True(t, (&Travel{DistanceMeters: 10, DurationMinutes: 1}).IsComplete())
}

func TestPlanningContext_ExcludedIDs(t *testing.T) {
	pc := &PlanningContext{Selected: []Stop{{ID: "a"}, {Name: "no id"}, {ID: "b"}}}
	assert.Equal(t, []string{"a", "b"}, pc.ExcludedIDs())
}

func TestRegion_Contains(t *testing.T) {
	r := Region{South: 36.9, West: -9, North: 37.5, East: -7.4}
	assert.True(t, r.Contains(Coordinates{Lat: 37.0194, Lng: -7.9304}))
	assert.False(t, r.Contains(Coordinates{Lat: 38.7223, Lng: -9.1393}))
}

func TestUserLocation_Coordinates(t *testing.T) {
	var u *UserLocation
	assert.Nil(t, u.Coordinates())
	assert.Equal(t, &Coordinates{Lat: 1, Lng: 2}, (&UserLocation{UserLat: 1, UserLon: 2}).Coordinates())
}
