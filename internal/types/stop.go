package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Stop is one itinerary location as produced by the model and enriched by
// the geocoder and the travel augmenter.
type Stop struct {
	ID                string      `json:"id,omitempty"`
	Name              string      `json:"name"`
	Category          string      `json:"category"`
	Location          Location    `json:"location"`
	Details           StopDetails `json:"details"`
	Highlights        []string    `json:"highlights"`
	Tips              []string    `json:"tips"`
	NearbyAttractions []string    `json:"nearbyAttractions"`
	BestTimeToVisit   string      `json:"bestTimeToVisit,omitempty"`
	Travel            *Travel     `json:"travel,omitempty"`
}

type Location struct {
	Address     string       `json:"address"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Token renders the coordinates the way route providers accept an origin or destination.
func (c Coordinates) Token() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

type StopDetails struct {
	OpeningHours string  `json:"openingHours,omitempty"`
	PriceRange   string  `json:"priceRange,omitempty"`
	Rating       *Rating `json:"rating,omitempty"`
	Website      string  `json:"website,omitempty"`
	Phone        string  `json:"phone,omitempty"`
}

// Travel is the leg from the previous stop (or the user's origin for the first one).
type Travel struct {
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationMinutes float64 `json:"durationMinutes"`
}

// IsComplete reports whether both distance and duration were filled.
func (t *Travel) IsComplete() bool {
	return t != nil && t.DistanceMeters > 0 && t.DurationMinutes > 0
}

// Rating accepts either a JSON number or a string ("4.5", "4.5/5", "excellent").
type Rating struct {
	Value float64
	Text  string
}

func (r *Rating) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		r.Text = s
		head, _, _ := strings.Cut(strings.TrimSpace(s), "/")
		if v, err := strconv.ParseFloat(strings.TrimSpace(head), 64); err == nil {
			r.Value = v
		}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("rating must be a number or a string: %w", err)
	}
	r.Value = v
	return nil
}

func (r Rating) MarshalJSON() ([]byte, error) {
	if r.Text != "" {
		return json.Marshal(r.Text)
	}
	return json.Marshal(r.Value)
}

// CoordinatesOrAddress returns the best routing token for the stop.
func (s *Stop) CoordinatesOrAddress() string {
	if s.Location.Coordinates != nil {
		return s.Location.Coordinates.Token()
	}
	return s.Location.Address
}
