package types

import "strings"

// Tier identifies which provider level produced a lookup result.
type Tier string

const (
	TierEnhanced  Tier = "enhanced"
	TierBasic     Tier = "basic"
	TierEmergency Tier = "emergency"
	TierNone      Tier = "none"
)

// Place is a raw hit from the knowledge store or a map provider.
type Place struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Address    string   `json:"address"`
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Rating     float64  `json:"rating,omitempty"`
	PriceLevel int      `json:"price_level,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Website    string   `json:"website,omitempty"`
	Phone      string   `json:"phone,omitempty"`
	Hours      string   `json:"opening_hours,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Distance   float64  `json:"distance_meters,omitempty"`
	Source     string   `json:"source,omitempty"`
}

// ToStop converts a lookup hit into an itinerary stop.
func (p Place) ToStop() Stop {
	s := Stop{
		ID:       p.ID,
		Name:     p.Name,
		Category: p.Category,
		Location: Location{Address: p.Address},
		Details: StopDetails{
			OpeningHours: p.Hours,
			Website:      p.Website,
			Phone:        p.Phone,
		},
		Highlights:        []string{},
		Tips:              []string{},
		NearbyAttractions: []string{},
	}
	if p.Latitude != 0 || p.Longitude != 0 {
		s.Location.Coordinates = &Coordinates{Lat: p.Latitude, Lng: p.Longitude}
	}
	if p.Rating > 0 {
		s.Details.Rating = &Rating{Value: p.Rating}
	}
	if p.PriceLevel > 0 {
		s.Details.PriceRange = strings.Repeat("€", p.PriceLevel)
	}
	if p.Summary != "" {
		s.Highlights = append(s.Highlights, p.Summary)
	}
	if s.Location.Address == "" {
		s.Location.Address = p.Name
	}
	return s
}

// TierResult tags a lookup with the tier that produced it.
type TierResult struct {
	Tier     Tier     `json:"tier"`
	Places   []Place  `json:"places"`
	Failures []string `json:"failures,omitempty"`
}

// Enriched reports whether spatial-context lookups make sense for these places.
func (r TierResult) Enriched() bool {
	return r.Tier == TierEnhanced
}

// NearbyQuery is the tool-facing "places of a type within radius" request.
type NearbyQuery struct {
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lng"`
	RadiusMeters float64 `json:"radius"`
	Category     string  `json:"category"`
	Limit        int     `json:"limit,omitempty"`
}

type TravelMode string

const (
	ModeDriving   TravelMode = "driving"
	ModeWalking   TravelMode = "walking"
	ModeCycling   TravelMode = "cycling"
	ModeTransit   TravelMode = "transit"
	DefaultTravel            = ModeDriving
)

// ParseTravelMode coerces free-form mode strings to a supported mode; it never fails.
func ParseTravelMode(s string) TravelMode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "walking", "walk", "foot", "on foot", "pedestrian", "hiking":
		return ModeWalking
	case "cycling", "bicycling", "bicycle", "bike", "cycle":
		return ModeCycling
	case "transit", "public", "public transport", "bus", "train", "metro", "subway", "tram":
		return ModeTransit
	default:
		return ModeDriving
	}
}

// RouteLeg is the provider answer to a travel-time request.
type RouteLeg struct {
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
}
