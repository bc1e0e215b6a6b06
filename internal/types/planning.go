package types

// BroadCategories is used whenever a search arrives without categories.
var BroadCategories = []string{"restaurant", "cafe", "museum", "park", "beach", "landmark", "viewpoint"}

const (
	DefaultRadiusMeters = 5000
	DefaultSearchLimit  = 20
)

// UserLocation is the live position reported by the client.
type UserLocation struct {
	UserLat float64 `json:"userLat"`
	UserLon float64 `json:"userLon"`
}

func (u *UserLocation) Coordinates() *Coordinates {
	if u == nil {
		return nil
	}
	return &Coordinates{Lat: u.UserLat, Lng: u.UserLon}
}

// ChatTurn is one message of the stored conversation history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Preferences maps a preference key to one or more values.
type Preferences map[string][]string

// PlanningContext is ephemeral state for one user turn or one round session.
type PlanningContext struct {
	History      []ChatTurn
	UserLocation *Coordinates
	Preferences  Preferences
	Selected     []Stop
	Round        int
}

// ExcludedIDs returns the ids of every stop already selected in this session.
func (pc *PlanningContext) ExcludedIDs() []string {
	ids := make([]string, 0, len(pc.Selected))
	for _, s := range pc.Selected {
		if s.ID != "" {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// SearchCriteria is the normalized request to the knowledge store and providers.
type SearchCriteria struct {
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	RadiusMeters float64  `json:"radiusMeters"`
	Categories   []string `json:"categories"`
	Limit        int      `json:"limit"`
	MinRating    *float64 `json:"minRating,omitempty"`
	PriceLevel   *int     `json:"priceLevel,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	ExcludeIDs   []string `json:"excludeIds,omitempty"`
}

// Normalize enforces positive radius/limit and a non-empty category set.
func (c SearchCriteria) Normalize() SearchCriteria {
	if c.RadiusMeters <= 0 {
		c.RadiusMeters = DefaultRadiusMeters
	}
	if c.Limit <= 0 {
		c.Limit = DefaultSearchLimit
	}
	if len(c.Categories) == 0 {
		c.Categories = append([]string(nil), BroadCategories...)
	}
	return c
}

// RoundIntent is what one planning round is looking for.
type RoundIntent struct {
	Label         string   `json:"label"`
	Category      string   `json:"category"`
	Criteria      []string `json:"criteria,omitempty"`
	ExpectedCount int      `json:"expectedCount"`
}

// RoundOutcome records how a round was executed, including substituted fallbacks.
type RoundOutcome struct {
	Round     int            `json:"round"`
	Intent    RoundIntent    `json:"intent"`
	Criteria  SearchCriteria `json:"criteria"`
	Tier      Tier           `json:"tier"`
	Stops     []Stop         `json:"stops"`
	Fallbacks []string       `json:"fallbacks,omitempty"`
}

// PlanRequest is the single call the boundary layer makes.
type PlanRequest struct {
	History         []ChatTurn    `json:"history"`
	Prompt          string        `json:"prompt"`
	UserLocation    *UserLocation `json:"userLocation,omitempty"`
	UserPreferences Preferences   `json:"userPreferences,omitempty"`
	SessionKey      string        `json:"sessionKey,omitempty"`
}

// PlanResponse is what the boundary layer renders.
type PlanResponse struct {
	ReplyText   string         `json:"replyText"`
	Stops       []Stop         `json:"stops"`
	Diagnostics Diagnostics    `json:"diagnostics"`
	Rounds      []RoundOutcome `json:"rounds,omitempty"`
}

// Diagnostics collects everything that was absorbed instead of failing the turn.
type Diagnostics struct {
	Candidates int                `json:"candidates"`
	Dropped    []RecordDiagnostic `json:"dropped,omitempty"`
	Notes      []string           `json:"notes,omitempty"`
}

// Count is the number of dropped candidate records.
func (d Diagnostics) Count() int {
	return len(d.Dropped)
}

// RecordDiagnostic explains why a candidate record was dropped.
type RecordDiagnostic struct {
	Offset  int    `json:"offset"`
	Kind    string `json:"kind"`
	Reason  string `json:"reason"`
	Snippet string `json:"snippet"`
}

// Region bounds geocoding results and supplies the fallback center.
type Region struct {
	Name   string
	South  float64
	West   float64
	North  float64
	East   float64
	Center Coordinates
}

func (r Region) Contains(c Coordinates) bool {
	return c.Lat >= r.South && c.Lat <= r.North && c.Lng >= r.West && c.Lng <= r.East
}
