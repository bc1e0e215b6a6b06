package types

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrPlanNotFound = errors.New("plan not found")

// SavedPlan is a named, persisted itinerary.
type SavedPlan struct {
	ID        uuid.UUID `json:"id"`
	Key       string    `json:"key"`
	Title     string    `json:"title"`
	Stops     []Stop    `json:"stops"`
	UpdatedAt time.Time `json:"updatedAt"`
}
