package orchestrator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

const (
	proceedInstruction = "Do not ask me anything else. Proceed with your best judgement and give me the final itinerary now, one stop record per line."
	recordsInstruction = "Please give me the itinerary as stop records, one JSON object per line, following the record format from your instructions."
	finalInstruction   = "Provide the itinerary now. Use only what you already know; no further tool calls are possible."
)

const recordFormat = `{"name":"...","category":"...","location":{"address":"...","coordinates":{"lat":0.0,"lng":0.0}},"details":{"openingHours":"...","priceRange":"...","rating":4.5,"website":"...","phone":"..."},"highlights":["..."],"tips":["..."],"nearbyAttractions":["..."],"bestTimeToVisit":"...","travel":{"distanceMeters":0,"durationMinutes":0}}`

// systemPrompt builds the instructions for one user turn.
func systemPrompt(region string, pc *types.PlanningContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, `
            You are a local travel planner for %s. Build itineraries from real places.
            Use the findNearby tool to look places up and the travelTime tool for distances between stops.
            When a place came from the knowledge store you can call contextualRecommendations with its id to find what is within walking distance.
            Write a short friendly narrative. Put every stop on its own line as a single JSON object with this exact shape:
            %s
            name, category and location.address are required. Omit travel on the first stop.
            Do not wrap records in code fences. Do not end with a question once you have given stops.`, region, recordFormat)

	if pc == nil {
		return b.String()
	}
	if pc.UserLocation != nil {
		fmt.Fprintf(&b, "\n            The user is currently at latitude %.6f and longitude %.6f; plan around that position.", pc.UserLocation.Lat, pc.UserLocation.Lng)
	}
	if len(pc.Preferences) > 0 {
		keys := make([]string, 0, len(pc.Preferences))
		for k := range pc.Preferences {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString("\n            User preferences:")
		for _, k := range keys {
			fmt.Fprintf(&b, "\n            - %s: %s", k, strings.Join(pc.Preferences[k], ", "))
		}
	}
	if len(pc.Selected) > 0 {
		b.WriteString("\n            Already in the plan, do not suggest again:")
		for _, s := range pc.Selected {
			fmt.Fprintf(&b, "\n            - %s (%s)", s.Name, s.Location.Address)
		}
	}
	return b.String()
}
