package planner

import (
	"fmt"
	"strings"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

const plannerSystem = "You plan travel itineraries one search round at a time. Reply with JSON only, no prose."

func intentPrompt(region, request string, pc *types.PlanningContext, round, maxRounds int) string {
	var selected []string
	for _, s := range pc.Selected {
		selected = append(selected, fmt.Sprintf("%s (%s)", s.Name, s.Category))
	}
	return fmt.Sprintf(`
            The traveller is in %s and asked: %q
            Preferences: %s
            Already selected: %s
            This is round %d of at most %d. Decide what the next round should look for.
            Return the response STRICTLY as a JSON object with:
            {
            "label": "Short title for the round, e.g. Lunch by the sea",
            "category": "One place category: restaurant, cafe, beach, park, museum, landmark, viewpoint, bar",
            "criteria": ["optional qualities such as seafood, family friendly"],
            "expectedCount": <int between 1 and 4>,
            "done": <true when the itinerary is already complete>
            }`, region, request, formatPreferences(pc.Preferences), orNone(selected), round, maxRounds)
}

func queryPrompt(intent types.RoundIntent, origin types.Coordinates, defaultRadius float64) string {
	return fmt.Sprintf(`
            Build a place search for the round %q looking for %q with qualities %s.
            The search is centered at latitude %.6f and longitude %.6f.
            Return the response STRICTLY as a JSON object with:
            {
            "categories": ["one or more place categories"],
            "radiusMeters": <float, default %.0f>,
            "minRating": <optional float 0-5>,
            "priceLevel": <optional int 1-4, maximum price level>,
            "tags": ["optional tags"],
            "limit": <int>
            }`, intent.Label, intent.Category, orNone(intent.Criteria), origin.Lat, origin.Lng, defaultRadius)
}

func curatePrompt(intent types.RoundIntent, candidates []types.Place, request string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `
            The traveller asked: %q
            Pick the best %d places for the round %q from these candidates:`, request, intent.ExpectedCount, intent.Label)
	for _, c := range candidates {
		fmt.Fprintf(&b, "\n            - id=%s name=%q category=%s rating=%.1f distance=%.0fm", c.ID, c.Name, c.Category, c.Rating, c.Distance)
	}
	b.WriteString(`
            Return the response STRICTLY as a JSON object with:
            {
            "ids": ["ids of the chosen places, best first"]
            }`)
	return b.String()
}

func formatPreferences(p types.Preferences) string {
	if len(p) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(p))
	for k, v := range p {
		parts = append(parts, k+"="+strings.Join(v, "/"))
	}
	return strings.Join(parts, "; ")
}

func orNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
