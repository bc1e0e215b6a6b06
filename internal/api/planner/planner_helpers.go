package planner

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

// cleanJSONResponse strips code fences and surrounding commentary from a
// model reply that should contain one JSON object.
func cleanJSONResponse(response string) string {
	response = strings.TrimSpace(response)

	if strings.HasPrefix(response, "```json") {
		response = strings.TrimPrefix(response, "```json")
	} else if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
	}
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	firstBrace := strings.Index(response, "{")
	if firstBrace == -1 {
		return response
	}
	lastBrace := strings.LastIndex(response, "}")
	if lastBrace == -1 || lastBrace <= firstBrace {
		return response
	}
	return strings.TrimSpace(response[firstBrace : lastBrace+1])
}

func decodeModelJSON(text string, dst any) error {
	cleaned := cleanJSONResponse(text)
	if cleaned == "" {
		return fmt.Errorf("%w: empty reply", types.ErrExtractionFailure)
	}
	if err := json.Unmarshal([]byte(cleaned), dst); err != nil {
		return fmt.Errorf("%w: %v", types.ErrExtractionFailure, err)
	}
	return nil
}

// mergeExclusions returns the union of both lists, keeping first-seen order.
func mergeExclusions(a, b []string) []string {
	merged := lo.Uniq(append(slices.Clone(a), b...))
	return lo.Filter(merged, func(id string, _ int) bool { return id != "" })
}

// rankByRating is the curation fallback: highest rating first, nearest
// first among equals, truncated to n.
func rankByRating(places []types.Place, n int) []types.Place {
	ranked := slices.Clone(places)
	slices.SortStableFunc(ranked, func(a, b types.Place) int {
		switch {
		case a.Rating > b.Rating:
			return -1
		case a.Rating < b.Rating:
			return 1
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
