package extractor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

// PlaceholderFormat is substituted for every valid record in the display text.
const PlaceholderFormat = "[[stop:%d]]"

const snippetLen = 80

type scanState int

const (
	stateNormal scanState = iota
	stateInString
	stateEscaped
)

// Result is what Extract returns for one model reply.
type Result struct {
	Records     []types.Stop
	DisplayText string
	Diagnostics types.Diagnostics
}

// Extractor pulls single-line stop records out of free model text.
type Extractor struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

type span struct {
	start, end int // end is exclusive
}

// Extract scans text once, left to right, and returns every balanced object
// literal that parses and validates as a Stop.
func (e *Extractor) Extract(text string) Result {
	res := Result{Records: []types.Stop{}, DisplayText: text}
	if text == "" {
		return res
	}

	candidates, dangling := scan(text)
	res.Diagnostics.Candidates = len(candidates)

	var display strings.Builder
	display.Grow(len(text))
	last := 0
	for _, c := range candidates {
		raw := text[c.start:c.end]
		stop, kind, err := decode(raw)
		if err != nil {
			res.Diagnostics.Dropped = append(res.Diagnostics.Dropped, types.RecordDiagnostic{
				Offset:  c.start,
				Kind:    kind,
				Reason:  err.Error(),
				Snippet: snippet(raw),
			})
			e.logger.Warn("Dropped candidate record",
				slog.Int("offset", c.start),
				slog.String("kind", kind),
				slog.Any("error", err))
			continue
		}
		res.Records = append(res.Records, stop)
		display.WriteString(text[last:c.start])
		fmt.Fprintf(&display, PlaceholderFormat, len(res.Records))
		last = c.end
	}
	display.WriteString(text[last:])
	res.DisplayText = display.String()

	if dangling >= 0 {
		res.Diagnostics.Dropped = append(res.Diagnostics.Dropped, types.RecordDiagnostic{
			Offset:  dangling,
			Kind:    "unterminated",
			Reason:  "record opened but never closed",
			Snippet: snippet(text[dangling:]),
		})
	}
	return res
}

// scan returns the spans of top-level balanced objects and the offset of a
// trailing unterminated one (-1 when there is none). String state is only
// tracked inside a record so stray quotes in the narrative cannot desync it.
func scan(text string) ([]span, int) {
	var (
		spans []span
		state = stateNormal
		depth int
		open  = -1
	)
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch state {
		case stateEscaped:
			state = stateInString
		case stateInString:
			switch ch {
			case '\\':
				state = stateEscaped
			case '"':
				state = stateNormal
			}
		case stateNormal:
			switch ch {
			case '"':
				if depth > 0 {
					state = stateInString
				}
			case '{':
				if depth == 0 {
					open = i
				}
				depth++
			case '}':
				if depth == 0 {
					continue
				}
				depth--
				if depth == 0 {
					spans = append(spans, span{start: open, end: i + 1})
					open = -1
				}
			}
		}
	}
	if depth > 0 {
		return spans, open
	}
	return spans, -1
}

func decode(raw string) (types.Stop, string, error) {
	var generic map[string]any
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return types.Stop{}, "parse", fmt.Errorf("%w: %v", types.ErrExtractionFailure, err)
	}
	if err := Validate(generic); err != nil {
		return types.Stop{}, "schema", err
	}
	var stop types.Stop
	if err := json.Unmarshal([]byte(raw), &stop); err != nil {
		return types.Stop{}, "schema", fmt.Errorf("%w: %v", types.ErrExtractionFailure, err)
	}
	normalizeLists(&stop)
	return stop, "", nil
}

// Validate checks the Stop invariant on a generically decoded record: name,
// category and location.address present, numeric lat/lng when coordinates exist.
func Validate(rec map[string]any) error {
	if !nonEmptyString(rec["name"]) {
		return fmt.Errorf("%w: missing name", types.ErrExtractionFailure)
	}
	if !nonEmptyString(rec["category"]) {
		return fmt.Errorf("%w: missing category", types.ErrExtractionFailure)
	}
	loc, ok := rec["location"].(map[string]any)
	if !ok {
		return fmt.Errorf("%w: missing location", types.ErrExtractionFailure)
	}
	if !nonEmptyString(loc["address"]) {
		return fmt.Errorf("%w: missing location.address", types.ErrExtractionFailure)
	}
	if raw, present := loc["coordinates"]; present && raw != nil {
		coords, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: coordinates must be an object", types.ErrExtractionFailure)
		}
		if _, ok := coords["lat"].(float64); !ok {
			return fmt.Errorf("%w: coordinates.lat is not numeric", types.ErrExtractionFailure)
		}
		if _, ok := coords["lng"].(float64); !ok {
			return fmt.Errorf("%w: coordinates.lng is not numeric", types.ErrExtractionFailure)
		}
	}
	return nil
}

func nonEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

func normalizeLists(s *types.Stop) {
	if s.Highlights == nil {
		s.Highlights = []string{}
	}
	if s.Tips == nil {
		s.Tips = []string{}
	}
	if s.NearbyAttractions == nil {
		s.NearbyAttractions = []string{}
	}
}

func snippet(s string) string {
	if len(s) <= snippetLen {
		return s
	}
	return s[:snippetLen] + "..."
}
