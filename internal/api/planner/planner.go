// Package planner implements the round-based planning loop: the model picks
// an intent, crafts a query, the gateway executes it and the model curates
// the hits. Every AI-assisted step has a deterministic substitute.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/go-itinerary-planner/app/observability/metrics"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/extractor"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/fallback"
	generativeAI "github.com/FACorreiaa/go-itinerary-planner/internal/api/generative_ai"
	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

const (
	stepCraftIntent  = "craftIntent"
	stepCraftQuery   = "craftQuery"
	stepExecuteQuery = "executeQuery"
	stepCurate       = "curateResults"

	strategyLLM = "llm"
)

// Gateway executes search criteria through the provider tiers.
type Gateway interface {
	Search(ctx context.Context, criteria types.SearchCriteria) types.TierResult
}

type StopGeocoder interface {
	GeocodeStops(ctx context.Context, stops []types.Stop)
}

type TravelAugmenter interface {
	Augment(ctx context.Context, stops []types.Stop, origin *types.Coordinates)
}

type Config struct {
	Region              string
	Center              types.Coordinates
	MaxRounds           int
	ResultsPerRound     int
	DefaultRadiusMeters float64
	DefaultLimit        int
	StepTimeout         time.Duration
	Temperature         float32
}

// FixedStrategy replaces the model's intents for the rest of a session once
// intent crafting fails.
func FixedStrategy(perRound int) []types.RoundIntent {
	return []types.RoundIntent{
		{Label: "Dining", Category: "restaurant", ExpectedCount: perRound},
		{Label: "Beach & nature", Category: "beach", Criteria: []string{"nature"}, ExpectedCount: perRound},
		{Label: "Culture", Category: "museum", ExpectedCount: perRound},
	}
}

// relatedCategories widens a deterministic query beyond the single declared category.
var relatedCategories = map[string][]string{
	"beach":      {"park", "viewpoint"},
	"museum":     {"landmark"},
	"restaurant": {"cafe"},
}

type Planner struct {
	llm       generativeAI.LLM
	gateway   Gateway
	geocoder  StopGeocoder
	augmenter TravelAugmenter
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.AppMetrics
}

func New(llm generativeAI.LLM, gateway Gateway, geocoder StopGeocoder, augmenter TravelAugmenter, cfg Config, logger *slog.Logger, m *metrics.AppMetrics) *Planner {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 3
	}
	if cfg.ResultsPerRound <= 0 {
		cfg.ResultsPerRound = 2
	}
	if cfg.DefaultRadiusMeters <= 0 {
		cfg.DefaultRadiusMeters = types.DefaultRadiusMeters
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = types.DefaultSearchLimit
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 20 * time.Second
	}
	return &Planner{
		llm:       llm,
		gateway:   gateway,
		geocoder:  geocoder,
		augmenter: augmenter,
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
	}
}

// session is the mutable state of one planning request.
type session struct {
	pc       *types.PlanningContext
	request  string
	origin   types.Coordinates
	fixed    bool
	outcomes []types.RoundOutcome
}

// Plan runs up to MaxRounds rounds. Model failures are always substituted,
// so the only error is a cancelled context.
func (p *Planner) Plan(ctx context.Context, pc *types.PlanningContext, request string) (*types.PlanResponse, error) {
	if pc == nil {
		pc = &types.PlanningContext{}
	}
	ctx, span := otel.Tracer("RoundPlanner").Start(ctx, "Plan", trace.WithAttributes(
		attribute.Int("max_rounds", p.cfg.MaxRounds),
		attribute.Int("selected.initial", len(pc.Selected)),
	))
	defer span.End()

	s := &session{pc: pc, request: request, origin: p.cfg.Center}
	if pc.UserLocation != nil {
		s.origin = *pc.UserLocation
	}
	firstNew := len(pc.Selected)

	for round := 1; round <= p.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Cancelled")
			return nil, err
		}
		pc.Round = round
		outcome, done := p.runRound(ctx, s, round)
		if done {
			break
		}
		s.outcomes = append(s.outcomes, outcome)
		pc.Selected = append(pc.Selected, outcome.Stops...)
	}

	stops := pc.Selected[firstNew:]
	if len(stops) > 0 {
		p.geocoder.GeocodeStops(ctx, stops)
		p.augmenter.Augment(ctx, stops, pc.UserLocation)
		// keep round outcomes in sync with the enriched stops
		i := 0
		for r := range s.outcomes {
			for k := range s.outcomes[r].Stops {
				s.outcomes[r].Stops[k] = stops[i]
				i++
			}
		}
	}

	resp := &types.PlanResponse{
		ReplyText: renderReply(s.outcomes),
		Stops:     append([]types.Stop{}, stops...),
		Rounds:    s.outcomes,
	}
	for _, o := range s.outcomes {
		for _, f := range o.Fallbacks {
			resp.Diagnostics.Notes = append(resp.Diagnostics.Notes, fmt.Sprintf("round %d: %s", o.Round, f))
		}
	}
	span.SetAttributes(attribute.Int("rounds.completed", len(s.outcomes)), attribute.Int("stops.count", len(stops)))
	span.SetStatus(codes.Ok, "Plan completed")
	return resp, nil
}

// runRound walks CraftIntent, CraftQuery, ExecuteQuery and CurateResults.
// done is true when no intent is left for this round.
func (p *Planner) runRound(ctx context.Context, s *session, round int) (types.RoundOutcome, bool) {
	ctx, span := otel.Tracer("RoundPlanner").Start(ctx, "Round", trace.WithAttributes(attribute.Int("round", round)))
	defer span.End()
	l := p.logger.With(slog.Int("round", round))

	out := types.RoundOutcome{Round: round, Stops: []types.Stop{}}

	intent, substituted, ok := p.craftIntent(ctx, s, round)
	if !ok {
		l.InfoContext(ctx, "No intent left, planning finished")
		return out, true
	}
	out.Intent = intent
	if substituted {
		out.Fallbacks = append(out.Fallbacks, stepCraftIntent+": fixed strategy")
	}

	criteria, substituted := p.craftQuery(ctx, s, intent)
	out.Criteria = criteria
	if substituted {
		out.Fallbacks = append(out.Fallbacks, stepCraftQuery+": deterministic query")
	}

	res := p.gateway.Search(ctx, criteria)
	out.Tier = res.Tier
	excluded := lo.SliceToMap(criteria.ExcludeIDs, func(id string) (string, struct{}) { return id, struct{}{} })
	candidates := lo.Filter(res.Places, func(pl types.Place, _ int) bool {
		_, skip := excluded[pl.ID]
		return !skip
	})
	if res.Tier != types.TierEnhanced {
		out.Fallbacks = append(out.Fallbacks, fmt.Sprintf("%s: %s tier", stepExecuteQuery, res.Tier))
		p.metrics.RecordFallback(ctx, stepExecuteQuery)
	}
	if len(candidates) == 0 {
		l.WarnContext(ctx, "Round produced no candidates", slog.String("category", intent.Category))
		return out, false
	}

	chosen, substituted := p.curate(ctx, s, intent, candidates)
	if substituted {
		out.Fallbacks = append(out.Fallbacks, stepCurate+": rating order")
	}
	for _, pl := range chosen {
		out.Stops = append(out.Stops, pl.ToStop())
	}
	span.SetAttributes(
		attribute.String("intent.category", intent.Category),
		attribute.String("tier", string(res.Tier)),
		attribute.Int("candidates", len(candidates)),
		attribute.Int("chosen", len(chosen)),
	)
	l.InfoContext(ctx, "Round completed",
		slog.String("label", intent.Label),
		slog.String("tier", string(res.Tier)),
		slog.Int("chosen", len(chosen)),
		slog.Any("fallbacks", out.Fallbacks))
	return out, false
}

type intentReply struct {
	Label         string   `json:"label"`
	Category      string   `json:"category"`
	Criteria      []string `json:"criteria"`
	ExpectedCount int      `json:"expectedCount"`
	Done          bool     `json:"done"`
}

func (p *Planner) craftIntent(ctx context.Context, s *session, round int) (types.RoundIntent, bool, bool) {
	fixedIntent := fallback.Strategy[*intentReply]{
		Name: "fixed",
		Run: func(context.Context) (*intentReply, error) {
			strategy := FixedStrategy(p.cfg.ResultsPerRound)
			if round > len(strategy) {
				return &intentReply{Done: true}, nil
			}
			in := strategy[round-1]
			return &intentReply{Label: in.Label, Category: in.Category, Criteria: in.Criteria, ExpectedCount: in.ExpectedCount}, nil
		},
	}
	modelIntent := fallback.Strategy[*intentReply]{Name: strategyLLM, Timeout: p.cfg.StepTimeout}
	if !s.fixed {
		modelIntent.Run = func(ctx context.Context) (*intentReply, error) {
			var reply intentReply
			if err := p.askJSON(ctx, intentPrompt(p.cfg.Region, s.request, s.pc, round, p.cfg.MaxRounds), &reply); err != nil {
				return nil, err
			}
			if !reply.Done && strings.TrimSpace(reply.Category) == "" {
				return nil, fmt.Errorf("%w: intent without category", types.ErrExtractionFailure)
			}
			return &reply, nil
		}
	}

	chain := fallback.Chain[*intentReply]{Layer: "planner." + stepCraftIntent, Logger: p.logger}
	reply, outcome, err := chain.Run(ctx, modelIntent, fixedIntent)
	if err != nil || reply == nil || reply.Done {
		return types.RoundIntent{}, false, false
	}
	substituted := outcome.Winner != strategyLLM
	if substituted && !s.fixed {
		s.fixed = true
		p.metrics.RecordFallback(ctx, stepCraftIntent)
	}

	expected := reply.ExpectedCount
	if expected <= 0 || expected > 2*p.cfg.ResultsPerRound {
		expected = p.cfg.ResultsPerRound
	}
	label := reply.Label
	if label == "" {
		label = reply.Category
	}
	return types.RoundIntent{
		Label:         label,
		Category:      strings.ToLower(strings.TrimSpace(reply.Category)),
		Criteria:      reply.Criteria,
		ExpectedCount: expected,
	}, substituted, true
}

type queryReply struct {
	Categories   []string `json:"categories"`
	RadiusMeters float64  `json:"radiusMeters"`
	MinRating    *float64 `json:"minRating"`
	PriceLevel   *int     `json:"priceLevel"`
	Tags         []string `json:"tags"`
	Limit        int      `json:"limit"`
}

// craftQuery always centers the query on the session origin and always
// carries the exclusions of every stop selected so far.
func (p *Planner) craftQuery(ctx context.Context, s *session, intent types.RoundIntent) (types.SearchCriteria, bool) {
	modelQuery := fallback.Strategy[*types.SearchCriteria]{
		Name:    strategyLLM,
		Timeout: p.cfg.StepTimeout,
		Run: func(ctx context.Context) (*types.SearchCriteria, error) {
			var reply queryReply
			if err := p.askJSON(ctx, queryPrompt(intent, s.origin, p.cfg.DefaultRadiusMeters), &reply); err != nil {
				return nil, err
			}
			categories := lo.Filter(lo.Map(reply.Categories, func(c string, _ int) string {
				return strings.ToLower(strings.TrimSpace(c))
			}), func(c string, _ int) bool { return c != "" })
			if len(categories) == 0 {
				return nil, fmt.Errorf("%w: query without categories", types.ErrExtractionFailure)
			}
			c := types.SearchCriteria{
				Categories:   categories,
				RadiusMeters: reply.RadiusMeters,
				Limit:        reply.Limit,
				MinRating:    reply.MinRating,
				PriceLevel:   reply.PriceLevel,
				Tags:         reply.Tags,
			}
			if c.RadiusMeters > 4*p.cfg.DefaultRadiusMeters {
				c.RadiusMeters = p.cfg.DefaultRadiusMeters
			}
			return &c, nil
		},
	}
	deterministic := fallback.Strategy[*types.SearchCriteria]{
		Name: "deterministic",
		Run: func(context.Context) (*types.SearchCriteria, error) {
			return &types.SearchCriteria{
				Categories:   append([]string{intent.Category}, relatedCategories[intent.Category]...),
				RadiusMeters: p.cfg.DefaultRadiusMeters,
				Limit:        p.cfg.DefaultLimit,
			}, nil
		},
	}

	chain := fallback.Chain[*types.SearchCriteria]{Layer: "planner." + stepCraftQuery, Logger: p.logger}
	c, outcome, _ := chain.Run(ctx, modelQuery, deterministic)
	if c == nil {
		c = &types.SearchCriteria{Categories: []string{intent.Category}}
	}
	substituted := outcome.Winner != strategyLLM
	if substituted {
		p.metrics.RecordFallback(ctx, stepCraftQuery)
	}

	criteria := *c
	criteria.Latitude = s.origin.Lat
	criteria.Longitude = s.origin.Lng
	if criteria.Limit <= 0 || criteria.Limit > p.cfg.DefaultLimit {
		criteria.Limit = p.cfg.DefaultLimit
	}
	criteria.ExcludeIDs = mergeExclusions(criteria.ExcludeIDs, s.pc.ExcludedIDs())
	return criteria.Normalize(), substituted
}

type curateReply struct {
	IDs []string `json:"ids"`
}

func (p *Planner) curate(ctx context.Context, s *session, intent types.RoundIntent, candidates []types.Place) ([]types.Place, bool) {
	byID := lo.KeyBy(candidates, func(pl types.Place) string { return pl.ID })
	modelCurate := fallback.Strategy[[]types.Place]{
		Name:    strategyLLM,
		Timeout: p.cfg.StepTimeout,
		Run: func(ctx context.Context) ([]types.Place, error) {
			var reply curateReply
			if err := p.askJSON(ctx, curatePrompt(intent, candidates, s.request), &reply); err != nil {
				return nil, err
			}
			var chosen []types.Place
			for _, id := range lo.Uniq(reply.IDs) {
				if pl, ok := byID[id]; ok {
					chosen = append(chosen, pl)
				}
			}
			if len(chosen) > intent.ExpectedCount {
				chosen = chosen[:intent.ExpectedCount]
			}
			return chosen, nil
		},
	}
	byRating := fallback.Strategy[[]types.Place]{
		Name: "rating",
		Run: func(context.Context) ([]types.Place, error) {
			return rankByRating(candidates, intent.ExpectedCount), nil
		},
	}

	chain := fallback.Chain[[]types.Place]{
		Layer:  "planner." + stepCurate,
		Empty:  func(p []types.Place) bool { return len(p) == 0 },
		Logger: p.logger,
	}
	chosen, outcome, err := chain.Run(ctx, modelCurate, byRating)
	if err != nil {
		return rankByRating(candidates, intent.ExpectedCount), true
	}
	substituted := outcome.Winner != strategyLLM
	if substituted {
		p.metrics.RecordFallback(ctx, stepCurate)
	}
	return chosen, substituted
}

func (p *Planner) askJSON(ctx context.Context, prompt string, dst any) error {
	if p.llm == nil {
		return fmt.Errorf("%w: no model configured", types.ErrLLMUnavailable)
	}
	reply, err := p.llm.Chat(ctx, generativeAI.Request{
		System:      plannerSystem,
		Messages:    []generativeAI.Message{generativeAI.UserMessage(prompt)},
		Temperature: p.cfg.Temperature,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrLLMUnavailable, err)
	}
	return decodeModelJSON(reply.Text, dst)
}

// renderReply lists every round with one placeholder per stop, numbered the
// same way the extractor numbers records.
func renderReply(outcomes []types.RoundOutcome) string {
	if len(outcomes) == 0 {
		return "I could not find places for this plan right now."
	}
	var b strings.Builder
	n := 0
	for _, o := range outcomes {
		if len(o.Stops) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(o.Intent.Label + ":")
		for range o.Stops {
			n++
			b.WriteString("\n")
			fmt.Fprintf(&b, extractor.PlaceholderFormat, n)
		}
	}
	if n == 0 {
		return "I could not find places for this plan right now."
	}
	return b.String()
}
