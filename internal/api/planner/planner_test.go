package planner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	generativeAI "github.com/FACorreiaa/go-itinerary-planner/internal/api/generative_ai"
	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Name() string { return "mock" }

func (m *MockLLM) Chat(ctx context.Context, req generativeAI.Request) (*generativeAI.Reply, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*generativeAI.Reply), args.Error(1)
}

type MockGateway struct {
	mock.Mock
	seen []types.SearchCriteria
}

func (m *MockGateway) Search(ctx context.Context, c types.SearchCriteria) types.TierResult {
	m.seen = append(m.seen, c)
	args := m.Called(ctx, c)
	return args.Get(0).(types.TierResult)
}

type noopGeocoder struct{ calls int }

func (g *noopGeocoder) GeocodeStops(context.Context, []types.Stop) { g.calls++ }

type noopAugmenter struct{ calls int }

func (a *noopAugmenter) Augment(context.Context, []types.Stop, *types.Coordinates) { a.calls++ }

func prompted(marker string) any {
	return mock.MatchedBy(func(r generativeAI.Request) bool {
		return len(r.Messages) == 1 && strings.Contains(r.Messages[0].Text, marker)
	})
}

const (
	intentMarker = "Decide what the next round"
	queryMarker  = "Build a place search"
	curateMarker = "Pick the best"
)

func reply(s string) *generativeAI.Reply { return &generativeAI.Reply{Text: s} }

var faro = types.Coordinates{Lat: 37.0194, Lng: -7.9304}

func newPlanner(llm generativeAI.LLM, gw Gateway) (*Planner, *noopGeocoder, *noopAugmenter) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	geo, aug := &noopGeocoder{}, &noopAugmenter{}
	p := New(llm, gw, geo, aug, Config{Region: "Algarve", Center: faro, MaxRounds: 3, ResultsPerRound: 2}, logger, nil)
	return p, geo, aug
}

func places(ids ...string) []types.Place {
	out := make([]types.Place, 0, len(ids))
	for i, id := range ids {
		out = append(out, types.Place{ID: id, Name: "Place " + id, Category: "x", Address: "Rua " + id, Rating: float64(i + 1)})
	}
	return out
}

func TestPlanner_ModelDrivenRoundsGrowExclusions(t *testing.T) {
	llm := new(MockLLM)
	gw := new(MockGateway)
	p, geo, aug := newPlanner(llm, gw)

	llm.On("Chat", mock.Anything, prompted(intentMarker)).
		Return(reply("```json\n{\"label\":\"Seafood lunch\",\"category\":\"Restaurant\",\"expectedCount\":2}\n```"), nil).Once()
	llm.On("Chat", mock.Anything, prompted(intentMarker)).
		Return(reply(`{"label":"Sunset","category":"viewpoint","expectedCount":1}`), nil).Once()
	llm.On("Chat", mock.Anything, prompted(intentMarker)).
		Return(reply(`{"done":true}`), nil).Once()
	llm.On("Chat", mock.Anything, prompted(queryMarker)).
		Return(reply(`Sure! {"categories":["restaurant"],"radiusMeters":2500,"minRating":4.2,"limit":10}`), nil).Twice()
	llm.On("Chat", mock.Anything, prompted(curateMarker)).
		Return(reply(`{"ids":["r2","r1","zzz"]}`), nil).Once()
	llm.On("Chat", mock.Anything, prompted(curateMarker)).
		Return(reply(`{"ids":["v1"]}`), nil).Once()

	gw.On("Search", mock.Anything, mock.MatchedBy(func(c types.SearchCriteria) bool { return len(c.ExcludeIDs) == 1 })).
		Return(types.TierResult{Tier: types.TierEnhanced, Places: places("r1", "r2", "r3")}).Once()
	gw.On("Search", mock.Anything, mock.MatchedBy(func(c types.SearchCriteria) bool { return len(c.ExcludeIDs) == 3 })).
		Return(types.TierResult{Tier: types.TierEnhanced, Places: places("r1", "v1")}).Once()

	pc := &types.PlanningContext{
		UserLocation: &types.Coordinates{Lat: 37.1, Lng: -8.0},
		Selected:     []types.Stop{{ID: "pre-1", Name: "Hotel"}},
	}
	resp, err := p.Plan(context.Background(), pc, "A relaxed day in Faro")

	require.NoError(t, err)
	require.Len(t, gw.seen, 2)
	assert.Equal(t, []string{"pre-1"}, gw.seen[0].ExcludeIDs)
	assert.Equal(t, []string{"pre-1", "r2", "r1"}, gw.seen[1].ExcludeIDs)
	assert.Equal(t, 37.1, gw.seen[0].Latitude)
	assert.Equal(t, 2500.0, gw.seen[0].RadiusMeters)

	require.Len(t, resp.Rounds, 2)
	assert.Equal(t, "restaurant", resp.Rounds[0].Intent.Category)
	assert.Empty(t, resp.Rounds[0].Fallbacks)
	require.Len(t, resp.Stops, 3)
	assert.Equal(t, []string{"r2", "r1", "v1"}, []string{resp.Stops[0].ID, resp.Stops[1].ID, resp.Stops[2].ID})
	assert.Len(t, pc.Selected, 4)
	assert.Equal(t, "Seafood lunch:\n[[stop:1]]\n[[stop:2]]\n\nSunset:\n[[stop:3]]", resp.ReplyText)
	assert.Equal(t, 1, geo.calls)
	assert.Equal(t, 1, aug.calls)
	llm.AssertExpectations(t)
}

func TestPlanner_AllModelStepsFailUsesSubstitutes(t *testing.T) {
	llm := new(MockLLM)
	gw := new(MockGateway)
	p, _, _ := newPlanner(llm, gw)

	llm.On("Chat", mock.Anything, prompted(intentMarker)).Return(nil, errors.New("quota exceeded")).Once()
	llm.On("Chat", mock.Anything, prompted(queryMarker)).Return(reply("no idea"), nil)
	llm.On("Chat", mock.Anything, prompted(curateMarker)).Return(nil, errors.New("quota exceeded"))

	gw.On("Search", mock.Anything, mock.Anything).Return(types.TierResult{Tier: types.TierEnhanced, Places: places("a", "b", "c")}).Once()
	gw.On("Search", mock.Anything, mock.Anything).Return(types.TierResult{Tier: types.TierBasic, Places: places("a", "b", "d", "e")}).Once()
	gw.On("Search", mock.Anything, mock.Anything).Return(types.TierResult{Tier: types.TierNone, Places: []types.Place{}}).Once()

	resp, err := p.Plan(context.Background(), &types.PlanningContext{}, "Surprise me")

	require.NoError(t, err)
	require.Len(t, resp.Rounds, 3)
	labels := []string{resp.Rounds[0].Intent.Label, resp.Rounds[1].Intent.Label, resp.Rounds[2].Intent.Label}
	assert.Equal(t, []string{"Dining", "Beach & nature", "Culture"}, labels)
	llm.AssertNumberOfCalls(t, "Chat", 1+3+2)

	require.Len(t, gw.seen, 3)
	assert.Equal(t, []string{"restaurant", "cafe"}, gw.seen[0].Categories)
	assert.Equal(t, faro.Lat, gw.seen[0].Latitude)
	assert.Equal(t, float64(types.DefaultRadiusMeters), gw.seen[0].RadiusMeters)
	assert.Equal(t, []string{"beach", "park", "viewpoint"}, gw.seen[1].Categories)
	assert.Equal(t, []string{"c", "b"}, gw.seen[1].ExcludeIDs)
	assert.Equal(t, []string{"c", "b", "e", "d"}, gw.seen[2].ExcludeIDs)

	ids := make([]string, 0, len(resp.Stops))
	for _, s := range resp.Stops {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"c", "b", "e", "d"}, ids)

	assert.Contains(t, resp.Rounds[0].Fallbacks, "craftIntent: fixed strategy")
	assert.Contains(t, resp.Rounds[0].Fallbacks, "craftQuery: deterministic query")
	assert.Contains(t, resp.Rounds[0].Fallbacks, "curateResults: rating order")
	assert.Contains(t, resp.Rounds[1].Fallbacks, "executeQuery: basic tier")
	assert.Empty(t, resp.Rounds[2].Stops)
	assert.NotEmpty(t, resp.Diagnostics.Notes)
}

func TestPlanner_NoModel(t *testing.T) {
	gw := new(MockGateway)
	p, _, _ := newPlanner(nil, gw)
	gw.On("Search", mock.Anything, mock.Anything).Return(types.TierResult{Tier: types.TierNone, Places: []types.Place{}})

	resp, err := p.Plan(context.Background(), nil, "Anything")

	require.NoError(t, err)
	assert.Empty(t, resp.Stops)
	assert.Equal(t, "I could not find places for this plan right now.", resp.ReplyText)
}

func TestPlanner_CancelledContext(t *testing.T) {
	p, _, _ := newPlanner(new(MockLLM), new(MockGateway))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Plan(ctx, &types.PlanningContext{}, "x")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRankByRating(t *testing.T) {
	in := []types.Place{
		{ID: "a", Rating: 4.1, Distance: 100},
		{ID: "b", Rating: 4.8, Distance: 900},
		{ID: "c", Rating: 4.8, Distance: 300},
		{ID: "d"},
	}
	got := rankByRating(in, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, "a", in[0].ID, "input is not reordered")
}

func TestMergeExclusions(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, mergeExclusions([]string{"a", "b"}, []string{"b", "", "c"}))
	assert.Empty(t, mergeExclusions(nil, nil))
}

func TestCleanJSONResponse(t *testing.T) {
	assert.Equal(t, `{"a":1}`, cleanJSONResponse("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, cleanJSONResponse(`Here you go: {"a":1} enjoy`))
	assert.Equal(t, "nothing", cleanJSONResponse("nothing"))
}
