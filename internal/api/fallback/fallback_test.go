package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

func sliceChain() Chain[[]string] {
	return Chain[[]string]{Layer: "test", Empty: func(v []string) bool { return len(v) == 0 }}
}

func TestChain_FirstUsefulWins(t *testing.T) {
	res, out, err := sliceChain().Run(context.Background(),
		Strategy[[]string]{Name: "a", Run: func(context.Context) ([]string, error) { return nil, errors.New("boom") }},
		Strategy[[]string]{Name: "b", Run: func(context.Context) ([]string, error) { return []string{}, nil }},
		Strategy[[]string]{Name: "c", Run: func(context.Context) ([]string, error) { return []string{"x"}, nil }},
		Strategy[[]string]{Name: "d", Run: func(context.Context) ([]string, error) { t.Fatal("must not run"); return nil, nil }},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, res)
	assert.Equal(t, "c", out.Winner)
	assert.Equal(t, []string{"a", "b"}, out.Failures)
}

func TestChain_AllFail(t *testing.T) {
	res, out, err := sliceChain().Run(context.Background(),
		Strategy[[]string]{Name: "a", Run: func(context.Context) ([]string, error) { return nil, errors.New("one") }},
		Strategy[[]string]{Name: "b", Run: func(context.Context) ([]string, error) { panic("two") }},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAllTiersFailed)
	assert.ErrorContains(t, err, "one")
	assert.ErrorContains(t, err, "panic: two")
	assert.Nil(t, res)
	assert.Empty(t, out.Winner)
}

func TestChain_TimeoutIsFailure(t *testing.T) {
	res, out, err := sliceChain().Run(context.Background(),
		Strategy[[]string]{Name: "slow", Timeout: 10 * time.Millisecond, Run: func(ctx context.Context) ([]string, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		Strategy[[]string]{Name: "fast", Run: func(context.Context) ([]string, error) { return []string{"ok"}, nil }},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, res)
	assert.Equal(t, []string{"slow"}, out.Failures)
}

func TestChain_SkipsNilStrategies(t *testing.T) {
	_, out, err := sliceChain().Run(context.Background(),
		Strategy[[]string]{Name: "disabled"},
		Strategy[[]string]{Name: "ok", Run: func(context.Context) ([]string, error) { return []string{"y"}, nil }},
	)
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Winner)
	assert.Empty(t, out.Failures)
}
