package container

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/go-itinerary-planner/config"
	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

func TestNewContainer_MissingCredentialIsFatal(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	cfg := &config.Config{}
	cfg.LLM.Provider = "openai"

	c, err := NewContainer(context.Background(), cfg, logger)

	assert.Nil(t, c)
	assert.ErrorIs(t, err, types.ErrFatalConfiguration)
}

func TestOSMLimiter(t *testing.T) {
	assert.Equal(t, rate.Limit(1), osmLimiter(0).Limit())
	assert.Equal(t, rate.Limit(2.5), osmLimiter(2.5).Limit())
	assert.Equal(t, 1, osmLimiter(5).Burst())
}
