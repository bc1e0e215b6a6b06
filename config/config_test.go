package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

func TestInitConfig(t *testing.T) {
	t.Setenv("GOOGLE_GEMINI_API_KEY", "gemini-key")
	t.Setenv("GOOGLE_MAPS_API_KEY", "maps-key")

	cfg, err := InitConfig()

	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.LLM.MaxIterations)
	assert.Equal(t, 45*time.Second, cfg.LLM.CallTimeout)
	assert.Equal(t, "gemini-key", cfg.LLM.GeminiAPIKey)
	assert.Equal(t, "maps-key", cfg.Providers.Google.APIKey)
	assert.Equal(t, 6*time.Hour, cfg.Geocoding.CacheTTL)
	assert.Equal(t, "9090", cfg.Handlers.Prometheus.Port)
	assert.Equal(t, 3, cfg.Planner.MaxRounds)
	assert.NoError(t, cfg.Validate())

	region := cfg.Region()
	assert.Equal(t, "Algarve", region.Name)
	assert.True(t, region.Contains(region.Center))
}

func validConfig() *Config {
	cfg := &Config{}
	cfg.LLM.Provider = "gemini"
	cfg.LLM.GeminiAPIKey = "k"
	cfg.Geocoding.Region.South = 36.9
	cfg.Geocoding.Region.North = 37.5
	cfg.Geocoding.Region.West = -9
	cfg.Geocoding.Region.East = -7.4
	cfg.Geocoding.Region.CenterLat = 37.0
	cfg.Geocoding.Region.CenterLng = -8.0
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid gemini", mutate: func(c *Config) {}},
		{name: "missing gemini key", mutate: func(c *Config) { c.LLM.GeminiAPIKey = "" }, wantErr: true},
		{name: "openai with key", mutate: func(c *Config) { c.LLM.Provider = "OpenAI"; c.LLM.OpenAIAPIKey = "k" }},
		{name: "openai without key", mutate: func(c *Config) { c.LLM.Provider = "openai" }, wantErr: true},
		{name: "unknown provider", mutate: func(c *Config) { c.LLM.Provider = "llama" }, wantErr: true},
		{name: "empty region", mutate: func(c *Config) { c.Geocoding.Region.North = 36.9 }, wantErr: true},
		{name: "center outside region", mutate: func(c *Config) { c.Geocoding.Region.CenterLat = 40 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrFatalConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
