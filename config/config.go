package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode     string `mapstructure:"mode"`
	Dotenv   string `mapstructure:"dotenv"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	LLM struct {
		Provider      string        `mapstructure:"provider"`
		Model         string        `mapstructure:"model"`
		Temperature   float32       `mapstructure:"temperature"`
		MaxIterations int           `mapstructure:"maxIterations"`
		CallTimeout   time.Duration `mapstructure:"callTimeout"`
		GeminiAPIKey  string        `mapstructure:"geminiApiKey"`
		OpenAIAPIKey  string        `mapstructure:"openaiApiKey"`
	} `mapstructure:"llm"`
	Providers struct {
		Google struct {
			APIKey     string `mapstructure:"apiKey"`
			RegionCode string `mapstructure:"regionCode"`
		} `mapstructure:"google"`
		OSM struct {
			NominatimURL      string  `mapstructure:"nominatimUrl"`
			OSRMURL           string  `mapstructure:"osrmUrl"`
			UserAgent         string  `mapstructure:"userAgent"`
			RequestsPerSecond float64 `mapstructure:"requestsPerSecond"`
		} `mapstructure:"osm"`
	} `mapstructure:"providers"`
	Geocoding struct {
		CacheTTL time.Duration `mapstructure:"cacheTTL"`
		Region   struct {
			Name      string  `mapstructure:"name"`
			South     float64 `mapstructure:"south"`
			West      float64 `mapstructure:"west"`
			North     float64 `mapstructure:"north"`
			East      float64 `mapstructure:"east"`
			CenterLat float64 `mapstructure:"centerLat"`
			CenterLng float64 `mapstructure:"centerLng"`
		} `mapstructure:"region"`
	} `mapstructure:"geocoding"`
	Planner struct {
		DefaultRadiusMeters float64       `mapstructure:"defaultRadiusMeters"`
		DefaultLimit        int           `mapstructure:"defaultLimit"`
		ResultsPerRound     int           `mapstructure:"resultsPerRound"`
		MaxRounds           int           `mapstructure:"maxRounds"`
		QueryTimeout        time.Duration `mapstructure:"queryTimeout"`
	} `mapstructure:"planner"`
}

// secretEnv maps config keys to the environment variables that carry credentials.
var secretEnv = map[string]string{
	"llm.geminiApiKey":        "GOOGLE_GEMINI_API_KEY",
	"llm.openaiApiKey":        "OPENAI_API_KEY",
	"providers.google.apiKey": "GOOGLE_MAPS_API_KEY",
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range secretEnv {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}

// Validate reports missing credentials and malformed regions as
// types.ErrFatalConfiguration. Nothing else stops start-up.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LLM.Provider) {
	case "", "gemini":
		if c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GOOGLE_GEMINI_API_KEY is not set", types.ErrFatalConfiguration)
		}
	case "openai":
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is not set", types.ErrFatalConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown llm provider %q", types.ErrFatalConfiguration, c.LLM.Provider)
	}

	r := c.Geocoding.Region
	if r.South >= r.North || r.West >= r.East {
		return fmt.Errorf("%w: geocoding region bounding box is empty", types.ErrFatalConfiguration)
	}
	if !c.Region().Contains(c.Region().Center) {
		return fmt.Errorf("%w: geocoding region center lies outside its bounding box", types.ErrFatalConfiguration)
	}
	return nil
}

// Region is the configured service region.
func (c *Config) Region() types.Region {
	r := c.Geocoding.Region
	return types.Region{
		Name:   r.Name,
		South:  r.South,
		West:   r.West,
		North:  r.North,
		East:   r.East,
		Center: types.Coordinates{Lat: r.CenterLat, Lng: r.CenterLng},
	}
}
