package container

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	database "github.com/FACorreiaa/go-itinerary-planner/app/db"
	"github.com/FACorreiaa/go-itinerary-planner/app/observability/metrics"
	"github.com/FACorreiaa/go-itinerary-planner/config"
	generativeAI "github.com/FACorreiaa/go-itinerary-planner/internal/api/generative_ai"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/geocoder"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/itinerary"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/orchestrator"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/places"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/planner"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/plans"
	"github.com/FACorreiaa/go-itinerary-planner/internal/api/travel"
	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

const providerCallTimeout = 10 * time.Second

// Container holds all application dependencies
type Container struct {
	Config           *config.Config
	Logger           *slog.Logger
	Pool             *pgxpool.Pool
	ConnectionURL    string
	ItineraryHandler *itinerary.HandlerImpl
}

// NewContainer validates the configuration and wires the pipeline:
// knowledge store, map providers, gateway, geocoder, augmenter, LLM,
// orchestrator, round planner and plan persistence.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		return nil, err
	}
	m := metrics.Get()

	dbConfig, err := database.NewDatabaseConfig(cfg, logger)
	if err != nil {
		logger.Error("Failed to generate database config", slog.Any("error", err))
		return nil, err
	}
	pool, err := database.Init(dbConfig.ConnectionURL, logger)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.Any("error", err))
		return nil, err
	}

	llm, err := newLLM(ctx, cfg, logger, m)
	if err != nil {
		pool.Close()
		return nil, err
	}

	region := cfg.Region()
	store := places.NewPostgresStore(pool, logger)
	osm := places.NewOSMProvider(places.OSMConfig{
		NominatimURL: cfg.Providers.OSM.NominatimURL,
		OSRMURL:      cfg.Providers.OSM.OSRMURL,
		UserAgent:    cfg.Providers.OSM.UserAgent,
	}, osmLimiter(cfg.Providers.OSM.RequestsPerSecond), logger)

	// A nil interface disables the basic tier; a typed nil pointer would not.
	var basic places.MapProvider
	var primaryGeocoder geocoder.Provider = osm
	var secondaryGeocoder geocoder.Provider
	google, err := places.NewGoogleProvider(cfg.Providers.Google.APIKey, cfg.Providers.Google.RegionCode, logger)
	if err != nil {
		logger.Warn("Google Maps provider disabled, falling back to OpenStreetMap only", slog.Any("error", err))
	} else {
		basic = google
		primaryGeocoder, secondaryGeocoder = google, osm
	}

	gateway := places.NewGateway(store, basic, osm, logger,
		places.WithCallTimeout(providerCallTimeout),
		places.WithMetrics(m))
	geo := geocoder.New(primaryGeocoder, secondaryGeocoder, region,
		geocoder.NewCache(cfg.Geocoding.CacheTTL), logger, m)
	augmenter := travel.NewAugmenter(gateway, string(types.DefaultTravel), logger)

	conversation := orchestrator.New(llm, gateway, geo, augmenter, orchestrator.Config{
		Region:        region.Name,
		MaxIterations: cfg.LLM.MaxIterations,
		Temperature:   cfg.LLM.Temperature,
	}, logger, orchestrator.WithMetrics(m))

	roundPlanner := planner.New(llm, gateway, geo, augmenter, planner.Config{
		Region:              region.Name,
		Center:              region.Center,
		MaxRounds:           cfg.Planner.MaxRounds,
		ResultsPerRound:     cfg.Planner.ResultsPerRound,
		DefaultRadiusMeters: cfg.Planner.DefaultRadiusMeters,
		DefaultLimit:        cfg.Planner.DefaultLimit,
		StepTimeout:         cfg.Planner.QueryTimeout,
		Temperature:         cfg.LLM.Temperature,
	}, logger, m)

	plansRepo := plans.NewRepository(pool, logger)
	itineraryService := itinerary.NewService(conversation, roundPlanner, plansRepo, logger)

	return &Container{
		Config:           cfg,
		Logger:           logger,
		Pool:             pool,
		ConnectionURL:    dbConfig.ConnectionURL,
		ItineraryHandler: itinerary.NewHandlerImpl(itineraryService, logger),
	}, nil
}

func newLLM(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.AppMetrics) (generativeAI.LLM, error) {
	var (
		llm generativeAI.LLM
		err error
	)
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		llm, err = generativeAI.NewOpenAIClient(cfg.LLM.OpenAIAPIKey, cfg.LLM.Model, logger, m)
	default:
		llm, err = generativeAI.NewGeminiClient(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.Model, logger, m)
	}
	if err != nil {
		logger.Error("Failed to create LLM client", slog.String("provider", cfg.LLM.Provider), slog.Any("error", err))
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}
	logger.Info("LLM client ready", slog.String("provider", llm.Name()))
	return generativeAI.WithTimeout(llm, cfg.LLM.CallTimeout), nil
}

func osmLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		rps = 1
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Close releases all resources held by the container
func (c *Container) Close() {
	if c.Pool != nil {
		c.Pool.Close()
	}
}

// WaitForDB waits for the database to be ready
func (c *Container) WaitForDB(ctx context.Context) bool {
	return database.WaitForDB(ctx, c.Pool, c.Logger)
}

// RunMigrations runs database migrations
func (c *Container) RunMigrations() error {
	return database.RunMigrations(c.ConnectionURL, c.Logger)
}
