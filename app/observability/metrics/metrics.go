package metrics

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the planner's metric instruments.
// A nil *AppMetrics is valid and records nothing.
type AppMetrics struct {
	PlaceLookupsTotal        metric.Int64Counter
	FallbackSubstitutions    metric.Int64Counter
	LLMCallDurationSeconds   metric.Float64Histogram
	ExtractionDroppedRecords metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// New creates the instruments on the given meter.
func New(meter metric.Meter) (*AppMetrics, error) {
	var err error
	m := &AppMetrics{}

	m.PlaceLookupsTotal, err = meter.Int64Counter(
		"place_lookup_total",
		metric.WithDescription("Place lookups answered, by provider tier"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	m.FallbackSubstitutions, err = meter.Int64Counter(
		"fallback_substitutions_total",
		metric.WithDescription("Times a fallback replaced an AI-assisted or provider step"),
		metric.WithUnit("{substitution}"),
	)
	if err != nil {
		return nil, err
	}

	m.LLMCallDurationSeconds, err = meter.Float64Histogram(
		"llm_call_duration_seconds",
		metric.WithDescription("Duration of LLM calls in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ExtractionDroppedRecords, err = meter.Int64Counter(
		"extraction_dropped_records_total",
		metric.WithDescription("Candidate records dropped by the extractor"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// InitAppMetrics initializes the global instruments ONLY ONCE from the global MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		m, err := New(otel.GetMeterProvider().Meter("ItineraryPlanner"))
		if err != nil {
			log.Fatalf("Metrics: Failed to create instruments: %v", err)
		}
		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

// Get returns the global instance, initializing it on first use.
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}

func (m *AppMetrics) RecordTier(ctx context.Context, operation, tier string) {
	if m == nil {
		return
	}
	m.PlaceLookupsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("tier", tier),
	))
}

func (m *AppMetrics) RecordFallback(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.FallbackSubstitutions.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func (m *AppMetrics) RecordLLMCall(ctx context.Context, provider string, seconds float64) {
	if m == nil {
		return
	}
	m.LLMCallDurationSeconds.Record(ctx, seconds, metric.WithAttributes(attribute.String("provider", provider)))
}

func (m *AppMetrics) RecordDropped(ctx context.Context, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ExtractionDroppedRecords.Add(ctx, int64(n))
}
