// Package fallback runs an ordered list of strategies and returns the first
// useful result. Gateway tiers, geocoding providers and the planner's
// AI-assisted steps all advance through this one helper.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/go-itinerary-planner/internal/types"
)

// Strategy is one level of a chain. A strategy that returns an error or an
// empty result hands over to the next one.
type Strategy[T any] struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) (T, error)
}

// Outcome describes which strategy won and what failed before it.
type Outcome struct {
	Winner   string
	Failures []string
}

// Chain holds the emptiness test and logger shared by all runs of a layer.
type Chain[T any] struct {
	Layer  string
	Empty  func(T) bool
	Logger *slog.Logger
}

// Run tries strategies in order. It returns types.ErrAllTiersFailed joined
// with the individual failures when none of them produced a result.
func (c Chain[T]) Run(ctx context.Context, strategies ...Strategy[T]) (T, Outcome, error) {
	var (
		zero  T
		out   Outcome
		errs  []error
		l     = c.logger()
		empty = c.Empty
	)
	if empty == nil {
		empty = func(T) bool { return false }
	}
	for _, s := range strategies {
		if s.Run == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := c.attempt(ctx, s)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			out.Failures = append(out.Failures, s.Name)
			l.WarnContext(ctx, "Strategy failed, advancing",
				slog.String("layer", c.Layer),
				slog.String("strategy", s.Name),
				slog.Any("error", err))
		case empty(res):
			out.Failures = append(out.Failures, s.Name)
			l.DebugContext(ctx, "Strategy returned nothing, advancing",
				slog.String("layer", c.Layer),
				slog.String("strategy", s.Name))
		default:
			out.Winner = s.Name
			return res, out, nil
		}
	}
	errs = append([]error{types.ErrAllTiersFailed}, errs...)
	return zero, out, errors.Join(errs...)
}

// attempt runs one strategy with its own timeout and turns panics into errors.
func (c Chain[T]) attempt(ctx context.Context, s Strategy[T]) (res T, err error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", types.ErrProviderTierFailure, r)
		}
	}()
	return s.Run(ctx)
}

func (c Chain[T]) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
