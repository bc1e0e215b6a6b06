package types

import "errors"

var (
	// ErrProviderTierFailure marks a single external lookup that failed; the next tier is tried.
	ErrProviderTierFailure = errors.New("provider tier failure")
	// ErrAllTiersFailed is returned by a fallback chain when every strategy failed or came back empty.
	ErrAllTiersFailed = errors.New("all tiers failed")
	// ErrExtractionFailure marks a candidate record that did not parse or validate.
	ErrExtractionFailure = errors.New("record extraction failure")
	// ErrBudgetExhausted marks an iteration or retry budget that ran out.
	ErrBudgetExhausted = errors.New("budget exhausted")
	// ErrFatalConfiguration is the only error class that prevents start-up.
	ErrFatalConfiguration = errors.New("fatal configuration")
	// ErrLLMUnavailable is surfaced to the boundary when the model endpoint cannot be reached.
	ErrLLMUnavailable = errors.New("llm endpoint unavailable")
)
