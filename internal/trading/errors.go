// Package trading holds the error taxonomy shared by the live and backtest
// paths. Handlers translate these into response envelopes; nothing internal
// crosses the HTTP boundary raw.
package trading

import "errors"

var (
	// ErrDataUnavailable marks a market-data gap: skip the symbol live,
	// fail the run in a backtest.
	ErrDataUnavailable = errors.New("market data unavailable")

	// ErrInvalidParameters marks a strategy config that fails its schema;
	// rejected synchronously at enable or backtest-request time.
	ErrInvalidParameters = errors.New("invalid strategy parameters")

	// ErrDegenerateRisk marks entry==stop or size<=0 signals; these are
	// discarded with a logged reason, never sized or routed.
	ErrDegenerateRisk = errors.New("degenerate risk distance")

	// ErrGuardrailRejected wraps a specific failing pre-trade check; a
	// rejected order is recorded for audit and never auto-retried.
	ErrGuardrailRejected = errors.New("guardrail rejected")

	// ErrBrokerUnavailable marks a broker call failure. Idempotent reads
	// retry with bounded backoff; submissions are never blind-retried.
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrBanditUpdate marks a malformed reward payload; it is logged and
	// dropped without touching posteriors or the originating trade.
	ErrBanditUpdate = errors.New("malformed bandit reward")

	ErrNotFound = errors.New("resource not found")
)
