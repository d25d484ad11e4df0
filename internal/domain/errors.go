// Package domain holds the shared value types and error kinds of the
// analytics engine. The domain layer is pure: no infrastructure dependencies.
package domain

import "errors"

// Error kinds surfaced by the engine. Callers distinguish a degenerate but
// valid result from a failed computation with errors.Is against these.
var (
	// ErrInsufficientData indicates too few or misaligned price observations.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInvalidInput indicates NaN or Inf values in statistics inputs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOptimizationFailed indicates the constrained solver did not converge
	// within its iteration budget.
	ErrOptimizationFailed = errors.New("optimization failed")

	// ErrInfeasibleTarget indicates a frontier target return outside the
	// achievable range for the given bounds.
	ErrInfeasibleTarget = errors.New("infeasible target return")

	// ErrInvalidParameter indicates an out-of-range simulation or request
	// parameter.
	ErrInvalidParameter = errors.New("invalid parameter")
)
