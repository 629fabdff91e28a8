package solver

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Options are the tuning knobs passed through to the solver. There is no
// cancellation hook; callers bound work with MaxIterations and tolerances.
type Options struct {
	MaxIterations      int     `json:"max_iterations"`
	FunctionTolerance  float64 `json:"function_tolerance"`
	GradientTolerance  float64 `json:"gradient_tolerance"`
	ParameterTolerance float64 `json:"parameter_tolerance"`
	// Verbose writes per-iteration progress to the logger at info level.
	Verbose bool `json:"verbose"`
}

// DefaultOptions returns the solver defaults.
func DefaultOptions() Options {
	return Options{
		MaxIterations:      50,
		FunctionTolerance:  1e-6,
		GradientTolerance:  1e-10,
		ParameterTolerance: 1e-8,
	}
}

// Validate rejects malformed options before any optimization is attempted.
func (o Options) Validate() error {
	if o.MaxIterations <= 0 {
		return errors.Errorf("max_iterations must be positive, got %d", o.MaxIterations)
	}
	if o.FunctionTolerance <= 0 {
		return errors.Errorf("function_tolerance must be positive, got %v", o.FunctionTolerance)
	}
	if o.GradientTolerance <= 0 {
		return errors.Errorf("gradient_tolerance must be positive, got %v", o.GradientTolerance)
	}
	if o.ParameterTolerance <= 0 {
		return errors.Errorf("parameter_tolerance must be positive, got %v", o.ParameterTolerance)
	}
	return nil
}

// Status is the outcome of a solve.
type Status int

const (
	// StatusConverged means a convergence criterion was met.
	StatusConverged Status = iota
	// StatusNoConvergence means the iteration budget ran out first.
	StatusNoConvergence
	// StatusFailure means the solver could not proceed (numerical failure
	// or an error from a cost function).
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusConverged:
		return "converged"
	case StatusNoConvergence:
		return "no convergence"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("unknown status %d", int(s))
	}
}

// Summary reports the result of one solve.
type Summary struct {
	Status          Status
	Iterations      int
	InitialCost     float64
	FinalCost       float64
	Message         string
	ParameterBlocks int
	ResidualBlocks  int
}

// Success reports whether the parameter blocks hold a usable solution. A
// solve that ran out of iterations still leaves the best values found.
func (s Summary) Success() bool {
	return s.Status != StatusFailure
}

// FullReport formats the summary for diagnostic logging.
func (s Summary) FullReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "solver report: %s\n", s.Status)
	fmt.Fprintf(&b, "  parameter blocks: %d, residual blocks: %d\n", s.ParameterBlocks, s.ResidualBlocks)
	fmt.Fprintf(&b, "  iterations: %d\n", s.Iterations)
	fmt.Fprintf(&b, "  initial cost: %.6e, final cost: %.6e\n", s.InitialCost, s.FinalCost)
	if s.Message != "" {
		fmt.Fprintf(&b, "  %s\n", s.Message)
	}
	return b.String()
}
