package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig is returned when the runner configuration is invalid.
	ErrConfig = errors.New("runner: invalid configuration")

	// ErrWorkspace is returned when a node directory or bootstrap config
	// file cannot be created.
	ErrWorkspace = errors.New("runner: workspace setup failed")

	// ErrPortExhausted is returned when no free port is found before the
	// configured maximum.
	ErrPortExhausted = errors.New("runner: no free port in range")

	// ErrNotFound is returned when a node lookup fails.
	ErrNotFound = errors.New("runner: node not found")

	// ErrAllNodesClosed is returned when an operation needs a live node and
	// none exists.
	ErrAllNodesClosed = errors.New("runner: all nodes are closed")

	// ErrCleanResidue is returned when Clean could not fully remove the
	// base path.
	ErrCleanResidue = errors.New("runner: base path not fully deleted")

	// ErrClosed is returned when an operation is attempted on a closed runner.
	ErrClosed = errors.New("runner: runner is closed")
)

// OperationError carries an engine-reported failure (a non-acknowledgment,
// a missing document, shard failures, or a convergence timeout) together
// with the raw response for diagnostics. It is only returned when the
// runner is not configured with print-on-failure.
type OperationError struct {
	Message  string
	Response any
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("runner: %s", e.Message)
}
