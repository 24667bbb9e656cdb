package engine

import (
	"errors"
	"fmt"

	daedaluserrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/spec"
)

// ErrMaxDepthExceeded is returned when nested invocations exceed Config.MaxDepth.
var ErrMaxDepthExceeded = errors.New("maximum invocation depth exceeded")

func init() {
	daedaluserrors.RegisterCategory(ErrMaxDepthExceeded, daedaluserrors.CategoryExecution)
}

// BlockError locates a failure inside a chain body.
type BlockError struct {
	// ChainID is the executor id of the chain
	ChainID string
	// BlockID is the block that failed
	BlockID string
	// ExecutorID is the executor the block invoked
	ExecutorID string
	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *BlockError) Error() string {
	return fmt.Sprintf("chain %s: block %s (%s): %v", e.ChainID, e.BlockID, e.ExecutorID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *BlockError) Unwrap() error {
	return e.Cause
}

// executionError marks a leaf failure that carries no category of its own.
func executionError(s *spec.ExecutorSpec, err error) error {
	if daedaluserrors.CategoryOf(err) != daedaluserrors.CategoryUnknown {
		return fmt.Errorf("executor %s: %w", s.ID, err)
	}
	return daedaluserrors.NewError("EXECUTION_FAILED", daedaluserrors.CategoryExecution,
		fmt.Sprintf("executor %s (%s)", s.ID, s.Implementation),
		errors.Join(daedaluserrors.ErrExecutionFailed, err))
}
