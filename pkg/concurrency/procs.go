package concurrency

import (
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
)

// SetMaxProcs aligns GOMAXPROCS with the container CPU quota. It should be
// called at the very start of main. The returned function restores the
// previous value.
func SetMaxProcs(logger *zap.Logger) func() {
	if logger == nil {
		logger = zap.NewNop()
	}
	undo, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Debugf))
	if err != nil {
		logger.Warn("failed to set GOMAXPROCS", zap.Error(err))
		return func() {}
	}
	return undo
}
