package observability

import (
	"context"
	"errors"
	"fmt"
	"syscall"

	"go.uber.org/zap"
)

// FlushTelemetry flushes buffered logs before process exit. Prometheus is pull-based,
// so metrics need no flushing. Call during graceful shutdown after in-flight requests drain.
// Sync errors from console file descriptors (EINVAL, ENOTTY) are expected and ignored.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil || ctx.Err() != nil {
		return ctx.Err()
	}
	if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}
