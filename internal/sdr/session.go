package sdr

import (
	"context"
	"fmt"

	"github.com/rjboer/sdrwave/internal/logging"
)

// WithStream activates the dir stream of dev, runs fn and always deactivates
// the stream afterwards, including when fn fails or panics. Deactivation
// errors carry no recoverable meaning and are only logged.
func WithStream(ctx context.Context, dev Device, dir Direction, logger logging.Logger, fn func(ctx context.Context, ep Endpoint) error) (err error) {
	if logger == nil {
		logger = logging.Default()
	}
	if err := dev.Activate(dir); err != nil {
		return fmt.Errorf("activate %s stream: %w", dir, err)
	}
	defer func() {
		if derr := dev.Deactivate(dir); derr != nil {
			logger.Debug("stream deactivate failed",
				logging.Field{Key: "subsystem", Value: "sdr"},
				logging.Field{Key: "direction", Value: dir.String()},
				logging.Field{Key: "error", Value: derr})
		}
	}()
	return fn(ctx, dev)
}

// CloseQuietly closes dev and logs any teardown failure.
func CloseQuietly(dev Device, logger logging.Logger) {
	if dev == nil {
		return
	}
	if logger == nil {
		logger = logging.Default()
	}
	if err := dev.Close(); err != nil {
		logger.Debug("device close failed",
			logging.Field{Key: "subsystem", Value: "sdr"},
			logging.Field{Key: "error", Value: err})
	}
}
