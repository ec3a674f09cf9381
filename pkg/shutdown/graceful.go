package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

func WithSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// Step is one named stop function run during shutdown.
type Step struct {
	Name string
	Stop func(ctx context.Context) error
}

// Graceful runs steps in order, sharing a single deadline. Every step runs
// even if an earlier one failed.
func Graceful(log *slog.Logger, timeout time.Duration, steps ...Step) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, s := range steps {
		if err := s.Stop(ctx); err != nil {
			log.Error("shutdown step failed", "step", s.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		log.Info("shutdown step done", "step", s.Name)
	}
	return errors.Join(errs...)
}
