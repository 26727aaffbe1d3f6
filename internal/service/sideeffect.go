package service

import (
	"context"
	"fmt"
	"time"

	ierr "github.com/motorsouq/billing/internal/errors"
	"github.com/motorsouq/billing/internal/logger"
)

const (
	// DefaultMaxSideEffectRetries bounds side-effect attempts when the
	// configuration does not say otherwise
	DefaultMaxSideEffectRetries = 3

	sideEffectBaseDelay = 200 * time.Millisecond
)

// SideEffectOperation is a single safely-repeatable mutation against another
// subsystem, named so retry exhaustion can report what gave up.
type SideEffectOperation struct {
	Name string
	Run  func(ctx context.Context) error
}

// SideEffectExecutor applies side-effect operations with bounded
// exponential-backoff retry. Retries block only the event being processed;
// the executor holds no locks.
type SideEffectExecutor struct {
	logger *logger.Logger

	// sleep is swapped out in tests
	sleep func(d time.Duration)
}

func NewSideEffectExecutor(logger *logger.Logger) *SideEffectExecutor {
	return &SideEffectExecutor{
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Execute runs the operation up to maxRetries times, sleeping
// 2^attempts * 200ms between attempts. The terminal error names the
// operation and the number of attempts exhausted.
func (e *SideEffectExecutor) Execute(ctx context.Context, op SideEffectOperation, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxSideEffectRetries
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := op.Run(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Infow("side effect succeeded after retry",
					"operation", op.Name,
					"attempts", attempt,
				)
			}
			return nil
		}

		lastErr = err
		e.logger.Warnw("side effect attempt failed",
			"operation", op.Name,
			"attempt", attempt,
			"max_retries", maxRetries,
			"error", err,
		)

		if attempt < maxRetries {
			e.sleep(sideEffectBaseDelay << attempt)
		}
	}

	return ierr.WithError(lastErr).
		WithMessage(fmt.Sprintf("side effect %s failed after %d attempts", op.Name, maxRetries)).
		WithHintf("Operation %s failed after %d attempts", op.Name, maxRetries).
		WithReportableDetails(map[string]any{
			"operation": op.Name,
			"attempts":  maxRetries,
		}).
		Mark(ierr.ErrSystem)
}
