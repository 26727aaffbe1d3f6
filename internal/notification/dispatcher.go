package notification

import (
	"context"
	"sync"
	"time"

	"github.com/motorsouq/billing/internal/email"
	"github.com/motorsouq/billing/internal/logger"
	"github.com/sourcegraph/conc/panics"
)

// Sender is the templated-notification boundary the dispatcher delivers
// through. Satisfied by *email.Service.
type Sender interface {
	SendTemplatedNotification(ctx context.Context, req *email.NotificationRequest) (*email.NotificationResult, error)
}

// Dispatcher sends notifications as detached, best-effort tasks.
//
// Notification delivery must never endanger the correctness of
// financial-state reconciliation: Dispatch returns immediately, failures
// and panics are caught and logged inside the task's own error boundary,
// and nothing is ever retried or propagated to the caller.
type Dispatcher struct {
	sender Sender
	logger *logger.Logger

	// sendTimeout bounds each detached send
	sendTimeout time.Duration
	wg          sync.WaitGroup
}

func NewDispatcher(sender Sender, logger *logger.Logger) *Dispatcher {
	return &Dispatcher{
		sender:      sender,
		logger:      logger,
		sendTimeout: 30 * time.Second,
	}
}

// Dispatch fires the notification and returns without waiting for delivery
func (d *Dispatcher) Dispatch(req *email.NotificationRequest) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		var catcher panics.Catcher
		catcher.Try(func() {
			ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
			defer cancel()

			if _, err := d.sender.SendTemplatedNotification(ctx, req); err != nil {
				d.logger.Errorw("notification delivery failed",
					"template", req.TemplateName,
					"recipient", req.Recipient,
					"request_id", req.RequestID,
					"error", err,
				)
			}
		})

		if recovered := catcher.Recovered(); recovered != nil {
			d.logger.Errorw("notification sender panicked",
				"template", req.TemplateName,
				"recipient", req.Recipient,
				"panic", recovered.String(),
			)
		}
	}()
}

// Wait blocks until all in-flight notifications have finished. Used on
// shutdown and in tests; normal request flow never calls it.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
