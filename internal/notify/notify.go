// Package notify implements best-effort notification fan-out to Telegram
// identities, detached from the state transition that triggered it.
package notify

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"fleet_service_bot/internal/logging"
)

// Sender delivers a single text message to a Telegram chat.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Dispatcher fans a message out to a set of recipients on a detached
// goroutine. A failed delivery to one recipient is logged and never blocks
// the others; the caller is never blocked past goroutine launch.
type Dispatcher struct {
	mu     sync.RWMutex
	sender Sender
	wg     sync.WaitGroup
	logger *logrus.Entry
}

// NewDispatcher constructs a Dispatcher. The sender is bound later because
// the Telegram client is built after the core components that notify through
// it.
func NewDispatcher(logger *logrus.Entry) *Dispatcher {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Dispatcher{logger: logger}
}

// Bind attaches the sender used for delivery.
func (d *Dispatcher) Bind(sender Sender) {
	d.mu.Lock()
	d.sender = sender
	d.mu.Unlock()
}

// Notify dispatches the text to every target. Fire-and-forget: errors are
// logged, nothing is returned, and delivery happens off the caller's path.
func (d *Dispatcher) Notify(targets []int64, text string) {
	if d == nil || len(targets) == 0 {
		return
	}

	d.mu.RLock()
	sender := d.sender
	d.mu.RUnlock()

	if sender == nil {
		d.logger.WithField("event", "notify_unbound").Warn("notification dropped: no sender bound")
		return
	}

	recipients := make([]int64, len(targets))
	copy(recipients, targets)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		for _, target := range recipients {
			if err := sender.SendText(context.Background(), target, text); err != nil {
				d.logger.WithFields(logging.Fields{
					"event":   "notify_failed",
					"user_id": target,
				}).WithError(err).Warn("notification delivery failed")
			}
		}
	}()
}

// Flush blocks until all in-flight dispatches finish. Used in tests and
// during shutdown.
func (d *Dispatcher) Flush() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
