// Package notify persists user notices and delivers them through the
// outbox worker.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/domain"
	"courtbook/internal/metrics"
	"courtbook/internal/models"

	"github.com/rs/zerolog"
)

// TaskNotify is the outbox task type carrying a notification id.
const TaskNotify = models.TaskNotify

// Sender delivers one rendered notice to one address.
type Sender interface {
	Channel() string
	Send(ctx context.Context, to, subject, body string) error
}

// StaffFeed receives a copy of every delivered notice.
type StaffFeed interface {
	Post(ctx context.Context, text string) error
}

type TaskPayload struct {
	NotificationID int64  `json:"notification_id"`
	Type           string `json:"type"`
}

type Dispatcher struct {
	store  domain.NotificationStore
	users  domain.UserDirectory
	queue  domain.TaskQueue
	sender Sender
	staff  StaffFeed
	loc    *time.Location
	logger *zerolog.Logger
}

// NewDispatcher wires the dispatcher. staff may be nil.
func NewDispatcher(store domain.NotificationStore, users domain.UserDirectory, queue domain.TaskQueue, sender Sender, staff StaffFeed, loc *time.Location, logger *zerolog.Logger) *Dispatcher {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "notify").Logger()
	return &Dispatcher{
		store:  store,
		users:  users,
		queue:  queue,
		sender: sender,
		staff:  staff,
		loc:    loc,
		logger: &l,
	}
}

func (d *Dispatcher) SendReservationConfirmation(ctx context.Context, userID int64, data models.NotificationData) {
	d.dispatch(ctx, userID, models.NotificationReservationConfirmation, data)
}

func (d *Dispatcher) SendPaymentConfirmation(ctx context.Context, userID int64, data models.NotificationData) {
	d.dispatch(ctx, userID, models.NotificationPaymentConfirmation, data)
}

func (d *Dispatcher) SendCancellationNotice(ctx context.Context, userID int64, data models.NotificationData) {
	d.dispatch(ctx, userID, models.NotificationCancellation, data)
}

// dispatch records the notice and hands delivery to the worker. Failures
// are logged, never returned.
func (d *Dispatcher) dispatch(ctx context.Context, userID int64, kind string, data models.NotificationData) {
	subject, body := Render(kind, data, d.loc)
	n := &models.Notification{
		UserID:  userID,
		Type:    kind,
		Channel: d.sender.Channel(),
		Subject: subject,
		Body:    body,
	}

	if err := d.store.CreateNotification(ctx, n); err != nil {
		d.logger.Error().Err(err).Int64("user_id", userID).Str("type", kind).Msg("failed to persist notification")
		metrics.IncNotification(n.Channel, models.NotificationFailed)
		return
	}

	if d.queue == nil {
		if err := d.Deliver(ctx, n.ID); err != nil {
			d.logger.Warn().Err(err).Int64("notification_id", n.ID).Msg("inline delivery failed")
		}
		return
	}
	if err := d.queue.Enqueue(ctx, TaskNotify, n.ID, TaskPayload{NotificationID: n.ID, Type: kind}); err != nil {
		d.logger.Error().Err(err).Int64("notification_id", n.ID).Msg("failed to enqueue notification")
	}
}

// Deliver sends a persisted notification. It is safe to call repeatedly:
// a notice already sent is skipped. The returned error lets the worker retry.
func (d *Dispatcher) Deliver(ctx context.Context, notificationID int64) error {
	n, err := d.store.GetNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.Status == models.NotificationSent {
		return nil
	}

	to := ""
	if d.users != nil {
		u, err := d.users.GetUser(ctx, n.UserID)
		switch {
		case err == nil:
			to = u.Email
		case !errors.Is(err, domain.ErrUserNotFound):
			return err
		}
	}

	if err := d.sender.Send(ctx, to, n.Subject, n.Body); err != nil {
		metrics.IncNotification(n.Channel, models.NotificationFailed)
		if uerr := d.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationFailed, err.Error()); uerr != nil {
			d.logger.Error().Err(uerr).Int64("notification_id", n.ID).Msg("failed to record delivery failure")
		}
		return fmt.Errorf("deliver notification %d: %w", n.ID, err)
	}

	if err := d.store.UpdateNotificationStatus(ctx, n.ID, models.NotificationSent, ""); err != nil {
		return err
	}
	metrics.IncNotification(n.Channel, models.NotificationSent)
	d.logger.Info().Int64("notification_id", n.ID).Int64("user_id", n.UserID).Str("type", n.Type).Msg("notification sent")

	if d.staff != nil {
		if err := d.staff.Post(ctx, n.Subject+"\n"+n.Body); err != nil {
			metrics.IncNotification("telegram", models.NotificationFailed)
			d.logger.Warn().Err(err).Int64("notification_id", n.ID).Msg("staff feed post failed")
		} else {
			metrics.IncNotification("telegram", models.NotificationSent)
		}
	}
	return nil
}
