package services

import (
	"context"
	"errors"
	"time"

	"github.com/yeremiapane/table-booking/models"
)

// Event types emitted after a reservation change commits.
const (
	EventReservationConfirmed  = "reservation.confirmed"
	EventReservationWaitlisted = "reservation.waitlisted"
	EventReservationCancelled  = "reservation.cancelled"
	EventReservationPromoted   = "reservation.promoted"
	EventReservationSeated     = "reservation.seated"
	EventReservationCompleted  = "reservation.completed"
	EventReservationReminder   = "reservation.reminder"
)

type Event struct {
	Type        string             `json:"type"`
	Reservation models.Reservation `json:"reservation"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

func NewEvent(eventType string, res models.Reservation) Event {
	return Event{Type: eventType, Reservation: res, OccurredAt: time.Now().UTC()}
}

// Notifier receives committed reservation events. It runs after the
// transaction, so a failing notifier never affects booking state.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// MultiNotifier fans an event out to every notifier and joins their errors.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Event) error { return nil }
