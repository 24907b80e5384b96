package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/table-booking/models"
	"github.com/yeremiapane/table-booking/services"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	published  []published
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_DeclaresTopicExchange(t *testing.T) {
	ch := &fakeChannel{}
	_, err := newPublisher(ch, "")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultExchange + ":topic"}, ch.declared)
}

func TestPublisher_NotifyRoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "bookings")
	require.NoError(t, err)

	tableID := uint(4)
	res := models.Reservation{ID: 12, BranchID: 1, TableID: &tableID, PartySize: 2, Date: "2026-03-01", Time: "19:00", Status: models.ReservationConfirmed}
	require.NoError(t, p.Notify(context.Background(), services.NewEvent(services.EventReservationPromoted, res)))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "bookings", got.exchange)
	assert.Equal(t, "reservation.promoted", got.key)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "application/json", got.msg.ContentType)

	var body struct {
		Type        string `json:"type"`
		Reservation struct {
			ID      uint   `json:"id"`
			TableID uint   `json:"table_id"`
			Status  string `json:"status"`
		} `json:"reservation"`
	}
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "reservation.promoted", body.Type)
	assert.Equal(t, uint(12), body.Reservation.ID)
	assert.Equal(t, uint(4), body.Reservation.TableID)
	assert.Equal(t, "confirmed", body.Reservation.Status)
}

func TestPublisher_NotifyReturnsPublishError(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "bookings")
	require.NoError(t, err)
	ch.publishErr = errors.New("channel closed")

	err = p.Notify(context.Background(), services.NewEvent(services.EventReservationCancelled, models.Reservation{ID: 1}))
	assert.Error(t, err)
}

func TestPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "bookings")
	require.NoError(t, err)
	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
