package models

import "time"

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationSeated    ReservationStatus = "seated"
	ReservationCompleted ReservationStatus = "completed"
)

// ActiveStatuses are the statuses that hold (or wait for) a table at a slot.
var ActiveStatuses = []ReservationStatus{ReservationPending, ReservationConfirmed}

var transitions = map[ReservationStatus][]ReservationStatus{
	ReservationPending:   {ReservationConfirmed, ReservationCancelled},
	ReservationConfirmed: {ReservationSeated, ReservationCancelled},
	ReservationSeated:    {ReservationCompleted},
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Reservation is a booking request for a branch at one slot. TableID is set
// only while the reservation holds a table; cancelling clears it so the
// (table, date, time) unique index never blocks a vacated slot.
type Reservation struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	CustomerID       uint              `gorm:"not null;index:idx_reservations_customer_status,priority:1" json:"customer_id"`
	BranchID         uint              `gorm:"not null;uniqueIndex:ux_reservations_waitlist_slot,priority:1" json:"branch_id"`
	Branch           Branch            `gorm:"foreignKey:BranchID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	TableID          *uint             `gorm:"uniqueIndex:ux_reservations_table_slot,priority:1" json:"table_id"`
	Table            *Table            `gorm:"foreignKey:TableID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"table,omitempty"`
	PartySize        int               `gorm:"not null" json:"party_size"`
	Date             string            `gorm:"column:slot_date;type:varchar(10);not null;uniqueIndex:ux_reservations_table_slot,priority:2;uniqueIndex:ux_reservations_waitlist_slot,priority:2" json:"date"`
	Time             string            `gorm:"column:slot_time;type:varchar(5);not null;uniqueIndex:ux_reservations_table_slot,priority:3;uniqueIndex:ux_reservations_waitlist_slot,priority:3" json:"time"`
	Status           ReservationStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_reservations_customer_status,priority:2" json:"status"`
	WaitlistPosition *int              `gorm:"uniqueIndex:ux_reservations_waitlist_slot,priority:4" json:"waitlist_position"`
	Notes            string            `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt        time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"not null" json:"updated_at"`
}

func (r Reservation) Slot() Slot {
	return Slot{Date: r.Date, Time: r.Time}
}
