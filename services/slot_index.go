package services

import (
	"context"

	"github.com/yeremiapane/table-booking/models"
	"gorm.io/gorm"
)

// SlotIndex answers whether a table is already held at a slot. Built over a
// transaction handle it reads that transaction's snapshot.
type SlotIndex struct {
	db *gorm.DB
}

func NewSlotIndex(db *gorm.DB) *SlotIndex {
	return &SlotIndex{db: db}
}

// HasConflict reports whether a pending or confirmed reservation exists for
// exactly this table, date and time.
func (si *SlotIndex) HasConflict(ctx context.Context, tableID uint, slot models.Slot) (bool, error) {
	var count int64
	err := si.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("table_id = ? AND slot_date = ? AND slot_time = ?", tableID, slot.Date, slot.Time).
		Where("status IN ?", models.ActiveStatuses).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IsHeld reports whether any non-cancelled row still points at this table for
// the slot. Seated and completed rows keep their table, and the table/slot
// unique index rejects a second row, so the selector must skip them too.
func (si *SlotIndex) IsHeld(ctx context.Context, tableID uint, slot models.Slot) (bool, error) {
	var count int64
	err := si.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Where("table_id = ? AND slot_date = ? AND slot_time = ?", tableID, slot.Date, slot.Time).
		Where("status <> ?", models.ReservationCancelled).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
