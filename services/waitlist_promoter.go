package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/table-booking/metrics"
	"github.com/yeremiapane/table-booking/models"
	"github.com/yeremiapane/table-booking/utils"
	"gorm.io/gorm"
)

var errStaleHead = errors.New("waitlist head changed since read")

// PromoteNext tries to seat the head of a slot's waitlist. Only the single
// lowest-position pending reservation is considered; if no table fits it,
// it stays pending and nil is returned. A nil reservation with a nil error
// is the normal "nothing promoted" outcome.
func (s *ReservationService) PromoteNext(ctx context.Context, branchID uint, slot models.Slot) (*models.Reservation, error) {
	defer metrics.ObserveOperation("promote", time.Now())

	slot, err := models.ParseSlot(slot.Date, slot.Time)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}

	var exclude []uint
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var (
			promoted *models.Reservation
			outcome  = "empty"
			tableID  uint
		)

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			head, err := waitlistHead(tx, branchID, slot)
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return err
			}

			table, err := s.findTable(ctx, tx, branchID, head.PartySize, slot, exclude)
			if err != nil {
				return err
			}
			if table == nil {
				outcome = "no_table"
				return nil
			}
			tableID = table.ID

			result := tx.Model(&models.Reservation{}).
				Where("id = ? AND status = ?", head.ID, models.ReservationPending).
				Updates(map[string]interface{}{
					"status":            models.ReservationConfirmed,
					"table_id":          tableID,
					"waitlist_position": nil,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return errStaleHead
			}

			head.Status = models.ReservationConfirmed
			head.TableID = &tableID
			head.WaitlistPosition = nil
			promoted = &head
			outcome = "promoted"
			return nil
		})

		switch {
		case err == nil:
			metrics.RecordPromotion(outcome)
			if promoted == nil {
				utils.InfoLogger.WithFields(logrus.Fields{
					"branch_id": branchID,
					"slot":      slot.String(),
					"outcome":   outcome,
				}).Debug("no waitlist promotion")
				return nil, nil
			}
			utils.InfoLogger.WithFields(reservationFields(*promoted)).Info("waitlist reservation promoted")
			s.notify(ctx, EventReservationPromoted, *promoted)
			return promoted, nil
		case errors.Is(err, errStaleHead):
			continue
		case isUniqueViolation(err):
			metrics.RecordSlotConflict("promote")
			if tableID != 0 {
				exclude = append(exclude, tableID)
			}
			continue
		default:
			metrics.RecordPromotion("error")
			return nil, translateStorageError("promote waitlist", err)
		}
	}

	metrics.RecordPromotion("error")
	return nil, fmt.Errorf("promote waitlist after %d attempts: %w", s.maxAttempts, ErrSlotConflict)
}

// ListWaitlist returns the pending reservations of a slot in promotion order.
func (s *ReservationService) ListWaitlist(ctx context.Context, branchID uint, slot models.Slot) ([]models.Reservation, error) {
	slot, err := models.ParseSlot(slot.Date, slot.Time)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}

	var list []models.Reservation
	err = waitlistQuery(s.db.WithContext(ctx), branchID, slot).Find(&list).Error
	if err != nil {
		return nil, translateStorageError("list waitlist", err)
	}
	return list, nil
}

func waitlistQuery(db *gorm.DB, branchID uint, slot models.Slot) *gorm.DB {
	return db.Model(&models.Reservation{}).
		Where("branch_id = ? AND slot_date = ? AND slot_time = ? AND status = ?",
			branchID, slot.Date, slot.Time, models.ReservationPending).
		Order("waitlist_position ASC").
		Order("created_at ASC").
		Order("id ASC")
}

func waitlistHead(tx *gorm.DB, branchID uint, slot models.Slot) (models.Reservation, error) {
	var head models.Reservation
	err := waitlistQuery(tx, branchID, slot).Limit(1).Find(&head).Error
	if err != nil {
		return head, err
	}
	if head.ID == 0 {
		return head, gorm.ErrRecordNotFound
	}
	return head, nil
}

// nextWaitlistPosition is one past the highest position ever handed out
// among the slot's current rows, or 1 for an empty slot.
func nextWaitlistPosition(tx *gorm.DB, branchID uint, slot models.Slot) (int, error) {
	var maxPos int64
	err := tx.Model(&models.Reservation{}).
		Where("branch_id = ? AND slot_date = ? AND slot_time = ?", branchID, slot.Date, slot.Time).
		Select("COALESCE(MAX(waitlist_position), 0)").
		Scan(&maxPos).Error
	if err != nil {
		return 0, err
	}
	return int(maxPos) + 1, nil
}
