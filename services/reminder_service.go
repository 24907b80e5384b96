package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/table-booking/models"
	"github.com/yeremiapane/table-booking/utils"
	"gorm.io/gorm"
)

// ReminderService announces tomorrow's confirmed reservations through the
// notifier. Delivery (email, SMS) is up to whoever consumes the events.
type ReminderService struct {
	db       *gorm.DB
	notifier Notifier
	now      func() time.Time
}

func NewReminderService(db *gorm.DB, notifier Notifier) *ReminderService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &ReminderService{db: db, notifier: notifier, now: time.Now}
}

// DueReminders lists a branch's confirmed reservations on date.
func (s *ReminderService) DueReminders(ctx context.Context, branchID uint, date string) ([]models.Reservation, error) {
	var list []models.Reservation
	err := s.db.WithContext(ctx).
		Preload("Table").
		Where("branch_id = ? AND slot_date = ? AND status = ?", branchID, date, models.ReservationConfirmed).
		Order("slot_time ASC").Order("id ASC").
		Find(&list).Error
	if err != nil {
		return nil, translateStorageError("due reminders", err)
	}
	return list, nil
}

// DispatchTomorrow emits a reminder event for each confirmed reservation
// dated tomorrow, where tomorrow is taken in each branch's own timezone.
// It returns how many reminders were handed to the notifier.
func (s *ReminderService) DispatchTomorrow(ctx context.Context) (int, error) {
	var branches []models.Branch
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&branches).Error; err != nil {
		return 0, translateStorageError("due reminders", err)
	}

	now := s.now()
	sent := 0
	for _, branch := range branches {
		tomorrow := now.In(branch.Location()).AddDate(0, 0, 1).Format(models.DateLayout)

		due, err := s.DueReminders(ctx, branch.ID, tomorrow)
		if err != nil {
			return sent, err
		}

		for _, res := range due {
			if err := s.notifier.Notify(ctx, NewEvent(EventReservationReminder, res)); err != nil {
				utils.ErrorLogger.WithFields(reservationFields(res)).Errorf("reminder failed: %v", err)
				continue
			}
			sent++
		}

		if len(due) > 0 {
			utils.InfoLogger.WithFields(logrus.Fields{
				"branch_id": branch.ID,
				"date":      tomorrow,
				"due":       len(due),
			}).Info("reservation reminders dispatched")
		}
	}
	return sent, nil
}
