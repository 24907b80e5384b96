package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/table-booking/metrics"
	"github.com/yeremiapane/table-booking/models"
	"github.com/yeremiapane/table-booking/utils"
	"gorm.io/gorm"
)

const defaultMaxAttempts = 3

// tableFinder selects a table inside the caller's transaction.
type tableFinder func(ctx context.Context, tx *gorm.DB, branchID uint, partySize int, slot models.Slot, exclude []uint) (*models.Table, error)

func selectorFinder(ctx context.Context, tx *gorm.DB, branchID uint, partySize int, slot models.Slot, exclude []uint) (*models.Table, error) {
	return NewTableSelector(tx).FindTable(ctx, branchID, partySize, slot, exclude...)
}

// ReservationService owns the reservation state machine and the waitlist.
// Every write is one transaction; the unique indexes on reservations are
// what finally decides races between concurrent requests.
type ReservationService struct {
	db          *gorm.DB
	notifier    Notifier
	maxAttempts int
	findTable   tableFinder
}

type Option func(*ReservationService)

func WithNotifier(n Notifier) Option {
	return func(s *ReservationService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithMaxAttempts bounds how often a commit-time conflict is retried.
func WithMaxAttempts(n int) Option {
	return func(s *ReservationService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

func NewReservationService(db *gorm.DB, opts ...Option) *ReservationService {
	s := &ReservationService{
		db:          db,
		notifier:    noopNotifier{},
		maxAttempts: defaultMaxAttempts,
		findTable:   selectorFinder,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateReservationInput struct {
	CustomerID uint
	BranchID   uint
	PartySize  int
	Slot       models.Slot
	Notes      string
}

// FindTable previews allocation without committing anything.
func (s *ReservationService) FindTable(ctx context.Context, branchID uint, partySize int, slot models.Slot) (*models.Table, error) {
	if partySize <= 0 {
		return nil, fmt.Errorf("party size must be positive: %w", ErrInvalidInput)
	}
	slot, err := models.ParseSlot(slot.Date, slot.Time)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}
	if err := ensureBranch(ctx, s.db, branchID); err != nil {
		return nil, translateStorageError("find table", err)
	}

	table, err := NewTableSelector(s.db).FindTable(ctx, branchID, partySize, slot)
	if err != nil {
		return nil, translateStorageError("find table", err)
	}
	return table, nil
}

// CreateReservation confirms the request on the best-fit table, or queues it
// on the slot's waitlist when nothing fits. A unique index violation at
// commit means another request won the table; that table is excluded and
// selection runs again, up to maxAttempts.
func (s *ReservationService) CreateReservation(ctx context.Context, in CreateReservationInput) (*models.Reservation, error) {
	defer metrics.ObserveOperation("create", time.Now())

	if in.CustomerID == 0 {
		return nil, fmt.Errorf("customer is required: %w", ErrInvalidInput)
	}
	if in.PartySize <= 0 {
		return nil, fmt.Errorf("party size must be positive: %w", ErrInvalidInput)
	}
	slot, err := models.ParseSlot(in.Slot.Date, in.Slot.Time)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}
	if err := ensureBranch(ctx, s.db, in.BranchID); err != nil {
		return nil, translateStorageError("create reservation", err)
	}

	var exclude []uint
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		res := models.Reservation{
			CustomerID: in.CustomerID,
			BranchID:   in.BranchID,
			PartySize:  in.PartySize,
			Date:       slot.Date,
			Time:       slot.Time,
			Notes:      in.Notes,
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			table, err := s.findTable(ctx, tx, in.BranchID, in.PartySize, slot, exclude)
			if err != nil {
				return err
			}

			if table != nil {
				tableID := table.ID
				res.TableID = &tableID
				res.Status = models.ReservationConfirmed
			} else {
				pos, err := nextWaitlistPosition(tx, in.BranchID, slot)
				if err != nil {
					return err
				}
				res.Status = models.ReservationPending
				res.WaitlistPosition = &pos
			}

			return tx.Create(&res).Error
		})
		if err == nil {
			metrics.RecordReservationCreated(string(res.Status))
			utils.InfoLogger.WithFields(reservationFields(res)).Info("reservation created")

			eventType := EventReservationConfirmed
			if res.Status == models.ReservationPending {
				eventType = EventReservationWaitlisted
			}
			s.notify(ctx, eventType, res)
			return &res, nil
		}

		if !isUniqueViolation(err) {
			return nil, translateStorageError("create reservation", err)
		}

		metrics.RecordSlotConflict("create")
		utils.InfoLogger.WithFields(logrus.Fields{
			"branch_id": in.BranchID,
			"slot":      slot.String(),
			"attempt":   attempt,
		}).Warn("slot taken at commit, retrying selection")

		if res.TableID != nil {
			exclude = append(exclude, *res.TableID)
		}
	}

	return nil, fmt.Errorf("create reservation after %d attempts: %w", s.maxAttempts, ErrSlotConflict)
}

// CancelReservation cancels a pending or confirmed reservation and releases
// its table, then offers the slot to the head of the waitlist. The
// cancellation stands even if that promotion fails.
func (s *ReservationService) CancelReservation(ctx context.Context, id uint) error {
	defer metrics.ObserveOperation("cancel", time.Now())

	var res models.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&res, id).Error; err != nil {
			return err
		}

		if res.Status == models.ReservationCancelled {
			return fmt.Errorf("reservation %d already cancelled: %w", id, ErrNotFound)
		}
		if !res.Status.CanTransitionTo(models.ReservationCancelled) {
			return fmt.Errorf("reservation %d is %s: %w", id, res.Status, ErrInvalidState)
		}

		result := tx.Model(&models.Reservation{}).
			Where("id = ? AND status = ?", id, res.Status).
			Updates(map[string]interface{}{
				"status":            models.ReservationCancelled,
				"table_id":          nil,
				"waitlist_position": nil,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("reservation %d changed concurrently: %w", id, ErrNotFound)
		}

		res.Status = models.ReservationCancelled
		res.TableID = nil
		res.WaitlistPosition = nil
		return nil
	})
	if err != nil {
		return translateStorageError("cancel reservation", err)
	}

	metrics.RecordCancellation()
	utils.InfoLogger.WithFields(reservationFields(res)).Info("reservation cancelled")
	s.notify(ctx, EventReservationCancelled, res)

	// Promotion belongs to the slot, not to the caller's request.
	promoteCtx := context.WithoutCancel(ctx)
	if _, err := s.PromoteNext(promoteCtx, res.BranchID, res.Slot()); err != nil {
		utils.ErrorLogger.WithFields(reservationFields(res)).Errorf("waitlist promotion after cancel failed: %v", err)
	}
	return nil
}

// SeatReservation marks a confirmed reservation as seated.
func (s *ReservationService) SeatReservation(ctx context.Context, id uint) (*models.Reservation, error) {
	res, err := s.transition(ctx, id, models.ReservationSeated)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, EventReservationSeated, *res)
	return res, nil
}

// CompleteReservation marks a seated reservation as completed.
func (s *ReservationService) CompleteReservation(ctx context.Context, id uint) (*models.Reservation, error) {
	res, err := s.transition(ctx, id, models.ReservationCompleted)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, EventReservationCompleted, *res)
	return res, nil
}

func (s *ReservationService) transition(ctx context.Context, id uint, to models.ReservationStatus) (*models.Reservation, error) {
	var res models.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&res, id).Error; err != nil {
			return err
		}
		if !res.Status.CanTransitionTo(to) {
			return fmt.Errorf("reservation %d cannot go from %s to %s: %w", id, res.Status, to, ErrInvalidState)
		}

		result := tx.Model(&models.Reservation{}).
			Where("id = ? AND status = ?", id, res.Status).
			Update("status", to)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("reservation %d changed concurrently: %w", id, ErrInvalidState)
		}
		res.Status = to
		return nil
	})
	if err != nil {
		return nil, translateStorageError("update reservation", err)
	}

	utils.InfoLogger.WithFields(reservationFields(res)).Infof("reservation %s", to)
	return &res, nil
}

func (s *ReservationService) GetReservation(ctx context.Context, id uint) (*models.Reservation, error) {
	var res models.Reservation
	if err := s.db.WithContext(ctx).Preload("Table").First(&res, id).Error; err != nil {
		return nil, translateStorageError("get reservation", err)
	}
	return &res, nil
}

// ListCustomerReservations returns a customer's reservations, latest date first.
func (s *ReservationService) ListCustomerReservations(ctx context.Context, customerID uint) ([]models.Reservation, error) {
	var list []models.Reservation
	err := s.db.WithContext(ctx).
		Preload("Table").
		Where("customer_id = ?", customerID).
		Order("slot_date DESC").Order("slot_time ASC").Order("id ASC").
		Find(&list).Error
	if err != nil {
		return nil, translateStorageError("list reservations", err)
	}
	return list, nil
}

func (s *ReservationService) notify(ctx context.Context, eventType string, res models.Reservation) {
	if err := s.notifier.Notify(context.WithoutCancel(ctx), NewEvent(eventType, res)); err != nil {
		utils.ErrorLogger.WithFields(reservationFields(res)).Errorf("notify %s failed: %v", eventType, err)
	}
}

func ensureBranch(ctx context.Context, db *gorm.DB, branchID uint) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.Branch{}).Where("id = ?", branchID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("branch %d: %w", branchID, ErrNotFound)
	}
	return nil
}

func reservationFields(res models.Reservation) logrus.Fields {
	fields := logrus.Fields{
		"reservation_id": res.ID,
		"branch_id":      res.BranchID,
		"slot":           res.Slot().String(),
		"status":         res.Status,
	}
	if res.TableID != nil {
		fields["table_id"] = *res.TableID
	}
	if res.WaitlistPosition != nil {
		fields["waitlist_position"] = *res.WaitlistPosition
	}
	return fields
}
