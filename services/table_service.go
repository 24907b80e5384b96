package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/table-booking/models"
	"github.com/yeremiapane/table-booking/utils"
	"gorm.io/gorm"
)

// TableService handles administrative table changes and keeps reservations
// consistent with them.
type TableService struct {
	db           *gorm.DB
	reservations *ReservationService
	now          func() time.Time
}

func NewTableService(db *gorm.DB, reservations *ReservationService) *TableService {
	return &TableService{db: db, reservations: reservations, now: time.Now}
}

func (s *TableService) ListTables(ctx context.Context, branchID uint) ([]models.Table, error) {
	if err := ensureBranch(ctx, s.db, branchID); err != nil {
		return nil, translateStorageError("list tables", err)
	}
	var tables []models.Table
	err := s.db.WithContext(ctx).
		Where("branch_id = ?", branchID).
		Order("name ASC").
		Find(&tables).Error
	if err != nil {
		return nil, translateStorageError("list tables", err)
	}
	return tables, nil
}

// CreateTable adds a table and lets waiting parties in the branch claim it.
func (s *TableService) CreateTable(ctx context.Context, table *models.Table) error {
	table.Name = strings.TrimSpace(table.Name)
	if table.Name == "" {
		return fmt.Errorf("table name is required: %w", ErrInvalidInput)
	}
	if table.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive: %w", ErrInvalidInput)
	}
	if table.Status == "" {
		table.Status = models.TableStatusAvailable
	}
	if !models.ValidTableStatus(table.Status) {
		return fmt.Errorf("unknown table status %q: %w", table.Status, ErrInvalidInput)
	}
	if err := ensureBranch(ctx, s.db, table.BranchID); err != nil {
		return translateStorageError("create table", err)
	}

	if err := s.db.WithContext(ctx).Create(table).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("table %q already exists in branch: %w", table.Name, ErrInvalidInput)
		}
		return translateStorageError("create table", err)
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"table_id":  table.ID,
		"branch_id": table.BranchID,
		"capacity":  table.Capacity,
	}).Info("table created")

	if table.Status == models.TableStatusAvailable {
		s.backfillBranch(ctx, table.BranchID)
	}
	return nil
}

// UpdateTableStatus toggles a table in or out of service. Existing bookings
// on the table are kept; out-of-service only stops new allocations.
func (s *TableService) UpdateTableStatus(ctx context.Context, tableID uint, status string) (*models.Table, error) {
	if !models.ValidTableStatus(status) {
		return nil, fmt.Errorf("unknown table status %q: %w", status, ErrInvalidInput)
	}

	var table models.Table
	if err := s.db.WithContext(ctx).First(&table, tableID).Error; err != nil {
		return nil, translateStorageError("update table", err)
	}
	if table.Status == status {
		return &table, nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.Table{}).
		Where("id = ? AND status <> ?", tableID, status).
		Update("status", status)
	if result.Error != nil {
		return nil, translateStorageError("update table", result.Error)
	}
	table.Status = status
	// A concurrent toggle already applied this status and ran the backfill.
	if result.RowsAffected == 0 {
		return &table, nil
	}

	utils.InfoLogger.Printf("Table %d status changed to %s", table.ID, table.Status)

	if status == models.TableStatusAvailable {
		s.backfillBranch(ctx, table.BranchID)
	}
	return &table, nil
}

// RemoveTable deletes a table. Reservations pointing at it lose the
// reference; confirmed ones are moved to another free table at the same
// slot when possible and otherwise go back to the waitlist.
func (s *TableService) RemoveTable(ctx context.Context, tableID uint) error {
	var moved, requeued []models.Reservation

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var table models.Table
		if err := tx.First(&table, tableID).Error; err != nil {
			return err
		}

		var held []models.Reservation
		if err := tx.Where("table_id = ?", tableID).Order("id ASC").Find(&held).Error; err != nil {
			return err
		}

		selector := NewTableSelector(tx)
		for _, res := range held {
			if res.Status != models.ReservationConfirmed {
				if err := tx.Model(&models.Reservation{}).Where("id = ?", res.ID).Update("table_id", nil).Error; err != nil {
					return err
				}
				continue
			}

			replacement, err := selector.FindTable(ctx, res.BranchID, res.PartySize, res.Slot(), tableID)
			if err != nil {
				return err
			}
			if replacement != nil {
				newID := replacement.ID
				if err := tx.Model(&models.Reservation{}).Where("id = ?", res.ID).Update("table_id", newID).Error; err != nil {
					return err
				}
				res.TableID = &newID
				moved = append(moved, res)
				continue
			}

			pos, err := nextWaitlistPosition(tx, res.BranchID, res.Slot())
			if err != nil {
				return err
			}
			err = tx.Model(&models.Reservation{}).Where("id = ?", res.ID).Updates(map[string]interface{}{
				"status":            models.ReservationPending,
				"table_id":          nil,
				"waitlist_position": pos,
			}).Error
			if err != nil {
				return err
			}
			res.Status = models.ReservationPending
			res.TableID = nil
			res.WaitlistPosition = &pos
			requeued = append(requeued, res)
		}

		return tx.Delete(&table).Error
	})
	if err != nil {
		return translateStorageError("remove table", err)
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"table_id": tableID,
		"moved":    len(moved),
		"requeued": len(requeued),
	}).Info("table removed")

	for _, res := range moved {
		s.reservations.notify(ctx, EventReservationConfirmed, res)
	}
	for _, res := range requeued {
		s.reservations.notify(ctx, EventReservationWaitlisted, res)
	}
	return nil
}

// backfillBranch offers newly usable capacity to every upcoming slot of the
// branch that has people waiting. Failures are logged; the table change has
// already committed.
func (s *TableService) backfillBranch(ctx context.Context, branchID uint) {
	ctx = context.WithoutCancel(ctx)

	var branch models.Branch
	if err := s.db.WithContext(ctx).First(&branch, branchID).Error; err != nil {
		utils.ErrorLogger.Errorf("backfill branch %d: load branch: %v", branchID, err)
		return
	}
	today := s.now().In(branch.Location()).Format(models.DateLayout)

	var slots []models.Slot
	err := s.db.WithContext(ctx).
		Model(&models.Reservation{}).
		Distinct("slot_date", "slot_time").
		Where("branch_id = ? AND status = ? AND slot_date >= ?", branchID, models.ReservationPending, today).
		Order("slot_date ASC").Order("slot_time ASC").
		Scan(&slots).Error
	if err != nil {
		utils.ErrorLogger.Errorf("backfill branch %d: list waiting slots: %v", branchID, err)
		return
	}

	for _, slot := range slots {
		// Each promotion can only seat one party; keep going while it succeeds.
		for {
			promoted, err := s.reservations.PromoteNext(ctx, branchID, slot)
			if err != nil {
				utils.ErrorLogger.Errorf("backfill branch %d slot %s: %v", branchID, slot, err)
				break
			}
			if promoted == nil {
				break
			}
		}
	}
}
