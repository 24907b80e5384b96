package services

import (
	"context"

	"github.com/yeremiapane/table-booking/models"
	"gorm.io/gorm"
)

// TableSelector picks the smallest free table that fits a party. Create and
// promote both go through it.
type TableSelector struct {
	db    *gorm.DB
	index *SlotIndex
}

func NewTableSelector(db *gorm.DB) *TableSelector {
	return &TableSelector{db: db, index: NewSlotIndex(db)}
}

// FindTable returns the available table with the lowest capacity >= partySize
// that is not held at slot, skipping ids in exclude. Ties on capacity go
// to the lower id. A nil table with a nil error means nothing fits.
func (ts *TableSelector) FindTable(ctx context.Context, branchID uint, partySize int, slot models.Slot, exclude ...uint) (*models.Table, error) {
	q := ts.db.WithContext(ctx).
		Where("branch_id = ? AND status = ? AND capacity >= ?", branchID, models.TableStatusAvailable, partySize)
	if len(exclude) > 0 {
		q = q.Where("id NOT IN ?", exclude)
	}

	var candidates []models.Table
	if err := q.Order("capacity ASC").Order("id ASC").Find(&candidates).Error; err != nil {
		return nil, err
	}

	for i := range candidates {
		held, err := ts.index.IsHeld(ctx, candidates[i].ID, slot)
		if err != nil {
			return nil, err
		}
		if !held {
			return &candidates[i], nil
		}
	}
	return nil, nil
}
