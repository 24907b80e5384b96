package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yeremiapane/table-booking/models"
	"gorm.io/gorm"
)

type BranchService struct {
	db *gorm.DB
}

func NewBranchService(db *gorm.DB) *BranchService {
	return &BranchService{db: db}
}

func (s *BranchService) CreateBranch(ctx context.Context, branch *models.Branch) error {
	branch.Name = strings.TrimSpace(branch.Name)
	branch.Slug = strings.TrimSpace(strings.ToLower(branch.Slug))
	if branch.Name == "" || branch.Slug == "" {
		return fmt.Errorf("branch name and slug are required: %w", ErrInvalidInput)
	}
	if branch.Timezone == "" {
		branch.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(branch.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", branch.Timezone, ErrInvalidInput)
	}

	if err := s.db.WithContext(ctx).Create(branch).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("slug %q already used: %w", branch.Slug, ErrInvalidInput)
		}
		return translateStorageError("create branch", err)
	}
	return nil
}

func (s *BranchService) ListBranches(ctx context.Context) ([]models.Branch, error) {
	var branches []models.Branch
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&branches).Error; err != nil {
		return nil, translateStorageError("list branches", err)
	}
	return branches, nil
}

func (s *BranchService) GetBranch(ctx context.Context, id uint) (*models.Branch, error) {
	var branch models.Branch
	if err := s.db.WithContext(ctx).First(&branch, id).Error; err != nil {
		return nil, translateStorageError("get branch", err)
	}
	return &branch, nil
}
