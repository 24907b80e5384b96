package models

import "time"

const (
	TableStatusAvailable    = "available"
	TableStatusOutOfService = "out_of_service"
)

type Table struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	BranchID  uint      `gorm:"not null;uniqueIndex:ux_tables_branch_name,priority:1;index:idx_tables_branch_capacity,priority:1" json:"branch_id"`
	Branch    Branch    `gorm:"foreignKey:BranchID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Name      string    `gorm:"type:varchar(32);not null;uniqueIndex:ux_tables_branch_name,priority:2" json:"name"`
	Capacity  int       `gorm:"not null;index:idx_tables_branch_capacity,priority:2" json:"capacity"`
	Status    string    `gorm:"type:varchar(20);not null;default:'available'" json:"status"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func ValidTableStatus(status string) bool {
	return status == TableStatusAvailable || status == TableStatusOutOfService
}
