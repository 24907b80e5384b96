package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/table-booking/database"
	"github.com/yeremiapane/table-booking/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	testDate = "2024-01-01"
	testTime = "19:00"
)

var testSlot = models.Slot{Date: testDate, Time: testTime}

// setupTestDB opens a private in-memory SQLite database per test.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func seedBranch(t *testing.T, db *gorm.DB, slug string) models.Branch {
	t.Helper()
	branch := models.Branch{Name: "Branch " + slug, Slug: slug, Timezone: "UTC"}
	require.NoError(t, db.Create(&branch).Error)
	return branch
}

func seedTable(t *testing.T, db *gorm.DB, branchID uint, name string, capacity int) models.Table {
	t.Helper()
	table := models.Table{BranchID: branchID, Name: name, Capacity: capacity, Status: models.TableStatusAvailable}
	require.NoError(t, db.Create(&table).Error)
	return table
}

func mustCreate(t *testing.T, svc *ReservationService, customerID, branchID uint, partySize int) *models.Reservation {
	t.Helper()
	res, err := svc.CreateReservation(context.Background(), CreateReservationInput{
		CustomerID: customerID,
		BranchID:   branchID,
		PartySize:  partySize,
		Slot:       testSlot,
	})
	require.NoError(t, err)
	return res
}

func reload(t *testing.T, db *gorm.DB, id uint) models.Reservation {
	t.Helper()
	var res models.Reservation
	require.NoError(t, db.First(&res, id).Error)
	return res
}

// recordingNotifier keeps every event it receives.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingNotifier) Notify(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
