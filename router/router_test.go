package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/table-booking/cache"
	"github.com/yeremiapane/table-booking/database"
	"github.com/yeremiapane/table-booking/kds"
	"github.com/yeremiapane/table-booking/models"
	"github.com/yeremiapane/table-booking/services"
	"github.com/yeremiapane/table-booking/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testApp struct {
	router *gin.Engine
	db     *gorm.DB
}

func setupApp(t *testing.T, withRedis bool) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.ReplaceAll(t.Name(), "/", "_")
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

	var idem *cache.IdempotencyStore
	if withRedis {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		t.Cleanup(mr.Close)
		rdb, err := cache.NewRedisClient(mr.Addr(), "", 0)
		require.NoError(t, err)
		t.Cleanup(func() { _ = rdb.Close() })
		idem = cache.NewIdempotencyStore(rdb, time.Hour)
	}

	reservations := services.NewReservationService(db)
	r := SetupRouter(Deps{
		Branches:     services.NewBranchService(db),
		Tables:       services.NewTableService(db, reservations),
		Reservations: reservations,
		Hub:          kds.NewHub(),
		Idempotency:  idem,
	})
	return &testApp{router: r, db: db}
}

func token(t *testing.T, userID uint, role string) string {
	t.Helper()
	tok, err := utils.GenerateToken(userID, role)
	require.NoError(t, err)
	return tok
}

func (a *testApp) do(t *testing.T, method, path, tok string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// seedFloor creates a branch with T1(2) and T2(4) through the admin API.
func seedFloor(t *testing.T, a *testApp) models.Branch {
	t.Helper()
	manager := token(t, 100, "manager")

	w, env := a.do(t, http.MethodPost, "/admin/branches", manager, map[string]string{"name": "Central", "slug": "central"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	branch := decode[models.Branch](t, env.Data)

	for _, tbl := range []struct {
		name     string
		capacity int
	}{{"T1", 2}, {"T2", 4}} {
		w, _ = a.do(t, http.MethodPost, fmt.Sprintf("/admin/branches/%d/tables", branch.ID), manager,
			map[string]interface{}{"name": tbl.name, "capacity": tbl.capacity})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}
	return branch
}

func booking(branchID uint, party int) map[string]interface{} {
	return map[string]interface{}{"branch_id": branchID, "party_size": party, "date": "2024-01-01", "time": "19:00"}
}

func TestPing(t *testing.T) {
	a := setupApp(t, false)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

// TestBookingFlow walks the main flow end to end:
// book, book, waitlist, cancel (promotes), seat, complete.
func TestBookingFlow(t *testing.T) {
	a := setupApp(t, false)
	branch := seedFloor(t, a)
	alice := token(t, 1, "customer")
	bob := token(t, 2, "customer")
	carol := token(t, 3, "customer")
	staff := token(t, 50, "staff")

	w, env := a.do(t, http.MethodGet, fmt.Sprintf("/branches/%d/availability?party_size=2&date=2024-01-01&time=19:00", branch.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	avail := decode[struct {
		Available bool          `json:"available"`
		Table     *models.Table `json:"table"`
	}](t, env.Data)
	assert.True(t, avail.Available)
	assert.Equal(t, "T1", avail.Table.Name)

	w, env = a.do(t, http.MethodPost, "/reservations", alice, booking(branch.ID, 2))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode[models.Reservation](t, env.Data)
	assert.Equal(t, models.ReservationConfirmed, first.Status)

	w, _ = a.do(t, http.MethodPost, "/reservations", bob, booking(branch.ID, 2))
	require.Equal(t, http.StatusCreated, w.Code)

	w, env = a.do(t, http.MethodPost, "/reservations", carol, booking(branch.ID, 2))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "No table available, added to waitlist", env.Message)
	waiting := decode[models.Reservation](t, env.Data)
	assert.Equal(t, models.ReservationPending, waiting.Status)

	w, env = a.do(t, http.MethodGet, fmt.Sprintf("/admin/branches/%d/waitlist?date=2024-01-01&time=19:00", branch.ID), staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Reservation](t, env.Data), 1)

	// Bob cannot cancel Alice's booking.
	w, _ = a.do(t, http.MethodDelete, fmt.Sprintf("/reservations/%d", first.ID), bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = a.do(t, http.MethodDelete, fmt.Sprintf("/reservations/%d", first.ID), alice, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = a.do(t, http.MethodGet, fmt.Sprintf("/reservations/%d", waiting.ID), carol, nil)
	require.Equal(t, http.StatusOK, w.Code)
	promoted := decode[models.Reservation](t, env.Data)
	assert.Equal(t, models.ReservationConfirmed, promoted.Status)
	require.NotNil(t, promoted.Table)
	assert.Equal(t, "T1", promoted.Table.Name)

	w, _ = a.do(t, http.MethodDelete, fmt.Sprintf("/reservations/%d", first.ID), alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "second cancel")

	w, env = a.do(t, http.MethodPost, fmt.Sprintf("/admin/reservations/%d/seat", waiting.ID), staff, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Reservation seated", env.Message)

	w, _ = a.do(t, http.MethodDelete, fmt.Sprintf("/reservations/%d", waiting.ID), carol, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "seated cannot be cancelled")

	w, _ = a.do(t, http.MethodPost, fmt.Sprintf("/admin/reservations/%d/complete", waiting.ID), staff, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = a.do(t, http.MethodGet, "/reservations/me", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decode[[]models.Reservation](t, env.Data)
	require.Len(t, mine, 1)
	assert.Equal(t, models.ReservationCancelled, mine[0].Status)
}

func TestCreateReservation_ErrorStatuses(t *testing.T) {
	a := setupApp(t, false)
	branch := seedFloor(t, a)
	alice := token(t, 1, "customer")

	w, _ := a.do(t, http.MethodPost, "/reservations", "", booking(branch.ID, 2))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = a.do(t, http.MethodPost, "/reservations", alice, map[string]interface{}{"branch_id": branch.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bad := booking(branch.ID, 2)
	bad["date"] = "2024-99-01"
	w, _ = a.do(t, http.MethodPost, "/reservations", alice, bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(t, http.MethodPost, "/reservations", alice, booking(999, 2))
	assert.Equal(t, http.StatusNotFound, w.Code)

	onBehalf := booking(branch.ID, 2)
	onBehalf["customer_id"] = 7
	w, _ = a.do(t, http.MethodPost, "/reservations", alice, onBehalf)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, env := a.do(t, http.MethodPost, "/reservations", token(t, 50, "staff"), onBehalf)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, uint(7), decode[models.Reservation](t, env.Data).CustomerID)
}

func TestAdminRoutes_RoleChecks(t *testing.T) {
	a := setupApp(t, false)
	branch := seedFloor(t, a)

	w, _ := a.do(t, http.MethodPost, "/admin/branches", token(t, 1, "customer"), map[string]string{"name": "X", "slug": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = a.do(t, http.MethodPost, "/admin/branches", token(t, 50, "staff"), map[string]string{"name": "X", "slug": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code, "layout changes are manager only")

	w, _ = a.do(t, http.MethodGet, fmt.Sprintf("/admin/branches/%d/waitlist?date=2024-01-01&time=19:00", branch.ID), token(t, 1, "customer"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTableAdministration(t *testing.T) {
	a := setupApp(t, false)
	branch := seedFloor(t, a)
	manager := token(t, 100, "manager")

	w, env := a.do(t, http.MethodGet, fmt.Sprintf("/branches/%d/tables", branch.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tables := decode[[]models.Table](t, env.Data)
	require.Len(t, tables, 2)

	w, env = a.do(t, http.MethodPatch, fmt.Sprintf("/admin/tables/%d", tables[0].ID), manager, map[string]string{"status": "out_of_service"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "out_of_service", decode[models.Table](t, env.Data).Status)

	w, _ = a.do(t, http.MethodPatch, fmt.Sprintf("/admin/tables/%d", tables[0].ID), manager, map[string]string{"status": "dirty"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(t, http.MethodPost, fmt.Sprintf("/admin/branches/%d/tables", branch.ID), manager, map[string]interface{}{"name": "T2", "capacity": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code, "duplicate name")

	w, _ = a.do(t, http.MethodDelete, fmt.Sprintf("/admin/tables/%d", tables[1].ID), manager, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(t, http.MethodDelete, fmt.Sprintf("/admin/tables/%d", tables[1].ID), manager, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPromoteWaitlistEndpoint(t *testing.T) {
	a := setupApp(t, false)
	branch := seedFloor(t, a)
	staff := token(t, 50, "staff")

	w, env := a.do(t, http.MethodPost, fmt.Sprintf("/admin/branches/%d/waitlist/promote", branch.ID), staff,
		map[string]string{"date": "2024-01-01", "time": "19:00"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Nothing promoted", env.Message)

	w, _ = a.do(t, http.MethodPost, fmt.Sprintf("/admin/branches/%d/waitlist/promote", branch.ID), staff,
		map[string]string{"date": "someday", "time": "19:00"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdempotencyKeyReplaysResponse(t *testing.T) {
	a := setupApp(t, true)
	branch := seedFloor(t, a)
	alice := token(t, 1, "customer")

	w1, env1 := a.do(t, http.MethodPost, "/reservations", alice, booking(branch.ID, 2), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, w1.Code)
	assert.Empty(t, w1.Header().Get("Idempotent-Replay"))

	w2, env2 := a.do(t, http.MethodPost, "/reservations", alice, booking(branch.ID, 2), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, w2.Code)
	assert.Equal(t, "true", w2.Header().Get("Idempotent-Replay"))
	assert.JSONEq(t, string(env1.Data), string(env2.Data))

	var count int64
	require.NoError(t, a.db.Model(&models.Reservation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// A different caller with the same key books separately.
	w3, _ := a.do(t, http.MethodPost, "/reservations", token(t, 2, "customer"), booking(branch.ID, 2), "Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, w3.Code)
	assert.Empty(t, w3.Header().Get("Idempotent-Replay"))
}

func TestIdempotencyKeyConcurrentRetriesBookOnce(t *testing.T) {
	a := setupApp(t, true)
	branch := seedFloor(t, a)
	alice := token(t, 1, "customer")
	payload, err := json.Marshal(booking(branch.ID, 2))
	require.NoError(t, err)

	const workers = 32
	codes := make([]int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/reservations", bytes.NewReader(payload))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+alice)
			req.Header.Set("Idempotency-Key", "same")
			w := httptest.NewRecorder()
			a.router.ServeHTTP(w, req)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	for _, code := range codes {
		assert.Contains(t, []int{http.StatusCreated, http.StatusConflict}, code)
	}

	var count int64
	require.NoError(t, a.db.Model(&models.Reservation{}).Where("customer_id = ?", 1).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	w, _ := a.do(t, http.MethodPost, "/reservations", alice, booking(branch.ID, 2), "Idempotency-Key", "same")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "true", w.Header().Get("Idempotent-Replay"))
}

func TestIdempotencyKeyReleasedAfterFailure(t *testing.T) {
	a := setupApp(t, true)
	branch := seedFloor(t, a)
	alice := token(t, 1, "customer")

	w, _ := a.do(t, http.MethodPost, "/reservations", alice, map[string]interface{}{"branch_id": branch.ID}, "Idempotency-Key", "k-2")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = a.do(t, http.MethodPost, "/reservations", alice, booking(branch.ID, 2), "Idempotency-Key", "k-2")
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get("Idempotent-Replay"))
}

func TestFloorWebsocketRequiresStaffToken(t *testing.T) {
	a := setupApp(t, false)

	req := httptest.NewRequest(http.MethodGet, "/ws/floor", nil)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/ws/floor?token="+token(t, 1, "customer"), nil)
	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := setupApp(t, false)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
