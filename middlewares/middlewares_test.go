package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/table-booking/utils"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		id, role := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id, "role": role})
	})
	r.GET("/", handlers...)
	return r
}

func serve(r *gin.Engine, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newEngine(AuthMiddleware())
	tok, err := utils.GenerateToken(9, RoleStaff)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, serve(r, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Authorization", tok).Code, "missing Bearer prefix")
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Authorization", "Bearer not-a-jwt").Code)

	w := serve(r, "Authorization", "Bearer "+tok)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":9,"role":"staff"}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	r := newEngine(AuthMiddleware(), RequireRole(RoleManager))
	manager, _ := utils.GenerateToken(1, RoleManager)
	staff, _ := utils.GenerateToken(2, RoleStaff)

	assert.Equal(t, http.StatusOK, serve(r, "Authorization", "Bearer "+manager).Code)
	assert.Equal(t, http.StatusForbidden, serve(r, "Authorization", "Bearer "+staff).Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	r := newEngine(rl.RateLimit())

	assert.Equal(t, http.StatusOK, serve(r, "", "").Code)
	assert.Equal(t, http.StatusOK, serve(r, "", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "", "").Code)
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	w := serve(r, "", "")
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)

	w = serve(r, HeaderRequestID, "abc-123")
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddlewares("https://book.example.com"))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://book.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}
