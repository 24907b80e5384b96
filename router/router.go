package router

import (
	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/table-booking/cache"
	"github.com/yeremiapane/table-booking/controllers"
	"github.com/yeremiapane/table-booking/kds"
	"github.com/yeremiapane/table-booking/metrics"
	"github.com/yeremiapane/table-booking/middlewares"
	"github.com/yeremiapane/table-booking/services"
)

// Deps is everything the HTTP layer needs. Idempotency and RateLimiter may
// be nil.
type Deps struct {
	Branches      *services.BranchService
	Tables        *services.TableService
	Reservations  *services.ReservationService
	Hub           *kds.Hub
	Idempotency   *cache.IdempotencyStore
	RateLimiter   *middlewares.RateLimiter
	AllowedOrigin string
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(d.AllowedOrigin))
	if d.RateLimiter != nil {
		r.Use(d.RateLimiter.RateLimit())
	}

	branchCtrl := controllers.NewBranchController(d.Branches)
	tableCtrl := controllers.NewTableController(d.Tables)
	reservationCtrl := controllers.NewReservationController(d.Reservations, d.Idempotency)
	floorCtrl := controllers.NewFloorController(d.Hub, d.AllowedOrigin)

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	r.GET("/branches", branchCtrl.GetAllBranches)
	r.GET("/branches/:branch_id", branchCtrl.GetBranchByID)
	r.GET("/branches/:branch_id/tables", tableCtrl.GetBranchTables)
	r.GET("/branches/:branch_id/availability", reservationCtrl.Availability)

	// Staff floor screen (token in query string)
	r.GET("/ws/floor", middlewares.WebSocketAuthMiddleware(), floorCtrl.FloorHandler)

	// ----------------------------------------------------------------
	//                      AUTHENTICATED ROUTES
	// ----------------------------------------------------------------
	auth := r.Group("/reservations")
	auth.Use(middlewares.AuthMiddleware())
	{
		auth.POST("", reservationCtrl.CreateReservation)
		auth.GET("/me", reservationCtrl.GetMyReservations)
		auth.GET("/:id", reservationCtrl.GetReservation)
		auth.DELETE("/:id", reservationCtrl.CancelReservation)
	}

	// ----------------------------------------------------------------
	//                      STAFF ROUTES
	// ----------------------------------------------------------------
	admin := r.Group("/admin")
	admin.Use(middlewares.AuthMiddleware(), middlewares.RequireRole(middlewares.RoleStaff, middlewares.RoleManager))
	{
		admin.GET("/branches/:branch_id/waitlist", reservationCtrl.GetWaitlist)
		admin.POST("/branches/:branch_id/waitlist/promote", reservationCtrl.PromoteWaitlist)
		admin.POST("/reservations/:id/seat", reservationCtrl.SeatReservation)
		admin.POST("/reservations/:id/complete", reservationCtrl.CompleteReservation)
	}

	// Layout changes are manager only
	manager := admin.Group("")
	manager.Use(middlewares.RequireRole(middlewares.RoleManager))
	{
		manager.POST("/branches", branchCtrl.CreateBranch)
		manager.POST("/branches/:branch_id/tables", tableCtrl.CreateTable)
		manager.PATCH("/tables/:table_id", tableCtrl.UpdateTableStatus)
		manager.DELETE("/tables/:table_id", tableCtrl.DeleteTable)
	}

	return r
}
