package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/table-booking/cache"
	"github.com/yeremiapane/table-booking/config"
	"github.com/yeremiapane/table-booking/database"
	"github.com/yeremiapane/table-booking/kds"
	"github.com/yeremiapane/table-booking/middlewares"
	"github.com/yeremiapane/table-booking/queue"
	"github.com/yeremiapane/table-booking/router"
	"github.com/yeremiapane/table-booking/scheduler"
	"github.com/yeremiapane/table-booking/services"
	"github.com/yeremiapane/table-booking/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.ErrorLogger.Fatalf("Invalid configuration: %v", err)
	}

	utils.InitLogger(cfg.LogLevel)
	utils.SetJWTSecret(cfg.JWTSecret)
	if cfg.JWTSecret == "" {
		utils.InfoLogger.Warn("JWT_SECRET not set, using the development secret")
	}
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		utils.ErrorLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		utils.ErrorLogger.Fatalf("Failed to migrate: %v", err)
	}

	// Event fan-out: staff floor screens, and the broker when configured.
	hub := kds.NewHub()
	notifiers := services.MultiNotifier{hub}
	if cfg.RabbitURL != "" {
		publisher, err := queue.Dial(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			utils.ErrorLogger.Errorf("RabbitMQ unavailable, events will not be published: %v", err)
		} else {
			defer publisher.Close()
			notifiers = append(notifiers, publisher)
			utils.InfoLogger.Printf("Publishing reservation events to exchange %q", cfg.RabbitExchange)
		}
	}

	reservationSvc := services.NewReservationService(db,
		services.WithNotifier(notifiers),
		services.WithMaxAttempts(cfg.MaxBookingAttempts),
	)
	branchSvc := services.NewBranchService(db)
	tableSvc := services.NewTableService(db, reservationSvc)

	var idem *cache.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			utils.ErrorLogger.Errorf("Redis unavailable, Idempotency-Key disabled: %v", err)
		} else {
			defer rdb.Close()
			idem = cache.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)
		}
	}

	if cfg.ReminderEnabled {
		loc, _ := time.LoadLocation(cfg.ReminderTimezone)
		reminders := services.NewReminderService(db, notifiers)
		sched, err := scheduler.StartReminders(reminders, cfg.ReminderHour, loc)
		if err != nil {
			utils.ErrorLogger.Fatalf("Failed to start reminder scheduler: %v", err)
		}
		defer sched.Stop()
	}

	r := router.SetupRouter(router.Deps{
		Branches:      branchSvc,
		Tables:        tableSvc,
		Reservations:  reservationSvc,
		Hub:           hub,
		Idempotency:   idem,
		RateLimiter:   middlewares.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		AllowedOrigin: cfg.CORSAllowedOrigin,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.InfoLogger.Printf("Listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.ErrorLogger.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.InfoLogger.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		utils.ErrorLogger.Errorf("Server forced to shutdown: %v", err)
	}
}
