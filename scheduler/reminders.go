package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/yeremiapane/table-booking/utils"
)

// ReminderDispatcher is the part of services.ReminderService the job runs.
type ReminderDispatcher interface {
	DispatchTomorrow(ctx context.Context) (int, error)
}

// ReminderScheduler runs the reminder dispatch once a day.
type ReminderScheduler struct {
	scheduler gocron.Scheduler
}

// StartReminders schedules dispatch daily at hour:00 in loc and starts the
// scheduler.
func StartReminders(dispatcher ReminderDispatcher, hour int, loc *time.Location) (*ReminderScheduler, error) {
	if hour < 0 || hour > 23 {
		return nil, fmt.Errorf("reminder hour %d out of range", hour)
	}
	if loc == nil {
		loc = time.UTC
	}

	s, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, err
	}

	_, err = s.NewJob(
		gocron.DailyJob(
			1,
			gocron.NewAtTimes(
				gocron.NewAtTime(uint(hour), 0, 0),
			),
		),
		gocron.NewTask(RunReminders, dispatcher),
		gocron.WithName("reservation-reminders"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, err
	}

	s.Start()
	utils.InfoLogger.Printf("Reminder scheduler started (%02d:00 %s)", hour, loc)
	return &ReminderScheduler{scheduler: s}, nil
}

// RunReminders is the job body.
func RunReminders(dispatcher ReminderDispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sent, err := dispatcher.DispatchTomorrow(ctx)
	if err != nil {
		utils.ErrorLogger.Errorf("reminder dispatch failed: %v", err)
		return
	}
	utils.InfoLogger.Printf("Sent %d reservation reminders", sent)
}

func (r *ReminderScheduler) Stop() error {
	return r.scheduler.Shutdown()
}
