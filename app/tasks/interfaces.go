package tasks

import (
	"context"
	"time"
)

// TaskSchedulerInterface defines the scheduling operations used by main and
// the status API.
// Example usage:
//
//	scheduler, err := NewScheduler("@hourly", task, log)
//	scheduler.Start(ctx)
//	defer scheduler.Stop()
//	scheduler.Trigger()
type TaskSchedulerInterface interface {
	Start(ctx context.Context)
	Stop()
	Trigger() bool
	Running() bool
	LastReport() (Report, bool)
	Next() time.Time
}
