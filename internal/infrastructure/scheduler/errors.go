package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when stopping a scheduler that was never started
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrInvalidSchedule is returned when the cron expression cannot be parsed
	ErrInvalidSchedule = errors.New("invalid cron schedule")

	// ErrSweepInProgress is returned when a sweep is requested while another one runs
	ErrSweepInProgress = errors.New("overdue sweep already in progress")
)
