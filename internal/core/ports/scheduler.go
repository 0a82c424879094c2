package ports

import "time"

type SchedulerService interface {
	Start()
	Stop()

	// ScheduleTask runs task every interval. A run still in progress when the
	// next one is due makes the latter be skipped.
	ScheduleTask(interval time.Duration, immediate bool, task func()) error
}
