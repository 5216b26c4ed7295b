package jobs

import (
	"fmt"
	"sort"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskStockReportWarmup pre-builds month-to-date stock statements.
	TaskStockReportWarmup = "stockreport:warmup"
	// TaskDispatchIntegrity scans for over-dispatched lines and ledger drift.
	TaskDispatchIntegrity = "dispatch:integrity"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// Schedule maps each task to its cron spec (UTC).
var Schedule = map[string]string{
	TaskStockReportWarmup:  "10 1 * * *",
	TaskDispatchIntegrity:  "40 1 * * *",
	TaskIdempotencyCleanup: "0 3 * * *",
}

// TaskNames lists the known task types in a stable order.
func TaskNames() []string {
	names := make([]string, 0, len(Schedule))
	for name := range Schedule {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewTask builds an empty-payload task for one of the known types.
func NewTask(name string) (*asynq.Task, error) {
	if _, ok := Schedule[name]; !ok {
		return nil, fmt.Errorf("jobs: unknown task %q", name)
	}
	return asynq.NewTask(name, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

// CronEntries returns the scheduler registrations for every known task.
func CronEntries() ([]CronRegistration, error) {
	entries := make([]CronRegistration, 0, len(Schedule))
	for _, name := range TaskNames() {
		task, err := NewTask(name)
		if err != nil {
			return nil, err
		}
		entries = append(entries, CronRegistration{Spec: Schedule[name], Task: task})
	}
	return entries, nil
}
