package module

import "searchbeat/internal/services/ingest/domain"

// Ports defines the ingest module surface exposed to callers
type Ports struct {
	Scheduler domain.SchedulerPort
	Runner    domain.RunnerPort
	Client    domain.Client
	Storage   domain.StorageRepo
}
