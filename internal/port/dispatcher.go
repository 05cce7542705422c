package port

import "context"

// Dispatcher schedules one asynchronous pipeline run for a job.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
	Mode() string
}
