package domain

// TaskRequest is the payload that asks a worker to run one job. It travels as
// the SQS message body and as the body of the internal run-audit endpoint.
type TaskRequest struct {
	JobID string `json:"job_id"`
}
