// Package relay moves queued audit tasks from SQS to the application's
// internal run endpoint. Delivery is at-least-once; the endpoint tolerates
// duplicates.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
)

// Outcome is what should happen to a message after one delivery attempt.
type Outcome int

const (
	// Ack removes the message: the task ran or was a duplicate.
	Ack Outcome = iota
	// Drop removes the message without success: it can never succeed.
	Drop
	// Retry leaves the message for redelivery.
	Retry
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Drop:
		return "drop"
	case Retry:
		return "retry"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

var errMalformedTask = errors.New("malformed task message")

// Forwarder POSTs task bodies to the run-audit endpoint. The HTTP client
// carries the caller credential (an ID token client in production).
type Forwarder struct {
	client *http.Client
	url    string
}

func NewForwarder(client *http.Client, url string) *Forwarder {
	if client == nil {
		client = http.DefaultClient
	}
	return &Forwarder{client: client, url: url}
}

// Forward delivers one message body. The returned error describes why the
// message was not acknowledged.
func (f *Forwarder) Forward(ctx context.Context, body string) (Outcome, error) {
	var task domain.TaskRequest
	if err := json.Unmarshal([]byte(body), &task); err != nil || strings.TrimSpace(task.JobID) == "" {
		return Drop, errMalformedTask
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return Drop, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return Retry, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Retry, fmt.Errorf("post task %s: %w", task.JobID, err)
	}
	defer resp.Body.Close() //nolint:errcheck
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	outcome := classify(resp.StatusCode)
	if outcome == Ack {
		logger.Debug.Printf("task %s: %s", task.JobID, bytes.TrimSpace(detail))
		return Ack, nil
	}
	return outcome, fmt.Errorf("task %s: status %d: %s", task.JobID, resp.StatusCode, logger.SanitizeForLog(string(bytes.TrimSpace(detail))))
}

// classify maps the endpoint's answer onto the message fate. A rejected
// body, an unknown job or a conflict never improves on redelivery.
func classify(status int) Outcome {
	switch {
	case status >= 200 && status < 300:
		return Ack
	case status == http.StatusBadRequest, status == http.StatusNotFound, status == http.StatusConflict:
		return Drop
	}
	return Retry
}
