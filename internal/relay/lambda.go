package relay

import (
	"context"

	"github.com/aws/aws-lambda-go/events"

	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
)

// HandleSQSEvent is the Lambda entry point for an SQS trigger. Messages to
// retry are reported as batch item failures so the rest of the batch is
// deleted.
func (f *Forwarder) HandleSQSEvent(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{
		BatchItemFailures: []events.SQSBatchItemFailure{},
	}

	for _, record := range event.Records {
		outcome, err := f.Forward(ctx, record.Body)
		switch outcome {
		case Ack:
			continue
		case Drop:
			logger.Warn.Printf("message %s dropped: %v", record.MessageId, err)
		case Retry:
			logger.Warn.Printf("message %s will be retried: %v", record.MessageId, err)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}

	return response, nil
}
