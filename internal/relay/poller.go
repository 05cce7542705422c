package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/sethvargo/go-retry"

	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
)

type sqsAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

const (
	waitTimeSeconds = 20
	maxMessages     = 5
	errorBackoff    = time.Second
	errorBackoffCap = time.Minute
)

// Poller long-polls the queue for hosts without a Lambda trigger. Messages
// are processed one at a time.
type Poller struct {
	client    sqsAPI
	forwarder *Forwarder
	queueURL  string
	queueName string
}

func NewPoller(client sqsAPI, forwarder *Forwarder, queueURL, queueName string) *Poller {
	return &Poller{client: client, forwarder: forwarder, queueURL: queueURL, queueName: queueName}
}

func (p *Poller) resolveQueueURL(ctx context.Context) (string, error) {
	if p.queueURL != "" {
		return p.queueURL, nil
	}
	out, err := p.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(p.queueName)})
	if err != nil {
		return "", fmt.Errorf("resolve queue %s: %w", p.queueName, err)
	}
	p.queueURL = aws.ToString(out.QueueUrl)
	return p.queueURL, nil
}

// PollOnce receives one batch and settles every message in it. It returns
// how many messages were received.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	queueURL, err := p.resolveQueueURL(ctx)
	if err != nil {
		return 0, err
	}

	out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: maxMessages,
		WaitTimeSeconds:     waitTimeSeconds,
	})
	if err != nil {
		return 0, fmt.Errorf("receive: %w", err)
	}

	for _, msg := range out.Messages {
		id := aws.ToString(msg.MessageId)
		outcome, ferr := p.forwarder.Forward(ctx, aws.ToString(msg.Body))
		if outcome == Retry {
			logger.Warn.Printf("message %s left for redelivery: %v", id, ferr)
			continue
		}
		if outcome == Drop {
			logger.Warn.Printf("message %s dropped: %v", id, ferr)
		}

		if _, err := p.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			logger.Error.Printf("delete message %s: %v", id, err)
		}
	}
	return len(out.Messages), nil
}

// Run polls until ctx is done. Receive failures back off exponentially.
func (p *Poller) Run(ctx context.Context) error {
	queue := p.queueURL
	if queue == "" {
		queue = p.queueName
	}
	logger.Info.Printf("relay polling %s", queue)
	backoff := newErrorBackoff()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := p.PollOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			wait, _ := backoff.Next()
			logger.Error.Printf("poll failed, retrying in %s: %v", wait, err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		backoff = newErrorBackoff()
	}
}

func newErrorBackoff() retry.Backoff {
	return retry.WithCappedDuration(errorBackoffCap, retry.NewExponential(errorBackoff))
}
