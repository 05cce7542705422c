package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/bnema/tubeaudit/config"
	"github.com/bnema/tubeaudit/internal/domain"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
	"github.com/bnema/tubeaudit/internal/port"
)

const ModeSQS = "sqs"

type sqsAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// SQS enqueues jobs for the relay, which calls back into the internal task
// endpoint.
type SQS struct {
	client    sqsAPI
	queueName string

	mu       sync.Mutex
	queueURL string
}

func NewSQS(ctx context.Context, cfg config.SQSConfig) (*SQS, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	queue := cfg.QueueURL
	if queue == "" {
		queue = cfg.QueueName
	}
	logger.Info.Printf("SQS dispatcher ready (queue=%s)", queue)
	return NewSQSWithClient(sqs.NewFromConfig(awsCfg), cfg.QueueURL, cfg.QueueName), nil
}

func NewSQSWithClient(client sqsAPI, queueURL, queueName string) *SQS {
	return &SQS{client: client, queueURL: queueURL, queueName: queueName}
}

func (d *SQS) Mode() string { return ModeSQS }

func (d *SQS) Dispatch(ctx context.Context, jobID string) error {
	queueURL, err := d.resolveQueueURL(ctx)
	if err != nil {
		return &domain.DispatchError{Mode: ModeSQS, Err: err}
	}

	body, err := json.Marshal(domain.TaskRequest{JobID: jobID})
	if err != nil {
		return &domain.DispatchError{Mode: ModeSQS, Err: err}
	}

	out, err := d.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"job_id": {DataType: aws.String("String"), StringValue: aws.String(jobID)},
		},
	})
	if err != nil {
		return &domain.DispatchError{Mode: ModeSQS, Err: fmt.Errorf("send message: %w", err)}
	}

	logger.Debug.Printf("enqueued job %s as message %s", jobID, aws.ToString(out.MessageId))
	return nil
}

// resolveQueueURL returns the configured URL, or looks the queue up by name
// once and caches the result.
func (d *SQS) resolveQueueURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.queueURL != "" {
		return d.queueURL, nil
	}
	if d.queueName == "" {
		return "", errors.New("no queue URL or name configured")
	}

	out, err := d.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(d.queueName)})
	if err != nil {
		return "", fmt.Errorf("get queue URL for %s: %w", d.queueName, err)
	}
	d.queueURL = aws.ToString(out.QueueUrl)
	return d.queueURL, nil
}

var _ port.Dispatcher = (*SQS)(nil)
