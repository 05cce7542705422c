package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bnema/tubeaudit/internal/domain"
)

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, in)
	if out, ok := args.Get(0).(*sqs.SendMessageOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSQS) GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	args := m.Called(ctx, in)
	if out, ok := args.Get(0).(*sqs.GetQueueUrlOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func bodyFor(jobID string) func(*sqs.SendMessageInput) bool {
	return func(in *sqs.SendMessageInput) bool {
		var msg domain.TaskRequest
		if err := json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &msg); err != nil {
			return false
		}
		return msg.JobID == jobID
	}
}

func TestSQS_DispatchWithConfiguredURL(t *testing.T) {
	client := &mockSQS{}
	d := NewSQSWithClient(client, "https://sqs.eu-west-1.amazonaws.com/1/audits", "")
	assert.Equal(t, "sqs", d.Mode())

	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		return aws.ToString(in.QueueUrl) == "https://sqs.eu-west-1.amazonaws.com/1/audits" && bodyFor("job-1")(in)
	})).Return(&sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil).Once()

	require.NoError(t, d.Dispatch(context.Background(), "job-1"))
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "GetQueueUrl", mock.Anything, mock.Anything)
}

func TestSQS_ResolvesQueueURLOnce(t *testing.T) {
	client := &mockSQS{}
	d := NewSQSWithClient(client, "", "audits")

	client.On("GetQueueUrl", mock.Anything, mock.MatchedBy(func(in *sqs.GetQueueUrlInput) bool {
		return aws.ToString(in.QueueName) == "audits"
	})).Return(&sqs.GetQueueUrlOutput{QueueUrl: aws.String("https://q/audits")}, nil).Once()
	client.On("SendMessage", mock.Anything, mock.Anything).
		Return(&sqs.SendMessageOutput{MessageId: aws.String("m")}, nil).Twice()

	require.NoError(t, d.Dispatch(context.Background(), "job-1"))
	require.NoError(t, d.Dispatch(context.Background(), "job-2"))
	client.AssertExpectations(t)
}

func TestSQS_DispatchErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*mockSQS)
		url   string
		queue string
	}{
		{
			name: "send fails",
			url:  "https://q/audits",
			setup: func(m *mockSQS) {
				m.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))
			},
		},
		{
			name:  "queue lookup fails",
			queue: "missing",
			setup: func(m *mockSQS) {
				m.On("GetQueueUrl", mock.Anything, mock.Anything).Return(nil, errors.New("queue does not exist"))
			},
		},
		{
			name:  "nothing configured",
			setup: func(*mockSQS) {},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockSQS{}
			tt.setup(client)
			d := NewSQSWithClient(client, tt.url, tt.queue)

			err := d.Dispatch(context.Background(), "job-1")
			var dErr *domain.DispatchError
			require.True(t, errors.As(err, &dErr))
			assert.Equal(t, "sqs", dErr.Mode)
		})
	}
}
