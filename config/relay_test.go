package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("AWS_LAMBDA_RUNTIME_API", "")
	t.Setenv("RELAY_MODE", "")
	t.Setenv("RELAY_TIMEOUT", "")
	t.Setenv("INTERNAL_TASK_AUDIENCE", "")
	t.Setenv("ALLOW_INSECURE_INTERNAL", "")
	t.Setenv("TASK_HANDLER_URL", "https://app.test/internal/tasks/run-audit")
	t.Setenv("SQS_QUEUE_NAME", "audit-tasks")

	cfg, err := RelayFromEnv()
	require.NoError(t, err)

	assert.Equal(t, RelayModePoll, cfg.Mode)
	assert.Equal(t, cfg.TaskHandlerURL, cfg.Audience)
	assert.True(t, cfg.UseIDToken)
	assert.Equal(t, 15*time.Minute, cfg.Timeout)
	assert.Equal(t, "audit-tasks", cfg.SQS.QueueName)
}

func TestRelayFromEnv_LambdaRuntime(t *testing.T) {
	t.Setenv("AWS_LAMBDA_RUNTIME_API", "127.0.0.1:9001")
	t.Setenv("RELAY_MODE", "")
	t.Setenv("TASK_HANDLER_URL", "https://app.test/internal/tasks/run-audit")
	t.Setenv("SQS_QUEUE_URL", "")
	t.Setenv("SQS_QUEUE_NAME", "")

	cfg, err := RelayFromEnv()
	require.NoError(t, err)
	assert.Equal(t, RelayModeLambda, cfg.Mode, "the trigger supplies messages, no queue needed")
}

func TestRelayFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing target", map[string]string{"TASK_HANDLER_URL": ""}, "TASK_HANDLER_URL is required"},
		{"bad mode", map[string]string{"RELAY_MODE": "push"}, "invalid RELAY_MODE"},
		{"bad timeout", map[string]string{"RELAY_TIMEOUT": "soon"}, "invalid RELAY_TIMEOUT"},
		{"poll without queue", map[string]string{"RELAY_MODE": "poll", "SQS_QUEUE_URL": "", "SQS_QUEUE_NAME": ""}, "required in poll mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AWS_LAMBDA_RUNTIME_API", "")
			t.Setenv("RELAY_MODE", "")
			t.Setenv("RELAY_TIMEOUT", "")
			t.Setenv("TASK_HANDLER_URL", "https://app.test/run")
			t.Setenv("SQS_QUEUE_NAME", "q")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := RelayFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
