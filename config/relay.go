package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	RelayModeLambda = "lambda"
	RelayModePoll   = "poll"
)

// RelayConfig drives cmd/tubeaudit-relay. It shares the queue and internal
// auth variables with the server but needs no database or secret.
type RelayConfig struct {
	Mode           string
	TaskHandlerURL string
	Audience       string
	// UseIDToken is false when the target accepts unauthenticated calls.
	UseIDToken bool
	Timeout    time.Duration
	SQS        SQSConfig
	LogLevel   string
}

// LoadRelay reads .env files and the environment. The mode defaults to
// lambda when running inside the Lambda runtime and to poll otherwise.
func LoadRelay() (*RelayConfig, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	return RelayFromEnv()
}

func RelayFromEnv() (*RelayConfig, error) {
	appEnv := strings.ToLower(getEnv("APP_ENV", EnvProduction))

	defaultMode := RelayModePoll
	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		defaultMode = RelayModeLambda
	}
	mode := strings.ToLower(getEnv("RELAY_MODE", defaultMode))
	if mode != RelayModeLambda && mode != RelayModePoll {
		return nil, fmt.Errorf("invalid RELAY_MODE: %q", mode)
	}

	timeout, err := time.ParseDuration(getEnv("RELAY_TIMEOUT", "15m"))
	if err != nil {
		return nil, fmt.Errorf("invalid RELAY_TIMEOUT: %w", err)
	}

	allowInsecure, err := getEnvBool("ALLOW_INSECURE_INTERNAL", appEnv == EnvDevelopment)
	if err != nil {
		return nil, err
	}

	target := os.Getenv("TASK_HANDLER_URL")
	if target == "" {
		return nil, errors.New("TASK_HANDLER_URL is required")
	}

	cfg := &RelayConfig{
		Mode:           mode,
		TaskHandlerURL: target,
		Audience:       getEnv("INTERNAL_TASK_AUDIENCE", target),
		UseIDToken:     !allowInsecure,
		Timeout:        timeout,
		SQS: SQSConfig{
			QueueURL:  os.Getenv("SQS_QUEUE_URL"),
			QueueName: os.Getenv("SQS_QUEUE_NAME"),
			Region:    getEnv("SQS_REGION", "us-east-1"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	if cfg.Mode == RelayModePoll && cfg.SQS.QueueURL == "" && cfg.SQS.QueueName == "" {
		return nil, errors.New("SQS_QUEUE_URL or SQS_QUEUE_NAME is required in poll mode")
	}
	return cfg, nil
}
