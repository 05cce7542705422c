package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	AppEnv     string
	Port       int
	BaseURL    string
	AuthSecret string
	DataDir    string
	LogLevel   string

	// BehindProxy trusts X-Forwarded-For for client IPs.
	BehindProxy bool

	DatabaseURL string

	RetentionDays   int
	MaxVideos       int
	MaxLogBytes     int
	YouTubeAPIKey   string
	SweepInterval   time.Duration
	StaleJobTimeout time.Duration

	UseS3        bool
	S3           S3Config
	SignedURLTTL time.Duration

	UseQueue bool
	SQS      SQSConfig

	TaskHandlerURL          string
	InternalTaskAudience    string
	TaskServiceAccountEmail string
	AllowInsecureInternal   bool
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

type SQSConfig struct {
	QueueURL  string
	QueueName string
	Region    string
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// Load reads .env files (if present) and then the process environment.
func Load() (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	return FromEnv()
}

// FromEnv builds the config from the process environment only.
func FromEnv() (*Config, error) {
	appEnv := strings.ToLower(getEnv("APP_ENV", EnvProduction))

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	retentionDays, err := strconv.Atoi(getEnv("RETENTION_DAYS", "180"))
	if err != nil {
		return nil, fmt.Errorf("invalid RETENTION_DAYS: %w", err)
	}
	if retentionDays < 1 {
		return nil, fmt.Errorf("invalid RETENTION_DAYS: must be at least 1")
	}

	maxVideos, err := strconv.Atoi(getEnv("MAX_VIDEOS", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_VIDEOS: %w", err)
	}

	maxLogBytes, err := strconv.Atoi(getEnv("MAX_LOG_BYTES", "262144"))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_LOG_BYTES: %w", err)
	}

	sweepInterval, err := time.ParseDuration(getEnv("SWEEP_INTERVAL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}

	staleJobTimeout, err := time.ParseDuration(getEnv("STALE_JOB_TIMEOUT", "2h"))
	if err != nil {
		return nil, fmt.Errorf("invalid STALE_JOB_TIMEOUT: %w", err)
	}

	signedURLTTL, err := time.ParseDuration(getEnv("SIGNED_URL_TTL", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SIGNED_URL_TTL: %w", err)
	}

	useS3, err := getEnvBool("USE_S3", false)
	if err != nil {
		return nil, err
	}

	useQueue, err := getEnvBool("USE_QUEUE", false)
	if err != nil {
		return nil, err
	}

	behindProxy, err := getEnvBool("BEHIND_PROXY", false)
	if err != nil {
		return nil, err
	}

	allowInsecure, err := getEnvBool("ALLOW_INSECURE_INTERNAL", appEnv == EnvDevelopment)
	if err != nil {
		return nil, err
	}

	authSecret := os.Getenv("AUTH_SECRET")
	if authSecret == "" {
		return nil, fmt.Errorf("AUTH_SECRET is required")
	}

	dataDir := getEnv("DATA_DIR", "./data")
	baseURL := strings.TrimSuffix(getEnv("BASE_URL", fmt.Sprintf("http://localhost:%d", port)), "/")
	taskHandlerURL := getEnv("TASK_HANDLER_URL", baseURL+"/internal/tasks/run-audit")

	cfg := &Config{
		AppEnv:          appEnv,
		Port:            port,
		BaseURL:         baseURL,
		AuthSecret:      authSecret,
		DataDir:         dataDir,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		BehindProxy:     behindProxy,
		DatabaseURL:     getEnv("DATABASE_URL", "sqlite://"+filepath.Join(dataDir, "tubeaudit.db")),
		RetentionDays:   retentionDays,
		MaxVideos:       maxVideos,
		MaxLogBytes:     maxLogBytes,
		YouTubeAPIKey:   os.Getenv("YOUTUBE_API_KEY"),
		SweepInterval:   sweepInterval,
		StaleJobTimeout: staleJobTimeout,
		UseS3:           useS3,
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		SignedURLTTL: signedURLTTL,
		UseQueue:     useQueue,
		SQS: SQSConfig{
			QueueURL:  os.Getenv("SQS_QUEUE_URL"),
			QueueName: os.Getenv("SQS_QUEUE_NAME"),
			Region:    getEnv("SQS_REGION", "us-east-1"),
		},
		TaskHandlerURL:          taskHandlerURL,
		InternalTaskAudience:    getEnv("INTERNAL_TASK_AUDIENCE", taskHandlerURL),
		TaskServiceAccountEmail: os.Getenv("TASK_SERVICE_ACCOUNT_EMAIL"),
		AllowInsecureInternal:   allowInsecure,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.UseS3 && c.S3.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET is required when USE_S3 is enabled"))
	}
	if c.UseQueue && c.SQS.QueueURL == "" && c.SQS.QueueName == "" {
		errs = append(errs, errors.New("SQS_QUEUE_URL or SQS_QUEUE_NAME is required when USE_QUEUE is enabled"))
	}
	if c.MaxVideos < 0 {
		errs = append(errs, errors.New("invalid MAX_VIDEOS: must not be negative"))
	}
	if c.MaxLogBytes < 1024 {
		errs = append(errs, errors.New("invalid MAX_LOG_BYTES: must be at least 1024"))
	}
	if c.SignedURLTTL <= 0 {
		errs = append(errs, errors.New("invalid SIGNED_URL_TTL: must be positive"))
	}
	return errors.Join(errs...)
}

// loadEnvFiles loads .env, then .env.<APP_ENV>, then .env.local. Variables
// already present in the process environment win over .env; the later files
// override the earlier ones.
func loadEnvFiles() error {
	if fileExists(".env") {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}

	if env := os.Getenv("APP_ENV"); env != "" {
		envFile := ".env." + strings.ToLower(env)
		if fileExists(envFile) {
			if err := godotenv.Overload(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	if fileExists(".env.local") {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("load .env.local: %w", err)
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
