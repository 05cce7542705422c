package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"google.golang.org/api/idtoken"

	"github.com/bnema/tubeaudit/config"
	"github.com/bnema/tubeaudit/internal/infrastructure/logger"
	"github.com/bnema/tubeaudit/internal/relay"
)

func main() {
	cfg, err := config.LoadRelay()
	if err != nil {
		logger.Error.Printf("failed to load config: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: cfg.Timeout}
	if cfg.UseIDToken {
		client, err = idtoken.NewClient(ctx, cfg.Audience)
		if err != nil {
			logger.Error.Printf("failed to create ID token client: %v", err)
			os.Exit(1)
		}
		client.Timeout = cfg.Timeout
	} else {
		logger.Warn.Printf("ID tokens disabled, calling %s without credentials", cfg.TaskHandlerURL)
	}
	forwarder := relay.NewForwarder(client, cfg.TaskHandlerURL)

	logger.Info.Printf("starting tubeaudit relay in %s mode, target=%s", cfg.Mode, cfg.TaskHandlerURL)

	if cfg.Mode == config.RelayModeLambda {
		lambda.Start(forwarder.HandleSQSEvent)
		return
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SQS.Region))
	if err != nil {
		logger.Error.Printf("failed to load AWS config: %v", err)
		os.Exit(1)
	}

	poller := relay.NewPoller(sqs.NewFromConfig(awsCfg), forwarder, cfg.SQS.QueueURL, cfg.SQS.QueueName)
	if err := poller.Run(ctx); err != nil {
		logger.Error.Printf("relay stopped: %v", err)
		os.Exit(1)
	}
	logger.Info.Printf("relay stopped")
}
