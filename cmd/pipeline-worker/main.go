package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/synaptica-ai/cid-coder/pkg/common/config"
	"github.com/synaptica-ai/cid-coder/pkg/common/kafka"
	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/common/models"
	"github.com/synaptica-ai/cid-coder/pkg/pipeline"
)

func main() {
	logger.Init()
	cfg := config.Load()

	p, cleanup, err := pipeline.FromConfig(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to configure pipeline")
	}
	defer cleanup()

	consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTaskTopic, cfg.KafkaGroupID)
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.WithFields(map[string]interface{}{
		"topic": cfg.KafkaTaskTopic,
		"group": cfg.KafkaGroupID,
	}).Info("Pipeline Worker started")

	err = consumer.Consume(ctx, func(ctx context.Context, event models.Event) error {
		return handleTask(ctx, p, event)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Log.WithError(err).Error("Consumer stopped")
	}

	logger.Log.Info("Pipeline Worker stopped")
}

// handleTask processes one record. Record failures are logged and committed;
// only a canceled context leaves the message for redelivery.
func handleTask(ctx context.Context, p *pipeline.Pipeline, event models.Event) error {
	task, ok := models.StageTaskFromEvent(event)
	if !ok {
		logger.Log.WithField("event_id", event.ID).Warn("Ignoring malformed task")
		return nil
	}
	stage, err := pipeline.ParseStage(task.Stage)
	if err != nil || stage == pipeline.StageReport {
		logger.Log.WithField("stage", task.Stage).Warn("Ignoring task for a non-record stage")
		return nil
	}

	if err := p.ProcessFile(ctx, task.RunID, stage, task.InputDir, task.OutputDir, task.File); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"run_id": task.RunID,
			"stage":  task.Stage,
			"file":   task.File,
		}).Warn("Task failed")
	}
	return nil
}
