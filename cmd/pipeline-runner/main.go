package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/synaptica-ai/cid-coder/pkg/common/config"
	"github.com/synaptica-ai/cid-coder/pkg/common/kafka"
	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/common/models"
	"github.com/synaptica-ai/cid-coder/pkg/pipeline"
	"github.com/synaptica-ai/cid-coder/pkg/record"
)

var errReportNotQueued = errors.New("the report stage runs locally and cannot be enqueued")

func main() {
	stageFlag := flag.String("stage", "all", "stage to run: classify, retrieve, select, audit, report or all")
	inFlag := flag.String("in", "", "input directory (defaults to the stage's configured input)")
	outFlag := flag.String("out", "", "output directory (defaults to the stage's configured output)")
	enqueue := flag.Bool("enqueue", false, "publish one task per record to the task topic instead of running locally")
	flag.Parse()

	logger.Init()
	cfg := config.Load()
	dirs := pipeline.DirsFor(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *stageFlag == "all" {
		if *inFlag != "" {
			dirs.Input = *inFlag
		}
		if *enqueue {
			logger.Log.Fatal("Enqueue needs a single record stage")
		}
		p, cleanup, err := pipeline.FromConfig(cfg)
		if err != nil {
			logger.Log.WithError(err).Fatal("Failed to configure pipeline")
		}
		summaries, err := p.RunAll(ctx, dirs)
		cleanup()
		printJSON(summaries)
		if err != nil {
			logger.Log.WithError(err).Fatal("Pipeline aborted")
		}
		return
	}

	stage, err := pipeline.ParseStage(*stageFlag)
	if err != nil {
		logger.Log.WithError(err).Fatal("Invalid stage")
	}
	in, out := dirs.For(stage)
	if *inFlag != "" {
		in = *inFlag
	}
	if *outFlag != "" {
		out = *outFlag
	}

	if *enqueue {
		if err := enqueueTasks(ctx, cfg, stage, in, out); err != nil {
			logger.Log.WithError(err).Fatal("Failed to enqueue tasks")
		}
		return
	}

	p, cleanup, err := pipeline.FromConfig(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to configure pipeline")
	}
	defer cleanup()

	if stage == pipeline.StageReport {
		report, err := p.Report(ctx, in, out)
		if err != nil {
			logger.Log.WithError(err).Fatal("Report failed")
		}
		printJSON(report)
		return
	}

	summary, err := p.Run(ctx, stage, in, out)
	printJSON(summary)
	if err != nil {
		logger.Log.WithError(err).Fatal("Stage aborted")
	}
}

func enqueueTasks(ctx context.Context, cfg *config.Config, stage pipeline.Stage, in, out string) error {
	if stage == pipeline.StageReport {
		return errReportNotQueued
	}
	names, err := record.NewStore(in).List()
	if err != nil {
		return err
	}

	producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTaskTopic)
	defer producer.Close()

	runID := uuid.New().String()
	for _, name := range names {
		task := models.StageTask{RunID: runID, Stage: string(stage), InputDir: in, OutputDir: out, File: name}
		if err := producer.PublishTask(ctx, "pipeline-runner", task); err != nil {
			return err
		}
	}
	logger.Log.WithFields(map[string]interface{}{
		"run_id": runID,
		"stage":  string(stage),
		"tasks":  len(names),
		"topic":  cfg.KafkaTaskTopic,
	}).Info("Tasks enqueued")
	return nil
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Log.WithError(err).Error("Failed to print result")
	}
}
