package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/cid-coder/pkg/common/config"
	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/common/models"
	"github.com/synaptica-ai/cid-coder/pkg/llm"
	"github.com/synaptica-ai/cid-coder/pkg/observability/metrics"
	"github.com/synaptica-ai/cid-coder/pkg/record"
	"github.com/synaptica-ai/cid-coder/pkg/storage"
)

// Summary describes one stage run over a directory.
type Summary struct {
	RunID       string        `json:"run_id"`
	Stage       Stage         `json:"stage"`
	Total       int           `json:"total"`
	Processed   int           `json:"processed"`
	Failed      int           `json:"failed"`
	FailedFiles []string      `json:"failed_files,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Dirs names the directory each stage reads from and writes to.
type Dirs struct {
	Input      string
	Classified string
	Retrieved  string
	Selected   string
	Audited    string
	Reports    string
}

func DirsFor(cfg *config.Config) Dirs {
	return Dirs{
		Input:      cfg.InputDir,
		Classified: cfg.StageDir("classified"),
		Retrieved:  cfg.StageDir("retrieved"),
		Selected:   cfg.StageDir("selected"),
		Audited:    cfg.StageDir("audited"),
		Reports:    cfg.StageDir("reports"),
	}
}

// For returns the input and output directories of a stage.
func (d Dirs) For(stage Stage) (string, string) {
	switch stage {
	case StageClassify:
		return d.Input, d.Classified
	case StageRetrieve:
		return d.Classified, d.Retrieved
	case StageSelect:
		return d.Retrieved, d.Selected
	case StageAudit:
		return d.Selected, d.Audited
	case StageReport:
		return d.Audited, d.Reports
	}
	return "", ""
}

// Run applies a record stage to every document of inDir, writing to outDir.
// Only an unreadable input directory is returned as an error; failed records
// are logged, counted and left out of outDir.
func (p *Pipeline) Run(ctx context.Context, stage Stage, inDir, outDir string) (Summary, error) {
	runID := uuid.New().String()
	return p.run(ctx, runID, stage, inDir, outDir)
}

func (p *Pipeline) run(ctx context.Context, runID string, stage Stage, inDir, outDir string) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: runID, Stage: stage}
	if stage == StageReport {
		return summary, errors.New("report is not a record stage")
	}

	in := record.NewStore(inDir)
	names, err := in.List()
	if err != nil {
		logger.Log.WithError(err).WithField("input_dir", inDir).Error("input directory unreadable, run aborted")
		return summary, err
	}
	out := record.NewStore(outDir)
	if err := out.Ensure(); err != nil {
		return summary, err
	}
	summary.Total = len(names)
	pruneStale(out, names)

	p.startRun(ctx, runID, stage, inDir, outDir)
	logger.Log.WithFields(map[string]interface{}{
		"run_id":  runID,
		"stage":   string(stage),
		"records": len(names),
		"workers": p.opts.Workers,
	}).Info("stage started")

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.opts.Workers)
	)
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem; wg.Done() }()
			err := p.processFile(ctx, runID, stage, in, out, name)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				summary.Failed++
				summary.FailedFiles = append(summary.FailedFiles, name)
				return
			}
			summary.Processed++
		}()
	}
	wg.Wait()

	summary.FailedFiles = sortedStrings(summary.FailedFiles)
	summary.Duration = time.Since(start)
	status := storage.RunCompleted
	if ctx.Err() != nil {
		status = storage.RunAborted
	}
	p.completeRun(ctx, runID, status, summary)

	logger.Log.WithFields(map[string]interface{}{
		"run_id":    runID,
		"stage":     string(stage),
		"processed": summary.Processed,
		"failed":    summary.Failed,
		"duration":  summary.Duration.String(),
	}).Info("stage finished")
	return summary, ctx.Err()
}

// ProcessFile runs one stage over one record file, as a queue worker does.
func (p *Pipeline) ProcessFile(ctx context.Context, runID string, stage Stage, inDir, outDir, name string) error {
	if runID == "" {
		runID = uuid.New().String()
	}
	return p.processFile(ctx, runID, stage, record.NewStore(inDir), record.NewStore(outDir), name)
}

// processFile leaves no output for a record that failed, so a later stage never
// reads a document from an earlier run.
func (p *Pipeline) processFile(ctx context.Context, runID string, stage Stage, in, out *record.Store, name string) error {
	if stage == StageReport {
		return fmt.Errorf("stage %q cannot process a record file", stage)
	}
	err := p.processStage(ctx, runID, stage, in, out, name)
	if err != nil {
		if rmErr := record.Remove(out, name); rmErr != nil {
			logger.Log.WithError(rmErr).WithField("file", name).Warn("stale output not removed")
		}
	}
	return err
}

// pruneStale removes outputs whose input record no longer exists.
func pruneStale(out *record.Store, inputs []string) {
	existing, err := out.List()
	if err != nil {
		return
	}
	keep := make(map[string]struct{}, len(inputs))
	for _, name := range inputs {
		keep[name] = struct{}{}
	}
	for _, name := range existing {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := record.Remove(out, name); err != nil {
			logger.Log.WithError(err).WithField("file", name).Warn("stale output not removed")
		}
	}
}

func (p *Pipeline) processStage(ctx context.Context, runID string, stage Stage, in, out *record.Store, name string) error {
	switch stage {
	case StageClassify:
		_, err := runStage(ctx, p, runID, stage, in, out, name, p.ClassifyRecord)
		return err
	case StageRetrieve:
		_, err := runStage(ctx, p, runID, stage, in, out, name, p.RetrieveRecord)
		return err
	case StageSelect:
		_, err := runStage(ctx, p, runID, stage, in, out, name, p.SelectRecord)
		return err
	case StageAudit:
		doc, err := runStage(ctx, p, runID, stage, in, out, name, p.AuditRecord)
		if err != nil {
			return err
		}
		p.saveAudit(ctx, runID, doc)
		return nil
	default:
		return fmt.Errorf("stage %q cannot process a record file", stage)
	}
}

// runStage reads one document, transforms it and writes the projection under the same name.
func runStage[In, Out any](ctx context.Context, p *Pipeline, runID string, stage Stage, in, out *record.Store, name string, fn func(context.Context, record.Document[In]) record.Document[Out]) (record.Document[Out], error) {
	start := time.Now()
	log := logger.Log.WithFields(map[string]interface{}{
		"run_id": runID,
		"stage":  string(stage),
		"file":   name,
	})

	doc, err := record.Read[In](in, name)
	if err != nil {
		metrics.RecordRecord(string(stage), "failed", time.Since(start))
		log.WithError(err).Error("record skipped")
		return record.Document[Out]{}, err
	}

	ctx = llm.WithScope(ctx, llm.Scope{RunID: runID, Stage: string(stage), RecordID: doc.ID.String()})
	result := fn(ctx, doc)

	if err := record.Write(out, name, result); err != nil {
		metrics.RecordRecord(string(stage), "failed", time.Since(start))
		log.WithError(err).WithField("record_id", doc.ID.String()).Error("record skipped")
		return record.Document[Out]{}, err
	}

	metrics.RecordRecord(string(stage), "ok", time.Since(start))
	metrics.RecordLabels(string(stage), len(result.Labels))
	p.publish(ctx, runID, stage, out.Dir(), name, result.ID.String(), len(result.Labels))
	return result, nil
}

func (p *Pipeline) publish(ctx context.Context, runID string, stage Stage, outDir, name, recordID string, labels int) {
	if p.deps.Events == nil {
		return
	}
	err := p.deps.Events.PublishStageEvent(ctx, p.opts.Source, models.StageEvent{
		RunID:     runID,
		Stage:     string(stage),
		RecordID:  recordID,
		File:      name,
		OutputDir: outDir,
		Labels:    labels,
	})
	if err != nil {
		logger.Log.WithError(err).WithField("record_id", recordID).Warn("stage event not published")
	}
}

func (p *Pipeline) saveAudit(ctx context.Context, runID string, doc record.Audited) {
	if p.deps.Ledger == nil {
		return
	}
	if err := p.deps.Ledger.SaveRecord(ctx, runID, doc); err != nil {
		logger.Log.WithError(err).WithField("record_id", doc.ID.String()).Warn("ledger write failed")
	}
}

func (p *Pipeline) startRun(ctx context.Context, runID string, stage Stage, inDir, outDir string) {
	if p.deps.Runs == nil {
		return
	}
	run := &storage.RunModel{ID: runID, Stage: string(stage), InputDir: inDir, OutputDir: outDir}
	if err := p.deps.Runs.StartRun(ctx, run); err != nil {
		logger.Log.WithError(err).WithField("run_id", runID).Warn("run not recorded")
	}
}

func (p *Pipeline) completeRun(ctx context.Context, runID, status string, s Summary) {
	if p.deps.Runs == nil {
		return
	}
	if err := p.deps.Runs.CompleteRun(context.WithoutCancel(ctx), runID, status, s.Processed, s.Failed); err != nil {
		logger.Log.WithError(err).WithField("run_id", runID).Warn("run completion not recorded")
	}
}

// RunAll runs every record stage in order and then the report. It stops at the
// first stage whose input cannot be read.
func (p *Pipeline) RunAll(ctx context.Context, dirs Dirs) ([]Summary, error) {
	runID := uuid.New().String()
	summaries := make([]Summary, 0, len(Stages))
	for _, stage := range Stages {
		in, out := dirs.For(stage)
		s, err := p.run(ctx, runID, stage, in, out)
		summaries = append(summaries, s)
		if err != nil {
			return summaries, fmt.Errorf("stage %s: %w", stage, err)
		}
	}
	if _, err := p.Report(ctx, dirs.Audited, dirs.Reports); err != nil {
		return summaries, fmt.Errorf("stage %s: %w", StageReport, err)
	}
	return summaries, nil
}
