package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/synaptica-ai/cid-coder/pkg/analytics"
	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/record"
)

const (
	SummaryFile = "summary.json"
	LabelsFile  = "labels.parquet"
)

// LoadAudited reads every audited document of dir, skipping unreadable ones.
func LoadAudited(ctx context.Context, dir string) ([]record.Audited, error) {
	store := record.NewStore(dir)
	names, err := store.List()
	if err != nil {
		return nil, err
	}
	docs := make([]record.Audited, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := record.Read[record.AuditedLabel](store, name)
		if err != nil {
			logger.Log.WithError(err).WithFields(map[string]interface{}{
				"stage": string(StageReport),
				"file":  name,
			}).Warn("audited record skipped")
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Report aggregates auditedDir and writes summary.json and labels.parquet to outDir.
func (p *Pipeline) Report(ctx context.Context, auditedDir, outDir string) (analytics.Report, error) {
	docs, err := LoadAudited(ctx, auditedDir)
	if err != nil {
		return analytics.Report{}, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return analytics.Report{}, fmt.Errorf("create %s: %w", outDir, err)
	}

	report := analytics.Aggregate(docs)
	if err := report.WriteJSON(filepath.Join(outDir, SummaryFile)); err != nil {
		return report, fmt.Errorf("write summary: %w", err)
	}
	rows, err := analytics.WriteParquet(filepath.Join(outDir, LabelsFile), docs)
	if err != nil {
		return report, err
	}

	logger.Log.WithFields(map[string]interface{}{
		"records":       report.Records,
		"labels":        rows,
		"empty_records": len(report.EmptyRecords),
		"removal_rate":  report.RemovalRate,
	}).Info("report written")
	return report, nil
}
