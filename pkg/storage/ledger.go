// Package storage persists audited labels and model-call provenance outside the record directories.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/cid-coder/pkg/record"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AuditedLabelModel struct {
	ID              string         `gorm:"primaryKey;column:id"`
	RunID           string         `gorm:"column:run_id;index"`
	RecordID        string         `gorm:"column:record_id;index"`
	LabelKey        string         `gorm:"column:label_key"`
	Term            string         `gorm:"column:term_original"`
	Chapter         string         `gorm:"column:chapter;index"`
	IsInferred      bool           `gorm:"column:is_inferred"`
	Code            string         `gorm:"column:code;index"`
	Confidence      float64        `gorm:"column:confidence"`
	Description     string         `gorm:"column:description"`
	Reasoning       string         `gorm:"column:reasoning"`
	Decision        string         `gorm:"column:decision;index"`
	RejectionReason *string        `gorm:"column:rejection_reason"`
	AuditRationale  string         `gorm:"column:audit_rationale"`
	Candidates      datatypes.JSON `gorm:"column:candidates"`
	CreatedAt       time.Time      `gorm:"column:created_at"`
}

func (AuditedLabelModel) TableName() string {
	return "audited_labels"
}

type RunModel struct {
	ID          string            `gorm:"primaryKey;column:id"`
	Stage       string            `gorm:"column:stage"`
	InputDir    string            `gorm:"column:input_dir"`
	OutputDir   string            `gorm:"column:output_dir"`
	Status      string            `gorm:"column:status"`
	Processed   int               `gorm:"column:processed"`
	Failed      int               `gorm:"column:failed"`
	Metadata    datatypes.JSONMap `gorm:"column:metadata"`
	StartedAt   time.Time         `gorm:"column:started_at"`
	CompletedAt *time.Time        `gorm:"column:completed_at"`
}

func (RunModel) TableName() string {
	return "pipeline_runs"
}

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunAborted   = "aborted"
)

type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) AutoMigrate() error {
	return l.db.AutoMigrate(&AuditedLabelModel{}, &RunModel{})
}

// LabelModels flattens an audited record into ledger rows in label-key order.
func LabelModels(runID string, doc record.Audited) ([]AuditedLabelModel, error) {
	now := time.Now().UTC()
	rows := make([]AuditedLabelModel, 0, len(doc.Labels))
	for _, key := range record.SortedKeys(doc.Labels) {
		label := doc.Labels[key]
		candidates, err := json.Marshal(label.Candidates)
		if err != nil {
			return nil, fmt.Errorf("encode candidates of %q: %w", key, err)
		}
		rows = append(rows, AuditedLabelModel{
			ID:              uuid.New().String(),
			RunID:           runID,
			RecordID:        doc.ID.String(),
			LabelKey:        key,
			Term:            label.TermOriginal,
			Chapter:         label.Chapter,
			IsInferred:      label.IsInferred,
			Code:            label.Code,
			Confidence:      label.Confidence,
			Description:     label.Description,
			Reasoning:       label.Reasoning,
			Decision:        string(label.Decision),
			RejectionReason: label.RejectionReason,
			AuditRationale:  label.AuditRationale,
			Candidates:      datatypes.JSON(candidates),
			CreatedAt:       now,
		})
	}
	return rows, nil
}

// SaveRecord replaces every ledger row of the record with its current labels.
func (l *Ledger) SaveRecord(ctx context.Context, runID string, doc record.Audited) error {
	rows, err := LabelModels(runID, doc)
	if err != nil {
		return err
	}
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("record_id = ?", doc.ID.String()).Delete(&AuditedLabelModel{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

func (l *Ledger) StartRun(ctx context.Context, run *RunModel) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.Status = RunRunning
	run.StartedAt = time.Now().UTC()
	return l.db.WithContext(ctx).Create(run).Error
}

func (l *Ledger) CompleteRun(ctx context.Context, id, status string, processed, failed int) error {
	now := time.Now().UTC()
	return l.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       status,
		"processed":    processed,
		"failed":       failed,
		"completed_at": &now,
	}).Error
}
