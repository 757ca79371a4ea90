package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/llm"
	_ "modernc.org/sqlite"
)

const provenanceSchema = `
CREATE TABLE IF NOT EXISTS model_calls (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT,
	stage        TEXT,
	record_id    TEXT,
	label_key    TEXT,
	kind         TEXT NOT NULL,
	model        TEXT,
	prompt_hash  TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	latency_ms   INTEGER NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_model_calls_record ON model_calls (run_id, record_id);
`

// Provenance logs every model call to SQLite. It implements llm.CallObserver.
type Provenance struct {
	db *sql.DB
}

func OpenProvenance(path string) (*Provenance, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(provenanceSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Provenance{db: db}, nil
}

func (p *Provenance) Close() error {
	return p.db.Close()
}

func (p *Provenance) Record(ctx context.Context, call llm.Call) error {
	at := call.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO model_calls (run_id, stage, record_id, label_key, kind, model, prompt_hash, outcome, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullIfEmpty(call.RunID),
		nullIfEmpty(call.Stage),
		nullIfEmpty(call.RecordID),
		nullIfEmpty(call.Key),
		call.Kind,
		nullIfEmpty(call.Model),
		call.PromptHash,
		call.Outcome,
		call.Duration.Milliseconds(),
		at.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record model call: %w", err)
	}
	return nil
}

// ObserveCall records the call and only logs failures.
func (p *Provenance) ObserveCall(ctx context.Context, call llm.Call) {
	if err := p.Record(context.WithoutCancel(ctx), call); err != nil {
		logger.Log.WithError(err).WithField("prompt_hash", call.PromptHash).Warn("provenance write failed")
	}
}

// Calls returns the calls logged for a record within a run, oldest first.
func (p *Provenance) Calls(ctx context.Context, runID, recordID string) ([]llm.Call, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT COALESCE(run_id, ''), COALESCE(stage, ''), COALESCE(record_id, ''), COALESCE(label_key, ''),
		        kind, COALESCE(model, ''), prompt_hash, outcome, latency_ms, created_at
		 FROM model_calls WHERE run_id = ? AND record_id = ? ORDER BY id`,
		runID, recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("query model calls: %w", err)
	}
	defer rows.Close()

	var out []llm.Call
	for rows.Next() {
		var (
			c         llm.Call
			latencyMS int64
			createdAt string
		)
		if err := rows.Scan(&c.RunID, &c.Stage, &c.RecordID, &c.Key, &c.Kind, &c.Model, &c.PromptHash, &c.Outcome, &latencyMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan model call: %w", err)
		}
		c.Duration = time.Duration(latencyMS) * time.Millisecond
		c.At, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Outcomes counts logged calls by outcome.
func (p *Provenance) Outcomes(ctx context.Context) (map[string]int, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM model_calls GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("query outcomes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			outcome string
			n       int
		)
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		out[outcome] = n
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
