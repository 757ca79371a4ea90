// Package pipeline runs the coding stages over directories of record documents.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/synaptica-ai/cid-coder/pkg/auditor"
	"github.com/synaptica-ai/cid-coder/pkg/classifier"
	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/common/models"
	"github.com/synaptica-ai/cid-coder/pkg/filter"
	"github.com/synaptica-ai/cid-coder/pkg/llm"
	"github.com/synaptica-ai/cid-coder/pkg/observability/metrics"
	"github.com/synaptica-ai/cid-coder/pkg/record"
	"github.com/synaptica-ai/cid-coder/pkg/retriever"
	"github.com/synaptica-ai/cid-coder/pkg/selector"
	"github.com/synaptica-ai/cid-coder/pkg/storage"
	"golang.org/x/sync/errgroup"
)

type Stage string

const (
	StageClassify Stage = "classify"
	StageRetrieve Stage = "retrieve"
	StageSelect   Stage = "select"
	StageAudit    Stage = "audit"
	StageReport   Stage = "report"
)

// Stages lists the record stages in execution order.
var Stages = []Stage{StageClassify, StageRetrieve, StageSelect, StageAudit}

func ParseStage(s string) (Stage, error) {
	stage := Stage(strings.ToLower(strings.TrimSpace(s)))
	switch stage {
	case StageClassify, StageRetrieve, StageSelect, StageAudit, StageReport:
		return stage, nil
	default:
		return "", fmt.Errorf("unknown stage %q", s)
	}
}

type EventPublisher interface {
	PublishStageEvent(ctx context.Context, source string, ev models.StageEvent) error
}

type AuditSink interface {
	SaveRecord(ctx context.Context, runID string, doc record.Audited) error
}

type RunTracker interface {
	StartRun(ctx context.Context, run *storage.RunModel) error
	CompleteRun(ctx context.Context, id, status string, processed, failed int) error
}

type Redactor interface {
	Redact(text string) string
}

// CallLog answers which model calls a run made for a record.
type CallLog interface {
	Calls(ctx context.Context, runID, recordID string) ([]llm.Call, error)
}

// Deps are the stage components. Events, Ledger, Runs, Redactor and CallLog are optional.
type Deps struct {
	Filter     *filter.EntityFilter
	Classifier *classifier.Classifier
	Retriever  *retriever.Retriever
	Selector   *selector.Selector
	Auditor    *auditor.Auditor

	Events   EventPublisher
	Ledger   AuditSink
	Runs     RunTracker
	Redactor Redactor
	CallLog  CallLog
}

type Options struct {
	CodeBankDir string
	// Workers is the number of records processed at once.
	Workers int
	// LabelConcurrency bounds model calls in flight for one record.
	LabelConcurrency int
	Source           string
}

type Pipeline struct {
	deps Deps
	opts Options
}

func New(deps Deps, opts Options) *Pipeline {
	if deps.Filter == nil {
		deps.Filter = filter.New(nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.LabelConcurrency <= 0 {
		opts.LabelConcurrency = 1
	}
	if opts.Source == "" {
		opts.Source = "cid-coder"
	}
	return &Pipeline{deps: deps, opts: opts}
}

// CallLog returns the model-call log, or nil when provenance is not recorded.
func (p *Pipeline) CallLog() CallLog {
	return p.deps.CallLog
}

func (p *Pipeline) promptText(text string) string {
	if p.deps.Redactor == nil {
		return text
	}
	return p.deps.Redactor.Redact(text)
}

// ClassifyRecord filters the record's entities and assigns chapters.
func (p *Pipeline) ClassifyRecord(ctx context.Context, doc record.Raw) record.Classified {
	candidates := p.deps.Filter.Candidates(doc.Entities)
	labels := p.deps.Classifier.Classify(ctx, classifier.Input{
		Text:       p.promptText(doc.Text),
		Entities:   doc.Entities,
		Candidates: candidates,
	})
	return record.Project(doc, labels)
}

// RetrieveRecord attaches candidates to every label. The code-bank cache lives
// for this record only.
func (p *Pipeline) RetrieveRecord(ctx context.Context, doc record.Classified) record.Retrieved {
	cache := retriever.NewCache(p.opts.CodeBankDir)
	defer cache.Clear()

	text := p.promptText(doc.Text)
	labels := mapLabels(ctx, p.opts.LabelConcurrency, doc.Labels, func(ctx context.Context, key string, l record.ClassifiedLabel) (record.RetrievedLabel, bool) {
		candidates := p.deps.Retriever.Retrieve(ctx, cache, l.TermOriginal, text, l.Chapter)
		if len(candidates) == 0 {
			metrics.RecordSoftFailure(string(StageRetrieve), "no_candidates")
		}
		return l.WithCandidates(candidates), true
	})
	return record.Project(doc, labels)
}

// SelectRecord picks one code per label. Labels without a valid selection are dropped.
func (p *Pipeline) SelectRecord(ctx context.Context, doc record.Retrieved) record.Selected {
	text := p.promptText(doc.Text)
	labels := mapLabels(ctx, p.opts.LabelConcurrency, doc.Labels, func(ctx context.Context, key string, l record.RetrievedLabel) (record.SelectedLabel, bool) {
		sel, err := p.deps.Selector.Select(ctx, text, l.TermOriginal, l.Chapter, l.Candidates)
		if err != nil {
			kind := selectionFailure(err)
			metrics.RecordSoftFailure(string(StageSelect), kind)
			logger.ForRecord(string(StageSelect), doc.ID.String()).WithError(err).WithFields(map[string]interface{}{
				"term":    l.TermOriginal,
				"chapter": l.Chapter,
				"kind":    kind,
			}).Warn("label left unresolved")
			return record.SelectedLabel{}, false
		}
		return l.WithSelection(sel.Code, sel.Confidence, sel.Description, sel.Reasoning), true
	})
	return record.Project(doc, labels)
}

// AuditRecord renders a verdict for every label; none is dropped.
func (p *Pipeline) AuditRecord(ctx context.Context, doc record.Selected) record.Audited {
	text := p.promptText(doc.Text)
	labels := mapLabels(ctx, p.opts.LabelConcurrency, doc.Labels, func(ctx context.Context, key string, l record.SelectedLabel) (record.AuditedLabel, bool) {
		v := p.deps.Auditor.Audit(ctx, text, l)
		metrics.RecordAuditDecision(string(v.Decision), string(v.Reason))
		return l.WithVerdict(v.Decision, string(v.Reason), v.Rationale), true
	})
	return record.Project(doc, labels)
}

// CodeRecord runs every stage over one record in memory.
func (p *Pipeline) CodeRecord(ctx context.Context, doc record.Raw) record.Audited {
	scope := llm.ScopeFrom(ctx)
	scope.RecordID = doc.ID.String()
	ctx = llm.WithScope(ctx, scope)

	classified := p.ClassifyRecord(withStage(ctx, StageClassify), doc)
	retrieved := p.RetrieveRecord(withStage(ctx, StageRetrieve), classified)
	selected := p.SelectRecord(withStage(ctx, StageSelect), retrieved)
	return p.AuditRecord(withStage(ctx, StageAudit), selected)
}

func withStage(ctx context.Context, stage Stage) context.Context {
	scope := llm.ScopeFrom(ctx)
	scope.Stage = string(stage)
	return llm.WithScope(ctx, scope)
}

// mapLabels applies fn to every label with at most limit calls in flight. The
// result map does not depend on completion order.
func mapLabels[In, Out any](ctx context.Context, limit int, labels map[string]In, fn func(ctx context.Context, key string, in In) (Out, bool)) map[string]Out {
	keys := record.SortedKeys(labels)
	outs := make([]Out, len(keys))
	kept := make([]bool, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, key := range keys {
		g.Go(func() error {
			scope := llm.ScopeFrom(gctx)
			scope.Key = key
			outs[i], kept[i] = fn(llm.WithScope(gctx, scope), key, labels[key])
			return nil
		})
	}
	_ = g.Wait()

	result := make(map[string]Out, len(keys))
	for i, key := range keys {
		if kept[i] {
			result[key] = outs[i]
		}
	}
	return result
}

func selectionFailure(err error) string {
	switch {
	case errors.Is(err, selector.ErrNoCandidates):
		return "no_candidates"
	case errors.Is(err, selector.ErrUnlistedCode):
		return "unlisted_code"
	case errors.Is(err, selector.ErrDeclined):
		return "declined"
	default:
		return llm.Outcome(err)
	}
}

// sortedStrings returns a sorted copy.
func sortedStrings(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
