// Package classifier assigns taxonomy chapters to candidate clinical terms.
package classifier

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/llm"
	"github.com/synaptica-ai/cid-coder/pkg/record"
	"github.com/synaptica-ai/cid-coder/pkg/terminology"
	"golang.org/x/sync/errgroup"
)

type Strategy string

const (
	StrategyBatch      Strategy = "batch"
	StrategyPerChapter Strategy = "per_chapter"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyBatch:
		return StrategyBatch, nil
	case StrategyPerChapter, "per-chapter", "chapter":
		return StrategyPerChapter, nil
	default:
		return "", fmt.Errorf("unknown classifier strategy %q", s)
	}
}

var ignoreSentinels = map[string]struct{}{
	"":        {},
	"IGNORAR": {},
	"IGNORE":  {},
	"NENHUM":  {},
	"NONE":    {},
	"N/A":     {},
	"NULL":    {},
}

// IsIgnore reports whether a model-produced chapter means "no applicable chapter".
func IsIgnore(chapter string) bool {
	_, ok := ignoreSentinels[strings.ToUpper(strings.TrimSpace(chapter))]
	return ok
}

type Options struct {
	Model    string
	Strategy Strategy
	// AllowInferred keeps terms the model found in the text outside the candidate list.
	AllowInferred bool
	// Concurrency bounds parallel chapter calls in per-chapter mode.
	Concurrency int
}

type Classifier struct {
	gen      llm.Generator
	taxonomy terminology.Taxonomy
	opts     Options
}

func New(gen llm.Generator, taxonomy terminology.Taxonomy, opts Options) *Classifier {
	if opts.Strategy == "" {
		opts.Strategy = StrategyBatch
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Classifier{gen: gen, taxonomy: taxonomy, opts: opts}
}

func (c *Classifier) Strategy() Strategy {
	return c.opts.Strategy
}

type Input struct {
	Text       string
	Entities   record.Entities
	Candidates []string
}

// assignment is one (term, chapter) pair proposed by the model.
type assignment struct {
	term    string
	chapter string
}

// Classify returns labels keyed by normalized term. Model failures yield an empty
// mapping for the failed call and never an error.
func (c *Classifier) Classify(ctx context.Context, in Input) map[string]record.ClassifiedLabel {
	if len(in.Candidates) == 0 && !c.opts.AllowInferred {
		return map[string]record.ClassifiedLabel{}
	}

	candidates := make([]string, 0, len(in.Candidates))
	candidateSet := make(map[string]struct{}, len(in.Candidates))
	for _, term := range in.Candidates {
		key := terminology.NormalizeTerm(term)
		if _, dup := candidateSet[key]; key == "" || dup {
			continue
		}
		candidateSet[key] = struct{}{}
		candidates = append(candidates, key)
	}
	sort.Strings(candidates)

	var proposed []assignment
	switch c.opts.Strategy {
	case StrategyPerChapter:
		proposed = c.perChapter(ctx, in.Text, candidates)
	default:
		proposed = c.batch(ctx, in.Text, candidates)
	}

	known := originalTerms(in.Entities)
	out := make(map[string]record.ClassifiedLabel)
	for _, a := range proposed {
		key := terminology.NormalizeTerm(a.term)
		if key == "" || IsIgnore(a.chapter) {
			continue
		}
		if _, taken := out[key]; taken {
			continue
		}
		chapter, ok := c.taxonomy.Canonical(a.chapter)
		if !ok {
			c.warn(ctx, a, "chapter outside taxonomy discarded")
			continue
		}
		if _, listed := candidateSet[key]; !listed {
			if !c.opts.AllowInferred || !terminology.ContainsTerm(in.Text, a.term) {
				c.warn(ctx, a, "unlisted term discarded")
				continue
			}
		}
		_, original := known[key]
		out[key] = record.ClassifiedLabel{
			TermOriginal: strings.TrimSpace(a.term),
			Chapter:      chapter,
			IsInferred:   !original,
		}
	}
	return out
}

func (c *Classifier) batch(ctx context.Context, text string, candidates []string) []assignment {
	obj, ok := c.call(ctx, BatchPrompt(c.taxonomy, text, candidates))
	if !ok {
		return nil
	}
	terms := make([]string, 0, len(obj))
	for term := range obj {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	out := make([]assignment, 0, len(terms))
	for _, term := range terms {
		chapter, ok := chapterValue(obj[term])
		if !ok {
			logger.Log.WithFields(map[string]interface{}{
				"stage": "classify",
				"term":  term,
			}).Warn("unrecognized chapter value")
			continue
		}
		out = append(out, assignment{term: term, chapter: chapter})
	}
	return out
}

// perChapter asks every chapter independently. A term claimed by several chapters
// keeps the first one in taxonomy order.
func (c *Classifier) perChapter(ctx context.Context, text string, candidates []string) []assignment {
	chapters := c.taxonomy.Chapters()
	claims := make([][]string, len(chapters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, ch := range chapters {
		g.Go(func() error {
			scope := llm.ScopeFrom(gctx)
			scope.Key = "chapter:" + ch.Code
			obj, ok := c.call(llm.WithScope(gctx, scope), ChapterPrompt(ch, text, candidates))
			if !ok {
				return nil
			}
			terms, ok := llm.ListField(obj, "termos", "terms", "entidades")
			if !ok {
				logger.Log.WithField("chapter", ch.Code).Warn("chapter response without term list")
				return nil
			}
			claims[i] = terms
			return nil
		})
	}
	_ = g.Wait()

	var out []assignment
	for i, terms := range claims {
		sorted := append([]string(nil), terms...)
		sort.Strings(sorted)
		for _, term := range sorted {
			out = append(out, assignment{term: term, chapter: chapters[i].Code})
		}
	}
	return out
}

func (c *Classifier) call(ctx context.Context, prompt string) (map[string]interface{}, bool) {
	resp, err := c.gen.Generate(ctx, llm.Request{
		Model:         c.opts.Model,
		Prompt:        prompt,
		Deterministic: true,
		Structured:    true,
	})
	if err != nil {
		scope := llm.ScopeFrom(ctx)
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"stage":     "classify",
			"record_id": scope.RecordID,
			"scope":     scope.Key,
			"strategy":  string(c.opts.Strategy),
		}).Warn("classification call failed")
		return nil, false
	}
	return resp.Object, true
}

func (c *Classifier) warn(ctx context.Context, a assignment, msg string) {
	logger.Log.WithFields(map[string]interface{}{
		"stage":     "classify",
		"record_id": llm.ScopeFrom(ctx).RecordID,
		"term":      a.term,
		"chapter":   a.chapter,
	}).Warn(msg)
}

// chapterValue reads either a bare chapter or an object carrying one.
func chapterValue(v interface{}) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", true
	case map[string]interface{}:
		return llm.StringField(val, "capitulo", "capítulo", "chapter")
	default:
		return llm.StringField(map[string]interface{}{"v": val}, "v")
	}
}

func originalTerms(entities record.Entities) map[string]struct{} {
	out := make(map[string]struct{})
	for _, terms := range entities {
		for _, term := range terms {
			if key := terminology.NormalizeTerm(term); key != "" {
				out[key] = struct{}{}
			}
		}
	}
	return out
}
