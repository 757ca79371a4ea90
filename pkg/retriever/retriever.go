// Package retriever ranks a chapter's canonical codes by embedding similarity to a term.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/llm"
	"github.com/synaptica-ai/cid-coder/pkg/record"
	"github.com/synaptica-ai/cid-coder/pkg/terminology"
)

const DefaultTopK = 5

type Options struct {
	Model string
	TopK  int
}

type Retriever struct {
	emb  llm.Embedder
	opts Options
}

func New(emb llm.Embedder, opts Options) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	return &Retriever{emb: emb, opts: opts}
}

func QueryText(term, recordText string) string {
	return fmt.Sprintf("Termo: %s. Contexto: %s", term, recordText)
}

// Retrieve returns up to TopK candidates of the chapter, best first. A missing bank
// or an embedding failure yields an empty list.
func (r *Retriever) Retrieve(ctx context.Context, cache *Cache, term, recordText, chapter string) []record.Candidate {
	fields := map[string]interface{}{
		"stage":     "retrieve",
		"record_id": llm.ScopeFrom(ctx).RecordID,
		"term":      term,
		"chapter":   chapter,
	}

	bank, err := cache.Bank(chapter)
	if err != nil {
		if errors.Is(err, terminology.ErrCodeBankNotFound) {
			logger.Log.WithFields(fields).Warn("no code bank for chapter")
		} else {
			logger.Log.WithError(err).WithFields(fields).Warn("code bank unreadable")
		}
		return []record.Candidate{}
	}
	if len(bank) == 0 {
		return []record.Candidate{}
	}

	query, err := r.emb.Embed(ctx, r.opts.Model, QueryText(term, recordText))
	if err != nil {
		logger.Log.WithError(err).WithFields(fields).Warn("embedding failed, term skipped")
		return []record.Candidate{}
	}
	return Rank(query, bank, r.opts.TopK)
}

// Rank scores every entry against the query and keeps the k best. Equal scores
// keep bank order. Entries whose dimension differs from the query are skipped.
func Rank(query []float64, bank []terminology.CodeEntry, k int) []record.Candidate {
	type scored struct {
		entry terminology.CodeEntry
		score float64
	}
	all := make([]scored, 0, len(bank))
	for _, e := range bank {
		if len(e.Embedding) != len(query) {
			continue
		}
		all = append(all, scored{entry: e, score: Cosine(query, e.Embedding)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	if k > 0 && len(all) > k {
		all = all[:k]
	}
	out := make([]record.Candidate, len(all))
	for i, s := range all {
		out[i] = record.Candidate{
			Code:  s.entry.Code,
			Score: round4(s.score),
			Text:  s.entry.ReferenceText(),
		}
	}
	return out
}

// Cosine is 0 when either vector has zero length or norm.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
