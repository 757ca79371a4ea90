package llm

import (
	"context"
	"time"

	"github.com/synaptica-ai/cid-coder/pkg/observability/metrics"
)

// Scope names the unit of pipeline work a model call belongs to.
type Scope struct {
	RunID    string
	Stage    string
	RecordID string
	Key      string
}

type scopeKey struct{}

func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

func ScopeFrom(ctx context.Context) Scope {
	scope, _ := ctx.Value(scopeKey{}).(Scope)
	return scope
}

// Call describes one finished model call.
type Call struct {
	Scope
	Kind       string
	Model      string
	PromptHash string
	Outcome    string
	Duration   time.Duration
	At         time.Time
}

type CallObserver interface {
	ObserveCall(ctx context.Context, call Call)
}

// Instrumented wraps a generator and an embedder, recording metrics and
// notifying observers after every call.
type Instrumented struct {
	gen       Generator
	emb       Embedder
	observers []CallObserver
}

func Instrument(gen Generator, emb Embedder, observers ...CallObserver) *Instrumented {
	return &Instrumented{gen: gen, emb: emb, observers: observers}
}

func (i *Instrumented) Generate(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	resp, err := i.gen.Generate(ctx, req)
	i.observe(ctx, Call{
		Scope:      ScopeFrom(ctx),
		Kind:       "generate",
		Model:      req.Model,
		PromptHash: PromptHash(req),
		Outcome:    Outcome(err),
		Duration:   time.Since(start),
		At:         start.UTC(),
	})
	return resp, err
}

func (i *Instrumented) Embed(ctx context.Context, model, text string) ([]float64, error) {
	start := time.Now()
	vec, err := i.emb.Embed(ctx, model, text)
	i.observe(ctx, Call{
		Scope:      ScopeFrom(ctx),
		Kind:       "embed",
		Model:      model,
		PromptHash: PromptHash(Request{Model: model, Prompt: text}),
		Outcome:    Outcome(err),
		Duration:   time.Since(start),
		At:         start.UTC(),
	})
	return vec, err
}

func (i *Instrumented) observe(ctx context.Context, call Call) {
	metrics.RecordModelCall(call.Kind, call.Model, call.Outcome, call.Duration)
	for _, obs := range i.observers {
		obs.ObserveCall(ctx, call)
	}
}
