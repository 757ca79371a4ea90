// Package llmtest provides deterministic stand-ins for the model capabilities.
package llmtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/synaptica-ai/cid-coder/pkg/llm"
)

type Fixture struct {
	Text string
	Err  error
}

// FakeGenerator answers from fixtures keyed by llm.PromptHash, falling back to Handler.
type FakeGenerator struct {
	mu       sync.Mutex
	fixtures map[string]Fixture
	calls    []llm.Request

	Handler func(req llm.Request) (string, error)
}

func NewFakeGenerator() *FakeGenerator {
	return &FakeGenerator{fixtures: make(map[string]Fixture)}
}

func (f *FakeGenerator) Add(req llm.Request, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixtures[llm.PromptHash(req)] = Fixture{Text: text}
}

func (f *FakeGenerator) AddError(req llm.Request, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixtures[llm.PromptHash(req)] = Fixture{Err: err}
}

func (f *FakeGenerator) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	hash := llm.PromptHash(req)
	f.mu.Lock()
	f.calls = append(f.calls, req)
	fixture, ok := f.fixtures[hash]
	handler := f.Handler
	f.mu.Unlock()

	if !ok {
		if handler == nil {
			return llm.Response{}, fmt.Errorf("%w: no fixture for prompt %s", llm.ErrUnavailable, hash[:12])
		}
		text, err := handler(req)
		fixture = Fixture{Text: text, Err: err}
	}
	if fixture.Err != nil {
		return llm.Response{}, fixture.Err
	}
	return llm.Complete(req, fixture.Text)
}

func (f *FakeGenerator) Calls() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]llm.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// FakeEmbedder answers from Vectors keyed by the embedded text, falling back to Handler.
type FakeEmbedder struct {
	mu    sync.Mutex
	calls int

	Vectors map[string][]float64
	Handler func(text string) ([]float64, error)
}

func (f *FakeEmbedder) Embed(ctx context.Context, model, text string) ([]float64, error) {
	f.mu.Lock()
	f.calls++
	vec, ok := f.Vectors[text]
	f.mu.Unlock()
	if ok {
		return vec, nil
	}
	if f.Handler != nil {
		return f.Handler(text)
	}
	return nil, fmt.Errorf("%w: no vector for %q", llm.ErrUnavailable, text)
}

func (f *FakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
