package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/synaptica-ai/cid-coder/pkg/llm"
	"github.com/synaptica-ai/cid-coder/pkg/llm/llmtest"
	"github.com/synaptica-ai/cid-coder/pkg/record"
)

var candidates = []record.Candidate{
	{Code: "MD12", Score: 0.9132, Text: "Tosse. Definição: Expulsão súbita de ar"},
	{Code: "CA23", Score: 0.8011, Text: "Bronquite aguda"},
}

func fakeAnswering(text string) *llmtest.FakeGenerator {
	gen := llmtest.NewFakeGenerator()
	gen.Handler = func(llm.Request) (string, error) { return text, nil }
	return gen
}

func TestSelectCarriesCandidateMetadata(t *testing.T) {
	gen := fakeAnswering(`{"codigo": "MD12", "justificativa": "tosse seca relatada", "score": 0.99, "descricao": "Tosse crônica grave"}`)
	sel, err := New(gen, Options{Model: "sel"}).Select(context.Background(), "Refere tosse seca.", "tosse seca", "12", candidates)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if sel.Code != "MD12" || sel.Confidence != 0.9132 || sel.Description != candidates[0].Text {
		t.Fatalf("metadata must come from the candidate list, got %+v", sel)
	}
	if sel.Reasoning != "tosse seca relatada" {
		t.Fatalf("unexpected reasoning %q", sel.Reasoning)
	}
}

func TestSelectTrimsCodeWhitespace(t *testing.T) {
	gen := fakeAnswering(`{"code": " CA23 "}`)
	sel, err := New(gen, Options{}).Select(context.Background(), "t", "bronquite", "12", candidates)
	if err != nil || sel.Code != "CA23" || sel.Confidence != 0.8011 {
		t.Fatalf("unexpected %+v, %v", sel, err)
	}
}

func TestSelectRejectsCaseMismatchedCode(t *testing.T) {
	gen := fakeAnswering(`{"codigo": "ca23"}`)
	_, err := New(gen, Options{}).Select(context.Background(), "t", "bronquite", "12", candidates)
	if !errors.Is(err, ErrUnlistedCode) {
		t.Fatalf("expected ErrUnlistedCode for a case-mismatched code, got %v", err)
	}
}

func TestSelectRejectsUnlistedCode(t *testing.T) {
	gen := fakeAnswering(`{"codigo": "CA40", "justificativa": "pneumonia"}`)
	_, err := New(gen, Options{}).Select(context.Background(), "t", "tosse", "12", candidates)
	if !errors.Is(err, ErrUnlistedCode) {
		t.Fatalf("expected ErrUnlistedCode, got %v", err)
	}
}

func TestSelectDeclined(t *testing.T) {
	gen := fakeAnswering(`{"codigo": "NENHUM"}`)
	_, err := New(gen, Options{}).Select(context.Background(), "t", "tosse", "12", candidates)
	if !errors.Is(err, ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
}

func TestSelectNoCandidates(t *testing.T) {
	gen := llmtest.NewFakeGenerator()
	_, err := New(gen, Options{}).Select(context.Background(), "t", "tosse", "12", nil)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected ErrNoCandidates, got %v", err)
	}
	if len(gen.Calls()) != 0 {
		t.Fatal("expected no model call")
	}
}

func TestSelectMalformedOutput(t *testing.T) {
	gen := fakeAnswering("MD12")
	_, err := New(gen, Options{}).Select(context.Background(), "t", "tosse", "12", candidates)
	if !errors.Is(err, llm.ErrMalformedOutput) {
		t.Fatalf("expected malformed output, got %v", err)
	}
}

func TestSelectUsesFixtureByPromptHash(t *testing.T) {
	gen := llmtest.NewFakeGenerator()
	req := llm.Request{Model: "sel", Prompt: Prompt("t", "tosse", "12", candidates), Deterministic: true, Structured: true}
	gen.Add(req, `{"codigo": "CA23"}`)
	sel, err := New(gen, Options{Model: "sel"}).Select(context.Background(), "t", "tosse", "12", candidates)
	if err != nil || sel.Code != "CA23" {
		t.Fatalf("unexpected %+v, %v", sel, err)
	}
}
