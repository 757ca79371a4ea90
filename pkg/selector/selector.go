// Package selector has the model choose one code among retrieved candidates.
package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/synaptica-ai/cid-coder/pkg/llm"
	"github.com/synaptica-ai/cid-coder/pkg/record"
)

var (
	ErrNoCandidates = errors.New("no candidates to select from")
	ErrUnlistedCode = errors.New("selected code not among candidates")
	ErrDeclined     = errors.New("model declined to select a code")
)

// Selection carries the chosen candidate's own score and text, never the model's restatement.
type Selection struct {
	Code        string
	Confidence  float64
	Description string
	Reasoning   string
}

type Options struct {
	Model string
}

type Selector struct {
	gen  llm.Generator
	opts Options
}

func New(gen llm.Generator, opts Options) *Selector {
	return &Selector{gen: gen, opts: opts}
}

func Prompt(text, term, chapter string, candidates []record.Candidate) string {
	var b strings.Builder
	b.WriteString("Você é um codificador clínico especialista na CID-11.\n")
	fmt.Fprintf(&b, "Escolha o código que melhor representa o termo \"%s\" (capítulo %s) no contexto do prontuário.\n", term, chapter)
	b.WriteString("Escolha somente entre os candidatos abaixo. Se nenhum se aplicar, responda com \"codigo\": \"NENHUM\".\n\n")
	b.WriteString("CANDIDATOS:\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "- %s: %s\n", c.Code, c.Text)
	}
	fmt.Fprintf(&b, "\nPRONTUÁRIO:\n%s\n\n", text)
	b.WriteString("Responda somente com um objeto JSON {\"codigo\": \"...\", \"justificativa\": \"...\"}.\n")
	return b.String()
}

// Select returns the chosen candidate. Errors are ErrNoCandidates, ErrDeclined,
// ErrUnlistedCode or a model error from the llm package.
func (s *Selector) Select(ctx context.Context, text, term, chapter string, candidates []record.Candidate) (Selection, error) {
	if len(candidates) == 0 {
		return Selection{}, ErrNoCandidates
	}

	resp, err := s.gen.Generate(ctx, llm.Request{
		Model:         s.opts.Model,
		Prompt:        Prompt(text, term, chapter, candidates),
		Deterministic: true,
		Structured:    true,
	})
	if err != nil {
		return Selection{}, fmt.Errorf("select code for %q: %w", term, err)
	}

	code, _ := llm.StringField(resp.Object, "codigo", "código", "code", "codigo_escolhido")
	if declined(code) {
		return Selection{}, ErrDeclined
	}
	chosen, ok := lookup(candidates, code)
	if !ok {
		return Selection{}, fmt.Errorf("%w: %q", ErrUnlistedCode, code)
	}

	reasoning, _ := llm.StringField(resp.Object, "justificativa", "reasoning", "motivo", "justification")
	return Selection{
		Code:        chosen.Code,
		Confidence:  chosen.Score,
		Description: chosen.Text,
		Reasoning:   reasoning,
	}, nil
}

// lookup matches the answered code exactly; only surrounding whitespace is
// ignored.
func lookup(candidates []record.Candidate, code string) (record.Candidate, bool) {
	code = strings.TrimSpace(code)
	for _, c := range candidates {
		if c.Code == code {
			return c, true
		}
	}
	return record.Candidate{}, false
}

func declined(code string) bool {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "", "NENHUM", "NONE", "N/A", "NULL":
		return true
	}
	return false
}
