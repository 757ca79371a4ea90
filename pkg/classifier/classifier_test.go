package classifier

import (
	"context"
	"strings"
	"testing"

	"github.com/synaptica-ai/cid-coder/pkg/llm"
	"github.com/synaptica-ai/cid-coder/pkg/llm/llmtest"
	"github.com/synaptica-ai/cid-coder/pkg/record"
	"github.com/synaptica-ai/cid-coder/pkg/terminology"
)

const scenarioText = "Paciente afebril, nega dor torácica. Refere tosse seca há 3 dias."

func batchRequest(text string, candidates []string) llm.Request {
	return llm.Request{
		Model:         "clf",
		Prompt:        BatchPrompt(terminology.Default(), text, candidates),
		Deterministic: true,
		Structured:    true,
	}
}

func TestBatchScenario(t *testing.T) {
	gen := llmtest.NewFakeGenerator()
	gen.Add(batchRequest(scenarioText, []string{"tosse seca"}),
		`{"tosse seca": "12", "afebril": "IGNORAR", "dor torácica": "IGNORAR"}`)

	c := New(gen, terminology.Default(), Options{Model: "clf", AllowInferred: true})
	got := c.Classify(context.Background(), Input{
		Text:       scenarioText,
		Entities:   record.Entities{"Sinal ou Sintoma": {"tosse seca"}},
		Candidates: []string{"tosse seca"},
	})

	if len(got) != 1 {
		t.Fatalf("expected exactly one label, got %+v", got)
	}
	label, ok := got["tosse seca"]
	if !ok || label.Chapter != "12" || label.IsInferred {
		t.Fatalf("unexpected label %+v", label)
	}
}

func TestBatchInferredProvenance(t *testing.T) {
	text := "Paciente com FEBRE e taquicardia ao exame."
	gen := llmtest.NewFakeGenerator()
	gen.Add(batchRequest(text, []string{"febre"}), "```json\n{\"febre\": \"21\", \"Taquicardia\": \"11\"}\n```")

	c := New(gen, terminology.Default(), Options{Model: "clf", AllowInferred: true})
	got := c.Classify(context.Background(), Input{
		Text:       text,
		Entities:   record.Entities{"Sign or Symptom": {"FEBRE"}},
		Candidates: []string{"FEBRE"},
	})

	if l := got["febre"]; l.Chapter != "21" || l.IsInferred {
		t.Fatalf("febre should be original, got %+v", l)
	}
	if l := got["taquicardia"]; l.Chapter != "11" || !l.IsInferred || l.TermOriginal != "Taquicardia" {
		t.Fatalf("taquicardia should be inferred, got %+v", l)
	}
}

func TestBatchDiscardsUngroundedAndOutOfTaxonomy(t *testing.T) {
	text := "Refere cefaleia."
	gen := llmtest.NewFakeGenerator()
	gen.Add(batchRequest(text, []string{"cefaleia"}), `{"cefaleia": "Capítulo 8", "diabetes": "05", "dor": "99"}`)

	c := New(gen, terminology.Default(), Options{Model: "clf", AllowInferred: true})
	got := c.Classify(context.Background(), Input{Text: text, Candidates: []string{"cefaleia"}})
	if len(got) != 1 || got["cefaleia"].Chapter != "08" {
		t.Fatalf("unexpected labels %+v", got)
	}
}

func TestBatchRejectsUnlistedWhenInferenceDisabled(t *testing.T) {
	text := "Tosse e taquicardia."
	gen := llmtest.NewFakeGenerator()
	gen.Add(batchRequest(text, []string{"tosse"}), `{"tosse": "12", "taquicardia": "11"}`)

	c := New(gen, terminology.Default(), Options{Model: "clf"})
	got := c.Classify(context.Background(), Input{Text: text, Candidates: []string{"tosse"}})
	if _, ok := got["taquicardia"]; ok || len(got) != 1 {
		t.Fatalf("expected only the listed term, got %+v", got)
	}
}

func TestBatchMalformedResponseYieldsEmpty(t *testing.T) {
	gen := llmtest.NewFakeGenerator()
	gen.Add(batchRequest("texto", []string{"febre"}), "não sei responder")

	c := New(gen, terminology.Default(), Options{Model: "clf"})
	got := c.Classify(context.Background(), Input{Text: "texto", Candidates: []string{"febre"}})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty mapping, got %+v", got)
	}
}

func TestNoCandidatesSkipsModelWithoutInference(t *testing.T) {
	gen := llmtest.NewFakeGenerator()
	c := New(gen, terminology.Default(), Options{Model: "clf"})
	if got := c.Classify(context.Background(), Input{Text: "texto"}); len(got) != 0 {
		t.Fatalf("expected empty mapping, got %+v", got)
	}
	if len(gen.Calls()) != 0 {
		t.Fatal("expected no model calls")
	}
}

func chapterOf(prompt string) string {
	line := strings.SplitN(prompt, "\n", 2)[0]
	line = strings.TrimPrefix(line, "Capítulo alvo: ")
	return strings.SplitN(line, " ", 2)[0]
}

func TestPerChapterFirstChapterWins(t *testing.T) {
	text := "Tosse seca e febre."
	gen := llmtest.NewFakeGenerator()
	gen.Handler = func(req llm.Request) (string, error) {
		switch chapterOf(req.Prompt) {
		case "12":
			return `{"termos": ["tosse seca"]}`, nil
		case "21":
			return `{"termos": ["tosse seca", "febre"]}`, nil
		case "01":
			return `sem json`, nil
		default:
			return `{"termos": []}`, nil
		}
	}

	c := New(gen, terminology.Default(), Options{Model: "clf", Strategy: StrategyPerChapter, Concurrency: 4})
	got := c.Classify(context.Background(), Input{
		Text:       text,
		Entities:   record.Entities{"Sinal ou Sintoma": {"tosse seca", "febre"}},
		Candidates: []string{"tosse seca", "febre"},
	})

	if len(gen.Calls()) != terminology.Default().Len() {
		t.Fatalf("expected one call per chapter, got %d", len(gen.Calls()))
	}
	if got["tosse seca"].Chapter != "12" {
		t.Fatalf("expected first chapter in taxonomy order, got %+v", got["tosse seca"])
	}
	if got["febre"].Chapter != "21" {
		t.Fatalf("unexpected febre label %+v", got["febre"])
	}
}

func TestChapterClosure(t *testing.T) {
	tax := terminology.Default()
	valid := make(map[string]bool)
	for _, code := range tax.Codes() {
		valid[code] = true
	}
	text := "a b c d e"
	gen := llmtest.NewFakeGenerator()
	gen.Add(batchRequest(text, []string{"a", "b", "c", "d", "e"}), `{"a": "1", "b": "V", "c": "27", "d": "Z", "e": 4}`)

	got := New(gen, tax, Options{Model: "clf"}).Classify(context.Background(), Input{Text: text, Candidates: []string{"e", "d", "c", "b", "a"}})
	for key, label := range got {
		if !valid[label.Chapter] {
			t.Fatalf("label %s has chapter %q outside the taxonomy", key, label.Chapter)
		}
	}
	if got["a"].Chapter != "01" || got["b"].Chapter != "V" || got["e"].Chapter != "04" || len(got) != 3 {
		t.Fatalf("unexpected labels %+v", got)
	}
}

func TestParseStrategy(t *testing.T) {
	if s, err := ParseStrategy("PER_CHAPTER"); err != nil || s != StrategyPerChapter {
		t.Fatalf("unexpected %v, %v", s, err)
	}
	if s, err := ParseStrategy(""); err != nil || s != StrategyBatch {
		t.Fatalf("unexpected %v, %v", s, err)
	}
	if _, err := ParseStrategy("chunked"); err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestIsIgnore(t *testing.T) {
	for _, s := range []string{"IGNORAR", "ignore", " nenhum ", "N/A", ""} {
		if !IsIgnore(s) {
			t.Errorf("expected %q to be a sentinel", s)
		}
	}
	if IsIgnore("12") {
		t.Fatal("chapter code is not a sentinel")
	}
}
