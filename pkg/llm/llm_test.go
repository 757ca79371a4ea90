package llm

import (
	"context"
	"errors"
	"testing"
)

func TestParseObject(t *testing.T) {
	obj, err := ParseObject("```json\n{\"tosse seca\": \"12\"}\n```")
	if err != nil || obj["tosse seca"] != "12" {
		t.Fatalf("unexpected %v, %v", obj, err)
	}

	obj, err = ParseObject(`Claro! Aqui está: {"valido": false, "detalhe": {"a": 1}} Espero ter ajudado.`)
	if err != nil {
		t.Fatalf("expected embedded object to parse: %v", err)
	}
	if v, _ := obj["valido"].(bool); v {
		t.Fatalf("unexpected object %v", obj)
	}

	obj, err = ParseObject("Responda APENAS em JSON: {\"valido\": true ou false}\nResposta: {\"valido\": false, \"motivo_tecnico\": \"achado_negado\"}")
	if err != nil || obj["motivo_tecnico"] != "achado_negado" {
		t.Fatalf("expected the answer after an echoed template, got %v, %v", obj, err)
	}

	obj, err = ParseObject(`Formato: {"termo": "capítulo"} Resposta: {"tosse": "12", "extra": {"nota": "x"}} fim`)
	if err != nil || obj["tosse"] != "12" {
		t.Fatalf("expected the enclosing answer object, got %v, %v", obj, err)
	}

	for _, bad := range []string{"", "null", "[1,2]", "sem json", "{quebrado"} {
		if _, err := ParseObject(bad); !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("ParseObject(%q) = %v; want ErrMalformedOutput", bad, err)
		}
	}
}

func TestCompleteOnlyParsesStructured(t *testing.T) {
	resp, err := Complete(Request{}, "texto livre")
	if err != nil || resp.Text != "texto livre" || resp.Object != nil {
		t.Fatalf("unexpected %+v, %v", resp, err)
	}
	resp, err = Complete(Request{Structured: true}, "texto livre")
	if !errors.Is(err, ErrMalformedOutput) || resp.Text != "texto livre" {
		t.Fatalf("expected malformed error with raw text kept, got %+v, %v", resp, err)
	}
}

func TestPromptHashDistinguishesFlags(t *testing.T) {
	a := PromptHash(Request{Model: "m", Prompt: "p"})
	b := PromptHash(Request{Model: "m", Prompt: "p", Structured: true})
	if a == b {
		t.Fatal("expected structured flag to change hash")
	}
	if a != PromptHash(Request{Model: "m", Prompt: "p"}) {
		t.Fatal("expected stable hash")
	}
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"ok":          nil,
		"timeout":     ErrTimeout,
		"malformed":   ErrMalformedOutput,
		"unavailable": ErrUnavailable,
		"canceled":    context.Canceled,
		"error":       errors.New("x"),
	}
	for want, err := range cases {
		if got := Outcome(err); got != want {
			t.Errorf("Outcome(%v) = %s; want %s", err, got, want)
		}
	}
}

func TestFields(t *testing.T) {
	obj := map[string]interface{}{
		"capitulo": float64(12),
		"valido":   "Sim",
		"termos":   []interface{}{"febre", float64(3), nil},
	}
	if s, ok := StringField(obj, "chapter", "capitulo"); !ok || s != "12" {
		t.Fatalf("unexpected string field %q %v", s, ok)
	}
	if b, ok := BoolField(obj, "valido"); !ok || !b {
		t.Fatalf("unexpected bool field %v %v", b, ok)
	}
	list, ok := ListField(obj, "termos")
	if !ok || len(list) != 2 || list[0] != "febre" || list[1] != "3" {
		t.Fatalf("unexpected list %v", list)
	}
}
