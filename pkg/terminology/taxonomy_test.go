package terminology

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTaxonomy(t *testing.T) {
	tax := Default()
	if tax.Len() != 28 {
		t.Fatalf("expected 28 chapters, got %d", tax.Len())
	}
	codes := tax.Codes()
	if codes[0] != "01" || codes[25] != "26" || codes[26] != "V" || codes[27] != "X" {
		t.Fatalf("unexpected chapter order %v", codes)
	}
	ch, ok := tax.Lookup("12")
	if !ok || ch.Title != "Doenças do sistema respiratório" {
		t.Fatalf("unexpected chapter 12: %+v", ch)
	}
}

func TestCanonicalChapter(t *testing.T) {
	tax := Default()
	cases := map[string]string{
		"12":          "12",
		"1":           "01",
		" v ":         "V",
		"Capítulo 21": "21",
		"x":           "X",
	}
	for in, want := range cases {
		got, ok := tax.Canonical(in)
		if !ok || got != want {
			t.Errorf("Canonical(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	for _, bad := range []string{"27", "IGNORAR", "", "A"} {
		if got, ok := tax.Canonical(bad); ok {
			t.Errorf("Canonical(%q) accepted as %q", bad, got)
		}
	}
}

func TestParseKeepsDeclarationOrder(t *testing.T) {
	content := []byte(`chapters:
  "21": "Sintomas: sinais inespecíficos"
  "12":
    title: Respiratório
    description: Vias aéreas
  V: Funcionalidade
`)
	tax, err := Parse(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	codes := tax.Codes()
	if len(codes) != 3 || codes[0] != "21" || codes[1] != "12" || codes[2] != "V" {
		t.Fatalf("unexpected order %v", codes)
	}
	ch, _ := tax.Lookup("21")
	if ch.Title != "Sintomas" || ch.Description != "sinais inespecíficos" {
		t.Fatalf("unexpected split %+v", ch)
	}
	ch, _ = tax.Lookup("12")
	if ch.Title != "Respiratório" || ch.Description != "Vias aéreas" {
		t.Fatalf("unexpected mapping chapter %+v", ch)
	}
}

func TestLoadTaxonomy(t *testing.T) {
	tax, err := Load("")
	if err != nil || tax.Len() != 28 {
		t.Fatalf("expected default taxonomy, got %d chapters, err %v", tax.Len(), err)
	}

	path := filepath.Join(t.TempDir(), "taxonomy.json")
	if err := os.WriteFile(path, []byte(`{"02": {"title": "Neoplasias"}, "02 ": "dup"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected duplicate chapter to fail")
	}

	if _, err := Parse([]byte(`[]`)); err == nil {
		t.Fatal("expected non-mapping taxonomy to fail")
	}
}
