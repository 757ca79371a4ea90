package terminology

import "testing"

func TestNormalizeTerm(t *testing.T) {
	if got := NormalizeTerm("  FEBRE   Alta "); got != "febre alta" {
		t.Fatalf("unexpected %q", got)
	}
	if got := NormalizeTerm("DOR TORÁCICA"); got != "dor torácica" {
		t.Fatalf("accents must be kept, got %q", got)
	}
	// decomposed "é" composes to the same form
	if NormalizeTerm("cefale\u0301ia") != NormalizeTerm("cefal\u00e9ia") {
		t.Fatal("expected NFC forms to match")
	}
}

func TestContainsTerm(t *testing.T) {
	text := "Paciente afebril, nega DOR TORACICA. Refere taquicardia."
	if !ContainsTerm(text, "dor torácica") {
		t.Fatal("expected accent-insensitive match")
	}
	if ContainsTerm(text, "febre alta") {
		t.Fatal("unexpected match")
	}
	if ContainsTerm(text, "  ") {
		t.Fatal("empty term must not match")
	}
}
