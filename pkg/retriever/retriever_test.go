package retriever

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/synaptica-ai/cid-coder/pkg/llm/llmtest"
	"github.com/synaptica-ai/cid-coder/pkg/terminology"
)

func writeBank(t *testing.T, dir, chapter string, entries []map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(entries)
	if err != nil {
		t.Fatalf("marshal bank: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, chapter+".json"), data, 0o644); err != nil {
		t.Fatalf("write bank: %v", err)
	}
}

func respiratoryBank(t *testing.T) string {
	dir := t.TempDir()
	writeBank(t, dir, "12", []map[string]interface{}{
		{"code": "CA80", "title": "Asma", "description": "Doença inflamatória crônica", "embedding": []float64{0, 1}},
		{"code": "MD12", "title": "Tosse", "description": "Expulsão súbita de ar", "embedding": []float64{1, 0}},
		{"code": "CA23", "title": "Bronquite", "embedding": []float64{1, 1}},
		{"code": "MD11", "title": "Tosse seca", "embedding": []float64{1, 0}},
		{"code": "BAD", "title": "Dimensão errada", "embedding": []float64{1, 0, 0}},
	})
	return dir
}

func TestRetrieveOrdersByScore(t *testing.T) {
	dir := respiratoryBank(t)
	emb := &llmtest.FakeEmbedder{Vectors: map[string][]float64{
		QueryText("tosse seca", "Refere tosse seca."): {1, 0},
	}}
	r := New(emb, Options{Model: "emb", TopK: 3})

	got := r.Retrieve(context.Background(), NewCache(dir), "tosse seca", "Refere tosse seca.", "12")
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %+v", got)
	}
	// MD12 and MD11 tie; bank order is kept.
	if got[0].Code != "MD12" || got[1].Code != "MD11" || got[2].Code != "CA23" {
		t.Fatalf("unexpected order %+v", got)
	}
	if got[0].Score != 1 || got[2].Score != 0.7071 {
		t.Fatalf("unexpected scores %+v", got)
	}
	if got[0].Text != "Tosse. Definição: Expulsão súbita de ar" {
		t.Fatalf("unexpected reference text %q", got[0].Text)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("scores not non-increasing: %+v", got)
		}
	}
}

func TestRetrieveMissingBank(t *testing.T) {
	emb := &llmtest.FakeEmbedder{}
	cache := NewCache(t.TempDir())
	got := New(emb, Options{}).Retrieve(context.Background(), cache, "febre", "texto", "21")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty list, got %+v", got)
	}
	if emb.Calls() != 0 {
		t.Fatal("expected no embedding call without a bank")
	}
	if cache.Len() != 1 {
		t.Fatal("expected missing bank to be remembered")
	}
}

func TestRetrieveEmbeddingFailure(t *testing.T) {
	emb := &llmtest.FakeEmbedder{Handler: func(string) ([]float64, error) {
		return nil, errors.New("connection refused")
	}}
	got := New(emb, Options{}).Retrieve(context.Background(), NewCache(respiratoryBank(t)), "tosse", "texto", "12")
	if len(got) != 0 {
		t.Fatalf("expected empty list, got %+v", got)
	}
}

func TestCacheReusesAndClears(t *testing.T) {
	dir := respiratoryBank(t)
	cache := NewCache(dir)
	first, err := cache.Bank("12")
	if err != nil || len(first) != 5 {
		t.Fatalf("unexpected bank %v, %v", len(first), err)
	}

	if err := os.Remove(filepath.Join(dir, "12.json")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if again, err := cache.Bank("12"); err != nil || len(again) != 5 {
		t.Fatal("expected cached bank to survive file removal")
	}

	cache.Clear()
	if cache.Len() != 0 {
		t.Fatal("expected empty cache after Clear")
	}
	if _, err := cache.Bank("12"); !errors.Is(err, terminology.ErrCodeBankNotFound) {
		t.Fatalf("expected reload after Clear, got %v", err)
	}
}

func TestRankTopK(t *testing.T) {
	bank := make([]terminology.CodeEntry, 10)
	for i := range bank {
		bank[i] = terminology.CodeEntry{Code: string(rune('A' + i)), Embedding: []float64{float64(i), 1}}
	}
	got := Rank([]float64{1, 0}, bank, DefaultTopK)
	if len(got) != DefaultTopK {
		t.Fatalf("expected %d candidates, got %d", DefaultTopK, len(got))
	}
	if got[0].Code != "J" {
		t.Fatalf("expected most aligned vector first, got %+v", got[0])
	}
}

func TestCosine(t *testing.T) {
	if c := Cosine([]float64{1, 2}, []float64{2, 4}); math.Abs(c-1) > 1e-12 {
		t.Fatalf("expected 1, got %v", c)
	}
	if Cosine([]float64{0, 0}, []float64{1, 1}) != 0 || Cosine([]float64{1}, []float64{1, 1}) != 0 {
		t.Fatal("degenerate vectors must score 0")
	}
}
