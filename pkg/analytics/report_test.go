package analytics

import (
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/synaptica-ai/cid-coder/pkg/record"
)

func audited(term, chapter, code, desc string, decision record.Decision, reason string) record.AuditedLabel {
	cl := record.ClassifiedLabel{TermOriginal: term, Chapter: chapter}
	sel := cl.WithCandidates([]record.Candidate{{Code: code, Score: 0.9, Text: desc}}).WithSelection(code, 0.9, desc, "")
	return sel.WithVerdict(decision, reason, "")
}

func fixtures() []record.Audited {
	return []record.Audited{
		{
			ID:       record.NumericID(1),
			Entities: record.Entities{"Sinal ou Sintoma": {"tosse seca", "febre"}},
			Labels: map[string]record.AuditedLabel{
				"tosse seca": audited("tosse seca", "12", "MD12", "Tosse. Definição: expulsão de ar", record.DecisionKeep, ""),
				"febre":      audited("febre", "21", "MG26", "Febre", record.DecisionKeep, ""),
				"dor":        audited("dor", "21", "MG30", "Dor", record.DecisionRemove, "negated_finding"),
			},
		},
		{
			ID:       record.StringID("2"),
			Entities: record.Entities{"Sinal ou Sintoma": {"Tosse"}},
			Labels: map[string]record.AuditedLabel{
				"tosse": audited("Tosse", "12", "MD12", "Tosse. Definição: expulsão de ar", record.DecisionKeep, ""),
				"asma":  audited("asma", "12", "CA23", "Asma", record.DecisionIndeterminate, ""),
			},
		},
		{ID: record.StringID("3"), Labels: map[string]record.AuditedLabel{}},
	}
}

func TestAggregate(t *testing.T) {
	r := Aggregate(fixtures())
	if r.Records != 3 || r.Labels != 5 {
		t.Fatalf("unexpected totals %+v", r)
	}
	if r.Decisions["KEEP"] != 3 || r.Decisions["REMOVE"] != 1 || r.Decisions["INDETERMINATE"] != 1 {
		t.Fatalf("unexpected decisions %v", r.Decisions)
	}
	if r.Reasons["negated_finding"] != 1 || len(r.Reasons) != 1 {
		t.Fatalf("unexpected reasons %v", r.Reasons)
	}
	if r.Chapters["12"] != 3 || r.Chapters["21"] != 2 {
		t.Fatalf("unexpected chapters %v", r.Chapters)
	}
	if r.RemovalRate != 0.25 {
		t.Fatalf("unexpected removal rate %v", r.RemovalRate)
	}
	if len(r.EmptyRecords) != 1 || r.EmptyRecords[0] != "3" {
		t.Fatalf("unexpected empty records %v", r.EmptyRecords)
	}

	first := r.Codes[0]
	if first.Code != "MD12" || first.Records != 2 {
		t.Fatalf("expected MD12 first, got %+v", first)
	}
	if len(first.TopTerms) != 1 || first.TopTerms[0] != (Count{Value: "FEBRE", Count: 1}) {
		t.Fatalf("unexpected top terms %+v", first.TopTerms)
	}
	if len(first.TopCoCodes) != 1 || first.TopCoCodes[0].Value != "MG26" {
		t.Fatalf("unexpected co-codes %+v", first.TopCoCodes)
	}

	var md12 Variability
	for _, v := range r.Variability {
		if v.Code == "MD12" {
			md12 = v
		}
	}
	if md12.OfficialName != "Tosse" || len(md12.Variations) != 2 {
		t.Fatalf("unexpected variability %+v", md12)
	}
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	docs := fixtures()
	reversed := []record.Audited{docs[2], docs[1], docs[0]}
	a, b := Aggregate(docs), Aggregate(reversed)
	if a.Codes[0].Code != b.Codes[0].Code || a.EmptyRecords[0] != b.EmptyRecords[0] || len(a.Variability) != len(b.Variability) {
		t.Fatal("aggregation depends on input order")
	}
}

func TestOfficialName(t *testing.T) {
	if got := OfficialName("Asma. Definição: doença crônica"); got != "Asma" {
		t.Fatalf("unexpected %q", got)
	}
	if got := OfficialName(""); got != "Descrição não disponível" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestWriteParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.parquet")
	n, err := WriteParquet(path, fixtures())
	if err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 rows, got %d", n)
	}

	rows, err := parquet.ReadFile[LabelRow](path)
	if err != nil {
		t.Fatalf("read parquet: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(rows))
	}
	if rows[0].RecordID != "1" || rows[0].Key != "dor" || rows[0].RejectionReason != "negated_finding" {
		t.Fatalf("unexpected first row %+v", rows[0])
	}
	if rows[4].RecordID != "2" || rows[4].Key != "tosse" || rows[4].CandidateCount != 1 {
		t.Fatalf("unexpected last row %+v", rows[4])
	}
}
