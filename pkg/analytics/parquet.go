package analytics

import (
	"fmt"
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/synaptica-ai/cid-coder/pkg/record"
)

// LabelRow is one audited label in the columnar export.
type LabelRow struct {
	RecordID        string  `parquet:"record_id"`
	Key             string  `parquet:"label_key"`
	Term            string  `parquet:"term_original"`
	Chapter         string  `parquet:"chapter"`
	IsInferred      bool    `parquet:"is_inferred"`
	Code            string  `parquet:"code"`
	Confidence      float64 `parquet:"confidence"`
	Description     string  `parquet:"description"`
	Decision        string  `parquet:"decision"`
	RejectionReason string  `parquet:"rejection_reason,optional"`
	CandidateCount  int32   `parquet:"candidate_count"`
}

// Rows flattens documents into rows ordered by record id and label key.
func Rows(docs []record.Audited) []LabelRow {
	sorted := append([]record.Audited(nil), docs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID.String() < sorted[j].ID.String() })

	var rows []LabelRow
	for _, doc := range sorted {
		for _, key := range record.SortedKeys(doc.Labels) {
			l := doc.Labels[key]
			rows = append(rows, LabelRow{
				RecordID:        doc.ID.String(),
				Key:             key,
				Term:            l.TermOriginal,
				Chapter:         l.Chapter,
				IsInferred:      l.IsInferred,
				Code:            l.Code,
				Confidence:      l.Confidence,
				Description:     l.Description,
				Decision:        string(l.Decision),
				RejectionReason: l.Reason(),
				CandidateCount:  int32(len(l.Candidates)),
			})
		}
	}
	return rows
}

func WriteParquet(path string, docs []record.Audited) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create parquet file: %w", err)
	}

	writer := parquet.NewGenericWriter[LabelRow](file,
		parquet.Compression(&parquet.Snappy),
	)

	rows := Rows(docs)
	if len(rows) > 0 {
		if _, err := writer.Write(rows); err != nil {
			writer.Close()
			file.Close()
			return 0, fmt.Errorf("failed to write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return 0, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return len(rows), file.Close()
}
