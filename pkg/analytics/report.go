// Package analytics aggregates audited records into coding statistics.
package analytics

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/synaptica-ai/cid-coder/pkg/record"
	"github.com/synaptica-ai/cid-coder/pkg/terminology"
)

const topN = 4

type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CodeStat describes one kept code across the record set.
type CodeStat struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Records     int     `json:"records"`
	TopTerms    []Count `json:"top_terms"`
	TopCoCodes  []Count `json:"top_co_codes"`
}

type Variation struct {
	Term      string   `json:"term"`
	Frequency int      `json:"frequency"`
	RecordIDs []string `json:"record_ids"`
}

// Variability lists the surface forms that were coded to one code.
type Variability struct {
	Code         string      `json:"code"`
	OfficialName string      `json:"official_name"`
	Variations   []Variation `json:"variations"`
}

type Report struct {
	Records      int            `json:"records"`
	Labels       int            `json:"labels"`
	Inferred     int            `json:"inferred"`
	Decisions    map[string]int `json:"decisions"`
	Reasons      map[string]int `json:"rejection_reasons"`
	Chapters     map[string]int `json:"chapters"`
	RemovalRate  float64        `json:"removal_rate"`
	Codes        []CodeStat     `json:"codes"`
	Variability  []Variability  `json:"variability"`
	EmptyRecords []string       `json:"empty_records"`
}

type codeAcc struct {
	description string
	records     int
	terms       map[string]int
	coCodes     map[string]int
	variations  map[string]*variationAcc
}

type variationAcc struct {
	frequency int
	records   map[string]struct{}
}

// Aggregator accumulates audited records. It is not safe for concurrent use.
type Aggregator struct {
	report Report
	codes  map[string]*codeAcc
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		report: Report{
			Decisions: map[string]int{},
			Reasons:   map[string]int{},
			Chapters:  map[string]int{},
		},
		codes: map[string]*codeAcc{},
	}
}

func (a *Aggregator) Add(doc record.Audited) {
	a.report.Records++
	id := doc.ID.String()
	if len(doc.Labels) == 0 {
		a.report.EmptyRecords = append(a.report.EmptyRecords, id)
		return
	}

	var entityTerms []string
	for _, terms := range doc.Entities {
		for _, t := range terms {
			if t = strings.ToUpper(strings.TrimSpace(t)); t != "" {
				entityTerms = append(entityTerms, t)
			}
		}
	}

	kept := make(map[string]record.AuditedLabel)
	for _, key := range record.SortedKeys(doc.Labels) {
		label := doc.Labels[key]
		a.report.Labels++
		a.report.Decisions[string(label.Decision)]++
		a.report.Chapters[label.Chapter]++
		if label.IsInferred {
			a.report.Inferred++
		}
		if r := label.Reason(); r != "" {
			a.report.Reasons[r]++
		}
		if label.Decision == record.DecisionKeep && label.Code != "" {
			if _, seen := kept[label.Code]; !seen {
				kept[label.Code] = label
			}
			a.addVariation(label, id)
		}
	}

	for code, label := range kept {
		acc := a.code(code, label.Description)
		acc.records++
		own := strings.ToUpper(strings.TrimSpace(label.TermOriginal))
		for _, t := range entityTerms {
			if t != own {
				acc.terms[t]++
			}
		}
		for other := range kept {
			if other != code {
				acc.coCodes[other]++
			}
		}
	}
}

func (a *Aggregator) addVariation(label record.AuditedLabel, id string) {
	acc := a.code(label.Code, label.Description)
	term := terminology.NormalizeTerm(label.TermOriginal)
	v, ok := acc.variations[term]
	if !ok {
		v = &variationAcc{records: map[string]struct{}{}}
		acc.variations[term] = v
	}
	v.frequency++
	v.records[id] = struct{}{}
}

func (a *Aggregator) code(code, description string) *codeAcc {
	acc, ok := a.codes[code]
	if !ok {
		acc = &codeAcc{
			description: description,
			terms:       map[string]int{},
			coCodes:     map[string]int{},
			variations:  map[string]*variationAcc{},
		}
		a.codes[code] = acc
	}
	return acc
}

// Report returns the statistics so far with every list in a stable order.
func (a *Aggregator) Report() Report {
	r := a.report
	r.EmptyRecords = append([]string{}, a.report.EmptyRecords...)
	sort.Strings(r.EmptyRecords)

	keep, remove := r.Decisions[string(record.DecisionKeep)], r.Decisions[string(record.DecisionRemove)]
	if keep+remove > 0 {
		r.RemovalRate = float64(remove) / float64(keep+remove)
	}

	r.Codes = make([]CodeStat, 0, len(a.codes))
	r.Variability = make([]Variability, 0, len(a.codes))
	for code, acc := range a.codes {
		r.Codes = append(r.Codes, CodeStat{
			Code:        code,
			Description: acc.description,
			Records:     acc.records,
			TopTerms:    top(acc.terms, topN),
			TopCoCodes:  top(acc.coCodes, topN),
		})
		r.Variability = append(r.Variability, Variability{
			Code:         code,
			OfficialName: OfficialName(acc.description),
			Variations:   variations(acc.variations),
		})
	}
	sort.Slice(r.Codes, func(i, j int) bool {
		if r.Codes[i].Records != r.Codes[j].Records {
			return r.Codes[i].Records > r.Codes[j].Records
		}
		return r.Codes[i].Code < r.Codes[j].Code
	})
	sort.Slice(r.Variability, func(i, j int) bool { return r.Variability[i].Code < r.Variability[j].Code })
	return r
}

func Aggregate(docs []record.Audited) Report {
	agg := NewAggregator()
	for _, doc := range docs {
		agg.Add(doc)
	}
	return agg.Report()
}

// OfficialName is the part of a code description before its definition.
func OfficialName(description string) string {
	name, _, _ := strings.Cut(description, "Definição:")
	name = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(name), "."))
	if name == "" {
		return "Descrição não disponível"
	}
	return name
}

func top(counts map[string]int, n int) []Count {
	out := make([]Count, 0, len(counts))
	for v, c := range counts {
		out = append(out, Count{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func variations(m map[string]*variationAcc) []Variation {
	out := make([]Variation, 0, len(m))
	for term, v := range m {
		ids := make([]string, 0, len(v.records))
		for id := range v.records {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		out = append(out, Variation{Term: term, Frequency: v.frequency, RecordIDs: ids})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Term < out[j].Term
	})
	return out
}

// WriteJSON writes the report with the same encoding as record documents.
func (r Report) WriteJSON(path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
