// Package filter keeps the extracted entities whose NER category is relevant to clinical coding.
package filter

import (
	"sort"

	"github.com/synaptica-ai/cid-coder/pkg/record"
	"github.com/synaptica-ai/cid-coder/pkg/terminology"
)

var defaultCategories = []string{
	"Doença ou Síndrome",
	"Sinal ou Sintoma",
	"Lesão ou Envenenamento",
	"Achado",
	"Processo Neoplásico",
	"Disfunção Mental ou Comportamental",
	"Anormalidade Congênita",
	"Anormalidade Anatômica",
	"Anormalidade Adquirida",
	"Bactéria",
	"Vírus",
	"Fungo",
	"Função Patológica",
	"Disfunção Celular ou Molecular",
}

func DefaultCategories() []string {
	out := make([]string, len(defaultCategories))
	copy(out, defaultCategories)
	return out
}

type EntityFilter struct {
	allowed map[string]struct{}
}

// New builds a filter over the given category names. An empty list uses DefaultCategories.
// Category names match ignoring case and accents.
func New(categories []string) *EntityFilter {
	if len(categories) == 0 {
		categories = defaultCategories
	}
	f := &EntityFilter{allowed: make(map[string]struct{}, len(categories))}
	for _, c := range categories {
		if key := terminology.FoldTerm(c); key != "" {
			f.allowed[key] = struct{}{}
		}
	}
	return f
}

func (f *EntityFilter) Allows(category string) bool {
	_, ok := f.allowed[terminology.FoldTerm(category)]
	return ok
}

// Filter returns the normalized, deduplicated terms of the allowed categories, sorted by term.
func (f *EntityFilter) Filter(entities record.Entities) []record.ExtractedLabel {
	byTerm := make(map[string]*record.ExtractedLabel)
	for category, terms := range entities {
		if !f.Allows(category) {
			continue
		}
		for _, term := range terms {
			key := terminology.NormalizeTerm(term)
			if key == "" {
				continue
			}
			label, ok := byTerm[key]
			if !ok {
				label = &record.ExtractedLabel{TermOriginal: key}
				byTerm[key] = label
			}
			label.Categories = appendUnique(label.Categories, category)
		}
	}

	out := make([]record.ExtractedLabel, 0, len(byTerm))
	for _, label := range byTerm {
		sort.Strings(label.Categories)
		out = append(out, *label)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TermOriginal < out[j].TermOriginal })
	return out
}

// Candidates returns only the terms of Filter.
func (f *EntityFilter) Candidates(entities record.Entities) []string {
	labels := f.Filter(entities)
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.TermOriginal
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
