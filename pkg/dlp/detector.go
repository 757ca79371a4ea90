// Package dlp masks patient identifiers in record text before it reaches a model prompt.
package dlp

import (
	"regexp"
	"sort"
)

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

type Detector struct {
	rules []compiledRule
}

// Finding is one identifier located in a text.
type Finding struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type Result struct {
	Detected   bool      `json:"detected"`
	Confidence float64   `json:"confidence"`
	Types      []string  `json:"types"`
	Findings   []Finding `json:"findings"`
}

func NewDetector(cfg RulesConfig) (*Detector, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Detector{rules: compiled}, nil
}

func (d *Detector) Detect(text string) Result {
	if d == nil {
		return Result{}
	}

	var findings []Finding
	types := make(map[string]struct{})
	for _, rule := range d.rules {
		matches := rule.re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			continue
		}
		types[rule.rule.Type] = struct{}{}
		for _, match := range matches {
			findings = append(findings, Finding{
				Start: match[0],
				End:   match[1],
				Type:  rule.rule.Type,
				Value: text[match[0]:match[1]],
			})
		}
	}
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Start < findings[j].Start })

	typeList := make([]string, 0, len(types))
	for t := range types {
		typeList = append(typeList, t)
	}
	sort.Strings(typeList)

	return Result{
		Detected:   len(findings) > 0,
		Confidence: confidenceScore(len(findings)),
		Types:      typeList,
		Findings:   findings,
	}
}

// Redact replaces every match with its rule's mask. A nil detector returns text unchanged.
func (d *Detector) Redact(text string) string {
	if d == nil {
		return text
	}
	for _, rule := range d.rules {
		text = rule.re.ReplaceAllLiteralString(text, rule.rule.Mask)
	}
	return text
}

func confidenceScore(count int) float64 {
	switch {
	case count == 0:
		return 0
	case count == 1:
		return 0.7
	case count == 2:
		return 0.85
	default:
		return 0.95
	}
}
