package record

// Decision is the auditor's verdict over a selected code.
type Decision string

const (
	DecisionKeep          Decision = "KEEP"
	DecisionRemove        Decision = "REMOVE"
	DecisionIndeterminate Decision = "INDETERMINATE"
)

// ExtractedLabel is a candidate term that passed the entity filter.
type ExtractedLabel struct {
	TermOriginal string   `json:"term_original"`
	Categories   []string `json:"categories,omitempty"`
}

type ClassifiedLabel struct {
	TermOriginal string `json:"term_original"`
	Chapter      string `json:"chapter"`
	IsInferred   bool   `json:"is_inferred"`
}

// Candidate is one retrieved code with its similarity to the query.
type Candidate struct {
	Code  string  `json:"code"`
	Score float64 `json:"score"`
	Text  string  `json:"text"`
}

type RetrievedLabel struct {
	ClassifiedLabel
	Candidates []Candidate `json:"candidates"`
}

type SelectedLabel struct {
	RetrievedLabel
	Code        string  `json:"code"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
	Reasoning   string  `json:"reasoning"`
}

type AuditedLabel struct {
	SelectedLabel
	Decision        Decision `json:"decision"`
	RejectionReason *string  `json:"rejection_reason"`
	AuditRationale  string   `json:"audit_rationale"`
}

func (l ClassifiedLabel) WithCandidates(candidates []Candidate) RetrievedLabel {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	return RetrievedLabel{ClassifiedLabel: l, Candidates: out}
}

func (l RetrievedLabel) WithSelection(code string, confidence float64, description, reasoning string) SelectedLabel {
	return SelectedLabel{
		RetrievedLabel: l,
		Code:           code,
		Confidence:     confidence,
		Description:    description,
		Reasoning:      reasoning,
	}
}

// WithVerdict sets the audit outcome. The reason is only recorded on REMOVE.
func (l SelectedLabel) WithVerdict(decision Decision, reason, rationale string) AuditedLabel {
	out := AuditedLabel{SelectedLabel: l, Decision: decision, AuditRationale: rationale}
	if decision == DecisionRemove && reason != "" {
		r := reason
		out.RejectionReason = &r
	}
	return out
}

// Reason returns the rejection reason or "".
func (l AuditedLabel) Reason() string {
	if l.RejectionReason == nil {
		return ""
	}
	return *l.RejectionReason
}
