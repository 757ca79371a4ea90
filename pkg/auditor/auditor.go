// Package auditor renders a keep/remove verdict over a selected code.
package auditor

import (
	"context"
	"fmt"
	"strings"

	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/llm"
	"github.com/synaptica-ai/cid-coder/pkg/record"
	"github.com/synaptica-ai/cid-coder/pkg/terminology"
)

// Strictness sets which side carries the burden of proof.
type Strictness string

const (
	// StrictnessPermissive keeps a code unless the text explicitly contradicts it.
	StrictnessPermissive Strictness = "permissive"
	// StrictnessStrict removes a code unless the text unambiguously supports it.
	StrictnessStrict Strictness = "strict"
	// StrictnessProof is strict and also requires a verbatim excerpt backing every KEEP.
	StrictnessProof Strictness = "proof"
)

func ParseStrictness(s string) (Strictness, error) {
	switch Strictness(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrictnessPermissive:
		return StrictnessPermissive, nil
	case StrictnessStrict:
		return StrictnessStrict, nil
	case StrictnessProof:
		return StrictnessProof, nil
	default:
		return "", fmt.Errorf("unknown audit strictness %q", s)
	}
}

type Verdict struct {
	Decision  record.Decision
	Reason    Reason
	Rationale string
	Evidence  string
}

type Options struct {
	Model      string
	Strictness Strictness
}

type Auditor struct {
	gen  llm.Generator
	opts Options
}

func New(gen llm.Generator, opts Options) *Auditor {
	if opts.Strictness == "" {
		opts.Strictness = StrictnessPermissive
	}
	return &Auditor{gen: gen, opts: opts}
}

func (a *Auditor) Strictness() Strictness {
	return a.opts.Strictness
}

func Prompt(strictness Strictness, text string, label record.SelectedLabel) string {
	var b strings.Builder
	b.WriteString("Você é um Auditor Médico Especialista em CID-11. Valide se a codificação abaixo é clinicamente coerente com o prontuário.\n\n")
	fmt.Fprintf(&b, "CONTEÚDO DO PRONTUÁRIO: %q\n", text)
	fmt.Fprintf(&b, "TERMO EXTRAÍDO: %q\n", label.TermOriginal)
	fmt.Fprintf(&b, "CÓDIGO CID-11 ATRIBUÍDO: %q\n", label.Code)
	fmt.Fprintf(&b, "DESCRIÇÃO DO CÓDIGO: %q\n", label.Description)
	fmt.Fprintf(&b, "JUSTIFICATIVA DO SISTEMA: %q\n\n", label.Reasoning)

	b.WriteString("DIRETRIZES DE AUDITORIA:\n")
	switch strictness {
	case StrictnessStrict, StrictnessProof:
		b.WriteString("1. O ônus da prova é do código: REMOVER, a menos que o texto satisfaça direta e inequivocamente a definição do código.\n")
		b.WriteString("2. Sinônimos e abreviações só são aceitos quando não houver ambiguidade.\n")
	default:
		b.WriteString("1. MANTER se o código representa fielmente o termo ou uma condição diretamente relacionada descrita no prontuário.\n")
		b.WriteString("2. REMOVER apenas se houver contradição explícita (ex.: termo negado) ou associação sem base no texto.\n")
		b.WriteString("3. Abreviações médicas comuns e sinônimos coerentes com o contexto são aceitos.\n")
	}
	if strictness == StrictnessProof {
		b.WriteString("3. Para MANTER, copie em \"evidencia\" o trecho literal do prontuário que comprova o código.\n")
	}
	b.WriteString("Não proponha nenhum novo código.\n\n")

	names := make([]string, len(reasons))
	for i, r := range reasons {
		names[i] = string(r)
	}
	fmt.Fprintf(&b, "Se decidir REMOVER, escolha EXATAMENTE um motivo desta lista: %s\n\n", strings.Join(names, ", "))
	b.WriteString("Responda somente com JSON: {\"valido\": true ou false, \"motivo_tecnico\": \"motivo ou null\", \"analise_critica\": \"...\"")
	if strictness == StrictnessProof {
		b.WriteString(", \"evidencia\": \"trecho literal\"")
	}
	b.WriteString("}\n")
	return b.String()
}

// Audit never fails: model errors and unreadable verdicts become INDETERMINATE.
func (a *Auditor) Audit(ctx context.Context, text string, label record.SelectedLabel) Verdict {
	resp, err := a.gen.Generate(ctx, llm.Request{
		Model:         a.opts.Model,
		Prompt:        Prompt(a.opts.Strictness, text, label),
		Deterministic: true,
		Structured:    true,
	})
	if err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"stage":     "audit",
			"record_id": llm.ScopeFrom(ctx).RecordID,
			"term":      label.TermOriginal,
			"code":      label.Code,
		}).Warn("audit call failed")
		return Verdict{Decision: record.DecisionIndeterminate, Rationale: "audit unavailable: " + llm.Outcome(err)}
	}
	return a.Interpret(text, resp.Object)
}

// Interpret turns a parsed model answer into a verdict under the auditor's strictness.
func (a *Auditor) Interpret(text string, obj map[string]interface{}) Verdict {
	rationale, _ := llm.StringField(obj, "analise_critica", "rationale", "justificativa", "audit_rationale")
	evidence, _ := llm.StringField(obj, "evidencia", "evidence")

	decision, ok := decisionOf(obj)
	if !ok {
		return Verdict{Decision: record.DecisionIndeterminate, Rationale: rationale}
	}

	switch decision {
	case record.DecisionKeep:
		if a.opts.Strictness == StrictnessProof && (evidence == "" || !terminology.ContainsTerm(text, evidence)) {
			return Verdict{
				Decision:  record.DecisionRemove,
				Reason:    ReasonHallucinatedLinking,
				Rationale: strings.TrimSpace("evidence not found in record. " + rationale),
				Evidence:  evidence,
			}
		}
		return Verdict{Decision: record.DecisionKeep, Rationale: rationale, Evidence: evidence}
	default:
		raw, _ := llm.StringField(obj, "motivo_tecnico", "rejection_reason", "motivo", "reason")
		reason, ok := NormalizeReason(raw)
		if !ok {
			return Verdict{
				Decision:  record.DecisionIndeterminate,
				Rationale: strings.TrimSpace(fmt.Sprintf("unknown rejection reason %q. %s", raw, rationale)),
			}
		}
		return Verdict{Decision: record.DecisionRemove, Reason: reason, Rationale: rationale, Evidence: evidence}
	}
}

func decisionOf(obj map[string]interface{}) (record.Decision, bool) {
	if s, ok := llm.StringField(obj, "decisao", "decisão", "decision"); ok {
		switch strings.ToUpper(s) {
		case "KEEP", "MANTER":
			return record.DecisionKeep, true
		case "REMOVE", "REMOVER":
			return record.DecisionRemove, true
		}
	}
	if valid, ok := llm.BoolField(obj, "valido", "válido", "valid"); ok {
		if valid {
			return record.DecisionKeep, true
		}
		return record.DecisionRemove, true
	}
	return "", false
}
