package auditor

import "strings"

// Reason is a member of the closed rejection-reason set.
type Reason string

const (
	ReasonFalsePositiveEntity           Reason = "false_positive_entity"
	ReasonMissingEntity                 Reason = "missing_entity"
	ReasonOverlyGenericEntity           Reason = "overly_generic_entity"
	ReasonWrongEntityType               Reason = "wrong_entity_type"
	ReasonAbbreviationMisclassification Reason = "abbreviation_misclassification"
	ReasonNegatedFinding                Reason = "negated_finding"
	ReasonHypotheticalFinding           Reason = "hypothetical_finding"
	ReasonFamilyHistoryMisread          Reason = "family_history_misread"
	ReasonTemporalMisinterpretation     Reason = "temporal_misinterpretation"
	ReasonAnatomicalMismatch            Reason = "anatomical_mismatch"
	ReasonSymptomVsDiagnosisConfusion   Reason = "symptom_vs_diagnosis_confusion"
	ReasonProcedureVsDiagnosisConfusion Reason = "procedure_vs_diagnosis_confusion"
	ReasonMedicationVsSubstance         Reason = "medication_vs_substance_confusion"
	ReasonSemanticDriftNormalization    Reason = "semantic_drift_normalization"
	ReasonWrongCIDGranularity           Reason = "wrong_cid_granularity"
	ReasonCIDOvergeneralization         Reason = "cid_overgeneralization"
	ReasonCIDOverSpecificity            Reason = "cid_over_specificity"
	ReasonContextIgnorance              Reason = "context_ignorance"
	ReasonSectionMisinterpretation      Reason = "section_misinterpretation"
	ReasonDuplicatedEntity              Reason = "duplicated_entity"
	ReasonHallucinatedLinking           Reason = "hallucinated_linking"
	ReasonConfidenceOverestimation      Reason = "confidence_overestimation"
)

var reasons = []Reason{
	ReasonFalsePositiveEntity,
	ReasonMissingEntity,
	ReasonOverlyGenericEntity,
	ReasonWrongEntityType,
	ReasonAbbreviationMisclassification,
	ReasonNegatedFinding,
	ReasonHypotheticalFinding,
	ReasonFamilyHistoryMisread,
	ReasonTemporalMisinterpretation,
	ReasonAnatomicalMismatch,
	ReasonSymptomVsDiagnosisConfusion,
	ReasonProcedureVsDiagnosisConfusion,
	ReasonMedicationVsSubstance,
	ReasonSemanticDriftNormalization,
	ReasonWrongCIDGranularity,
	ReasonCIDOvergeneralization,
	ReasonCIDOverSpecificity,
	ReasonContextIgnorance,
	ReasonSectionMisinterpretation,
	ReasonDuplicatedEntity,
	ReasonHallucinatedLinking,
	ReasonConfidenceOverestimation,
}

// aliases maps the Portuguese audit vocabulary and short forms onto the closed set.
var aliases = map[string]Reason{
	"tipo_entidade_incorreto":         ReasonWrongEntityType,
	"entidade_generica_demais":        ReasonOverlyGenericEntity,
	"inferencia_sem_suporte":          ReasonHallucinatedLinking,
	"incompatibilidade_anatomica":     ReasonAnatomicalMismatch,
	"criterios_obrigatorios_ausentes": ReasonCIDOverSpecificity,
	"achado_negado":                   ReasonNegatedFinding,
	"termo_nao_diagnostico":           ReasonFalsePositiveEntity,
	"contexto_alucinado":              ReasonHallucinatedLinking,
	"achado_hipotetico":               ReasonHypotheticalFinding,
	"historico_familiar":              ReasonFamilyHistoryMisread,
	"entidade_duplicada":              ReasonDuplicatedEntity,
	"wrong_granularity":               ReasonWrongCIDGranularity,
	"generic_entity":                  ReasonOverlyGenericEntity,
	"negated":                         ReasonNegatedFinding,
	"hallucination":                   ReasonHallucinatedLinking,
}

var reasonSet = func() map[Reason]struct{} {
	m := make(map[Reason]struct{}, len(reasons))
	for _, r := range reasons {
		m[r] = struct{}{}
	}
	return m
}()

// Reasons returns the closed set in declaration order.
func Reasons() []Reason {
	out := make([]Reason, len(reasons))
	copy(out, reasons)
	return out
}

func IsReason(s string) bool {
	_, ok := reasonSet[Reason(s)]
	return ok
}

// NormalizeReason maps a model-produced reason onto the closed set.
func NormalizeReason(raw string) (Reason, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	if _, ok := reasonSet[Reason(key)]; ok {
		return Reason(key), true
	}
	if r, ok := aliases[key]; ok {
		return r, true
	}
	return "", false
}
