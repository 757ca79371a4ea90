package classifier

import (
	"fmt"
	"strings"

	"github.com/synaptica-ai/cid-coder/pkg/terminology"
)

// BatchPrompt asks for the chapter of every candidate term in one call.
func BatchPrompt(tax terminology.Taxonomy, text string, candidates []string) string {
	var b strings.Builder
	b.WriteString("Você é um codificador clínico especialista na CID-11.\n")
	b.WriteString("Classifique cada termo clínico do prontuário em exatamente um capítulo da CID-11.\n\n")
	b.WriteString("CAPÍTULOS:\n")
	for _, ch := range tax.Chapters() {
		fmt.Fprintf(&b, "%s - %s: %s\n", ch.Code, ch.Title, ch.Description)
	}
	b.WriteString("\nREGRAS:\n")
	b.WriteString("- Use apenas os códigos de capítulo listados acima.\n")
	b.WriteString("- Achados normais, negados ou ausentes (ex.: \"afebril\", \"nega dor\") recebem \"IGNORAR\".\n")
	b.WriteString("- Você pode incluir termos clínicos presentes no texto que não estejam na lista.\n")
	b.WriteString("- Responda somente com um objeto JSON {\"termo\": \"capítulo\"}.\n\n")
	fmt.Fprintf(&b, "TERMOS:\n%s\n\n", formatCandidates(candidates))
	fmt.Fprintf(&b, "PRONTUÁRIO:\n%s\n", text)
	return b.String()
}

// ChapterPrompt asks which candidate terms belong to a single chapter.
func ChapterPrompt(ch terminology.Chapter, text string, candidates []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Capítulo alvo: %s - %s\n", ch.Code, ch.Title)
	fmt.Fprintf(&b, "Definição: %s\n\n", ch.Description)
	b.WriteString("Liste os termos clínicos do prontuário que pertencem a este capítulo da CID-11.\n")
	b.WriteString("Ignore achados normais, negados ou ausentes.\n")
	b.WriteString("Responda somente com um objeto JSON {\"termos\": [\"termo\", ...]}; use uma lista vazia se nenhum se aplicar.\n\n")
	fmt.Fprintf(&b, "TERMOS CANDIDATOS:\n%s\n\n", formatCandidates(candidates))
	fmt.Fprintf(&b, "PRONTUÁRIO:\n%s\n", text)
	return b.String()
}

func formatCandidates(candidates []string) string {
	if len(candidates) == 0 {
		return "(nenhum)"
	}
	return "- " + strings.Join(candidates, "\n- ")
}
