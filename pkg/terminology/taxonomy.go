package terminology

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type Chapter struct {
	Code        string `yaml:"code" json:"code"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

// Taxonomy is the ordered, read-only set of classification chapters.
// Iteration order is the order chapters were declared in.
type Taxonomy struct {
	chapters []Chapter
	index    map[string]int
}

func New(chapters []Chapter) (Taxonomy, error) {
	if len(chapters) == 0 {
		return Taxonomy{}, errors.New("taxonomy empty")
	}
	t := Taxonomy{
		chapters: make([]Chapter, 0, len(chapters)),
		index:    make(map[string]int, len(chapters)),
	}
	for _, ch := range chapters {
		code := strings.ToUpper(strings.TrimSpace(ch.Code))
		if code == "" {
			return Taxonomy{}, errors.New("taxonomy chapter without code")
		}
		if _, dup := t.index[code]; dup {
			return Taxonomy{}, fmt.Errorf("taxonomy chapter %s declared twice", code)
		}
		ch.Code = code
		t.index[code] = len(t.chapters)
		t.chapters = append(t.chapters, ch)
	}
	return t, nil
}

// Load reads a taxonomy file. An empty path yields the built-in CID-11 chapters.
func Load(path string) (Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Default(), err
	}
	return Parse(content)
}

// Parse accepts a YAML (or JSON) mapping of chapter code to either
// {title, description} or a "Title: description" string, optionally
// nested under a top-level "chapters" key.
func Parse(content []byte) (Taxonomy, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return Taxonomy{}, fmt.Errorf("parse taxonomy: %w", err)
	}
	node := &root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return Taxonomy{}, errors.New("taxonomy must be a mapping of chapter code to chapter")
	}
	if len(node.Content) == 2 && node.Content[0].Value == "chapters" && node.Content[1].Kind == yaml.MappingNode {
		node = node.Content[1]
	}

	var chapters []Chapter
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		ch := Chapter{Code: key.Value}
		switch value.Kind {
		case yaml.ScalarNode:
			ch.Title, ch.Description = splitTitle(value.Value)
		case yaml.MappingNode:
			var body struct {
				Title       string `yaml:"title"`
				Description string `yaml:"description"`
			}
			if err := value.Decode(&body); err != nil {
				return Taxonomy{}, fmt.Errorf("chapter %s: %w", key.Value, err)
			}
			ch.Title, ch.Description = body.Title, body.Description
		default:
			return Taxonomy{}, fmt.Errorf("chapter %s: unsupported value", key.Value)
		}
		chapters = append(chapters, ch)
	}
	return New(chapters)
}

func (t Taxonomy) Len() int {
	return len(t.chapters)
}

// Chapters returns a copy in iteration order.
func (t Taxonomy) Chapters() []Chapter {
	out := make([]Chapter, len(t.chapters))
	copy(out, t.chapters)
	return out
}

func (t Taxonomy) Codes() []string {
	codes := make([]string, len(t.chapters))
	for i, ch := range t.chapters {
		codes[i] = ch.Code
	}
	return codes
}

func (t Taxonomy) Lookup(code string) (Chapter, bool) {
	i, ok := t.index[code]
	if !ok {
		return Chapter{}, false
	}
	return t.chapters[i], true
}

// Canonical maps a model-produced chapter reference ("12", "1", "v", "Capítulo 12")
// to a member of the taxonomy.
func (t Taxonomy) Canonical(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, prefix := range []string{"CAPÍTULO", "CAPITULO", "CAP.", "CAP"} {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(strings.TrimPrefix(s, prefix))
			break
		}
	}
	if len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
		s = "0" + s
	}
	if _, ok := t.index[s]; ok {
		return s, true
	}
	return "", false
}

func splitTitle(s string) (string, string) {
	title, desc, found := strings.Cut(s, ": ")
	if !found {
		return strings.TrimSpace(s), ""
	}
	return strings.TrimSpace(title), strings.TrimSpace(desc)
}

func Default() Taxonomy {
	t, err := New(defaultChapters)
	if err != nil {
		panic(err)
	}
	return t
}

var defaultChapters = []Chapter{
	{Code: "01", Title: "Algumas doenças infecciosas ou parasitárias", Description: "Doenças causadas por agentes infecciosos como bactérias, vírus, parasitas e fungos, transmitidas por contato direto, vetores, alimentos, água ou outras vias."},
	{Code: "02", Title: "Neoplasias", Description: "Proliferação celular anormal e descontrolada, benigna ou maligna, que pode invadir tecidos adjacentes ou produzir metástases."},
	{Code: "03", Title: "Doenças do sangue ou dos órgãos formadores do sangue", Description: "Condições que afetam o sangue, a coagulação e os órgãos hematopoéticos, como medula óssea e baço."},
	{Code: "04", Title: "Doenças do sistema imune", Description: "Distúrbios do sistema imunológico, incluindo imunodeficiências, doenças autoimunes, inflamatórias e reações de hipersensibilidade."},
	{Code: "05", Title: "Doenças endócrinas, nutricionais ou metabólicas", Description: "Distúrbios hormonais, nutricionais e metabólicos que afetam o crescimento, o metabolismo energético e a homeostase do organismo."},
	{Code: "06", Title: "Transtornos mentais, comportamentais ou do neurodesenvolvimento", Description: "Alterações clinicamente significativas da cognição, regulação emocional ou comportamento, com impacto funcional pessoal, social ou ocupacional."},
	{Code: "07", Title: "Transtornos de sono-vigília", Description: "Distúrbios relacionados à iniciação, manutenção ou regulação do sono, incluindo insônia, hipersonolência, parassonias e alterações do ritmo circadiano."},
	{Code: "08", Title: "Doenças do sistema nervoso", Description: "Condições que afetam o sistema nervoso central, periférico ou autonômico, incluindo doenças neurológicas estruturais, degenerativas ou funcionais."},
	{Code: "09", Title: "Doenças do sistema visual", Description: "Doenças que acometem os olhos, seus anexos, as vias visuais e áreas cerebrais responsáveis pela percepção visual."},
	{Code: "10", Title: "Doenças da orelha ou do processo mastoide", Description: "Condições que afetam a audição, o equilíbrio e as estruturas do ouvido externo, médio, interno e mastoide."},
	{Code: "11", Title: "Doenças do sistema circulatório", Description: "Doenças que afetam o coração, os vasos sanguíneos e a circulação sanguínea, comprometendo o transporte de oxigênio e nutrientes."},
	{Code: "12", Title: "Doenças do sistema respiratório", Description: "Condições que afetam as vias aéreas, pulmões e músculos respiratórios, interferindo na ventilação e nas trocas gasosas."},
	{Code: "13", Title: "Doenças do sistema digestivo", Description: "Doenças que afetam o trato gastrointestinal, fígado, vesícula biliar, pâncreas e estruturas associadas à digestão e absorção."},
	{Code: "14", Title: "Doenças da pele", Description: "Condições que afetam a pele, seus anexos (cabelos, unhas e glândulas), mucosas associadas e tecidos subjacentes."},
	{Code: "15", Title: "Doenças do sistema musculoesquelético ou do tecido conjuntivo", Description: "Doenças que afetam músculos, ossos, articulações, ligamentos, tendões e tecidos de sustentação."},
	{Code: "16", Title: "Doenças do sistema geniturinário", Description: "Condições que afetam os sistemas urinário e genital, incluindo rins, vias urinárias e órgãos reprodutivos."},
	{Code: "17", Title: "Condições relacionadas à saúde sexual", Description: "Condições associadas à função sexual, reprodução, identidade sexual e saúde sexual em geral, não classificadas em outros capítulos."},
	{Code: "18", Title: "Gravidez, parto ou puerpério", Description: "Condições associadas à gestação, ao trabalho de parto, ao parto e ao período pós-parto imediato."},
	{Code: "19", Title: "Algumas afecções originadas no período perinatal", Description: "Condições que têm origem no período perinatal, mesmo quando a morbidade ou mortalidade ocorre posteriormente."},
	{Code: "20", Title: "Anomalias do desenvolvimento", Description: "Alterações estruturais ou funcionais decorrentes de falhas no desenvolvimento pré-natal de órgãos ou sistemas."},
	{Code: "21", Title: "Sintomas, sinais ou achados clínicos, não classificados em outra parte", Description: "Sinais, sintomas e achados clínicos ou laboratoriais inespecíficos usados quando não há diagnóstico definitivo."},
	{Code: "22", Title: "Lesões, envenenamentos ou algumas outras consequências de causas externas", Description: "Danos corporais decorrentes de agentes físicos, químicos ou da privação de elementos vitais, com início geralmente agudo."},
	{Code: "23", Title: "Causas externas de morbidade ou mortalidade", Description: "Classificação das circunstâncias, eventos e intenções que resultam em lesões, envenenamentos ou morte."},
	{Code: "24", Title: "Fatores que influenciam o estado de saúde ou o contato com serviços de saúde", Description: "Situações, condições ou motivos de contato com serviços de saúde que não constituem doença ou lesão."},
	{Code: "25", Title: "Códigos para propósitos especiais", Description: "Códigos reservados para finalidades específicas, como vigilância epidemiológica, emergências de saúde pública ou usos administrativos."},
	{Code: "26", Title: "Capítulo Suplementar - Condições da Medicina Tradicional", Description: "Condições, padrões diagnósticos e conceitos utilizados em sistemas de medicina tradicional reconhecidos pela OMS."},
	{Code: "V", Title: "Seção suplementar para avaliação de funcionalidade", Description: "Instrumentos e categorias para descrever, medir e comparar níveis de funcionalidade e incapacidade."},
	{Code: "X", Title: "Códigos de extensão", Description: "Códigos suplementares usados para detalhar características adicionais, contexto ou atributos de outras categorias, não utilizados como codificação primária."},
}
