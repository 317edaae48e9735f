package classification

import (
	"fmt"
	"strings"

	"grupoeconomico/enrichment"
)

const classificationSystemPrompt = "Você é um especialista em análise de grupos econômicos brasileiros. Responda sempre em formato JSON."

const arbitrationSystemPrompt = "Você é um auditor de análises de grupos econômicos brasileiros. Responda sempre em formato JSON."

// buildClassificationPrompt строит промпт классификации.
// research добавляет указание искать актуальные сведения (для провайдеров с поиском).
func buildClassificationPrompt(identity *enrichment.CompanyIdentity, groups []string, research bool) string {
	var b strings.Builder

	b.WriteString("Identifique o grupo econômico da empresa brasileira:\n")
	fmt.Fprintf(&b, "Razão Social: %s\n", identity.LegalName)
	fmt.Fprintf(&b, "Nome Fantasia: %s\n", identity.TradeName)
	if identity.ActivityDescription != "" {
		fmt.Fprintf(&b, "Atividade: %s\n", identity.ActivityDescription)
	}

	fmt.Fprintf(&b, "\nGrupos conhecidos: %s\n", strings.Join(groups, ", "))

	b.WriteString("\nInstruções:\n")
	b.WriteString("1. Use similaridade semântica, fonética e histórica\n")
	b.WriteString("2. Considere abreviações, fusões, controladoras e subsidiárias (marcas históricas incorporadas por um grupo pertencem a ele)\n")
	b.WriteString("3. Prefira um dos grupos conhecidos sempre que houver vínculo plausível\n")
	step := 4
	if research {
		fmt.Fprintf(&b, "%d. Pesquise informações atualizadas sobre essa empresa\n", step)
		step++
	}
	fmt.Fprintf(&b, "%d. Se não houver vínculo claro, classifique como \"%s\"\n", step, Independent)

	b.WriteString("\nResponda APENAS com JSON no formato:\n")
	fmt.Fprintf(&b, `{"grupo_economico": "NOME_GRUPO ou %s", "confianca": 80, "justificativa": "breve explicação"}`, Independent)

	return b.String()
}

// buildArbitrationPrompt строит промпт для арбитра с двумя кандидатами
func buildArbitrationPrompt(identity *enrichment.CompanyIdentity, first, second Candidate) string {
	var b strings.Builder

	b.WriteString("Você precisa decidir qual das duas análises sobre grupo econômico é mais precisa.\n\n")
	b.WriteString("EMPRESA:\n")
	fmt.Fprintf(&b, "Razão Social: %s\n", identity.LegalName)
	fmt.Fprintf(&b, "Nome Fantasia: %s\n\n", identity.TradeName)

	for i, c := range []Candidate{first, second} {
		fmt.Fprintf(&b, "ANÁLISE %d (%s):\n", i+1, c.Provider)
		fmt.Fprintf(&b, "Grupo: %s\n", c.Assignment.GroupName)
		fmt.Fprintf(&b, "Confiança: %d%%\n", c.Assignment.Confidence)
		rationale := c.Assignment.Rationale
		if rationale == "" {
			rationale = "N/A"
		}
		fmt.Fprintf(&b, "Justificativa: %s\n\n", rationale)
	}

	b.WriteString("Avalie qual análise é mais precisa e confiável. Considere:\n")
	b.WriteString("1. Consistência com dados públicos\n")
	b.WriteString("2. Nível de confiança apresentado\n")
	b.WriteString("3. Qualidade da justificativa\n")
	b.WriteString("4. Informações mais atualizadas\n\n")
	b.WriteString("Responda APENAS com JSON:\n")
	fmt.Fprintf(&b, `{"escolha": "%s" ou "%s", "razao": "explicação breve da escolha"}`,
		strings.ToLower(first.Provider), strings.ToLower(second.Provider))

	return b.String()
}
