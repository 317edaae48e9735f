package classification

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grupoeconomico/enrichment"
)

// scriptedProvider провайдер с заранее заданными ответами по моделям
type scriptedProvider struct {
	name    string
	models  []string
	enabled bool

	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
	calls     []string
	prompts   []string
}

func newScriptedProvider(name string, models ...string) *scriptedProvider {
	return &scriptedProvider{
		name:      name,
		models:    models,
		enabled:   true,
		responses: make(map[string]string),
		failures:  make(map[string]error),
	}
}

func (p *scriptedProvider) GetCompletion(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, model)
	p.prompts = append(p.prompts, userPrompt)
	if err, ok := p.failures[model]; ok {
		return "", err
	}
	return p.responses[model], nil
}

func (p *scriptedProvider) GetProviderName() string { return p.name }
func (p *scriptedProvider) Models() []string       { return p.models }
func (p *scriptedProvider) IsEnabled() bool        { return p.enabled }

func (p *scriptedProvider) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func identity(legal, trade string) *enrichment.CompanyIdentity {
	return &enrichment.CompanyIdentity{CNPJ: "33000167000101", LegalName: legal, TradeName: trade}
}

func TestFold(t *testing.T) {
	assert.Equal(t, "itau unibanco s.a.", Fold("Itaú Unibanco S.A."))
	assert.Equal(t, "acucar e alcool", Fold("AÇÚCAR E ÁLCOOL"))
	assert.Equal(t, "", Fold(""))
}

func TestKnownGroupTable(t *testing.T) {
	table := DefaultGroupTable()

	assert.Equal(t, []string{"AMBEV", "VALE", "PETROBRAS", "ITAU", "BRADESCO", "JBS", "NATURA", "MAGAZINE LUIZA", "SUZANO", "GERDAU"}, table.Names())

	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"VALE", "VALE", true},
		{" magazine   luiza ", "MAGAZINE LUIZA", true},
		{"Itaú", "ITAU", true},
		{"magalu", "MAGAZINE LUIZA", true},
		{"independente", Independent, true},
		{"Grupo Pão de Açúcar", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := table.Canonical(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewKnownGroupTable_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		groups []KnownGroup
	}{
		{"empty", nil},
		{"empty name", []KnownGroup{{Name: " ", Keywords: []string{"x"}}}},
		{"duplicate", []KnownGroup{{Name: "A", Keywords: []string{"a"}}, {Name: "a", Keywords: []string{"b"}}}},
		{"no keywords", []KnownGroup{{Name: "A", Keywords: []string{" "}}}},
		{"reserved", []KnownGroup{{Name: "Independente", Keywords: []string{"x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewKnownGroupTable(tt.groups)
			assert.Error(t, err)
		})
	}
}

func TestLoadGroupTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "groups.yaml")
	content := `groups:
  - name: Pão de Açúcar
    keywords: [pao de acucar, gpa]
  - name: vale
    keywords: [vale]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := LoadGroupTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"PÃO DE AÇÚCAR", "VALE"}, table.Names())

	got, ok := table.Canonical("pao de acucar")
	assert.True(t, ok)
	assert.Equal(t, "PÃO DE AÇÚCAR", got)

	_, err = LoadGroupTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestKeywordClassifier(t *testing.T) {
	classifier := NewKeywordClassifier(nil)

	tests := []struct {
		name      string
		legal     string
		trade     string
		wantGroup string
		wantMatch bool
	}{
		{"legal name", "VALE S.A.", "", "VALE", true},
		{"trade name", "Companhia XYZ", "Skol", "AMBEV", true},
		{"accented", "Itaú Unibanco Holding", "", "ITAU", true},
		{"two groups take table order", "Natura Vale Participações", "", "VALE", true},
		{"multiword keyword", "BR Distribuidora", "", "PETROBRAS", true},
		{"no match", "Padaria Central Ltda", "Pão Quente", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := classifier.Classify(identity(tt.legal, tt.trade))
			require.Equal(t, tt.wantMatch, ok)
			if !ok {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.wantGroup, got.GroupName)
			assert.Equal(t, RuleConfidence, got.Confidence)
			assert.Equal(t, "Rules", got.Method.String())
		})
	}
}

func TestMethodString(t *testing.T) {
	tests := []struct {
		method Method
		want   string
	}{
		{Method{Kind: MethodRules}, "Rules"},
		{Method{Kind: MethodProviderAI, Provider: "Gemini", Model: "gemini-1.5-flash"}, "Gemini (gemini-1.5-flash)"},
		{Method{Kind: MethodArbitrated, Provider: "Perplexity", Model: "sonar"}, "Perplexity (sonar), arbitrated"},
		{Method{Kind: MethodDefault}, "Default"},
		{Method{}, "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.method.String())
	}
}

func TestMethodKind_Tags(t *testing.T) {
	tests := []struct {
		kind MethodKind
		want string
	}{
		{MethodRules, "Rules"},
		{MethodProviderAI, "Provider-AI"},
		{MethodArbitrated, "Arbitrated"},
		{MethodDefault, "Default"},
		{MethodKind(0), "Unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.kind.String())
	}

	// тег этапа совпадает с выгрузкой для методов без провайдера
	assert.Equal(t, Method{Kind: MethodRules}.String(), MethodRules.String())
	assert.Equal(t, Method{Kind: MethodDefault}.String(), MethodDefault.String())

	data, err := json.Marshal(Method{Kind: MethodArbitrated, Provider: "Gemini"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"Arbitrated","provider":"Gemini"}`, string(data))

	var decoded Method
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, MethodArbitrated, decoded.Kind)
	assert.Error(t, json.Unmarshal([]byte(`{"kind":"rules"}`), &decoded))
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"surrounded by prose", "Claro!\n```json\n{\"a\": 1}\n```\nObrigado", `{"a": 1}`, false},
		{"nested", `x {"a":{"b":2},"c":3} y`, `{"a":{"b":2},"c":3}`, false},
		{"braces in strings", `{"a":"}{","b":"\"}"}`, `{"a":"}{","b":"\"}"}`, false},
		{"multiple objects first wins", `{"a":1} {"b":2}`, `{"a":1}`, false},
		{"invalid first then valid", `{not json} {"b":2}`, `{"b":2}`, false},
		{"truncated", `{"a": 1, "b": `, "", true},
		{"truncated then inner valid", `{"a": {"b": 2}`, `{"b": 2}`, false},
		{"no braces", `no json here`, "", true},
		{"empty", ``, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.text)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrNoJSONObject))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseGroupAnswer(t *testing.T) {
	tests := []struct {
		name           string
		text           string
		wantGroup      string
		wantConfidence int
		wantRationale  string
		wantErr        bool
	}{
		{"full", `{"grupo_economico":"VALE","confianca":90,"justificativa":"mineradora"}`, "VALE", 90, "mineradora", false},
		{"missing confidence", `{"grupo_economico":"JBS"}`, "JBS", DefaultAIConfidence, "", false},
		{"fraction confidence", `{"grupo_economico":"JBS","confianca":0.82}`, "JBS", 82, "", false},
		{"string confidence", `{"grupo_economico":"JBS","confianca":"75%"}`, "JBS", 75, "", false},
		{"out of range", `{"grupo_economico":"JBS","confianca":140}`, "JBS", 100, "", false},
		{"garbage confidence", `{"grupo_economico":"JBS","confianca":"alta"}`, "JBS", DefaultAIConfidence, "", false},
		{"english keys", `{"group":"ITAU","confidence":60,"rationale":"bank"}`, "ITAU", 60, "bank", false},
		{"no group", `{"confianca":90}`, "", 0, "", true},
		{"empty group", `{"grupo_economico":"  "}`, "", 0, "", true},
		{"no object", `I don't know`, "", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGroupAnswer(tt.text)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrUnavailable))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantGroup, got.GroupName)
			assert.Equal(t, tt.wantConfidence, got.Confidence)
			assert.Equal(t, tt.wantRationale, got.Rationale)
		})
	}
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("Decisão:\n{\"escolha\": \"perplexity\", \"razao\": \"mais recente\"}")
	require.NoError(t, err)
	assert.Equal(t, "perplexity", d.Choice)
	assert.Equal(t, "mais recente", d.Reason)

	_, err = ParseDecision(`{"razao":"x"}`)
	assert.Error(t, err)

	_, err = ParseDecision(`nada`)
	assert.True(t, errors.Is(err, ErrNoJSONObject))
}

func TestAIClassifier_ModelFallback(t *testing.T) {
	provider := newScriptedProvider("Gemini", "m1", "m2", "m3")
	provider.failures["m1"] = errors.New("timeout")
	provider.responses["m2"] = "sem json"
	provider.responses["m3"] = `{"grupo_economico":"Vale","confianca":88,"justificativa":"controladora"}`

	classifier := NewAIClassifier(provider, nil, AIClassifierConfig{}, nil, nil)
	got, err := classifier.Classify(context.Background(), identity("Mineração Rio Doce", ""))
	require.NoError(t, err)

	assert.Equal(t, []string{"m1", "m2", "m3"}, provider.Calls())
	assert.Equal(t, "VALE", got.GroupName)
	assert.Equal(t, 88, got.Confidence)
	assert.Equal(t, "Gemini (m3)", got.Method.String())
}

func TestAIClassifier_StopsAtFirstUsableModel(t *testing.T) {
	provider := newScriptedProvider("Gemini", "m1", "m2")
	provider.responses["m1"] = `{"grupo_economico":"ITAU"}`

	classifier := NewAIClassifier(provider, nil, AIClassifierConfig{}, nil, nil)
	_, err := classifier.Classify(context.Background(), identity("Banco X", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, provider.Calls())
}

func TestAIClassifier_Unavailable(t *testing.T) {
	provider := newScriptedProvider("Perplexity", "m1", "m2")
	provider.failures["m1"] = errors.New("401 unauthorized")
	provider.failures["m2"] = errors.New("401 unauthorized")

	classifier := NewAIClassifier(provider, nil, AIClassifierConfig{}, nil, nil)
	_, err := classifier.Classify(context.Background(), identity("X", ""))
	assert.True(t, errors.Is(err, ErrUnavailable))

	disabled := newScriptedProvider("Perplexity", "m1")
	disabled.enabled = false
	classifier = NewAIClassifier(disabled, nil, AIClassifierConfig{}, nil, nil)
	_, err = classifier.Classify(context.Background(), identity("X", ""))
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Empty(t, disabled.Calls())
}

func TestAIClassifier_UnknownGroup(t *testing.T) {
	provider := newScriptedProvider("Gemini", "m1")
	provider.responses["m1"] = `{"grupo_economico":"Grupo Pão de Açúcar","confianca":77,"justificativa":"varejo"}`

	strict := NewAIClassifier(provider, nil, AIClassifierConfig{}, nil, nil)
	got, err := strict.Classify(context.Background(), identity("CBD", ""))
	require.NoError(t, err)
	assert.Equal(t, Independent, got.GroupName)
	assert.Contains(t, got.Rationale, "Grupo Pão de Açúcar")
	assert.Contains(t, got.Rationale, "varejo")

	lenient := NewAIClassifier(provider, nil, AIClassifierConfig{AllowUnknownGroups: true}, nil, nil)
	got, err = lenient.Classify(context.Background(), identity("CBD", ""))
	require.NoError(t, err)
	assert.Equal(t, "GRUPO PÃO DE AÇÚCAR", got.GroupName)
}

func TestAIClassifier_Prompt(t *testing.T) {
	provider := newScriptedProvider("Perplexity", "m1")
	provider.responses["m1"] = `{"grupo_economico":"INDEPENDENTE"}`

	classifier := NewAIClassifier(provider, nil, AIClassifierConfig{Research: true}, nil, nil)
	_, err := classifier.Classify(context.Background(), identity("Padaria Central", "Pão Quente"))
	require.NoError(t, err)

	prompt := provider.prompts[0]
	assert.Contains(t, prompt, "Razão Social: Padaria Central")
	assert.Contains(t, prompt, "Nome Fantasia: Pão Quente")
	assert.Contains(t, prompt, strings.Join(DefaultGroupTable().Names(), ", "))
	assert.Contains(t, prompt, "Pesquise informações atualizadas")
}

func candidates() (Candidate, Candidate) {
	first := Candidate{Provider: "Perplexity", Assignment: &GroupAssignment{
		GroupName: "VALE", Confidence: 80, Rationale: "a",
		Method: Method{Kind: MethodProviderAI, Provider: "Perplexity", Model: "sonar"},
	}}
	second := Candidate{Provider: "Gemini", Assignment: &GroupAssignment{
		GroupName: "GERDAU", Confidence: 70, Rationale: "b",
		Method: Method{Kind: MethodProviderAI, Provider: "Gemini", Model: "flash"},
	}}
	return first, second
}

func TestArbitrator_Decides(t *testing.T) {
	judge := newScriptedProvider("Gemini", "judge")
	judge.responses["judge"] = `{"escolha": "Perplexity", "razao": "dados mais recentes"}`

	first, second := candidates()
	arbitrator := NewArbitrator(judge, "judge", "gemini", nil, nil)
	got := arbitrator.Arbitrate(context.Background(), identity("X", ""), first, second)

	assert.Equal(t, "VALE", got.GroupName)
	assert.Equal(t, MethodArbitrated, got.Method.Kind)
	assert.Equal(t, "Perplexity (sonar), arbitrated", got.Method.String())
	assert.Contains(t, got.ArbitrationNote, "dados mais recentes")
	assert.NotSame(t, first.Assignment, got)
	assert.Empty(t, first.Assignment.ArbitrationNote, "inputs must stay untouched")
}

func TestArbitrator_Fallback(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*scriptedProvider)
	}{
		{"judge error", func(p *scriptedProvider) { p.failures["judge"] = errors.New("boom") }},
		{"no json", func(p *scriptedProvider) { p.responses["judge"] = "não sei" }},
		{"unknown side", func(p *scriptedProvider) { p.responses["judge"] = `{"escolha":"chatgpt"}` }},
		{"judge disabled", func(p *scriptedProvider) { p.enabled = false }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			judge := newScriptedProvider("Gemini", "judge")
			tt.setup(judge)

			first, second := candidates()
			got := NewArbitrator(judge, "judge", "gemini", nil, nil).
				Arbitrate(context.Background(), identity("X", ""), first, second)

			assert.Equal(t, "GERDAU", got.GroupName)
			assert.Equal(t, MethodProviderAI, got.Method.Kind)
			assert.Contains(t, got.ArbitrationNote, "fell back to Gemini")
		})
	}
}

func TestArbitrator_AgreementSkipsJudge(t *testing.T) {
	judge := newScriptedProvider("Gemini", "judge")
	first, second := candidates()
	second.Assignment.GroupName = "vale"

	got := NewArbitrator(judge, "judge", "gemini", nil, nil).
		Arbitrate(context.Background(), identity("X", ""), first, second)

	assert.Empty(t, judge.Calls())
	assert.Equal(t, "providers agree", got.ArbitrationNote)
	assert.Equal(t, "Gemini (flash)", got.Method.String())
}

func TestArbitrator_ResultIsOneOfInputs(t *testing.T) {
	for _, choice := range []string{"perplexity", "gemini", "other", ""} {
		judge := newScriptedProvider("Gemini", "judge")
		judge.responses["judge"] = `{"escolha":"` + choice + `"}`
		first, second := candidates()

		got := NewArbitrator(judge, "judge", "gemini", nil, nil).
			Arbitrate(context.Background(), identity("X", ""), first, second)
		assert.Contains(t, []string{first.Assignment.GroupName, second.Assignment.GroupName}, got.GroupName)
		assert.NotEmpty(t, got.ArbitrationNote)
	}
}
