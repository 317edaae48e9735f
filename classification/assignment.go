package classification

import "fmt"

// Independent имя группы для компаний без установленной группы
const Independent = "INDEPENDENTE"

// Уверенность по этапам каскада
const (
	RuleConfidence      = 85
	DefaultAIConfidence = 70
	DefaultConfidence   = 50
)

// MethodKind этап каскада, давший результат
type MethodKind int

const (
	MethodRules MethodKind = iota + 1
	MethodProviderAI
	MethodArbitrated
	MethodDefault
)

// String возвращает тег этапа: "Rules", "Provider-AI", "Arbitrated", "Default".
// Тот же тег используется в метриках, сводке пакета и JSON.
func (k MethodKind) String() string {
	switch k {
	case MethodRules:
		return "Rules"
	case MethodProviderAI:
		return "Provider-AI"
	case MethodArbitrated:
		return "Arbitrated"
	case MethodDefault:
		return "Default"
	default:
		return "Unknown"
	}
}

// MarshalText реализует encoding.TextMarshaler
func (k MethodKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText реализует encoding.TextUnmarshaler
func (k *MethodKind) UnmarshalText(text []byte) error {
	for _, kind := range []MethodKind{MethodRules, MethodProviderAI, MethodArbitrated, MethodDefault} {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown method kind %q", text)
}

// Method метод классификации. Provider и Model заполнены только для
// MethodProviderAI и MethodArbitrated.
type Method struct {
	Kind     MethodKind `json:"kind"`
	Provider string     `json:"provider,omitempty"`
	Model    string     `json:"model,omitempty"`
}

// String возвращает тег метода для выгрузки: "Rules", "Gemini (gemini-1.5-flash)",
// "Perplexity (sonar), arbitrated", "Default".
func (m Method) String() string {
	switch m.Kind {
	case MethodProviderAI:
		return providerLabel(m.Provider, m.Model)
	case MethodArbitrated:
		return providerLabel(m.Provider, m.Model) + ", arbitrated"
	default:
		return m.Kind.String()
	}
}

func providerLabel(provider, model string) string {
	if model == "" {
		return provider
	}
	return fmt.Sprintf("%s (%s)", provider, model)
}

// GroupAssignment результат классификации одной компании
type GroupAssignment struct {
	GroupName       string `json:"group_name"`
	Confidence      int    `json:"confidence"`
	Method          Method `json:"method"`
	Rationale       string `json:"rationale,omitempty"`
	ArbitrationNote string `json:"arbitration_note,omitempty"`
}

// Clone возвращает независимую копию
func (a *GroupAssignment) Clone() *GroupAssignment {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// DefaultAssignment итог каскада, когда ни правила, ни провайдеры не дали ответа
func DefaultAssignment() *GroupAssignment {
	return &GroupAssignment{
		GroupName:  Independent,
		Confidence: DefaultConfidence,
		Method:     Method{Kind: MethodDefault},
		Rationale:  "no rule match and no AI provider answered",
	}
}

// clampConfidence ограничивает уверенность диапазоном 0..100
func clampConfidence(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
