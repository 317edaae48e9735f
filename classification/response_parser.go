package classification

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoJSONObject в тексте ответа нет корректного JSON объекта
var ErrNoJSONObject = eris.New("no json object in response")

// Ключи ответа модели. Первым идет ключ из промпта, затем допустимые варианты.
var (
	groupKeys      = []string{"grupo_economico", "grupo", "group", "group_name"}
	confidenceKeys = []string{"confianca", "confiança", "confidence"}
	rationaleKeys  = []string{"justificativa", "rationale", "reason", "razao"}
	choiceKeys     = []string{"escolha", "choice"}
	reasonKeys     = []string{"razao", "razão", "reason", "justificativa"}
)

// GroupAnswer разобранный ответ провайдера
type GroupAnswer struct {
	GroupName  string
	Confidence int
	Rationale  string
}

// Decision разобранное решение арбитра
type Decision struct {
	Choice string
	Reason string
}

// ExtractJSONObject находит первый корректный JSON объект в свободном тексте.
// Скобки внутри строк учитываются, несбалансированный фрагмент пропускается
// и поиск продолжается со следующей открывающей скобки.
func ExtractJSONObject(text string) (string, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > 0 {
			candidate := text[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}

		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoJSONObject
}

// matchBrace возвращает индекс закрывающей скобки для text[start] == '{' или -1
func matchBrace(text string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func decodeObject(text string) (map[string]any, error) {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, eris.Wrap(ErrNoJSONObject, err.Error())
	}
	return obj, nil
}

// ParseGroupAnswer разбирает ответ классификации. Без имени группы ответ
// непригоден и возвращается ErrUnavailable. Уверенность по умолчанию 70.
func ParseGroupAnswer(text string) (*GroupAnswer, error) {
	obj, err := decodeObject(text)
	if err != nil {
		return nil, eris.Wrap(ErrUnavailable, err.Error())
	}

	group := stringField(obj, groupKeys)
	if group == "" {
		return nil, eris.Wrap(ErrUnavailable, "response has no group name")
	}

	confidence, ok := confidenceField(obj, confidenceKeys)
	if !ok {
		confidence = DefaultAIConfidence
	}

	return &GroupAnswer{
		GroupName:  group,
		Confidence: confidence,
		Rationale:  stringField(obj, rationaleKeys),
	}, nil
}

// ParseDecision разбирает решение арбитра. Без выбора возвращается ошибка.
func ParseDecision(text string) (*Decision, error) {
	obj, err := decodeObject(text)
	if err != nil {
		return nil, err
	}

	choice := stringField(obj, choiceKeys)
	if choice == "" {
		return nil, eris.New("decision has no choice")
	}

	return &Decision{
		Choice: choice,
		Reason: stringField(obj, reasonKeys),
	}, nil
}

func stringField(obj map[string]any, keys []string) string {
	for _, key := range keys {
		value, ok := obj[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// confidenceField принимает число 0..100, дробь 0..1 или строку вида "80%"
func confidenceField(obj map[string]any, keys []string) (int, bool) {
	for _, key := range keys {
		value, ok := obj[key]
		if !ok {
			continue
		}

		var f float64
		switch v := value.(type) {
		case float64:
			f = v
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%")), 64)
			if err != nil {
				continue
			}
			f = parsed
		default:
			continue
		}

		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		if f > 0 && f < 1 {
			f *= 100
		}
		return clampConfidence(int(math.Round(f))), true
	}
	return 0, false
}
