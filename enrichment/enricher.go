package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// CNPJLength длина канонического CNPJ
const CNPJLength = 14

var (
	// ErrInvalidCNPJ идентификатор не является корректным CNPJ
	ErrInvalidCNPJ = eris.New("invalid cnpj")
	// ErrNotFound ни один сервис реестра не вернул пригодных данных
	ErrNotFound = eris.New("company data not found")
)

// CompanyIdentity канонические данные компании из реестра.
// Создается один раз на CNPJ и дальше не изменяется.
type CompanyIdentity struct {
	CNPJ                string    `json:"cnpj"`
	LegalName           string    `json:"legal_name"`           // razão social
	TradeName           string    `json:"trade_name"`           // nome fantasia
	ActivityDescription string    `json:"activity_description"` // atividade principal
	RegistrationStatus  string    `json:"registration_status"`  // situação cadastral
	Source              string    `json:"source"`               // сервис, давший ответ
	Timestamp           time.Time `json:"timestamp"`
}

// Usable проверяет, что в ответе есть хотя бы одно наименование
func (c *CompanyIdentity) Usable() bool {
	return c != nil && (strings.TrimSpace(c.LegalName) != "" || strings.TrimSpace(c.TradeName) != "")
}

// Enricher интерфейс сервиса реестра
type Enricher interface {
	// Enrich получает данные компании по каноническому CNPJ
	Enrich(ctx context.Context, cnpj string) (*CompanyIdentity, error)

	// GetName возвращает название сервиса
	GetName() string

	// GetPriority возвращает приоритет сервиса (чем меньше, тем выше приоритет)
	GetPriority() int

	// IsAvailable проверяет доступность сервиса
	IsAvailable() bool
}

// EnricherConfig конфигурация сервиса реестра
type EnricherConfig struct {
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	MaxRequests int           `json:"max_requests" yaml:"max_requests"` // Максимум запросов в минуту, 0 - без ограничения
	Enabled     bool          `json:"enabled" yaml:"enabled"`
	Priority    int           `json:"priority" yaml:"priority"`
}

// NormalizeCNPJ убирает из строки все символы, кроме цифр
func NormalizeCNPJ(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var (
	cnpjFirstWeights  = []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	cnpjSecondWeights = []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
)

// ValidateCNPJ проверяет канонический CNPJ: ровно 14 цифр, не все одинаковые,
// верные контрольные цифры (mod 11)
func ValidateCNPJ(cnpj string) bool {
	if len(cnpj) != CNPJLength {
		return false
	}
	for _, r := range cnpj {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	if strings.Count(cnpj, cnpj[:1]) == CNPJLength {
		return false
	}
	return cnpj[12:] == CNPJCheckDigits(cnpj[:12])
}

// CNPJCheckDigits вычисляет две контрольные цифры для 12-значной базы
func CNPJCheckDigits(base string) string {
	first := cnpjCheckDigit(base, cnpjFirstWeights)
	second := cnpjCheckDigit(base+string(first), cnpjSecondWeights)
	return string([]byte{first, second})
}

func cnpjCheckDigit(digits string, weights []int) byte {
	sum := 0
	for i, w := range weights {
		sum += int(digits[i]-'0') * w
	}
	rest := sum % 11
	if rest < 2 {
		return '0'
	}
	return byte('0' + 11 - rest)
}

// FormatCNPJ форматирует канонический CNPJ как XX.XXX.XXX/XXXX-XX
func FormatCNPJ(cnpj string) string {
	if len(cnpj) != CNPJLength {
		return cnpj
	}
	return cnpj[:2] + "." + cnpj[2:5] + "." + cnpj[5:8] + "/" + cnpj[8:12] + "-" + cnpj[12:]
}

// statusError ответ сервиса с кодом, отличным от 200
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.Code, e.Body)
}

// newLimiter создает ограничитель запросов на минуту; nil - без ограничения
func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// getJSON выполняет один GET запрос и декодирует JSON ответ в out.
// Повторных попыток нет: любая ошибка означает переход к следующему сервису.
func getJSON(ctx context.Context, client *http.Client, limiter *rate.Limiter, url string, out any) error {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "rate limit wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return eris.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "grupoeconomico/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return eris.Wrap(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return eris.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return &statusError{Code: resp.StatusCode, Body: snippet}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "failed to parse response")
	}
	return nil
}
