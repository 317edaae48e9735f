package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// ReceitaWSEnricher сервис реестра receitaws.com.br.
// Ответ считается успешным только при status == "OK".
type ReceitaWSEnricher struct {
	config  *EnricherConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewReceitaWSEnricher создает новый экземпляр ReceitaWS
func NewReceitaWSEnricher(config *EnricherConfig) *ReceitaWSEnricher {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://www.receitaws.com.br"
	}

	return &ReceitaWSEnricher{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: newLimiter(config.MaxRequests),
	}
}

// ReceitaWSResponse ответ ReceitaWS
type ReceitaWSResponse struct {
	Status             string          `json:"status"`
	Message            string          `json:"message"`
	Nome               string          `json:"nome"`
	Fantasia           string          `json:"fantasia"`
	AtividadePrincipal json.RawMessage `json:"atividade_principal"`
	Situacao           string          `json:"situacao"`
}

type receitaWSActivity struct {
	Code string `json:"code"`
	Text string `json:"text"`
}

func (r *ReceitaWSEnricher) Enrich(ctx context.Context, cnpj string) (*CompanyIdentity, error) {
	url := fmt.Sprintf("%s/v1/cnpj/%s", strings.TrimRight(r.config.BaseURL, "/"), cnpj)

	var resp ReceitaWSResponse
	if err := getJSON(ctx, r.client, r.limiter, url, &resp); err != nil {
		return nil, eris.Wrap(err, r.GetName())
	}

	if resp.Status != "OK" {
		return nil, eris.Errorf("%s: status %q: %s", r.GetName(), resp.Status, resp.Message)
	}

	return &CompanyIdentity{
		CNPJ:                cnpj,
		LegalName:           resp.Nome,
		TradeName:           resp.Fantasia,
		ActivityDescription: parseReceitaWSActivity(resp.AtividadePrincipal),
		RegistrationStatus:  resp.Situacao,
		Source:              r.GetName(),
		Timestamp:           time.Now(),
	}, nil
}

// parseReceitaWSActivity разбирает atividade_principal.
// Сервис отдает массив объектов, но встречается и одиночный объект или строка.
func parseReceitaWSActivity(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var list []receitaWSActivity
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) > 0 {
			return list[0].Text
		}
		return ""
	}

	var single receitaWSActivity
	if err := json.Unmarshal(raw, &single); err == nil {
		return single.Text
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	return string(raw)
}

func (r *ReceitaWSEnricher) GetName() string {
	return "receitaws"
}

func (r *ReceitaWSEnricher) GetPriority() int {
	return r.config.Priority
}

func (r *ReceitaWSEnricher) IsAvailable() bool {
	return r.config.Enabled
}
