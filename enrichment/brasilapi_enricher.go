package enrichment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// BrasilAPIEnricher сервис реестра brasilapi.com.br.
// Успешный HTTP ответ разбирается без дополнительных проверок статуса.
type BrasilAPIEnricher struct {
	config  *EnricherConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewBrasilAPIEnricher создает новый экземпляр BrasilAPI
func NewBrasilAPIEnricher(config *EnricherConfig) *BrasilAPIEnricher {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://brasilapi.com.br"
	}

	return &BrasilAPIEnricher{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: newLimiter(config.MaxRequests),
	}
}

// BrasilAPIResponse ответ BrasilAPI (только используемые поля)
type BrasilAPIResponse struct {
	CNPJ                       string `json:"cnpj"`
	RazaoSocial                string `json:"razao_social"`
	NomeFantasia               string `json:"nome_fantasia"`
	CNAEFiscalDescricao        string `json:"cnae_fiscal_descricao"`
	DescricaoSituacaoCadastral string `json:"descricao_situacao_cadastral"`
}

func (b *BrasilAPIEnricher) Enrich(ctx context.Context, cnpj string) (*CompanyIdentity, error) {
	url := fmt.Sprintf("%s/api/cnpj/v1/%s", strings.TrimRight(b.config.BaseURL, "/"), cnpj)

	var resp BrasilAPIResponse
	if err := getJSON(ctx, b.client, b.limiter, url, &resp); err != nil {
		return nil, eris.Wrap(err, b.GetName())
	}

	return &CompanyIdentity{
		CNPJ:                cnpj,
		LegalName:           resp.RazaoSocial,
		TradeName:           resp.NomeFantasia,
		ActivityDescription: resp.CNAEFiscalDescricao,
		RegistrationStatus:  resp.DescricaoSituacaoCadastral,
		Source:              b.GetName(),
		Timestamp:           time.Now(),
	}, nil
}

func (b *BrasilAPIEnricher) GetName() string {
	return "brasilapi"
}

func (b *BrasilAPIEnricher) GetPriority() int {
	return b.config.Priority
}

func (b *BrasilAPIEnricher) IsAvailable() bool {
	return b.config.Enabled
}
