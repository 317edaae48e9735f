package pipeline

import (
	"fmt"
	"time"

	"grupoeconomico/classification"
	"grupoeconomico/enrichment"
)

// Тексты ошибок строки
const (
	ErrMsgInvalidIdentifier = "invalid identifier"
	ErrMsgDataNotFound      = "data not found"
	errMsgProcessingFailed  = "processing failed"
)

// OriginalPrefix префикс исходных колонок в выгрузке
const OriginalPrefix = "original_"

// OutputColumns колонки результата перед исходными колонками
var OutputColumns = []string{
	"cnpj_original",
	"cnpj",
	"razao_social",
	"nome_fantasia",
	"grupo_economico",
	"confianca",
	"metodo_analise",
	"justificativa",
	"decisao_ia",
	"atividade",
	"situacao",
	"erro",
}

// Column значение исходной колонки строки
type Column struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// BatchRecord результат обработки одной строки.
// Либо заполнено Error, либо Identity и Assignment вместе.
type BatchRecord struct {
	Row        int                             `json:"row"`
	RawCNPJ    string                          `json:"cnpj_original"`
	CNPJ       string                          `json:"cnpj,omitempty"`
	Identity   *enrichment.CompanyIdentity     `json:"identity,omitempty"`
	Assignment *classification.GroupAssignment `json:"assignment,omitempty"`
	Error      string                          `json:"error,omitempty"`
	Original   []Column                        `json:"original"`
	Duration   time.Duration                   `json:"duration_ns"`
}

// Succeeded проверяет, что строка классифицирована
func (r *BatchRecord) Succeeded() bool {
	return r.Error == ""
}

// Values возвращает значения строки в порядке Headers
func (r *BatchRecord) Values() []any {
	values := make([]any, 0, len(OutputColumns)+len(r.Original))
	values = append(values, r.RawCNPJ, r.CNPJ)

	if r.Identity != nil && r.Assignment != nil {
		values = append(values,
			r.Identity.LegalName,
			r.Identity.TradeName,
			r.Assignment.GroupName,
			r.Assignment.Confidence,
			r.Assignment.Method.String(),
			r.Assignment.Rationale,
			r.Assignment.ArbitrationNote,
			r.Identity.ActivityDescription,
			r.Identity.RegistrationStatus,
			"",
		)
	} else {
		values = append(values, "", "", "", "", "", "", "", "", "", r.Error)
	}

	for _, col := range r.Original {
		values = append(values, col.Value)
	}
	return values
}

// BatchResult результат обработки таблицы
type BatchResult struct {
	ID           string         `json:"batch_id"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	InputHeaders []string       `json:"input_headers"`
	Records      []*BatchRecord `json:"records"`
	Summary      BatchSummary   `json:"summary"`
}

// Headers возвращает заголовки выгрузки: служебные колонки и исходные с префиксом.
// При совпадении имен к исходной колонке добавляется числовой суффикс.
func (b *BatchResult) Headers() []string {
	headers := make([]string, 0, len(OutputColumns)+len(b.InputHeaders))
	headers = append(headers, OutputColumns...)

	used := make(map[string]bool, cap(headers))
	for _, h := range headers {
		used[h] = true
	}

	for _, h := range b.InputHeaders {
		name := OriginalPrefix + h
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s%s_%d", OriginalPrefix, h, n)
		}
		used[name] = true
		headers = append(headers, name)
	}
	return headers
}
