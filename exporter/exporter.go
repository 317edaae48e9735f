package exporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"grupoeconomico/pipeline"
)

// Format формат выгрузки
type Format string

const (
	FormatExcel Format = "xlsx"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
)

// SheetName имя листа с результатом
const SheetName = "Resultado"

// ParseFormat разбирает формат; пустая строка означает xlsx
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "xlsx", "excel":
		return FormatExcel, nil
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", eris.Errorf("unsupported output format %q", s)
	}
}

// Extension расширение файла для формата
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType MIME тип формата
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

// FileName имя файла результата: grupos_economicos_YYYYMMDD_HHMMSS.<ext>
func FileName(now time.Time, format Format) string {
	return fmt.Sprintf("grupos_economicos_%s%s", now.Format("20060102_150405"), format.Extension())
}

// Write записывает результат в выбранном формате
func Write(w io.Writer, result *pipeline.BatchResult, format Format) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, result)
	case FormatJSON:
		return WriteJSON(w, result)
	default:
		return WriteExcel(w, result)
	}
}

// WriteExcel записывает результат на один лист Excel
func WriteExcel(w io.Writer, result *pipeline.BatchResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return eris.Wrap(err, "failed to rename sheet")
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return eris.Wrap(err, "failed to create header style")
	}

	headers := result.Headers()
	if err := writeRow(f, 1, toAny(headers)); err != nil {
		return err
	}
	lastCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := f.SetCellStyle(SheetName, "A1", lastCell, headerStyle); err != nil {
		return eris.Wrap(err, "failed to style header")
	}

	for i, record := range result.Records {
		if err := writeRow(f, i+2, record.Values()); err != nil {
			return err
		}
	}

	for i := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, 20); err != nil {
			return eris.Wrap(err, "failed to set column width")
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "failed to write Excel file")
	}
	return nil
}

func writeRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return eris.Wrap(err, "invalid cell")
	}
	if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
		return eris.Wrapf(err, "failed to write row %d", row)
	}
	return nil
}

// WriteCSV записывает результат в CSV
func WriteCSV(w io.Writer, result *pipeline.BatchResult) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(result.Headers()); err != nil {
		return eris.Wrap(err, "failed to write headers")
	}

	for _, record := range result.Records {
		values := record.Values()
		line := make([]string, len(values))
		for i, v := range values {
			line[i] = fmt.Sprint(v)
		}
		if err := writer.Write(line); err != nil {
			return eris.Wrap(err, "failed to write record")
		}
	}

	writer.Flush()
	return eris.Wrap(writer.Error(), "failed to flush CSV")
}

// jsonDocument формат JSON выгрузки
type jsonDocument struct {
	BatchID    string                  `json:"batch_id"`
	ExportedAt string                  `json:"exported_at"`
	Summary    pipeline.BatchSummary   `json:"summary"`
	Records    []*pipeline.BatchRecord `json:"records"`
}

// WriteJSON записывает результат в JSON
func WriteJSON(w io.Writer, result *pipeline.BatchResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	doc := jsonDocument{
		BatchID:    result.ID,
		ExportedAt: time.Now().Format(time.RFC3339),
		Summary:    result.Summary,
		Records:    result.Records,
	}
	if doc.Records == nil {
		doc.Records = []*pipeline.BatchRecord{}
	}

	if err := encoder.Encode(doc); err != nil {
		return eris.Wrap(err, "failed to encode JSON")
	}
	return nil
}

func toAny(values []string) []any {
	result := make([]any, len(values))
	for i, v := range values {
		result[i] = v
	}
	return result
}
