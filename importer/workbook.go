package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrEmptyWorkbook в файле нет листа или строки заголовков
	ErrEmptyWorkbook = eris.New("workbook is empty")
	// ErrColumnNotFound колонка с CNPJ не найдена
	ErrColumnNotFound = eris.New("identifier column not found")
	// ErrUnsupportedFile расширение файла не поддерживается
	ErrUnsupportedFile = eris.New("unsupported file type")
)

// Table таблица исходных данных: заголовки и строки в порядке файла.
// Каждая строка выровнена по длине Headers.
type Table struct {
	Sheet   string
	Headers []string
	Rows    [][]string
}

// Len возвращает количество строк данных
func (t *Table) Len() int {
	return len(t.Rows)
}

// ParseFile читает .xlsx/.xlsm или .csv по расширению файла
func ParseFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	return ParseReader(filepath.Base(path), f)
}

// ParseReader выбирает формат по расширению имени файла
func ParseReader(name string, r io.Reader) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".csv":
		return ParseCSV(r)
	case ".xlsx", ".xlsm":
		return ParseWorkbook(r)
	default:
		return nil, eris.Wrapf(ErrUnsupportedFile, "%q", ext)
	}
}

// ParseWorkbook читает первый лист Excel файла
func ParseWorkbook(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open Excel file")
	}
	defer f.Close()

	// Получаем имя первого листа
	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, eris.Wrap(ErrEmptyWorkbook, "no sheets found in Excel file")
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, eris.Wrap(err, "failed to get rows")
	}

	table, err := buildTable(rows)
	if err != nil {
		return nil, err
	}
	table.Sheet = sheetName
	return table, nil
}

// ParseCSV читает CSV с заголовком в первой строке. Разделитель определяется
// по первой строке: ';' (типично для выгрузок из Excel в pt-BR) или ','.
func ParseCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "failed to read CSV")
	}
	text := strings.TrimPrefix(string(data), "\ufeff")

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = detectDelimiter(text)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse CSV")
	}
	return buildTable(rows)
}

func detectDelimiter(text string) rune {
	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		return ';'
	}
	return ','
}

func buildTable(rows [][]string) (*Table, error) {
	// Пропускаем пустые строки до заголовка
	start := 0
	for start < len(rows) && isEmptyRow(rows[start]) {
		start++
	}
	if start >= len(rows) {
		return nil, eris.Wrap(ErrEmptyWorkbook, "no header row")
	}

	width := len(rows[start])
	for _, row := range rows[start+1:] {
		if len(row) > width {
			width = len(row)
		}
	}

	headers := make([]string, width)
	for i := range headers {
		if i < len(rows[start]) {
			headers[i] = strings.TrimSpace(rows[start][i])
		}
		if headers[i] == "" {
			headers[i] = fmt.Sprintf("column_%d", i+1)
		}
	}

	table := &Table{Headers: headers}
	for _, row := range rows[start+1:] {
		if isEmptyRow(row) {
			continue
		}
		padded := make([]string, width)
		copy(padded, row)
		table.Rows = append(table.Rows, padded)
	}

	return table, nil
}

// ResolveColumn возвращает индекс колонки с CNPJ.
// Пустое имя означает автоопределение: первая колонка, в заголовке которой есть "cnpj".
func (t *Table) ResolveColumn(name string) (int, error) {
	name = strings.TrimSpace(name)

	if name == "" {
		for i, header := range t.Headers {
			if strings.Contains(strings.ToLower(header), "cnpj") {
				return i, nil
			}
		}
		return -1, eris.Wrapf(ErrColumnNotFound, "no header contains \"cnpj\" (headers: %s)", strings.Join(t.Headers, ", "))
	}

	for i, header := range t.Headers {
		if header == name {
			return i, nil
		}
	}
	for i, header := range t.Headers {
		if strings.EqualFold(header, name) {
			return i, nil
		}
	}
	return -1, eris.Wrapf(ErrColumnNotFound, "%q (headers: %s)", name, strings.Join(t.Headers, ", "))
}

// isEmptyRow проверяет, является ли строка пустой
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
