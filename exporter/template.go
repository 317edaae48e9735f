package exporter

import (
	"io"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
)

// TemplateFileName имя файла шаблона
const TemplateFileName = "template_cnpj.xlsx"

var templateRows = [][]any{
	{"cnpj", "nome_empresa"},
	{"33.000.167/0001-01", "Vale S.A."},
	{"02.916.265/0001-60", "Ambev S.A."},
}

// WriteTemplate записывает шаблон входной таблицы
func WriteTemplate(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range templateRows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return eris.Wrap(err, "failed to write template row")
		}
	}
	if err := f.SetColWidth(sheet, "A", "B", 24); err != nil {
		return eris.Wrap(err, "failed to set column width")
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "failed to write template")
	}
	return nil
}
