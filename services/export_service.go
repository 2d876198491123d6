package services

import (
	"fmt"
	"io"

	"github.com/opsdash/commesse-api/models"
	"github.com/xuri/excelize/v2"
)

// ExportSheet is the name of the listing worksheet
const ExportSheet = "Commesse"

// XLSXContentType is the media type of the exported workbook
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var exportHeaders = []interface{}{
	"Numero", "Titolo", "Cliente", "Tipo", "Priorità", "Scadenza",
	"Fase corrente", "Stato fase", "Completata", "Articolo", "Città", "Archiviata",
}

func exportRow(o models.Order) []interface{} {
	var deadline, phase, status string
	if o.Deadline != nil {
		deadline = o.Deadline.Format("02/01/2006")
	}
	if p := o.CurrentPhase(); p != nil {
		phase = fmt.Sprintf("%d. %s", p.PhaseOrder, p.PhaseType)
		status = p.StatusLabel()
	}
	return []interface{}{
		o.Number, o.Title, o.CustomerName(), string(o.Type), string(o.Priority), deadline,
		phase, status, yesNo(o.IsCompleted()), o.Article, o.ShippingCity, yesNo(o.Archived),
	}
}

func yesNo(b bool) string {
	if b {
		return "sì"
	}
	return "no"
}

// ExportXLSX writes orders, already in listing order, as an Excel workbook
func ExportXLSX(orders []models.Order, w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &exportHeaders); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(exportHeaders))
	if err := f.SetCellStyle(ExportSheet, "A1", lastCol+"1", style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, o := range orders {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := exportRow(o)
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write order %s: %w", o.Number, err)
		}
	}

	f.SetColWidth(ExportSheet, "B", "C", 30)
	f.SetColWidth(ExportSheet, "G", "H", 20)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
