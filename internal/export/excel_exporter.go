// Package export renders tabular listings as spreadsheets.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Column describes one exported column
type Column struct {
	Header string
	Width  float64
}

// ExcelOptions configures the workbook layout
type ExcelOptions struct {
	SheetName    string
	FreezeHeader bool
	AutoFilter   bool
	DateFormat   string
	AmountFormat string
	HeaderFill   string
}

func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SheetName:    "Payment Requests",
		FreezeHeader: true,
		AutoFilter:   true,
		DateFormat:   "yyyy-mm-dd hh:mm",
		AmountFormat: "#,##0.00",
		HeaderFill:   "4472C4",
	}
}

// ExcelExporter writes a single-sheet workbook
type ExcelExporter struct {
	file    *excelize.File
	options ExcelOptions
	styles  cellStyles
	rows    int
}

type cellStyles struct {
	header int
	text   int
	date   int
	amount int
}

func NewExcelExporter(options ExcelOptions) (*ExcelExporter, error) {
	file := excelize.NewFile()
	if err := file.SetSheetName("Sheet1", options.SheetName); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	e := &ExcelExporter{file: file, options: options}
	if err := e.createStyles(); err != nil {
		file.Close()
		return nil, err
	}
	return e, nil
}

// WriteHeader writes the styled header row
func (e *ExcelExporter) WriteHeader(columns []Column) error {
	sheet := e.options.SheetName
	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellValue(sheet, cell, col.Header); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		if col.Width > 0 {
			name, _ := excelize.ColumnNumberToName(i + 1)
			if err := e.file.SetColWidth(sheet, name, name, col.Width); err != nil {
				return fmt.Errorf("failed to size column: %w", err)
			}
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(columns), 1)
	if err := e.file.SetCellStyle(sheet, "A1", last, e.styles.header); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	if e.options.FreezeHeader {
		if err := e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("failed to freeze header: %w", err)
		}
	}
	if e.options.AutoFilter {
		if err := e.file.AutoFilter(sheet, "A1:"+last, nil); err != nil {
			return fmt.Errorf("failed to add filter: %w", err)
		}
	}
	return nil
}

// WriteRow appends one data row below the header
func (e *ExcelExporter) WriteRow(values ...any) error {
	sheet := e.options.SheetName
	rowNum := e.rows + 2
	for i, val := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, rowNum)
		if err := e.setCellValue(sheet, cell, val); err != nil {
			return fmt.Errorf("failed to write %s: %w", cell, err)
		}
	}
	e.rows++
	return nil
}

// WriteTo writes the workbook to w
func (e *ExcelExporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

func (e *ExcelExporter) Close() error {
	return e.file.Close()
}

func (e *ExcelExporter) createStyles() error {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}

	var err error
	if e.styles.header, err = e.file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{e.options.HeaderFill}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Border:    border,
	}); err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if e.styles.text, err = e.file.NewStyle(&excelize.Style{Border: border}); err != nil {
		return fmt.Errorf("failed to create text style: %w", err)
	}
	if e.styles.date, err = e.file.NewStyle(&excelize.Style{Border: border, CustomNumFmt: &e.options.DateFormat}); err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}
	if e.styles.amount, err = e.file.NewStyle(&excelize.Style{Border: border, CustomNumFmt: &e.options.AmountFormat}); err != nil {
		return fmt.Errorf("failed to create amount style: %w", err)
	}
	return nil
}

func (e *ExcelExporter) setCellValue(sheet, cell string, val any) error {
	style := e.styles.text

	switch v := val.(type) {
	case nil:
		val = ""
	case *string:
		if v == nil {
			val = ""
		} else {
			val = *v
		}
	case time.Time:
		if v.IsZero() {
			val = ""
		} else {
			val, style = v, e.styles.date
		}
	case *time.Time:
		if v == nil || v.IsZero() {
			val = ""
		} else {
			val, style = *v, e.styles.date
		}
	case decimal.Decimal:
		val, style = v.InexactFloat64(), e.styles.amount
	case decimal.NullDecimal:
		if !v.Valid {
			val = ""
		} else {
			val, style = v.Decimal.InexactFloat64(), e.styles.amount
		}
	}

	if err := e.file.SetCellValue(sheet, cell, val); err != nil {
		return err
	}
	return e.file.SetCellStyle(sheet, cell, cell, style)
}
