// Package export renders batch results as a downloadable workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/invoicetools/extraction-service/internal/entity"
)

const sheetName = "Extractions"

// fixedHeaders precede the configured field columns.
var fixedHeaders = []string{"Source URL", "Status", "Attempts", "Error", "Extracted At"}

// WriteBatchXLSX writes one row per stored record. Field columns follow the
// configured spec order, so exports stay stable across runs.
func WriteBatchXLSX(w io.Writer, batch *entity.Batch, records []*entity.InvoiceRecord, specs []entity.FieldSpec) error {
	wb := excelize.NewFile()
	defer wb.Close()

	sheet := wb.GetSheetName(0)
	if err := wb.SetSheetName(sheet, sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	if err := wb.SetColWidth(sheetName, "A", "A", 60); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	if err := wb.SetColWidth(sheetName, "D", "D", 40); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	headers := append(append([]string{}, fixedHeaders...), specNames(specs)...)
	for col, h := range headers {
		ref, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := wb.SetCellValue(sheetName, ref, h); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	for i, rec := range records {
		values := []any{
			rec.SourceURL,
			string(rec.Status),
			rec.AttemptCount,
			rec.LastError,
			rec.CreatedAt.Format(time.RFC3339),
		}
		for _, spec := range specs {
			values = append(values, rec.ExtractedData[spec.Name])
		}
		for col, v := range values {
			ref, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return err
			}
			if err := wb.SetCellValue(sheetName, ref, v); err != nil {
				return fmt.Errorf("write row %d: %w", i+2, err)
			}
		}
	}

	if _, err := wb.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// FileName returns the download name for a batch export.
func FileName(batch *entity.Batch) string {
	return fmt.Sprintf("extractions-%s.xlsx", batch.ID)
}

func specNames(specs []entity.FieldSpec) []string {
	names := make([]string, 0, len(specs))
	for _, s := range specs {
		names = append(names, s.Name)
	}
	return names
}
