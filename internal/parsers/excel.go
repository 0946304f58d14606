package parsers

import (
	"context"
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"

	"pos-reconciliation-service/pkg/errors"
)

// readXLSX reads one sheet of an Office Open XML workbook. The first sheet is
// used unless the config names one.
func readXLSX(ctx context.Context, path string, config *DatasetConfig) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	defer f.Close()

	sheet := config.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.ParseError(errors.CodeMissingHeader, path, config.HeaderRow+1,
				fmt.Errorf("workbook has no sheets"))
		}
		sheet = sheets[0]
	} else if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, fmt.Errorf("sheet %q not found", sheet)).
			WithSuggestion(fmt.Sprintf("available sheets: %v", f.GetSheetList()))
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.ReconciliationError(errors.CodeCancelled, "read "+path, err)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, 0, err).
			WithContext("sheet", sheet)
	}

	return rows, nil
}

// readXLS reads the first sheet of a legacy BIFF workbook, which some POS
// back offices still produce
func readXLS(ctx context.Context, path string, config *DatasetConfig) ([][]string, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
	if wb.NumSheets() == 0 {
		return nil, errors.ParseError(errors.CodeMissingHeader, path, config.HeaderRow+1,
			fmt.Errorf("workbook has no sheets"))
	}

	sheet := wb.GetSheet(0)
	if config.Sheet != "" {
		sheet = nil
		for i := 0; i < wb.NumSheets(); i++ {
			if s := wb.GetSheet(i); s != nil && s.Name == config.Sheet {
				sheet = s
				break
			}
		}
	}
	if sheet == nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, path, fmt.Errorf("sheet %q not found", config.Sheet))
	}

	grid := make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		if i > 0 && i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.ReconciliationError(errors.CodeCancelled, "read "+path, err)
			}
		}

		row := sheet.Row(i)
		if row == nil {
			grid = append(grid, nil)
			continue
		}

		record := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			record[j] = row.Col(j)
		}
		grid = append(grid, record)
	}

	return grid, nil
}
