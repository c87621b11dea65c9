package ingest

import (
	"context"
	"fmt"
	"slices"

	"github.com/xuri/excelize/v2"
)

// readWorkbook reads one sheet of an OOXML workbook. Sheet names are reported
// before any cell is read; the requested sheet defaults to the first.
func readWorkbook(ctx context.Context, j *job) (*sheetData, error) {
	f, err := excelize.OpenFile(j.path)
	if err != nil {
		if oe := openError(j.path, err); oe.Kind == KindPermissionDenied {
			return nil, oe
		}
		return nil, newError(KindParseError, j.path, fmt.Errorf("open workbook: %w", err))
	}
	defer f.Close()

	names := f.GetSheetList()
	if len(names) == 0 {
		return nil, newError(KindEmptyFile, j.path, fmt.Errorf("workbook has no sheets"))
	}
	if j.sheets != nil {
		j.sheets(names)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sheet := j.sheet
	if sheet == "" {
		sheet = names[0]
	}
	if !slices.Contains(names, sheet) {
		return nil, newError(KindUnknown, j.path, fmt.Errorf("%w: %q", ErrUnknownSheet, sheet))
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, newError(KindParseError, j.path, fmt.Errorf("sheet %q: %w", sheet, err))
	}
	defer rows.Close()

	data := &sheetData{sheet: sheet}
	line := 0
	for rows.Next() {
		line++
		if line%j.chunk == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		cells, err := rows.Columns()
		if err != nil {
			e := newError(KindParseError, j.path, fmt.Errorf("sheet %q: %w", sheet, err))
			e.Line = line
			return nil, e
		}
		if data.columns == nil {
			if isBlankRow(cells) {
				continue
			}
			data.columns = normalizeHeader(cells)
			continue
		}
		if isBlankRow(cells) {
			continue
		}
		data.rows = append(data.rows, cells)
	}
	if err := rows.Error(); err != nil {
		return nil, newError(KindParseError, j.path, fmt.Errorf("sheet %q: %w", sheet, err))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if data.columns == nil {
		return nil, newError(KindEmptyFile, j.path, fmt.Errorf("sheet %q is empty", sheet))
	}
	data.widen()

	j.progress(100)
	return data, nil
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
