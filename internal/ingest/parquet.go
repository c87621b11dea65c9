package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
)

// readParquet reads every row of a Parquet file, formatting each value as a
// string. Top-level schema fields become the columns in schema order.
func readParquet(ctx context.Context, j *job) (*sheetData, error) {
	file, err := os.Open(j.path)
	if err != nil {
		return nil, openError(j.path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, newError(KindUnknown, j.path, fmt.Errorf("stat: %w", err))
	}

	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return nil, newError(KindParseError, j.path, fmt.Errorf("open parquet file: %w", err))
	}

	fields := pf.Schema().Fields()
	data := &sheetData{columns: make([]string, len(fields))}
	for i, f := range fields {
		data.columns[i] = f.Name()
	}

	total := int(pf.NumRows())
	data.rows = make([][]string, 0, total)

	reader := parquet.NewReader(pf)
	defer reader.Close()

	for {
		row := make(map[string]any, len(fields))
		err := reader.Read(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			e := newError(KindParseError, j.path, fmt.Errorf("read row: %w", err))
			e.Line = len(data.rows) + 1
			return nil, e
		}

		rec := make([]string, len(data.columns))
		for i, name := range data.columns {
			rec[i] = formatValue(row[name])
		}
		data.rows = append(data.rows, rec)

		if len(data.rows)%j.chunk == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			j.progress(percent(len(data.rows), total))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	j.progress(100)
	return data, nil
}

// formatValue renders a decoded Parquet value. Nulls become "".
func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}
