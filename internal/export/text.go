package export

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/JonMunkholm/tablesift/internal/table"
)

// WriteCSV writes a header row followed by every data row.
func WriteCSV(w io.Writer, ds *table.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ds.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, row := range ds.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteJSON writes an array with one object per row. Object keys follow
// column order, which map-based encoding would lose.
func WriteJSON(w io.Writer, ds *table.Dataset) error {
	keys := make([][]byte, len(ds.Columns))
	for i, c := range ds.Columns {
		k, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode column %q: %w", c, err)
		}
		keys[i] = k
	}

	bw := bufio.NewWriter(w)
	bw.WriteByte('[')
	for r, row := range ds.Rows {
		if r > 0 {
			bw.WriteByte(',')
		}
		bw.WriteString("\n  {")
		for c, v := range row {
			if c > 0 {
				bw.WriteString(", ")
			}
			bw.Write(keys[c])
			bw.WriteString(": ")
			val, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("encode row %d: %w", r, err)
			}
			bw.Write(val)
		}
		bw.WriteByte('}')
	}
	if len(ds.Rows) > 0 {
		bw.WriteByte('\n')
	}
	bw.WriteString("]\n")

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}
