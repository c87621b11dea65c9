// Package export writes a projected table.Dataset to an output format.
//
// Exporters take rows and columns exactly as given; selection and ordering
// happen in table.Project before a Dataset reaches this package.
package export

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/tablesift/internal/table"
)

// Format names an export format.
type Format string

const (
	FormatCSV      Format = "csv"
	FormatJSON     Format = "json"
	FormatXLSX     Format = "xlsx"
	FormatPostgres Format = "postgres"
)

var (
	// ErrUnknownFormat is returned for a format name that is not supported.
	ErrUnknownFormat = errors.New("unknown export format")

	// ErrSinkNotConfigured is returned for the postgres format when no
	// database is configured.
	ErrSinkNotConfigured = errors.New("export sink not configured")
)

// ParseFormat parses a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatXLSX, FormatPostgres:
		return f, nil
	case "xls", "excel":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Streams reports whether the format writes to an io.Writer.
func (f Format) Streams() bool { return f != FormatPostgres }

// ContentType returns the MIME type of a streamed format.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatJSON:
		return "application/json"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension, with the leading dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Write encodes ds to w in a streamed format.
func Write(w io.Writer, f Format, ds *table.Dataset) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, ds)
	case FormatJSON:
		return WriteJSON(w, ds)
	case FormatXLSX:
		return WriteXLSX(w, ds, "")
	default:
		return fmt.Errorf("%w: %q cannot be streamed", ErrUnknownFormat, f)
	}
}
