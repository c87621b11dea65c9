package ingest

import (
	"errors"
	"fmt"
)

// Kind classifies a load failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindEmptyFile
	KindParseError
	KindPermissionDenied
	KindDuplicateColumns
	KindSizeLimitExceeded
	KindUnsupported
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindEmptyFile:
		return "empty_file"
	case KindParseError:
		return "parse_error"
	case KindPermissionDenied:
		return "permission_denied"
	case KindDuplicateColumns:
		return "duplicate_columns"
	case KindSizeLimitExceeded:
		return "size_limit_exceeded"
	case KindUnsupported:
		return "unsupported"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var (
	// ErrLoadInProgress is returned by Start while another load is running.
	ErrLoadInProgress = errors.New("a file is already being loaded")

	// ErrUnknownSheet is wrapped when a requested sheet is not in the workbook.
	ErrUnknownSheet = errors.New("sheet not found in workbook")

	// ErrNotSpreadsheet is wrapped when a sheet is requested from a non-spreadsheet file.
	ErrNotSpreadsheet = errors.New("file has no sheets")
)

// Error is the failure reported for a load.
type Error struct {
	Kind Kind
	Path string
	Line int // 1-based source line, 0 when unknown
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("load %s: line %d: %s", e.Path, e.Line, msg)
	case e.Path != "":
		return fmt.Sprintf("load %s: %s", e.Path, msg)
	default:
		return "load: " + msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindUnknown
}

func newError(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}
