package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// readDelimited reads a CSV/TSV file in chunks of j.chunk rows, reporting
// progress after each chunk against a line-count pre-pass.
func readDelimited(ctx context.Context, j *job) (*sheetData, error) {
	total, err := countFileLines(ctx, j.path)
	if err != nil {
		return nil, err
	}
	dataLines := max(total-1, 0)

	f, err := os.Open(j.path)
	if err != nil {
		return nil, openError(j.path, err)
	}
	defer f.Close()

	br := bufio.NewReader(cleanText(f))
	comma := j.comma
	if comma == 0 {
		comma = sniffDelimiter(br)
	}

	r := csv.NewReader(br)
	r.Comma = comma
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, newError(KindEmptyFile, j.path, errors.New("file has no header row"))
	}
	if err != nil {
		return nil, parseError(j.path, err)
	}

	data := &sheetData{columns: normalizeHeader(header)}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := readChunk(r, j.chunk, &data.rows)
		if err != nil {
			return nil, parseError(j.path, err)
		}
		j.progress(percent(len(data.rows), dataLines))
		if n < j.chunk {
			break
		}
	}

	return data, nil
}

// readChunk appends up to n records to rows and returns how many it read.
func readChunk(r *csv.Reader, n int, rows *[][]string) (int, error) {
	for i := 0; i < n; i++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return i, nil
		}
		if err != nil {
			return i, err
		}
		*rows = append(*rows, rec)
	}
	return n, nil
}

func countFileLines(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, openError(path, err)
	}
	defer f.Close()

	n, err := countLines(ctx, f)
	if err != nil && ctx.Err() == nil {
		return 0, newError(KindUnknown, path, fmt.Errorf("count lines: %w", err))
	}
	return n, err
}

// sniffDelimiter picks tab when the header line has tabs and no commas.
func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Contains(line, "\t") && !strings.Contains(line, ",") {
		return '\t'
	}
	return ','
}

func parseError(path string, err error) *Error {
	e := newError(KindParseError, path, err)
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		e.Line = pe.Line
		e.Err = pe.Err
	}
	return e
}

// percent returns min(100, done*100/total); an unknown total reports 100.
func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return min(100, done*100/total)
}
