package ingest

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// cleanText strips a leading UTF-8 BOM and replaces invalid UTF-8 with
// U+FFFD while streaming, so memory stays bounded by the buffer size.
func cleanText(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// countLines counts newline-terminated lines in r, plus a trailing
// unterminated line. ctx is checked between buffer fills.
func countLines(ctx context.Context, r io.Reader) (int, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	buf := make([]byte, 64*1024)

	var lines int
	var last byte
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := br.Read(buf)
		if n > 0 {
			lines += bytes.Count(buf[:n], []byte{'\n'})
			last = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if last != 0 && last != '\n' {
		lines++
	}
	return lines, nil
}
