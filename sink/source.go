package sink

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Source supplies records in order. Next returns io.EOF once the
// stream is closed.
type Source interface {
	Next(ctx context.Context) (string, error)
}

// Committer is implemented by sources that acknowledge records. Commit is
// called once the record last returned by Next has been delivered,
// whatever the response status. A record whose send failed is never
// committed.
type Committer interface {
	Commit(ctx context.Context) error
}

// maxRecordSize bounds a single newline-delimited record.
const maxRecordSize = 4 * 1024 * 1024

// LineSource reads newline-delimited records. Empty lines are skipped;
// a line holding only whitespace is a record.
type LineSource struct {
	scanner *bufio.Scanner
}

// NewLineSource returns a Source reading one record per line of r.
func NewLineSource(r io.Reader) *LineSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)
	return &LineSource{scanner: scanner}
}

// Next returns the next non-empty line. A read that is already blocked
// is not interrupted by ctx; cancellation is seen before the next read.
func (s *LineSource) Next(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		line := strings.TrimRight(s.scanner.Text(), "\r")
		if line == "" {
			continue
		}
		return line, nil
	}
}
