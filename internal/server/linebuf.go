package server

import (
	"bytes"
	"strings"

	"telfs/internal/errors"
)

// LineBuffer reassembles newline-terminated command lines from
// arbitrary read boundaries.
type LineBuffer struct {
	buf []byte
	max int
	// discarding is set while the rest of an overlong line is skipped.
	discarding bool
}

// NewLineBuffer returns a buffer that rejects lines longer than max
// bytes (terminator excluded).
func NewLineBuffer(max int) *LineBuffer {
	return &LineBuffer{max: max}
}

// Feed appends p and returns every line it completes, without the "\n"
// and with a trailing "\r" removed.  Overlong lines are dropped and
// reported with errors.ErrLineTooLong; the lines around them are still
// returned.
func (b *LineBuffer) Feed(p []byte) ([]string, error) {
	var (
		lines []string
		err   error
	)
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')

		if b.discarding {
			if i < 0 {
				return lines, err
			}
			b.discarding = false
			p = p[i+1:]
			continue
		}

		if i < 0 {
			// One extra byte leaves room for a "\r" still to come.
			if len(b.buf)+len(p) > b.max+1 {
				b.buf = b.buf[:0]
				b.discarding = true
				err = errors.ErrLineTooLong
				return lines, err
			}
			b.buf = append(b.buf, p...)
			return lines, err
		}

		b.buf = append(b.buf, p[:i]...)
		p = p[i+1:]
		line := strings.TrimSuffix(string(b.buf), "\r")
		b.buf = b.buf[:0]
		if len(line) > b.max {
			err = errors.ErrLineTooLong
			continue
		}
		lines = append(lines, line)
	}
	return lines, err
}

// Buffered returns the number of bytes held for an incomplete line.
func (b *LineBuffer) Buffered() int { return len(b.buf) }
