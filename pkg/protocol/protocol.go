// Package protocol defines the line-oriented wire format of the relay: the
// command grammar, the outbound reply records, and newline framing.
package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	// DefaultPort is the conventional listening port.
	DefaultPort = 6667

	// MaxLineLength is the default maximum inbound line length in bytes,
	// excluding the terminator. Longer lines are truncated.
	MaxLineLength = 512
)

// LineReader splits a byte stream into records terminated by "\n" or
// "\r\n".
type LineReader struct {
	r   *bufio.Reader
	max int
}

// NewLineReader wraps r. A max of zero or less uses MaxLineLength.
func NewLineReader(r io.Reader, max int) *LineReader {
	if max <= 0 {
		max = MaxLineLength
	}
	return &LineReader{r: bufio.NewReaderSize(r, max+2), max: max}
}

// ReadLine returns the next line without its terminator. Bytes past the
// length limit are discarded up to the next terminator. A final line
// without a terminator is returned before io.EOF.
func (lr *LineReader) ReadLine() (string, error) {
	var line []byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		if room := lr.max - len(line); room > 0 {
			if len(chunk) > room {
				line = append(line, chunk[:room]...)
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case err == nil:
			return string(trimTerminator(line)), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && len(line) > 0:
			return string(trimTerminator(line)), nil
		default:
			return "", err
		}
	}
}

func trimTerminator(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte("\n"))
	return bytes.TrimSuffix(line, []byte("\r"))
}

// WriteLine writes one pre-formatted record. Records built by this package
// already end in CRLF; one is appended otherwise.
func WriteLine(w io.Writer, record string) error {
	if !strings.HasSuffix(record, "\n") {
		record += CRLF
	}
	if _, err := io.WriteString(w, record); err != nil {
		return fmt.Errorf("protocol: write line: %w", err)
	}
	return nil
}
