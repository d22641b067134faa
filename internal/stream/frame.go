package stream

import (
	"bytes"
	"strings"
)

// FrameDecoder splits a chunked byte stream into newline-terminated lines.
// The trailing partial line is kept as raw bytes, so a UTF-8 sequence split
// across two chunks is only decoded once it is complete.
type FrameDecoder struct {
	pending []byte
}

// Write consumes the next chunk and returns the lines it completed.
// Lines that are blank after trimming are dropped.
func (d *FrameDecoder) Write(chunk []byte) []string {
	d.pending = append(d.pending, chunk...)
	var lines []string
	consumed := 0
	for {
		idx := bytes.IndexByte(d.pending[consumed:], '\n')
		if idx < 0 {
			break
		}
		lines = appendLine(lines, d.pending[consumed:consumed+idx])
		consumed += idx + 1
	}
	if consumed > 0 {
		d.pending = append([]byte(nil), d.pending[consumed:]...)
	}
	return lines
}

// Flush returns the unterminated residual line, if any, and resets the decoder.
func (d *FrameDecoder) Flush() []string {
	lines := appendLine(nil, d.pending)
	d.pending = nil
	return lines
}

// Buffered reports the number of bytes held for an incomplete line.
func (d *FrameDecoder) Buffered() int {
	return len(d.pending)
}

func appendLine(lines []string, raw []byte) []string {
	line := string(raw)
	if strings.TrimSpace(line) == "" {
		return lines
	}
	return append(lines, line)
}
