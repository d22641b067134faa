package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"pkt.systems/pslog"
)

const readSize = 4096

// TransportError reports a failure of the underlying byte source. It is
// terminal for the stream and distinct from in-band error events.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if e == nil || e.Err == nil {
		return "stream transport failed"
	}
	return "stream transport failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Reader pulls events from a byte source. Malformed lines and unknown event
// types are logged and skipped. Next returns io.EOF once the source is
// exhausted and every buffered line has been delivered.
type Reader struct {
	src     io.Reader
	dialect Dialect
	frames  FrameDecoder
	buf     []byte
	queue   []string
	eof     bool
	dropped int
}

// NewReader constructs a Reader over src using the given dialect.
func NewReader(src io.Reader, d Dialect) *Reader {
	return &Reader{
		src:     src,
		dialect: d,
		buf:     make([]byte, readSize),
	}
}

// Next returns the next recognized event.
func (r *Reader) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		if len(r.queue) > 0 {
			line := r.queue[0]
			r.queue = r.queue[1:]
			event, err := Interpret(line, r.dialect)
			if err != nil {
				r.drop(ctx, line, err)
				continue
			}
			return event, nil
		}
		if r.eof {
			return Event{}, io.EOF
		}
		if err := r.fill(); err != nil {
			return Event{}, err
		}
	}
}

// Dropped reports how many lines were skipped as malformed or unknown.
func (r *Reader) Dropped() int {
	return r.dropped
}

func (r *Reader) fill() error {
	n, err := r.src.Read(r.buf)
	if n > 0 {
		r.queue = append(r.queue, r.frames.Write(r.buf[:n])...)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		r.eof = true
		r.queue = append(r.queue, r.frames.Flush()...)
		return nil
	default:
		return &TransportError{Err: err}
	}
}

func (r *Reader) drop(ctx context.Context, line string, err error) {
	r.dropped++
	log := pslog.Ctx(ctx)
	if errors.Is(err, ErrUnknownType) {
		log.Debug("stream event type ignored", "err", err)
		return
	}
	line = strings.TrimSpace(line)
	preview := previewText(line, 200)
	log.Warn("stream line decode failed", "preview", preview, "truncated", len(preview) < len(line), "err", err)
}

func previewText(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut]
}
