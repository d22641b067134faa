package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"pkt.systems/pslog"
)

func TestReaderReadsEvents(t *testing.T) {
	data := "\n" +
		`{"type":"prompt","content":"A"}` + "\n" +
		`{"type":"chunk","content":"x"}` + "\n" +
		`{"type":"end"}`
	reader := NewReader(strings.NewReader(data), DialectPrompt)
	want := []Event{
		{Kind: KindSessionStart, Payload: "A"},
		{Kind: KindChunk, Payload: "x"},
		{Kind: KindSessionEnd},
	}
	for i, w := range want {
		got, err := reader.Next(context.Background())
		if err != nil {
			t.Fatalf("Next(%d): %v", i, err)
		}
		if got != w {
			t.Fatalf("Next(%d): unexpected event %+v", i, got)
		}
	}
	if _, err := reader.Next(context.Background()); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReaderSkipsMalformedLines(t *testing.T) {
	capture := &logCapture{}
	logger := pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		VerboseFields: true,
		MinLevel:      pslog.DebugLevel,
	})
	ctx := pslog.ContextWithLogger(context.Background(), logger)

	data := `{"type":"chunk","content":"a"}` + "\n" +
		"not json\n" +
		`{"type":"usage","content":"3"}` + "\n" +
		`{"type":"chunk","content":"b"}` + "\n"
	reader := NewReader(strings.NewReader(data), DialectPrompt)

	var text strings.Builder
	for {
		event, err := reader.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if event.Kind != KindChunk {
			t.Fatalf("unexpected event: %+v", event)
		}
		text.WriteString(event.Payload)
	}
	if text.String() != "ab" {
		t.Fatalf("unexpected text: %q", text.String())
	}
	if reader.Dropped() != 2 {
		t.Fatalf("expected 2 dropped lines, got %d", reader.Dropped())
	}

	var sawDecode bool
	for _, entry := range capture.entries(t) {
		if entry["preview"] == "not json" {
			sawDecode = true
		}
	}
	if !sawDecode {
		t.Fatalf("expected decode failure to be logged")
	}
}

func TestReaderReportsTransportFailure(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(
		strings.NewReader(`{"type":"chunk","content":"partial"}`+"\n"+`{"type":"chu`),
		&failingReader{err: boom},
	)
	reader := NewReader(src, DialectPrompt)

	event, err := reader.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if event.Payload != "partial" {
		t.Fatalf("unexpected event: %+v", event)
	}
	_, err = reader.Next(context.Background())
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped cause, got %v", err)
	}
}

func TestReaderStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reader := NewReader(strings.NewReader(`{"type":"chunk","content":"a"}`+"\n"), DialectPrompt)
	if _, err := reader.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPreviewTextKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		value string
		max   int
		want  string
	}{
		{value: "short", max: 10, want: "short"},
		{value: "abcdef", max: 3, want: "abc"},
		{value: "aéé", max: 2, want: "a"},
		{value: "aéé", max: 3, want: "aé"},
		{value: "日本語", max: 5, want: "日"},
	}
	for _, tt := range tests {
		got := previewText(tt.value, tt.max)
		if got != tt.want {
			t.Fatalf("previewText(%q, %d) = %q, want %q", tt.value, tt.max, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Fatalf("previewText(%q, %d) produced invalid UTF-8 %q", tt.value, tt.max, got)
		}
	}
}

type failingReader struct {
	err error
}

func (r *failingReader) Read([]byte) (int, error) {
	return 0, r.err
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) entries(t *testing.T) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range bytes.Split(c.buf.Bytes(), []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		entry := map[string]any{}
		if err := json.Unmarshal(line, &entry); err != nil {
			t.Fatalf("parse log entry: %v", err)
		}
		out = append(out, entry)
	}
	return out
}
