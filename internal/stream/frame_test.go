package stream

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
)

func TestFrameDecoderKeepsPartialLine(t *testing.T) {
	var d FrameDecoder
	if got := d.Write([]byte(`{"type":"chu`)); len(got) != 0 {
		t.Fatalf("expected no lines, got %q", got)
	}
	if d.Buffered() == 0 {
		t.Fatalf("expected buffered partial line")
	}
	got := d.Write([]byte("nk\",\"content\":\"a\"}\n{\"type\""))
	want := []string{`{"type":"chunk","content":"a"}`}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected lines: %q", got)
	}
	if got := d.Flush(); !reflect.DeepEqual(got, []string{`{"type"`}) {
		t.Fatalf("unexpected flush: %q", got)
	}
	if d.Buffered() != 0 {
		t.Fatalf("expected empty decoder after flush")
	}
}

func TestFrameDecoderDropsBlankLines(t *testing.T) {
	var d FrameDecoder
	got := d.Write([]byte("\n   \n\t\r\nx\n\n"))
	if !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("unexpected lines: %q", got)
	}
	d.Write([]byte("  "))
	if got := d.Flush(); len(got) != 0 {
		t.Fatalf("expected whitespace residual to be dropped, got %q", got)
	}
}

func TestFrameDecoderReassemblesArbitrarySplits(t *testing.T) {
	lines := []string{
		`{"type":"prompt","content":"Schlagzeilen für heute"}`,
		`{"type":"chunk","content":"日本語のニュース"}`,
		`{"type":"chunk","content":"emoji 🚀📰 and accents é à ü"}`,
		`{"type":"end"}`,
	}
	data := []byte(strings.Join(lines, "\n") + "\n")
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 200; trial++ {
		var d FrameDecoder
		var got []string
		rest := data
		for len(rest) > 0 {
			n := 1 + rng.Intn(7)
			if n > len(rest) {
				n = len(rest)
			}
			got = append(got, d.Write(rest[:n])...)
			rest = rest[n:]
		}
		got = append(got, d.Flush()...)
		if !reflect.DeepEqual(got, lines) {
			t.Fatalf("trial %d: unexpected lines:\n got %q\nwant %q", trial, got, lines)
		}
	}
}

func TestFrameDecoderSplitsInsideMultibyteRune(t *testing.T) {
	line := `{"type":"chunk","content":"€"}`
	idx := strings.Index(line, "€")
	var d FrameDecoder
	if got := d.Write([]byte(line[:idx+1])); len(got) != 0 {
		t.Fatalf("expected no lines, got %q", got)
	}
	got := d.Write([]byte(line[idx+1:] + "\n"))
	if !reflect.DeepEqual(got, []string{line}) {
		t.Fatalf("unexpected lines: %q", got)
	}
	if strings.ContainsRune(got[0], '�') {
		t.Fatalf("unexpected replacement character in %q", got[0])
	}
}
