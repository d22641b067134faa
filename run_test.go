package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/markis/newsdesk/internal/archive"
	"github.com/markis/newsdesk/internal/args"
	"github.com/markis/newsdesk/internal/client"
	"github.com/markis/newsdesk/internal/config"
	"github.com/markis/newsdesk/internal/session"
)

const newsStream = `{"type":"prompt","content":"Daily briefing"}
{"type":"chunk","content":"**TOP STORIES**\n- **Rates** held"}
{"type":"chunk","content":" steady\n"}
{"type":"end","content":""}
`

func testConfig(t *testing.T, server string) config.Config {
	t.Helper()
	return config.Config{
		Server:   server,
		StateDir: t.TempDir(),
		Timeout:  5 * time.Second,
		Render:   config.Render{Format: "plain", Wrap: 80, Theme: "auto"},
		Prompts:  map[string]string{},
		Queries:  map[string]config.Query{},
	}
}

func newsServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != client.SummariesPath {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRunNewsRendersOutlineAndArchives(t *testing.T) {
	srv := newsServer(t, http.StatusOK, newsStream)
	cfg := testConfig(t, srv.URL)
	var out bytes.Buffer
	a := args.Arguments{Command: args.CommandNews, Inputs: []string{"email"}, Format: "plain", Server: srv.URL}
	if err := run(context.Background(), cfg, a, &out, strings.NewReader("")); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Daily briefing\n", "- **Rates** held steady\n", "## TOP STORIES\n\n- **Rates** held steady\n"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}

	store, err := archive.NewStore(cfg.StateDir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	record, ok, err := store.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if record.Text != "**TOP STORIES**\n- **Rates** held steady\n" {
		t.Fatalf("unexpected archived text: %q", record.Text)
	}

	out.Reset()
	last := args.Arguments{Command: args.CommandLast, Format: "plain", Raw: true}
	if err := run(context.Background(), cfg, last, &out, nil); err != nil {
		t.Fatalf("run last: %v", err)
	}
	if out.String() != record.Text+"\n" {
		t.Fatalf("unexpected raw output: %q", out.String())
	}
}

func TestRunNewsRejectedByServer(t *testing.T) {
	srv := newsServer(t, http.StatusBadGateway, "upstream down")
	cfg := testConfig(t, srv.URL)
	a := args.Arguments{Command: args.CommandNews, Inputs: []string{"email"}, Format: "plain", Server: srv.URL}
	err := run(context.Background(), cfg, a, &bytes.Buffer{}, nil)
	var statusErr *client.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadGateway {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestRunLastWithoutArchive(t *testing.T) {
	cfg := testConfig(t, "http://unused")
	a := args.Arguments{Command: args.CommandLast, Format: "plain"}
	if err := run(context.Background(), cfg, a, &bytes.Buffer{}, nil); err == nil {
		t.Fatalf("expected error without an archived summary")
	}
}

func TestRunReplayPromptsFromFile(t *testing.T) {
	capture := `{"type":"prompt","content":"one"}
{"type":"chunk","content":"alpha"}
{"type":"end"}
not json
{"type":"error","content":"boom"}
{"type":"prompt","content":"two"}
{"type":"chunk","content":"beta"}
`
	path := filepath.Join(t.TempDir(), "capture.ndjson")
	if err := os.WriteFile(path, []byte(capture), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := testConfig(t, "http://unused")
	var out bytes.Buffer
	a := args.Arguments{Command: args.CommandReplay, Mode: args.ModePrompts, Source: path, Format: "plain"}
	if err := run(context.Background(), cfg, a, &out, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := "== Prompt: one ==\nalpha\nError: boom\n== Prompt: two ==\nbeta\n"
	if out.String() != want {
		t.Fatalf("unexpected output:\n%q\nwant:\n%q", out.String(), want)
	}
}

func TestRunReplayQueriesAsHTML(t *testing.T) {
	capture := `{"type":"query","content":"q<1>"}
{"type":"chunk","content":"Some **bold** answer"}
{"type":"end"}
`
	cfg := testConfig(t, "http://unused")
	var out bytes.Buffer
	a := args.Arguments{Command: args.CommandReplay, Mode: args.ModeQueries, Source: "-", Format: "html"}
	if err := run(context.Background(), cfg, a, &out, strings.NewReader(capture)); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "<h3>Query: q&lt;1&gt;</h3>") {
		t.Fatalf("missing escaped header:\n%s", got)
	}
	if !strings.Contains(got, "<strong>bold</strong>") {
		t.Fatalf("missing rendered markdown:\n%s", got)
	}
}

func TestListPresets(t *testing.T) {
	cfg := testConfig(t, "http://unused")
	cfg.Prompts["markets"] = "Summarize\nmarket moves"
	cfg.Queries["followup"] = config.Query{Label: "Follow up", Prompt: "More on {{topic}}"}
	var out bytes.Buffer
	if err := listPresets(&out, cfg); err != nil {
		t.Fatalf("listPresets: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "markets") || !strings.Contains(got, "Summarize market moves") {
		t.Fatalf("missing prompt preset:\n%s", got)
	}
	if !strings.Contains(got, "followup") || !strings.Contains(got, "Follow up: More on {{topic}} [topic]") {
		t.Fatalf("missing query preset:\n%s", got)
	}
}

type brokenReader struct {
	err error
}

func (r brokenReader) Read([]byte) (int, error) {
	return 0, r.err
}

func TestRunReplayKeepsTextReceivedBeforeFailure(t *testing.T) {
	capture := `{"type":"prompt","content":"A"}
{"type":"chunk","content":"Received paragraph XYZZY"}
`
	boom := errors.New("connection reset")
	for _, format := range []string{"markdown", "html"} {
		t.Run(format, func(t *testing.T) {
			cfg := testConfig(t, "http://unused")
			var out bytes.Buffer
			a := args.Arguments{Command: args.CommandReplay, Mode: args.ModePrompts, Source: "-", Format: format}
			src := io.MultiReader(strings.NewReader(capture), brokenReader{err: boom})
			err := run(context.Background(), cfg, a, &out, src)
			var streamErr *session.StreamError
			if !errors.As(err, &streamErr) || !errors.Is(err, boom) {
				t.Fatalf("expected stream error, got %v", err)
			}
			got := out.String()
			if !strings.Contains(got, "XYZZY") {
				t.Fatalf("received text lost:\n%s", got)
			}
			if !strings.Contains(got, "stream failed") {
				t.Fatalf("missing failure marker:\n%s", got)
			}
		})
	}
}
