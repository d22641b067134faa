package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"pkt.systems/pslog"

	"github.com/markis/newsdesk/internal/archive"
	"github.com/markis/newsdesk/internal/args"
	"github.com/markis/newsdesk/internal/client"
	"github.com/markis/newsdesk/internal/config"
	"github.com/markis/newsdesk/internal/render"
	"github.com/markis/newsdesk/internal/session"
	"github.com/markis/newsdesk/internal/stream"
	"github.com/markis/newsdesk/internal/summary"
)

// renderSink is a session sink that records its first output error and can
// show partial output after a failed stream.
type renderSink interface {
	session.Sink
	Fail(open []session.Block, err error)
	Err() error
}

// layout describes how a stream maps onto blocks and how blocks are labelled.
type layout struct {
	mode    session.Mode
	dialect stream.Dialect
	prefix  string
	archive bool
}

func layoutFor(command, replayMode string) layout {
	switch command {
	case args.CommandNews:
		return layout{mode: session.SingleBlock, dialect: stream.DialectPrompt, archive: true}
	case args.CommandPrompts:
		return layout{mode: session.MultiBlock, dialect: stream.DialectPrompt, prefix: "Prompt"}
	case args.CommandQueries:
		return layout{mode: session.MultiBlock, dialect: stream.DialectQuery, prefix: "Query"}
	}
	switch replayMode {
	case args.ModePrompts:
		return layoutFor(args.CommandPrompts, "")
	case args.ModeQueries:
		return layoutFor(args.CommandQueries, "")
	default:
		return layout{mode: session.SingleBlock, dialect: stream.DialectPrompt}
	}
}

func run(ctx context.Context, cfg config.Config, a args.Arguments, out io.Writer, in io.Reader) error {
	switch a.Command {
	case args.CommandPresets:
		return listPresets(out, cfg)
	case args.CommandLast:
		return showLast(ctx, cfg, a, out)
	case args.CommandReplay:
		src, closeFn, err := openReplay(a.Source, in)
		if err != nil {
			return err
		}
		defer closeFn()
		return consume(ctx, cfg, a, out, src, layoutFor(a.Command, a.Mode))
	case args.CommandNews, args.CommandPrompts, args.CommandQueries:
		body, err := request(ctx, cfg, a)
		if err != nil {
			return err
		}
		defer func() {
			if err := body.Close(); err != nil {
				pslog.Ctx(ctx).Debug("failed to close response body", "err", err)
			}
		}()
		return consume(ctx, cfg, a, out, body, layoutFor(a.Command, ""))
	default:
		return fmt.Errorf("unknown command %q", a.Command)
	}
}

func request(ctx context.Context, cfg config.Config, a args.Arguments) (io.ReadCloser, error) {
	c, err := client.New(a.Server, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	switch a.Command {
	case args.CommandNews:
		return c.GenerateSummaries(ctx, a.Inputs[0])
	case args.CommandPrompts:
		return c.RunPrompts(ctx, a.Inputs)
	default:
		return c.RunQueries(ctx, a.Inputs)
	}
}

func openReplay(source string, in io.Reader) (io.Reader, func(), error) {
	if source == "" || source == "-" {
		return in, func() {}, nil
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open replay file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// consume runs one stream through the multiplexer into the configured sink.
func consume(ctx context.Context, cfg config.Config, a args.Arguments, out io.Writer, src io.Reader, l layout) error {
	sink, err := newSink(cfg, a, out, l.prefix)
	if err != nil {
		return err
	}
	m := session.New(l.mode, sink, session.WithDialect(l.dialect))
	if err := m.Run(ctx, src); err != nil {
		var streamErr *session.StreamError
		if errors.As(err, &streamErr) {
			pslog.Ctx(ctx).Warn("stream failed", "run", m.RunID(), "open_blocks", len(streamErr.Open))
			sink.Fail(streamErr.Open, streamErr)
		}
		return err
	}
	if err := sink.Err(); err != nil {
		return err
	}
	if !l.archive {
		return nil
	}
	blocks := m.Blocks()
	if len(blocks) == 0 || blocks[0].Text == "" {
		return nil
	}
	store, err := archive.NewStore(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	if _, err := store.Save(ctx, blocks[0].Text); err != nil {
		return fmt.Errorf("failed to archive summary: %w", err)
	}
	return nil
}

func newSink(cfg config.Config, a args.Arguments, out io.Writer, prefix string) (renderSink, error) {
	if a.Format == "html" && !a.Raw {
		return render.NewHTMLRenderer(out, prefix), nil
	}
	t, err := render.NewTerminalRenderer(out, render.TerminalOptions{
		PlainText:   a.Raw || a.Format == "plain",
		Wrap:        cfg.Render.Wrap,
		Theme:       cfg.Render.Theme,
		Outline:     !a.Raw,
		LabelPrefix: prefix,
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func showLast(ctx context.Context, cfg config.Config, a args.Arguments, out io.Writer) error {
	store, err := archive.NewStore(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	record, ok, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load archived summary: %w", err)
	}
	if !ok {
		return errors.New("no summary has been archived yet")
	}
	sink, err := newSink(cfg, a, out, "")
	if err != nil {
		return err
	}
	sections := summary.Parse(record.Text)
	sink.Summary(session.Result{
		Block:      session.Block{Text: record.Text, State: session.Finalized},
		Sections:   sections,
		Structured: summary.Structured(sections),
	})
	return sink.Err()
}

func listPresets(out io.Writer, cfg config.Config) error {
	var lines []string
	for _, name := range sortedKeys(cfg.Prompts) {
		lines = append(lines, fmt.Sprintf("prompt  %-16s %s", name, args.SummarizePrompt(cfg.Prompts[name])))
	}
	for _, name := range sortedKeys(cfg.Queries) {
		q := cfg.Queries[name]
		description := args.SummarizePrompt(q.Prompt)
		if q.Label != "" {
			description = q.Label + ": " + description
		}
		line := fmt.Sprintf("query   %-16s %s", name, description)
		if p := q.Placeholders(); len(p) > 0 {
			line += fmt.Sprintf(" %v", p)
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = append(lines, "no presets configured")
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
