package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/cli/go-gh/v2/pkg/markdown"

	"github.com/markis/newsdesk/internal/session"
	"github.com/markis/newsdesk/internal/summary"
)

// TerminalOptions configures a TerminalRenderer.
type TerminalOptions struct {
	PlainText bool
	Wrap      int
	Theme     string
	// Outline prints the structured outline of a summary after its live
	// view. Disabled for raw output.
	Outline bool
	// LabelPrefix is printed before block labels, e.g. "Prompt".
	LabelPrefix string
}

// TerminalRenderer streams block text to a terminal, rendering markdown at
// paragraph boundaries so partially received paragraphs are not drawn.
type TerminalRenderer struct {
	out       io.Writer
	markdown  *glamour.TermRenderer
	plainText bool
	outline   bool
	prefix    string

	current int
	printed int
	err     error
}

var _ session.Sink = (*TerminalRenderer)(nil)

// NewTerminalRenderer constructs a renderer writing to out.
func NewTerminalRenderer(out io.Writer, opts TerminalOptions) (*TerminalRenderer, error) {
	var md *glamour.TermRenderer
	if !opts.PlainText {
		wrap := opts.Wrap
		if wrap <= 0 {
			wrap = 120
		}
		style := glamour.WithAutoStyle()
		if opts.Theme != "" && opts.Theme != "auto" {
			style = markdown.WithTheme(opts.Theme)
		}
		var err error
		md, err = glamour.NewTermRenderer(markdown.WithWrap(wrap), style)
		if err != nil {
			return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
		}
	}

	return &TerminalRenderer{
		out:       out,
		markdown:  md,
		plainText: opts.PlainText,
		outline:   opts.Outline,
		prefix:    opts.LabelPrefix,
		current:   -1,
	}, nil
}

// Err returns the first rendering error encountered.
func (t *TerminalRenderer) Err() error {
	return t.err
}

func (t *TerminalRenderer) Hint(label string) {
	if label == "" {
		return
	}
	if t.plainText {
		t.write(label + "\n")
		return
	}
	t.renderContent("_" + label + "_")
}

func (t *TerminalRenderer) Update(block session.Block) {
	if block.ID != t.current {
		t.begin(block)
	}
	pending := block.Text[t.printed:]
	if t.plainText {
		t.write(pending)
		t.printed = len(block.Text)
		return
	}
	if idx := findMarkdownBreakPoint(pending); idx > 0 {
		t.renderContent(pending[:idx])
		t.printed += idx
	}
}

func (t *TerminalRenderer) Complete(block session.Block) {
	if block.ID != t.current {
		t.begin(block)
	}
	t.flush(block.Text[t.printed:])
	t.write("\n")
	t.current = -1
	t.printed = 0
}

func (t *TerminalRenderer) Error(message string) {
	t.write("Error: " + message + "\n")
}

func (t *TerminalRenderer) Summary(result session.Result) {
	text := result.Text()
	live := t.current == result.Block.ID
	if live {
		text = text[t.printed:]
	}
	t.current = -1
	t.printed = 0

	if !t.outline || !result.Structured {
		t.flush(text)
		t.write("\n")
		return
	}
	// Finish the live view before the outline. A summary shown without a
	// live view gets only the outline.
	if live {
		t.flush(text)
	}
	if t.plainText {
		t.write("\n" + outlineMarkdown(result.Sections))
		return
	}
	t.write("\n")
	t.renderContent(outlineMarkdown(result.Sections))
}

// Fail writes whatever the open blocks received before the stream broke,
// followed by the failure.
func (t *TerminalRenderer) Fail(open []session.Block, err error) {
	for _, block := range open {
		if block.ID != t.current {
			t.begin(block)
		}
		t.flush(block.Text[t.printed:])
		t.write("\n")
		t.current = -1
		t.printed = 0
	}
	t.Error(err.Error())
}

func (t *TerminalRenderer) begin(block session.Block) {
	t.current = block.ID
	t.printed = 0
	if block.Label == "" {
		return
	}
	header := block.Label
	if t.prefix != "" {
		header = t.prefix + ": " + header
	}
	if t.plainText {
		t.write("== " + header + " ==\n")
		return
	}
	t.renderContent("### " + header)
}

func (t *TerminalRenderer) flush(content string) {
	if content == "" {
		return
	}
	if t.plainText {
		t.write(content)
		return
	}
	t.renderContent(content)
}

func (t *TerminalRenderer) renderContent(content string) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	if strings.HasPrefix(content, "#") {
		t.write("\n")
	}

	mdContent, err := t.markdown.Render(content)
	if err != nil {
		t.fail(fmt.Errorf("failed to render markdown: %w", err))
		t.write(content + "\n")
		return
	}
	t.write(strings.TrimSpace(mdContent) + "\n")
}

func (t *TerminalRenderer) write(s string) {
	if _, err := io.WriteString(t.out, s); err != nil {
		t.fail(fmt.Errorf("failed to write output: %w", err))
	}
}

func (t *TerminalRenderer) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

func findMarkdownBreakPoint(content string) int {
	const marker string = "\n\n"
	lastBreak := -1
	idx := strings.LastIndex(content, marker)
	if idx > lastBreak {
		lastBreak = idx + len(marker)
	}
	return lastBreak
}

var strongToMarkdown = strings.NewReplacer("<strong>", "**", "</strong>", "**")

// outlineMarkdown turns sections back into markdown for terminal display.
func outlineMarkdown(sections []summary.Section) string {
	var b strings.Builder
	for i, section := range sections {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## " + section.Heading + "\n\n")
		for _, item := range section.Items {
			b.WriteString("- " + strongToMarkdown.Replace(item) + "\n")
		}
	}
	return b.String()
}
