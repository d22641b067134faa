package render

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/markis/newsdesk/internal/session"
	"github.com/markis/newsdesk/internal/summary"
)

// HTMLRenderer writes finished blocks and summaries as HTML fragments.
// Updates are not drawn; a block is written once it is complete.
type HTMLRenderer struct {
	out    io.Writer
	md     goldmark.Markdown
	prefix string
	err    error
}

var _ session.Sink = (*HTMLRenderer)(nil)

// NewHTMLRenderer constructs an HTML renderer. labelPrefix is printed before
// block labels in block headings.
func NewHTMLRenderer(out io.Writer, labelPrefix string) *HTMLRenderer {
	return &HTMLRenderer{out: out, md: goldmark.New(), prefix: labelPrefix}
}

// Err returns the first rendering error encountered.
func (h *HTMLRenderer) Err() error {
	return h.err
}

func (h *HTMLRenderer) Hint(label string) {
	if label == "" {
		return
	}
	h.printf("<p><em>%s</em></p>\n", html.EscapeString(label))
}

func (h *HTMLRenderer) Update(session.Block) {}

func (h *HTMLRenderer) Complete(block session.Block) {
	h.printf("<div class=\"block\">\n")
	if block.Label != "" {
		header := block.Label
		if h.prefix != "" {
			header = h.prefix + ": " + header
		}
		h.printf("<h3>%s</h3>\n", html.EscapeString(header))
	}
	h.markdown(block.Text)
	h.printf("</div>\n")
}

// Fail writes the text the open blocks received before the stream broke,
// followed by the failure.
func (h *HTMLRenderer) Fail(open []session.Block, err error) {
	for _, block := range open {
		h.Complete(block)
	}
	h.Error(err.Error())
}

func (h *HTMLRenderer) Error(message string) {
	h.printf("<p class=\"text-danger\">Error: %s</p>\n", html.EscapeString(message))
}

func (h *HTMLRenderer) Summary(result session.Result) {
	if !result.Structured {
		h.markdown(result.Text())
		return
	}
	h.sections(result.Sections)
}

// Markdown converts markdown text to HTML.
func (h *HTMLRenderer) Markdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := h.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown: %w", err)
	}
	return buf.String(), nil
}

func (h *HTMLRenderer) markdown(text string) {
	out, err := h.Markdown(text)
	if err != nil {
		h.fail(err)
		h.printf("<pre>%s</pre>\n", html.EscapeString(text))
		return
	}
	h.printf("%s", out)
}

var strongTags = strings.NewReplacer("&lt;strong&gt;", "<strong>", "&lt;/strong&gt;", "</strong>")

func (h *HTMLRenderer) sections(sections []summary.Section) {
	for _, section := range sections {
		h.printf("<h3>%s</h3>\n<ul>\n", html.EscapeString(section.Heading))
		for _, item := range section.Items {
			h.printf("<li>%s</li>\n", strongTags.Replace(html.EscapeString(item)))
		}
		h.printf("</ul>\n")
	}
}

func (h *HTMLRenderer) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(h.out, format, args...); err != nil {
		h.fail(fmt.Errorf("failed to write output: %w", err))
	}
}

func (h *HTMLRenderer) fail(err error) {
	if h.err == nil {
		h.err = err
	}
}
