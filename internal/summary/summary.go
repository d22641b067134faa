// Package summary segments a finished news summary into headed sections of
// bullet items. Parsing never fails: text that does not follow the
// heading/bullet layout simply yields no sections, and callers fall back to
// rendering the text as plain markdown.
package summary

import (
	"regexp"
	"strings"
)

// Section is a heading followed by its bullet items, in source order.
type Section struct {
	Heading string   `json:"heading"`
	Items   []string `json:"items"`
}

type lineKind int

const (
	lineIgnored lineKind = iota
	lineHeading
	lineItem
)

type classified struct {
	kind lineKind
	text string
}

const bulletMarker = "- "

var (
	wrappedLine = regexp.MustCompile(`^\*\*(.*?)\*\*$`)
	headingLine = regexp.MustCompile(`^[A-Z][A-Z\s&\-]+$`)
	strongSpan  = regexp.MustCompile(`\*\*(.*?)\*\*`)
	newlines    = strings.NewReplacer("\r\n", "\n", "\r", "\n")
)

// Parse splits text into sections. Bullets that appear before the first
// heading are dropped, as are lines that are neither headings nor bullets.
func Parse(text string) []Section {
	var (
		out     []Section
		current Section
	)
	push := func() {
		if current.Heading != "" {
			out = append(out, current)
		}
		current = Section{}
	}

	for _, raw := range strings.Split(newlines.Replace(text), "\n") {
		line := classify(raw)
		switch line.kind {
		case lineHeading:
			push()
			current = Section{Heading: line.text, Items: []string{}}
		case lineItem:
			if current.Heading == "" {
				continue
			}
			current.Items = append(current.Items, line.text)
		}
	}
	push()
	return out
}

// Structured reports whether sections are worth rendering as an outline: at
// least one section must carry an item.
func Structured(sections []Section) bool {
	for _, section := range sections {
		if len(section.Items) > 0 {
			return true
		}
	}
	return false
}

func classify(raw string) classified {
	if strings.TrimSpace(raw) == "" {
		return classified{kind: lineIgnored}
	}
	line := strings.TrimSpace(wrappedLine.ReplaceAllString(raw, "$1"))
	if !strings.HasPrefix(line, "-") && headingLine.MatchString(line) {
		return classified{kind: lineHeading, text: line}
	}
	if strings.HasPrefix(line, bulletMarker) {
		item := strongSpan.ReplaceAllString(line[len(bulletMarker):], "<strong>$1</strong>")
		return classified{kind: lineItem, text: item}
	}
	return classified{kind: lineIgnored}
}
