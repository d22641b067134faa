package stream

import (
	"context"
	"errors"
	"io"
)

// Item is one value handed over by a Parser: an event, or the error that
// ended the stream.
type Item struct {
	Event Event
	Err   error
}

// Parser runs a Reader on its own goroutine and hands events to the
// consumer over an unbuffered channel, so reading never gets ahead of the
// consumer by more than one event.
type Parser struct {
	ctx     context.Context
	dialect Dialect
	items   chan Item
	reader  *Reader
}

func NewParser(ctx context.Context, d Dialect) *Parser {
	return &Parser{
		ctx:     ctx,
		dialect: d,
		items:   make(chan Item),
	}
}

func (p *Parser) Items() <-chan Item {
	return p.items
}

// Process reads src until it is exhausted and closes the channel. A clean
// end of stream closes the channel without an error item; any other failure
// is sent as the last item.
func (p *Parser) Process(src io.Reader) {
	defer close(p.items)
	p.reader = NewReader(src, p.dialect)
	done := p.ctx.Done()

	for {
		event, err := p.reader.Next(p.ctx)
		if errors.Is(err, io.EOF) {
			return
		}
		select {
		case <-done:
			return
		case p.items <- Item{Event: event, Err: err}:
		}
		if err != nil {
			return
		}
	}
}

// Dropped reports how many lines were skipped. Valid once Items is closed.
func (p *Parser) Dropped() int {
	if p.reader == nil {
		return 0
	}
	return p.reader.Dropped()
}
