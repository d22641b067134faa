// Package session turns a sequence of stream events into live text blocks.
//
// A Multiplexer owns the blocks of exactly one stream. Construct a new one
// for every request; nothing is shared between instances, so an abandoned
// stream cannot disturb a newer one.
package session

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"github.com/markis/newsdesk/internal/stream"
	"github.com/markis/newsdesk/internal/summary"
)

type entry struct {
	id    int
	label string
	text  strings.Builder
	state State
}

func (e *entry) snapshot() Block {
	return Block{ID: e.id, Label: e.label, Text: e.text.String(), State: e.state}
}

// Multiplexer applies stream events to blocks and notifies a Sink after each
// change. It is not safe for concurrent use; one goroutine drives one stream.
type Multiplexer struct {
	mode    Mode
	dialect stream.Dialect
	sink    Sink
	log     pslog.Logger
	runID   string

	blocks  []*entry
	current *entry
	hint    string
	done    bool
}

// Option configures a Multiplexer.
type Option func(*Multiplexer)

// WithDialect sets the wire spelling of session starts. Defaults to
// stream.DialectPrompt.
func WithDialect(d stream.Dialect) Option {
	return func(m *Multiplexer) {
		m.dialect = d
	}
}

// WithLogger sets the logger used for block lifecycle diagnostics. Run falls
// back to the logger on its context.
func WithLogger(logger pslog.Logger) Option {
	return func(m *Multiplexer) {
		m.log = logger
	}
}

// New constructs a Multiplexer for one stream.
func New(mode Mode, sink Sink, opts ...Option) *Multiplexer {
	m := &Multiplexer{
		mode:    mode,
		dialect: stream.DialectPrompt,
		sink:    sink,
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log != nil {
		m.log = m.log.With("run", m.runID, "mode", m.mode.String())
	}
	return m
}

// RunID identifies this stream in logs.
func (m *Multiplexer) RunID() string {
	return m.runID
}

// Run consumes src until it is exhausted, applying every event. Reading and
// decoding happen on a stream.Parser goroutine; events are applied here, one
// at a time. On a clean end of stream the remaining open block is finalized.
// A transport failure returns a *StreamError and leaves open blocks
// untouched. Once ctx is done Run returns ctx.Err() without notifying the
// sink again.
func (m *Multiplexer) Run(ctx context.Context, src io.Reader) error {
	if m.log == nil {
		m.log = pslog.Ctx(ctx).With("run", m.runID, "mode", m.mode.String())
	}
	ctx = pslog.ContextWithLogger(ctx, m.log)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	parser := stream.NewParser(ctx, m.dialect)
	go parser.Process(src)
	m.log.Debug("stream started")

	done := ctx.Done()
	for {
		var (
			item stream.Item
			ok   bool
		)
		select {
		case <-done:
		case item, ok = <-parser.Items():
		}
		if err := ctx.Err(); err != nil {
			m.log.Debug("stream abandoned", "err", err)
			return err
		}
		if !ok {
			m.Finish()
			m.log.Debug("stream completed", "blocks", len(m.blocks), "dropped", parser.Dropped())
			return nil
		}
		if item.Err != nil {
			m.log.Warn("stream transport failed", "err", item.Err, "blocks", len(m.blocks))
			return &StreamError{Err: item.Err, Open: m.openBlocks()}
		}
		m.Apply(item.Event)
	}
}

// Apply applies a single event. Events applied after Finish are ignored.
func (m *Multiplexer) Apply(event stream.Event) {
	if m.done {
		return
	}
	switch event.Kind {
	case stream.KindSessionStart:
		m.start(event.Payload)
	case stream.KindChunk:
		m.appendChunk(event.Payload)
	case stream.KindSessionEnd:
		if m.mode == MultiBlock {
			m.finalizeCurrent()
		}
	case stream.KindError:
		m.sink.Error(event.Payload)
	}
}

// Finish marks the end of the stream: the open block, if any, is finalized.
// In single-block mode non-empty text is parsed and reported as a Summary.
func (m *Multiplexer) Finish() {
	if m.done {
		return
	}
	m.done = true
	if m.mode == MultiBlock {
		m.finalizeCurrent()
		return
	}
	if m.current == nil {
		return
	}
	m.current.state = Finalized
	block := m.current.snapshot()
	m.current = nil
	m.debug("block finalized", block)
	if block.Text == "" {
		return
	}
	sections := summary.Parse(block.Text)
	m.sink.Summary(Result{
		Block:      block,
		Sections:   sections,
		Structured: summary.Structured(sections),
	})
}

// Blocks returns copies of every block seen so far, in open order.
func (m *Multiplexer) Blocks() []Block {
	out := make([]Block, 0, len(m.blocks))
	for _, e := range m.blocks {
		out = append(out, e.snapshot())
	}
	return out
}

// Hint returns the most recent session-start label seen in single-block mode.
func (m *Multiplexer) Hint() string {
	return m.hint
}

func (m *Multiplexer) start(label string) {
	if m.mode == SingleBlock {
		m.hint = label
		m.sink.Hint(label)
		return
	}
	m.finalizeCurrent()
	m.open(label)
}

func (m *Multiplexer) appendChunk(text string) {
	if m.current == nil {
		m.open("")
	}
	m.current.text.WriteString(text)
	m.sink.Update(m.current.snapshot())
}

func (m *Multiplexer) open(label string) {
	e := &entry{id: len(m.blocks), label: label}
	m.blocks = append(m.blocks, e)
	m.current = e
	m.debug("block opened", e.snapshot())
}

func (m *Multiplexer) finalizeCurrent() {
	if m.current == nil {
		return
	}
	m.current.state = Finalized
	block := m.current.snapshot()
	m.current = nil
	m.debug("block finalized", block)
	m.sink.Complete(block)
}

func (m *Multiplexer) openBlocks() []Block {
	if m.current == nil {
		return nil
	}
	return []Block{m.current.snapshot()}
}

func (m *Multiplexer) debug(msg string, block Block) {
	if m.log == nil {
		return
	}
	m.log.Debug(msg, "block", block.ID, "label", block.Label, "bytes", len(block.Text))
}
