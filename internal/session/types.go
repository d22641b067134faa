package session

import "github.com/markis/newsdesk/internal/summary"

// Mode selects how session events map onto blocks.
type Mode int

const (
	// SingleBlock accumulates every chunk into one implicit block.
	SingleBlock Mode = iota
	// MultiBlock opens a new block for each session start.
	MultiBlock
)

func (m Mode) String() string {
	switch m {
	case SingleBlock:
		return "single"
	case MultiBlock:
		return "multi"
	default:
		return "unknown"
	}
}

// State is the lifecycle state of a block.
type State int

const (
	Open State = iota
	Finalized
)

func (s State) String() string {
	if s == Finalized {
		return "finalized"
	}
	return "open"
}

// Block is a snapshot of one accumulating unit of generated text. Blocks are
// handed out by value; the multiplexer keeps its own copy.
type Block struct {
	ID    int
	Label string
	Text  string
	State State
}

// Result is the final outcome of a single-block session.
type Result struct {
	Block      Block
	Sections   []summary.Section
	Structured bool
}

// Text returns the raw markdown the result was built from.
func (r Result) Text() string {
	return r.Block.Text
}

// Sink receives render notifications. Implementations must not block and
// must not retain references into multiplexer state; every argument is a
// copy.
type Sink interface {
	// Hint reports the label of a session start in single-block mode.
	Hint(label string)
	// Update reports new text appended to an open block.
	Update(block Block)
	// Complete reports a block that has been finalized in multi-block mode.
	Complete(block Block)
	// Error reports an in-band error event.
	Error(message string)
	// Summary reports the finalized single block with its structured parse.
	Summary(result Result)
}

// StreamError reports a transport failure that ended the stream before it
// completed. Blocks that were open at the time stay open.
type StreamError struct {
	Err  error
	Open []Block
}

func (e *StreamError) Error() string {
	if e == nil || e.Err == nil {
		return "stream failed"
	}
	return "stream failed: " + e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
