package stream

import (
	"encoding/json"
	"errors"
)

// Kind classifies a decoded stream record.
type Kind int

const (
	// KindSessionStart opens a unit of work; the payload is its label.
	KindSessionStart Kind = iota
	// KindChunk carries a text fragment for the current unit of work.
	KindChunk
	// KindSessionEnd closes the current unit of work.
	KindSessionEnd
	// KindError carries a server-side error message.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSessionStart:
		return "session_start"
	case KindChunk:
		return "chunk"
	case KindSessionEnd:
		return "session_end"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one interpreted line of the stream.
type Event struct {
	Kind    Kind
	Payload string
}

// Dialect names the wire type that starts a session on a given endpoint.
// Only one spelling is active per dialect; the other one is treated as an
// unknown type.
type Dialect struct {
	Start string
}

var (
	// DialectPrompt is used by the summary and prompt batch endpoints.
	DialectPrompt = Dialect{Start: "prompt"}
	// DialectQuery is used by the query batch endpoint.
	DialectQuery = Dialect{Start: "query"}
)

func (d Dialect) start() string {
	if d.Start == "" {
		return DialectPrompt.Start
	}
	return d.Start
}

// ErrUnknownType reports a well-formed record whose type is not recognized.
var ErrUnknownType = errors.New("unknown stream event type")

// DecodeError reports a line that could not be decoded as a stream record.
type DecodeError struct {
	line string
	err  error
}

func (e *DecodeError) Error() string {
	if e == nil || e.err == nil {
		return "stream line decode error"
	}
	return e.err.Error()
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Line returns the offending line.
func (e *DecodeError) Line() string {
	if e == nil {
		return ""
	}
	return e.line
}

type record struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Interpret decodes a single line into an Event. Invalid JSON yields a
// *DecodeError; an unrecognized type yields an error wrapping ErrUnknownType.
func Interpret(line string, d Dialect) (Event, error) {
	var rec record
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return Event{}, &DecodeError{line: line, err: err}
	}
	switch rec.Type {
	case d.start():
		return Event{Kind: KindSessionStart, Payload: rec.Content}, nil
	case "chunk":
		return Event{Kind: KindChunk, Payload: rec.Content}, nil
	case "end":
		return Event{Kind: KindSessionEnd}, nil
	case "error":
		return Event{Kind: KindError, Payload: rec.Content}, nil
	default:
		return Event{}, &unknownTypeError{typ: rec.Type}
	}
}

type unknownTypeError struct {
	typ string
}

func (e *unknownTypeError) Error() string {
	return ErrUnknownType.Error() + ": " + e.typ
}

func (e *unknownTypeError) Unwrap() error {
	return ErrUnknownType
}
