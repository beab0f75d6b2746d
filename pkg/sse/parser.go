// Package sse decodes text/event-stream framing incrementally.
//
// A Parser is fed raw chunks as they arrive from the network. Lines may be
// split at any byte; events are only dispatched once their terminating blank
// line has been seen. Payload interpretation (JSON, sentinels) is left to the
// caller.
package sse

import (
	"bytes"
	"strconv"
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Event is one dispatched server-sent event.
type Event struct {
	// ID is the last event id seen on the stream, it carries over to later
	// events that do not set their own.
	ID string
	// Type is the value of the "event" field, empty when the event did not
	// name one.
	Type string
	Data string
	// Retry is the reconnection time in milliseconds, 0 when not sent.
	Retry int
}

type Parser struct {
	onEvent func(Event)

	line      []byte
	pendingCR bool
	firstLine bool

	data      bytes.Buffer
	hasData   bool
	eventType string
	lastID    string
	retry     int
}

func NewParser(onEvent func(Event)) *Parser {
	return &Parser{
		onEvent:   onEvent,
		firstLine: true,
	}
}

// Feed consumes the next chunk of the stream. It never fails; bytes that do
// not form a known field are ignored.
func (p *Parser) Feed(chunk []byte) {
	for len(chunk) > 0 {
		if p.pendingCR {
			p.pendingCR = false
			if chunk[0] == '\n' {
				chunk = chunk[1:]
				continue
			}
		}

		i := bytes.IndexAny(chunk, "\r\n")
		if i < 0 {
			p.line = append(p.line, chunk...)
			return
		}

		p.line = append(p.line, chunk[:i]...)
		if chunk[i] == '\r' {
			p.pendingCR = true
		}
		p.processLine(p.line)
		p.line = p.line[:0]
		chunk = chunk[i+1:]
	}
}

// Flush processes an unterminated trailing line and dispatches the event
// being assembled, if it has data. Used at end of stream.
func (p *Parser) Flush() {
	if len(p.line) > 0 {
		p.processLine(p.line)
		p.line = p.line[:0]
	}
	p.dispatch()
	p.pendingCR = false
}

// Reset drops all buffered state, including the last event id.
func (p *Parser) Reset() {
	p.line = p.line[:0]
	p.pendingCR = false
	p.firstLine = true
	p.data.Reset()
	p.hasData = false
	p.eventType = ""
	p.lastID = ""
	p.retry = 0
}

func (p *Parser) processLine(line []byte) {
	if p.firstLine {
		p.firstLine = false
		line = bytes.TrimPrefix(line, bom)
	}

	if len(line) == 0 {
		p.dispatch()
		return
	}
	if line[0] == ':' {
		return
	}

	field, value := line, []byte(nil)
	if idx := bytes.IndexByte(line, ':'); idx >= 0 {
		field = line[:idx]
		value = line[idx+1:]
		if len(value) > 0 && value[0] == ' ' {
			value = value[1:]
		}
	}

	switch string(field) {
	case "data":
		if p.hasData {
			p.data.WriteByte('\n')
		}
		p.data.Write(value)
		p.hasData = true
	case "event":
		p.eventType = string(value)
	case "id":
		if bytes.IndexByte(value, 0) < 0 {
			p.lastID = string(value)
		}
	case "retry":
		if n, err := strconv.Atoi(string(value)); err == nil && n >= 0 && isDigits(value) {
			p.retry = n
		}
	}
}

func (p *Parser) dispatch() {
	if !p.hasData {
		p.eventType = ""
		return
	}
	ev := Event{
		ID:    p.lastID,
		Type:  p.eventType,
		Data:  p.data.String(),
		Retry: p.retry,
	}
	p.data.Reset()
	p.hasData = false
	p.eventType = ""
	if p.onEvent != nil {
		p.onEvent(ev)
	}
}

func isDigits(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
