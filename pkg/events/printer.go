package events

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Printer writes a conversation as it streams: deltas as they arrive, the
// final text for replies that were not streamed, tool calls as YAML, and one
// bracketed line per interruption or error.
type Printer struct {
	w io.Writer
	// Name, when set, is printed before each reply.
	Name string

	text string
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

func (p *Printer) HandleEvent(event Event) error {
	var err error
	switch e := event.(type) {
	case *EventStart:
		p.text = ""
		if p.Name != "" {
			_, err = fmt.Fprintf(p.w, "%s: ", p.Name)
		}

	case *EventPartial:
		p.text = e.Completion
		_, err = io.WriteString(p.w, e.Delta)

	case *EventFinal:
		if p.text == "" && e.Text != "" {
			// nothing was streamed
			if _, err = io.WriteString(p.w, e.Text); err != nil {
				return err
			}
			p.text = e.Text
		}
		if !strings.HasSuffix(p.text, "\n") {
			if _, err = io.WriteString(p.w, "\n"); err != nil {
				return err
			}
		}
		if len(e.ToolCalls) > 0 {
			var b []byte
			if b, err = yaml.Marshal(e.ToolCalls); err != nil {
				return err
			}
			_, err = p.w.Write(b)
		}
		p.text = ""

	case *EventInterrupt:
		msg := e.Reason
		if e.Message != "" {
			msg += ": " + e.Message
		}
		_, err = fmt.Fprintf(p.w, "\n[%s]\n", msg)
		p.text = ""

	case *EventError:
		_, err = fmt.Fprintf(p.w, "\n[error] %s\n", e.Error)
		p.text = ""
	}
	return err
}
