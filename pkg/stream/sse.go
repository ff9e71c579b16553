package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Encoder writes events as Server-Sent Events, one "data: {json}" frame each.
type Encoder struct {
	w     io.Writer
	flush func() error
}

// NewEncoder flushes after every frame when w has a Flush() error method (bufio.Writer does).
func NewEncoder(w io.Writer) *Encoder {
	enc := &Encoder{w: w}
	if f, ok := w.(interface{ Flush() error }); ok {
		enc.flush = f.Flush
	}
	return enc
}

func (e *Encoder) Encode(ev Event) error {
	if len(ev.Data) == 0 {
		ev.Data = json.RawMessage(`{}`)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", b); err != nil {
		return err
	}
	if e.flush != nil {
		return e.flush()
	}
	return nil
}

// MalformedFunc is told about frames the decoder skipped.
type MalformedFunc func(frame string, err error)

// Decoder reads SSE frames. A frame that does not decode to a known event is
// skipped and reported to OnMalformed; decoding continues with the next frame.
type Decoder struct {
	r           *bufio.Reader
	OnMalformed MalformedFunc
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next well-formed event, or io.EOF at the end of the stream.
func (d *Decoder) Next() (Event, error) {
	for {
		frame, eventField, err := d.readFrame()
		if frame == "" && eventField == "" {
			if err != nil {
				return Event{}, err
			}
			continue
		}

		ev, perr := parseFrame(frame, eventField)
		if perr == nil {
			return ev, nil
		}
		if d.OnMalformed != nil {
			d.OnMalformed(frame, perr)
		}
		if err != nil {
			return Event{}, err
		}
	}
}

// readFrame collects data lines up to a blank line. The returned error is only
// io.EOF or a read error; a trailing frame without a blank line is still returned.
func (d *Decoder) readFrame() (data string, eventField string, err error) {
	var lines []string
	for {
		line, rerr := d.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			// blank line ends the frame
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		default:
			field, value, _ := strings.Cut(line, ":")
			value = strings.TrimPrefix(value, " ")
			switch field {
			case "data":
				lines = append(lines, value)
			case "event":
				eventField = value
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return strings.Join(lines, "\n"), eventField, io.EOF
			}
			return strings.Join(lines, "\n"), eventField, rerr
		}
		if line == "" && (len(lines) > 0 || eventField != "") {
			return strings.Join(lines, "\n"), eventField, nil
		}
	}
}

// parseFrame accepts {"event": ..., "data": ...} frames, and also a bare payload
// whose kind came from an "event:" field.
func parseFrame(frame, eventField string) (Event, error) {
	trimmed := bytes.TrimSpace([]byte(frame))
	if len(trimmed) == 0 {
		return Event{}, errors.New("empty data")
	}

	var ev Event
	if err := json.Unmarshal(trimmed, &ev); err == nil && ev.Event != "" {
		if !ev.Event.Known() {
			return Event{}, fmt.Errorf("unknown event %q", ev.Event)
		}
		return ev, nil
	}

	if eventField != "" {
		kind := Kind(eventField)
		if !kind.Known() {
			return Event{}, fmt.Errorf("unknown event %q", eventField)
		}
		if !json.Valid(trimmed) {
			return Event{}, errors.New("invalid JSON payload")
		}
		return Event{Event: kind, Data: json.RawMessage(trimmed)}, nil
	}

	if !json.Valid(trimmed) {
		return Event{}, errors.New("invalid JSON")
	}
	return Event{}, errors.New("frame has no event kind")
}
