package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Control message discriminants as they appear in the "type" field.
const (
	msgTypeInput  = "Input"
	msgTypeResize = "Resize"
)

var errUnknownMessage = errors.New("unknown control message type")

// controlMessage is a decoded line from the control channel: either an
// inputMessage or a resizeMessage.
type controlMessage interface {
	controlType() string
}

type inputMessage struct {
	Data string
}

func (inputMessage) controlType() string { return msgTypeInput }

type resizeMessage struct {
	Geometry
}

func (resizeMessage) controlType() string { return msgTypeResize }

// decodeControlMessage parses one line. Keys match exactly and may not
// repeat. Every field of the selected variant must be present with the
// right type; unknown extra fields are ignored.
func decodeControlMessage(line []byte) (controlMessage, error) {
	fields, err := decodeObject(line)
	if err != nil {
		return nil, err
	}
	var typ string
	if err := requireField(fields, "type", &typ); err != nil {
		return nil, err
	}
	switch typ {
	case msgTypeInput:
		var data string
		if err := requireField(fields, "data", &data); err != nil {
			return nil, fmt.Errorf("%s: %w", msgTypeInput, err)
		}
		return inputMessage{Data: data}, nil
	case msgTypeResize:
		var g Geometry
		if err := requireField(fields, "cols", &g.Cols); err != nil {
			return nil, fmt.Errorf("%s: %w", msgTypeResize, err)
		}
		if err := requireField(fields, "rows", &g.Rows); err != nil {
			return nil, fmt.Errorf("%s: %w", msgTypeResize, err)
		}
		return resizeMessage{g}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownMessage, typ)
	}
}

// decodeObject splits a single JSON object into its raw members. Anything
// after the closing brace other than whitespace is an error.
func decodeObject(line []byte) (map[string]json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("control message is not a JSON object")
	}
	fields := make(map[string]json.RawMessage)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		if _, dup := fields[key]; dup {
			return nil, fmt.Errorf("duplicate field %s", key)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		fields[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after control message")
	}
	return fields, nil
}

// requireField decodes fields[key] into v. A missing key or a JSON null
// counts as missing.
func requireField(fields map[string]json.RawMessage, key string, v any) error {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("missing field %s", key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("field %s: %w", key, err)
	}
	return nil
}

// readControl consumes newline-delimited control messages from r until end
// of stream, handing each decoded message to d in order. Lines that do not
// decode are dropped.
func readControl(r io.Reader, d *dispatcher, log *zap.Logger) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if trimmed := bytes.TrimRight(line, "\r\n"); len(bytes.TrimSpace(trimmed)) > 0 {
			msg, decodeErr := decodeControlMessage(trimmed)
			if decodeErr != nil {
				log.Debug("dropping control line", zap.Int("bytes", len(trimmed)), zap.Error(decodeErr))
			} else {
				d.dispatch(msg)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warn("control channel read failed", zap.Error(err))
			}
			return
		}
	}
}

// dispatcher applies control messages to the session. It holds the write
// view and the resize capability and nothing else.
type dispatcher struct {
	w      io.Writer
	resize resizer
	log    *zap.Logger
}

func newDispatcher(w io.Writer, rs resizer, log *zap.Logger) *dispatcher {
	return &dispatcher{w: w, resize: rs, log: log}
}

// dispatch never fails: write and resize errors are traced and discarded
// so the output side of the session stays usable.
func (d *dispatcher) dispatch(msg controlMessage) {
	switch m := msg.(type) {
	case inputMessage:
		if err := d.writeInput([]byte(m.Data)); err != nil {
			d.log.Debug("discarding input write error", zap.Int("bytes", len(m.Data)), zap.Error(err))
		}
	case resizeMessage:
		if err := d.resize.Resize(m.Geometry); err != nil {
			d.log.Debug("discarding resize error", zap.Stringer("size", m.Geometry), zap.Error(err))
		}
	}
}

func (d *dispatcher) writeInput(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := d.w.Write(data); err != nil {
		return err
	}
	if f, ok := d.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
