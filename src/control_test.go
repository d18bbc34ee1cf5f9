package main

import (
	"errors"
	"io"
	"strings"
	"syscall"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestDecodeControlMessage(t *testing.T) {
	cases := []struct {
		line string
		want controlMessage
		ok   bool
	}{
		{`{"type":"Input","data":"ls -la\n"}`, inputMessage{Data: "ls -la\n"}, true},
		{`{"type":"Input","data":"\u0003"}`, inputMessage{Data: "\x03"}, true},
		{`{"type":"Input","data":"héllo ✓"}`, inputMessage{Data: "héllo ✓"}, true},
		{`{"type":"Input","data":""}`, inputMessage{Data: ""}, true},
		{`{"data":"x","type":"Input","extra":1}`, inputMessage{Data: "x"}, true},
		{`{"type":"Resize","cols":120,"rows":40}`, resizeMessage{Geometry{Rows: 40, Cols: 120}}, true},
		{`{"type":"Resize","cols":0,"rows":0}`, resizeMessage{Geometry{}}, true},
		{`{"type":"Resize","cols":65535,"rows":1}`, resizeMessage{Geometry{Rows: 1, Cols: 65535}}, true},
		{`  {"type":"Resize","rows":24,"cols":80}  `, resizeMessage{Geometry{Rows: 24, Cols: 80}}, true},
		{`{"type":"Input","data":"x","meta":{"id":[1,2]},"TYPE":"ignored"}`, inputMessage{Data: "x"}, true},
		{"{\"type\":\"Input\",\"data\":\"x\"}\t", inputMessage{Data: "x"}, true},

		{`not json`, nil, false},
		{`{"type":"Unknown"}`, nil, false},
		{`{"type":"input","data":"x"}`, nil, false},
		{`{"data":"x"}`, nil, false},
		{`{"type":"Input"}`, nil, false},
		{`{"type":"Input","data":null}`, nil, false},
		{`{"type":"Input","data":42}`, nil, false},
		{`{"type":"Resize","cols":"80","rows":24}`, nil, false},
		{`{"type":"Resize","cols":80}`, nil, false},
		{`{"type":"Resize","cols":70000,"rows":24}`, nil, false},
		{`{"type":"Resize","cols":-1,"rows":24}`, nil, false},
		{`{"type":"Resize","cols":80.5,"rows":24}`, nil, false},
		{`{"type":7}`, nil, false},
		{`["Input","x"]`, nil, false},
		{`null`, nil, false},
		{`{"type":"Input","data":"x"} trailing`, nil, false},
		{`{"type":"Input","data":"x"}{}`, nil, false},
		{`{}`, nil, false},
		{`{"type":null,"data":"x"}`, nil, false},
		{`{"TYPE":"Input","DATA":"x"}`, nil, false},
		{`{"type":"Input","Data":"x"}`, nil, false},
		{`{"Type":"Resize","Cols":10,"ROWS":5}`, nil, false},
		{`{"type":"Resize","cols":10,"Rows":5}`, nil, false},
		{`{"type":"Input","data":"a","data":"b"}`, nil, false},
		{`{"type":"Input","type":"Resize","data":"x"}`, nil, false},
		{`{"type":"Resize","cols":1,"rows":2,"rows":3}`, nil, false},
	}
	for _, c := range cases {
		got, err := decodeControlMessage([]byte(c.line))
		if !c.ok {
			assert.Error(t, err, "line %q should not decode", c.line)
			continue
		}
		if assert.NoError(t, err, "line %q", c.line) {
			assert.Equal(t, c.want, got, "line %q", c.line)
		}
	}
}

func TestDecodeUnknownTypeIsClassified(t *testing.T) {
	_, err := decodeControlMessage([]byte(`{"type":"Kill"}`))
	assert.ErrorIs(t, err, errUnknownMessage)
}

type inputRecorder struct {
	writes  []string
	flushes int
	err     error
}

func (w *inputRecorder) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.writes = append(w.writes, string(p))
	return len(p), nil
}

func (w *inputRecorder) Flush() error {
	w.flushes++
	return nil
}

type resizeRecorder struct {
	sizes []Geometry
	err   error
}

func (r *resizeRecorder) Resize(g Geometry) error {
	r.sizes = append(r.sizes, g)
	return r.err
}

func TestReadControlDispatchesInOrderAndSkipsBadLines(t *testing.T) {
	in := strings.Join([]string{
		`{"type":"Input","data":"echo one\n"}`,
		`not json`,
		``,
		`{"type":"Unknown"}`,
		`{"type":"Resize","cols":100,"rows":30}`,
		`{"type":"Input","data":"echo two\n"}`,
		`{"type":"Resize","cols":100,"rows":30}`,
	}, "\n") + "\n"
	w := &inputRecorder{}
	rs := &resizeRecorder{}
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	readControl(strings.NewReader(in), newDispatcher(w, rs, log), log)

	assert.Equal(t, []string{"echo one\n", "echo two\n"}, w.writes)
	assert.Equal(t, 2, w.flushes)
	assert.Equal(t, []Geometry{{Rows: 30, Cols: 100}, {Rows: 30, Cols: 100}}, rs.sizes)
	assert.Equal(t, 2, logs.FilterMessage("dropping control line").Len())
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestReadControlLineEndings(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"crlf", "{\"type\":\"Input\",\"data\":\"a\"}\r\n{\"type\":\"Input\",\"data\":\"b\"}\r\n"},
		{"no trailing newline", "{\"type\":\"Input\",\"data\":\"a\"}\n{\"type\":\"Input\",\"data\":\"b\"}"},
		{"blank lines", "\n\n{\"type\":\"Input\",\"data\":\"a\"}\n   \n{\"type\":\"Input\",\"data\":\"b\"}\n\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := &inputRecorder{}
			readControl(strings.NewReader(c.in), newDispatcher(w, &resizeRecorder{}, zap.NewNop()), zap.NewNop())
			assert.Equal(t, []string{"a", "b"}, w.writes)
		})
	}
}

func TestReadControlAcceptsVeryLongLines(t *testing.T) {
	payload := strings.Repeat("x", 1<<20)
	in := `{"type":"Input","data":"` + payload + `"}` + "\n"
	w := &inputRecorder{}

	readControl(iotest.HalfReader(strings.NewReader(in)), newDispatcher(w, &resizeRecorder{}, zap.NewNop()), zap.NewNop())

	require.Len(t, w.writes, 1)
	assert.Len(t, w.writes[0], len(payload))
}

func TestReadControlStopsOnReadError(t *testing.T) {
	boom := errors.New("stdin gone")
	r := io.MultiReader(strings.NewReader("{\"type\":\"Input\",\"data\":\"a\"}\n"), iotest.ErrReader(boom))
	w := &inputRecorder{}
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	readControl(r, newDispatcher(w, &resizeRecorder{}, log), log)

	assert.Equal(t, []string{"a"}, w.writes)
	warns := logs.FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, warns, 1)
	assert.Equal(t, "control channel read failed", warns[0].Message)
}

func TestDispatcherSwallowsErrors(t *testing.T) {
	w := &inputRecorder{err: syscall.EIO}
	rs := &resizeRecorder{err: &PTYError{Op: opResize, Err: syscall.EBADF}}
	core, logs := observer.New(zapcore.DebugLevel)
	d := newDispatcher(w, rs, zap.New(core))

	assert.NotPanics(t, func() {
		d.dispatch(inputMessage{Data: "exit\n"})
		d.dispatch(resizeMessage{Geometry{Rows: 10, Cols: 20}})
		d.dispatch(inputMessage{Data: "again\n"})
	})

	assert.Equal(t, 2, logs.FilterMessage("discarding input write error").Len())
	assert.Equal(t, 1, logs.FilterMessage("discarding resize error").Len())
	assert.Equal(t, []Geometry{{Rows: 10, Cols: 20}}, rs.sizes)
}

func TestDispatcherSkipsEmptyInput(t *testing.T) {
	w := &inputRecorder{}
	d := newDispatcher(w, &resizeRecorder{}, zap.NewNop())

	d.dispatch(inputMessage{})

	assert.Empty(t, w.writes)
	assert.Zero(t, w.flushes)
}
