package main

import (
	"io"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// bridge connects one session to the control channel and the output
// stream. The relay goroutine owns the read view; the calling goroutine
// owns the write view and the resize capability.
type bridge struct {
	session *Session
	control io.Reader
	output  io.Writer
	bufSize int
	log     *zap.Logger

	relayDone chan relayStats
}

func newBridge(session *Session, control io.Reader, output io.Writer, bufSize int, log *zap.Logger) *bridge {
	return &bridge{
		session:   session,
		control:   control,
		output:    output,
		bufSize:   bufSize,
		log:       log,
		relayDone: make(chan relayStats, 1),
	}
}

// run blocks until the control channel reaches end of stream. It does not
// wait for the relay or the shell.
func (b *bridge) run() error {
	r, err := b.session.Reader()
	if err != nil {
		return err
	}
	w, err := b.session.Writer()
	if err != nil {
		_ = r.Close()
		return err
	}

	go b.relay(r)
	go b.watchShell()

	readControl(b.control, newDispatcher(w, b.session, b.log), b.log)
	if err := w.Close(); err != nil {
		b.log.Debug("closing write view", zap.Error(err))
	}
	b.log.Info("control channel closed")
	return nil
}

func (b *bridge) relay(r io.ReadCloser) {
	stats := pumpOutput(r, b.output, b.bufSize, b.log)
	_ = r.Close()

	fields := []zap.Field{
		zap.String("relayed", humanize.IBytes(stats.Bytes)),
		zap.Uint64("reads", stats.Reads),
	}
	if stats.ReadErr != nil {
		fields = append(fields, zap.NamedError("read_error", stats.ReadErr))
	}
	if stats.WriteErr != nil {
		fields = append(fields, zap.NamedError("write_error", stats.WriteErr))
	}
	b.log.Info("shell output closed", fields...)
	b.relayDone <- stats
}

func (b *bridge) watchShell() {
	<-b.session.Done()
	b.log.Info("shell exited", zap.Int("exit_code", b.session.ExitCode()))
}
