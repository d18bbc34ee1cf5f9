package main

import (
	"errors"
	"io"
	"os"
	"syscall"

	"go.uber.org/zap"
)

const defaultRelayBufferSize = 8 * 1024

// relayStats summarizes one run of pumpOutput.
type relayStats struct {
	Bytes    uint64
	Reads    uint64
	ReadErr  error
	WriteErr error
}

type flusher interface {
	Flush() error
}

// pumpOutput copies everything the shell produces to w, chunk by chunk,
// until the PTY read side reports end of stream or an error. Each chunk is
// flushed before the next read so output is never held back.
func pumpOutput(r io.Reader, w io.Writer, bufSize int, log *zap.Logger) relayStats {
	if bufSize <= 0 {
		bufSize = defaultRelayBufferSize
	}
	buf := make([]byte, bufSize)
	var stats relayStats
	for {
		n, err := r.Read(buf)
		if n > 0 {
			stats.Reads++
			if _, werr := w.Write(buf[:n]); werr != nil {
				stats.WriteErr = werr
				log.Debug("relay write failed", zap.Error(werr))
				return stats
			}
			stats.Bytes += uint64(n)
			if f, ok := w.(flusher); ok {
				if ferr := f.Flush(); ferr != nil {
					stats.WriteErr = ferr
					log.Debug("relay flush failed", zap.Error(ferr))
					return stats
				}
			}
		}
		if err != nil {
			if !isEndOfSession(err) {
				stats.ReadErr = err
			}
			return stats
		}
		if n == 0 {
			return stats
		}
	}
}

// isEndOfSession reports errors that just mean the shell side went away.
// Linux returns EIO from the controller once the last subordinate closes.
func isEndOfSession(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EIO)
}
