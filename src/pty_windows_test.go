//go:build windows

package main

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRelayEndsWhenShellExits(t *testing.T) {
	s, err := openPTY(defaultGeometry)
	if err != nil {
		t.Skipf("ConPTY unavailable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Spawn("cmd.exe", spawnOptions{Args: []string{"/c", "exit", "4"}}))

	r, err := s.Reader()
	require.NoError(t, err)
	done := make(chan relayStats, 1)
	go func() { done <- pumpOutput(r, io.Discard, defaultRelayBufferSize, zap.NewNop()) }()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("relay did not stop after the shell exited")
	}
	<-s.Done()
	assert.Equal(t, 4, s.ExitCode())
}
