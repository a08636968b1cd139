package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelate.dev/pixelate/ledger"
	"pixelate.dev/pixelate/ledger/ledgerrpc"
)

func TestServe_AnswersAndStops(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, lis, flags{inMemory: true, maxMsgBytes: 1 << 20}, zerolog.Nop())
	}()

	client, err := ledgerrpc.Dial(lis.Addr().String(), ledgerrpc.DialOptions{Timeout: 5 * time.Second, CallTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Read(context.Background(), "ed25519:nobody")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestRequiresDataDir(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, run([]string{"--listen", "127.0.0.1:0"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "--data-dir")
}

func TestFlagsFromEnvironment(t *testing.T) {
	t.Setenv("PIXELATE_LEDGERD_LOG_LEVEL", "bogus")
	t.Setenv("PIXELATE_LEDGERD_IN_MEMORY", "true")
	var out, errOut bytes.Buffer
	assert.Equal(t, 1, run([]string{"--listen", "127.0.0.1:0"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "bogus", "env reached the flags and failed on the log level")
}
