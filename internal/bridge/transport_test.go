package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startFakeChild simulates a JSON-RPC child process on the other end of a
// pipe: it echoes back {"result": params} for every request it reads, and
// closes its stdout once its stdin reaches EOF, as an exiting child would.
func startFakeChild(t *testing.T, serverStdin io.Reader, serverStdout io.WriteCloser) {
	t.Helper()
	go func() {
		defer serverStdout.Close()
		scanner := bufio.NewScanner(serverStdin)
		for scanner.Scan() {
			var req Request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			payload, _ := json.Marshal(req.Params)
			resp := Response{JSONRPC: "2.0", ID: req.ID, Result: payload}
			data, _ := json.Marshal(resp)
			data = append(data, '\n')
			_, _ = serverStdout.Write(data)
		}
	}()
}

func TestTransportCallRoundTrip(t *testing.T) {
	clientToServer := newPipe()
	serverToClient := newPipe()

	startFakeChild(t, clientToServer.readSide, serverToClient.writeSide)
	tr := Start(clientToServer.writeSide, serverToClient.readSide)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := tr.Call(ctx, "fn.call", map[string]interface{}{"name": "greet"})
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(result, &got))
	assert.Equal(t, "greet", got["name"])
}

func TestTransportConcurrentPipelinedCalls(t *testing.T) {
	clientToServer := newPipe()
	serverToClient := newPipe()

	startFakeChild(t, clientToServer.readSide, serverToClient.writeSide)
	tr := Start(clientToServer.writeSide, serverToClient.readSide)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const n = 10
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			_, err := tr.Call(ctx, "fn.call", map[string]interface{}{"i": i})
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
}

func TestTransportCallAfterDisconnectFails(t *testing.T) {
	clientToServer := newPipe()
	serverToClient := newPipe()
	// No fake child: closing serverToClient's write side simulates the child
	// exiting, and closing clientToServer's write side makes any further
	// request write fail, so a call issued after that must fail.
	tr := Start(clientToServer.writeSide, serverToClient.readSide)

	_ = serverToClient.writeSide.Close()
	_ = clientToServer.writeSide.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := tr.Call(ctx, "fn.call", nil)
	require.Error(t, err)
}

// pipePair wraps os.Pipe to give named read/write ends. Like a real child's
// stdio, an OS pipe buffers writes, so the fake child can answer one request
// while the transport is still writing the next.
type pipePair struct {
	readSide  *os.File
	writeSide *os.File
}

func newPipe() pipePair {
	r, w, err := os.Pipe()
	if err != nil {
		panic(err)
	}
	return pipePair{readSide: r, writeSide: w}
}
