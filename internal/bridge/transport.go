// Package bridge implements the JSON-RPC Transport (C4) and Bridge
// Supervisor (C5): line-delimited stdio correlation to child processes, and
// the uniform capability-set adapters layered on top of it.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"

	stageerr "github.com/stagecraft/engine/pkg/errors"
)

// globalRequestID is the sole process-wide mutable datum in the engine
// (§9): a monotonic counter shared by every Transport instance so that ids
// are unique across all bridges in the process, not merely within one.
var globalRequestID atomic.Uint64

func nextRequestID() uint64 {
	return globalRequestID.Add(1)
}

// Request is the wire shape of an outgoing JSON-RPC call (§4.4, §6.3).
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// RPCError is the wire shape of a JSON-RPC error object (§6.3).
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Response is the wire shape of an incoming JSON-RPC response (§4.4).
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Standard JSON-RPC and bridge-specific error codes (§6.3).
const (
	ErrCodeParse          = -32700
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeFunctionError  = -32000
	ErrCodeAssertionError = -32001
	ErrCodeHookError      = -32002
)

type pendingCall struct {
	req  Request
	done chan callResult
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Transport owns a single child process's stdin/stdout as a pipelined,
// line-delimited JSON-RPC channel. Correlation uses a single-owner pending
// map inside a dedicated dispatcher goroutine (§9 "request correlation
// without shared maps") rather than a mutex-guarded map visible to callers.
type Transport struct {
	stdin     io.WriteCloser
	requestCh chan pendingCall
	closed    chan struct{}
	// disconnectErr is set once the transport has terminated; reads/writes
	// after that point fail fast with this error.
	disconnectErr atomic.Value // error
}

// Start launches the transport's reader and dispatcher goroutines over the
// given child stdio pipes; the dispatcher also writes requests to stdin.
// The returned Transport is ready for Call.
func Start(stdin io.WriteCloser, stdout io.Reader) *Transport {
	t := &Transport{
		stdin:     stdin,
		requestCh: make(chan pendingCall),
		closed:    make(chan struct{}),
	}

	lines := make(chan []byte)
	go t.readLines(stdout, lines)
	go t.dispatch(lines)

	return t
}

// readLines scans newline-delimited frames from the child's stdout and
// forwards them to the dispatcher. It exits on EOF or read error, closing
// the lines channel so the dispatcher can detect disconnection.
func (t *Transport) readLines(stdout io.Reader, lines chan<- []byte) {
	defer close(lines)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		lines <- line
	}
}

// dispatch is the single goroutine that owns the pending-response map. It
// multiplexes "new call submitted" against "line arrived from the child",
// exactly mirroring the original's spawn_communication_task select loop.
func (t *Transport) dispatch(lines <-chan []byte) {
	pending := make(map[uint64]chan callResult)
	reqCh := t.requestCh
	defer close(t.closed)
	defer func() {
		err := t.currentDisconnectErr()
		for _, done := range pending {
			done <- callResult{err: err}
		}
	}()

	for {
		select {
		case call, ok := <-reqCh:
			if !ok {
				// Request channel closed: signal EOF to the child and let
				// the reader goroutine drain to completion. Nil the local
				// channel reference so this case blocks forever rather
				// than spinning on the now-closed channel.
				_ = t.stdin.Close()
				reqCh = nil
				continue
			}

			data, err := json.Marshal(call.req)
			if err != nil {
				call.done <- callResult{err: stageerr.Wrap(stageerr.KindTransport, stageerr.CodeServerError,
					"bridge.transport.call", "failed to marshal request", err)}
				continue
			}
			data = append(data, '\n')

			if _, err := t.stdin.Write(data); err != nil {
				t.setDisconnected(err)
				call.done <- callResult{err: t.currentDisconnectErr()}
				return
			}
			pending[call.req.ID] = call.done

		case line, ok := <-lines:
			if !ok {
				t.setDisconnected(io.EOF)
				return
			}

			var resp Response
			if err := json.Unmarshal(line, &resp); err != nil {
				// Malformed response line is dropped silently (§4.4).
				continue
			}

			done, ok := pending[resp.ID]
			if !ok {
				// Response without a live slot is discarded (§4.4).
				continue
			}
			delete(pending, resp.ID)

			if resp.Error != nil {
				done <- callResult{err: stageerr.Wrap(stageerr.KindTransport, stageerr.CodeServerError,
					"bridge.transport.call", resp.Error.Error(), resp.Error)}
			} else {
				done <- callResult{result: resp.Result}
			}
		}
	}
}

func (t *Transport) setDisconnected(cause error) {
	t.disconnectErr.Store(stageerr.Wrap(stageerr.KindTransport, stageerr.CodeDisconnected,
		"bridge.transport", "transport disconnected", cause))
}

func (t *Transport) currentDisconnectErr() error {
	if v := t.disconnectErr.Load(); v != nil {
		return v.(error)
	}
	return stageerr.New(stageerr.KindTransport, stageerr.CodeDisconnected,
		"bridge.transport", "transport disconnected")
}

// Call issues a request and blocks until a correlated response arrives, ctx
// is done, or the transport disconnects.
func (t *Transport) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	req := Request{JSONRPC: "2.0", ID: nextRequestID(), Method: method, Params: params}
	done := make(chan callResult, 1)

	select {
	case t.requestCh <- pendingCall{req: req, done: done}:
	case <-t.closed:
		return nil, t.currentDisconnectErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-done:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close signals shutdown: closing the request channel causes the dispatcher
// to close the child's stdin (EOF) and the reader to drain to completion
// once the child exits, per §4.4's shutdown contract.
func (t *Transport) Close() {
	select {
	case <-t.closed:
		return
	default:
	}
	close(t.requestCh)
	<-t.closed
}
