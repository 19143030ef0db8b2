package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	stageerr "github.com/stagecraft/engine/pkg/errors"
	"github.com/stagecraft/engine/pkg/workflow"
)

// HTTPBridge is synthesized in-process rather than spawned as a child and
// does not speak JSON-RPC (§4.5): it implements Call by selecting
// method+path from its args and layering URL join, headers, auth, query,
// and body the way internal/action/http/operations.go does, then applying a
// retry loop with exponential backoff.
type HTTPBridge struct {
	UnsupportedBridge

	cfg    workflow.PlatformConfig
	client *http.Client
}

// NewHTTPBridge builds the in-process HTTP bridge from its platform config.
func NewHTTPBridge(cfg workflow.PlatformConfig) *HTTPBridge {
	timeout := 30 * time.Second
	if cfg.TimeoutMS > 0 {
		timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	return &HTTPBridge{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (b *HTTPBridge) Capabilities() Capabilities {
	return Capabilities{}
}

// httpCallArgs is the shape the dispatcher builds for an http bridge call.
type httpCallArgs struct {
	Method  string                 `json:"method"`
	Path    string                 `json:"path"`
	Headers map[string]string      `json:"headers"`
	Query   map[string]string      `json:"query"`
	Body    interface{}            `json:"body"`
}

// HTTPResult is the shape returned by a successful (or terminally failed)
// call: {status, headers, body, elapsed_ms} per §4.5.
type HTTPResult struct {
	Status     int                 `json:"status"`
	Headers    map[string][]string `json:"headers"`
	Body       interface{}         `json:"body"`
	ElapsedMS  int64               `json:"elapsed_ms"`
}

func (b *HTTPBridge) Call(ctx context.Context, _ string, args interface{}) (json.RawMessage, error) {
	callArgs, err := decodeHTTPArgs(args)
	if err != nil {
		return nil, err
	}

	req, err := b.buildRequest(ctx, callArgs)
	if err != nil {
		return nil, err
	}

	result, err := b.sendWithRetry(req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func decodeHTTPArgs(args interface{}) (httpCallArgs, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return httpCallArgs{}, stageerr.Wrap(stageerr.KindSchema, stageerr.CodeInvalidParameter,
			"bridge.http.call", "failed to marshal call args", err)
	}
	var callArgs httpCallArgs
	if err := json.Unmarshal(data, &callArgs); err != nil {
		return httpCallArgs{}, stageerr.Wrap(stageerr.KindSchema, stageerr.CodeInvalidParameter,
			"bridge.http.call", "malformed http call args", err)
	}
	if callArgs.Method == "" {
		return httpCallArgs{}, stageerr.New(stageerr.KindSchema, stageerr.CodeMissingParameter,
			"bridge.http.call", "missing required field 'method'")
	}
	return callArgs, nil
}

func (b *HTTPBridge) buildRequest(ctx context.Context, args httpCallArgs) (*http.Request, error) {
	full, err := joinURL(b.cfg.BaseURL, args.Path)
	if err != nil {
		return nil, stageerr.Wrap(stageerr.KindSchema, stageerr.CodeInvalidParameter,
			"bridge.http.call", "invalid URL", err)
	}

	if len(args.Query) > 0 {
		q := full.Query()
		for k, v := range args.Query {
			q.Set(k, v)
		}
		full.RawQuery = q.Encode()
	}

	var bodyReader io.Reader
	if args.Body != nil {
		payload, err := json.Marshal(args.Body)
		if err != nil {
			return nil, stageerr.Wrap(stageerr.KindSchema, stageerr.CodeInvalidParameter,
				"bridge.http.call", "failed to marshal body", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(args.Method), full.String(), bodyReader)
	if err != nil {
		return nil, stageerr.Wrap(stageerr.KindSchema, stageerr.CodeInvalidParameter,
			"bridge.http.call", "failed to build request", err)
	}

	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range b.cfg.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}
	applyAuth(req, b.cfg.Auth)

	return req, nil
}

func joinURL(base, path string) (*url.URL, error) {
	if base == "" {
		return url.Parse(path)
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	rel, err := url.Parse(path)
	if err != nil {
		return nil, err
	}
	return baseURL.ResolveReference(rel), nil
}

// applyAuth layers bearer/basic/api-key authentication. OAuth2 config is
// accepted but not applied here, per the spec's explicit carve-out.
func applyAuth(req *http.Request, auth *workflow.AuthConfig) {
	if auth == nil {
		return
	}
	switch auth.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+auth.Token)
	case "basic":
		req.SetBasicAuth(auth.Username, auth.Password)
	case "api_key":
		if auth.APIKeyHeader != "" {
			req.Header.Set(auth.APIKeyHeader, auth.APIKeyValue)
		}
	case "oauth2":
		// Accepted at config level but not applied by this component (§4.5).
	}
}

// sendWithRetry wraps the send in a retry loop: up to max_attempts, delay
// initial_delay * 2^(attempt-1) capped at max_delay, triggered only by
// configured retry-on statuses or connect/timeout errors (§4.5). Each
// attempt sends a fresh copy of the request body.
func (b *HTTPBridge) sendWithRetry(req *http.Request) (*HTTPResult, error) {
	maxAttempts := b.cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	initialDelay := time.Duration(b.cfg.InitialDelayMS) * time.Millisecond
	if initialDelay <= 0 {
		initialDelay = time.Second
	}
	maxDelay := time.Duration(b.cfg.MaxDelayMS) * time.Millisecond
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptReq := req.Clone(req.Context())
		if req.GetBody != nil {
			if body, err := req.GetBody(); err == nil {
				attemptReq.Body = body
			}
		}
		start := time.Now()
		resp, err := b.client.Do(attemptReq)
		elapsed := time.Since(start)

		if err != nil {
			lastErr = stageerr.Wrap(stageerr.KindTransport, stageerr.CodeDisconnected,
				"bridge.http.call", "request failed", err)
			var netErr net.Error
			var opErr *net.OpError
			retryable := (errors.As(err, &netErr) && netErr.Timeout()) ||
				(errors.As(err, &opErr) && opErr.Op == "dial")
			if retryable && attempt < maxAttempts {
				sleepBackoff(attempt, initialDelay, maxDelay)
				continue
			}
			return nil, lastErr
		}

		result, err := parseHTTPResponse(resp, elapsed)
		if err != nil {
			return nil, err
		}

		if shouldRetryStatus(b.cfg.RetryOnStatus, result.Status) && attempt < maxAttempts {
			sleepBackoff(attempt, initialDelay, maxDelay)
			continue
		}

		return result, nil
	}

	return nil, lastErr
}

func sleepBackoff(attempt int, initial, max time.Duration) {
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	if delay > max {
		delay = max
	}
	time.Sleep(delay)
}

func shouldRetryStatus(retryOn []int, status int) bool {
	for _, s := range retryOn {
		if s == status {
			return true
		}
	}
	return false
}

func parseHTTPResponse(resp *http.Response, elapsed time.Duration) (*HTTPResult, error) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, stageerr.Wrap(stageerr.KindTransport, stageerr.CodeDisconnected,
			"bridge.http.call", "failed to read response body", err)
	}

	result := &HTTPResult{
		Status:    resp.StatusCode,
		Headers:   map[string][]string(resp.Header),
		ElapsedMS: elapsed.Milliseconds(),
	}

	var parsed interface{}
	if len(raw) > 0 && json.Unmarshal(raw, &parsed) == nil {
		result.Body = parsed
	} else {
		result.Body = string(raw)
	}

	return result, nil
}

func (b *HTTPBridge) Close() error { return nil }
