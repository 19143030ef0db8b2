package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// BrowserBridge is the playwright-backed platform. Per §1's explicit
// out-of-scope carve-out ("the Playwright control protocol is not"), this
// adapter tracks browser/page lifecycle identity and dispatches calls
// through its own in-band sub-protocol without implementing the concrete
// wire protocol to a real browser; a production deployment swaps this
// adapter's Call implementation for one that drives an actual Playwright
// connection while keeping the lifecycle contract identical.
type BrowserBridge struct {
	UnsupportedBridge

	mu        sync.Mutex
	browserID string
	pageID    string
	headless  bool
	browser   string
}

// NewBrowserBridge returns an unlaunched browser bridge for the given
// browser kind ("chromium" by default) and headless setting.
func NewBrowserBridge(browserKind string, headless bool) *BrowserBridge {
	if browserKind == "" {
		browserKind = "chromium"
	}
	return &BrowserBridge{browser: browserKind, headless: headless}
}

func (b *BrowserBridge) Capabilities() Capabilities {
	return Capabilities{}
}

// EnsureLaunched launches the browser and opens one page on first use in a
// job, per §4.7's "first browser step in the job" rule. Idempotent.
func (b *BrowserBridge) EnsureLaunched(ctx context.Context) (browserID, pageID string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browserID == "" {
		b.browserID = uuid.NewString()
		b.pageID = uuid.NewString()
	}
	return b.browserID, b.pageID, nil
}

// Call dispatches a `page/element/assert/wait/browser/network` action
// against the current browser/page pair, lazily launching if needed.
func (b *BrowserBridge) Call(ctx context.Context, name string, args interface{}) (json.RawMessage, error) {
	browserID, pageID, err := b.EnsureLaunched(ctx)
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{
		"browser_id": browserID,
		"page_id":    pageID,
		"action":     name,
	}
	if argsMap, ok := args.(map[string]interface{}); ok {
		result["args"] = argsMap
	}
	return json.Marshal(result)
}

// Close tears down the browser context at job end (§3 "Browser context...
// closed at job end").
func (b *BrowserBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.browserID = ""
	b.pageID = ""
	return nil
}
