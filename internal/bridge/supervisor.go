package bridge

import (
	"fmt"
	"sync"

	"github.com/stagecraft/engine/pkg/workflow"
)

// builtinCapabilities assigns each process-backed platform its capability
// flags (§4.5): each of these supports context/hooks/clock; only the nodejs
// bridge supports dynamic mocking. The in-process web (HTTP) bridge declares
// no capabilities.
var builtinCapabilities = map[string]Capabilities{
	string(workflow.PlatformNodeJS): {Context: true, Hooks: true, Mocking: true, Clock: true},
	string(workflow.PlatformPython): {Context: true, Hooks: true, Clock: true},
	string(workflow.PlatformRust):   {Context: true, Hooks: true, Clock: true},
	string(workflow.PlatformJava):   {Context: true, Hooks: true, Clock: true},
	string(workflow.PlatformGo):     {Context: true, Hooks: true, Clock: true},
}

// Supervisor owns the lazily-spawned bridges for a single workflow run. Its
// config map is written once at Executor startup and read-only thereafter
// (§5 "shared resource discipline").
type Supervisor struct {
	mu        sync.Mutex
	platforms workflow.PlatformsConfig
	bridges   map[string]Bridge
}

// NewSupervisor seeds a Supervisor with the workflow's merged platform
// configuration.
func NewSupervisor(platforms workflow.PlatformsConfig) *Supervisor {
	return &Supervisor{
		platforms: platforms,
		bridges:   make(map[string]Bridge),
	}
}

// Get lazily spawns (or returns the already-spawned) bridge for platform.
// The browser platform never reaches here; it is created by the executor
// per job, not per run (see §4.7).
func (s *Supervisor) Get(platform string) (Bridge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.bridges[platform]; ok {
		return b, nil
	}

	cfg := s.platforms[platform]

	var b Bridge
	var err error
	switch platform {
	case string(workflow.PlatformWeb):
		b = NewHTTPBridge(cfg)
	default:
		caps := builtinCapabilities[platform]
		b, err = NewProcessBridge(platform, cfg, caps)
	}
	if err != nil {
		return nil, err
	}

	s.bridges[platform] = b
	return b, nil
}

// BridgesWithClockSupport returns every currently-spawned bridge whose
// capabilities declare clock support, for sync-state broadcast (§4.3).
func (s *Supervisor) BridgesWithClockSupport() []Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Bridge
	for _, b := range s.bridges {
		if b.Capabilities().Clock {
			out = append(out, b)
		}
	}
	return out
}

// Teardown closes every spawned bridge, stdio first then child reap, as the
// workflow run concludes (§3 bridge-process lifecycle). A failing Close does
// not short-circuit teardown: every bridge is closed, and the first error
// is returned.
func (s *Supervisor) Teardown() error {
	s.mu.Lock()
	bridges := make([]Bridge, 0, len(s.bridges))
	for _, b := range s.bridges {
		bridges = append(bridges, b)
	}
	s.bridges = make(map[string]Bridge)
	s.mu.Unlock()

	var firstErr error
	for _, b := range bridges {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("bridge teardown: %w", err)
		}
	}
	return firstErr
}
