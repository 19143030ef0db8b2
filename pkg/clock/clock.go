// Package clock implements the engine's synthetic (virtual) time source: a
// process-wide-shaped but per-run clock that can be frozen, fast-forwarded,
// and projected to a serializable sync state for broadcast to bridges.
package clock

import (
	"sync"
	"time"

	stageerr "github.com/stagecraft/engine/pkg/errors"
)

// DefaultStepDuration is added by auto-advance when no step duration has
// been configured.
const DefaultStepDuration = 3 * time.Second

// State is the clock's mutable state, held per workflow run.
type State struct {
	VirtualTime  *time.Time
	Frozen       bool
	TZOffsetSecs int
	StepDuration time.Duration
	AutoAdvance  bool
}

// Clock guards a State behind a mutex; all operations are safe for
// concurrent use, though in practice each workflow run owns exactly one
// Clock (per the data model's "ClockState is per workflow run" lifecycle).
type Clock struct {
	mu    sync.Mutex
	state State
}

// New returns a Clock with unset virtual time, the default step duration,
// and auto-advance enabled, matching ClockState's defaults in the original
// engine.
func New() *Clock {
	return &Clock{state: State{StepDuration: DefaultStepDuration, AutoAdvance: true}}
}

// Set sets the virtual time to t and freezes the clock.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := t.UTC()
	c.state.VirtualTime = &u
	c.state.Frozen = true
}

// Forward adds d to the virtual time, seeding it to wall-clock now first if
// unset.
func (c *Clock) Forward(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seedLocked()
	next := c.state.VirtualTime.Add(d)
	c.state.VirtualTime = &next
}

// ForwardUntil advances the virtual time to t, seeding it to wall-clock now
// first if unset. If t precedes the current virtual time ("BackwardsMove")
// it fails with a Configuration-kind CodeInvalidTimeFormat error.
func (c *Clock) ForwardUntil(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seedLocked()
	u := t.UTC()
	if u.Before(*c.state.VirtualTime) {
		return stageerr.New(stageerr.KindConfiguration, stageerr.CodeInvalidTimeFormat, "clock.forward_until",
			"target time precedes current virtual time")
	}
	c.state.VirtualTime = &u
	return nil
}

// Reset drops the virtual time, resuming real wall-clock time. This is the
// sole operation permitted to move the clock "backwards".
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.VirtualTime = nil
	c.state.Frozen = false
}

// Now returns the virtual time if set, else wall-clock UTC.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.VirtualTime != nil {
		return *c.state.VirtualTime
	}
	return time.Now().UTC()
}

// NowLocal returns Now() shifted by the configured display timezone offset.
func (c *Clock) NowLocal() time.Time {
	c.mu.Lock()
	offset := c.state.TZOffsetSecs
	c.mu.Unlock()
	return c.Now().Add(time.Duration(offset) * time.Second)
}

// IsActive reports whether the virtual time has been set.
func (c *Clock) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.VirtualTime != nil
}

// AutoAdvanceStep is a no-op if auto-advance is disabled. Otherwise it seeds
// the virtual time to wall-clock UTC if unset, then adds the step duration.
func (c *Clock) AutoAdvanceStep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.AutoAdvance {
		return
	}
	c.seedLocked()
	next := c.state.VirtualTime.Add(c.stepDurationLocked())
	c.state.VirtualTime = &next
}

func (c *Clock) seedLocked() {
	if c.state.VirtualTime == nil {
		now := time.Now().UTC()
		c.state.VirtualTime = &now
	}
}

func (c *Clock) stepDurationLocked() time.Duration {
	if c.state.StepDuration == 0 {
		return DefaultStepDuration
	}
	return c.state.StepDuration
}

// SetTimezone sets the display offset directly, in seconds from UTC.
func (c *Clock) SetTimezone(offsetSeconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.TZOffsetSecs = offsetSeconds
}

// SetTimezoneName resolves an abbreviation from the fixed table or a numeric
// offset (see ParseTimezone in timezone.go) and sets the display offset.
// IANA zone names such as "Europe/Paris" are not recognized and fail with
// InvalidTimezone.
func (c *Clock) SetTimezoneName(name string) error {
	offset, err := ParseTimezone(name)
	if err != nil {
		return err
	}
	c.SetTimezone(offset)
	return nil
}

// SetStepDuration overrides the auto-advance step duration.
func (c *Clock) SetStepDuration(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.StepDuration = d
}

// SetAutoAdvance toggles auto-advance.
func (c *Clock) SetAutoAdvance(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.AutoAdvance = enabled
}

// IsAutoAdvanceEnabled reports the current auto-advance flag.
func (c *Clock) IsAutoAdvanceEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.AutoAdvance
}

// SyncState is the serializable projection of the clock broadcast to
// bridges that declare clock support.
type SyncState struct {
	VirtualTimeMS  *int64  `json:"virtual_time_ms"`
	VirtualTimeISO *string `json:"virtual_time_iso"`
	Frozen         bool    `json:"frozen"`
	TZOffsetSecs   int     `json:"timezone_offset_secs"`
}

// GetSyncState returns the current SyncState for broadcast.
func (c *Clock) GetSyncState() SyncState {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := SyncState{Frozen: c.state.Frozen, TZOffsetSecs: c.state.TZOffsetSecs}
	if c.state.VirtualTime != nil {
		ms := c.state.VirtualTime.UnixMilli()
		iso := c.state.VirtualTime.Format(time.RFC3339)
		s.VirtualTimeMS = &ms
		s.VirtualTimeISO = &iso
	}
	return s
}
