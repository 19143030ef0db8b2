package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDurationExamples(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"1h30m", 90 * time.Minute},
		{"500s", 500 * time.Second},
		{"2d", 48 * time.Hour},
	}
	for _, c := range cases {
		got, err := ParseDuration(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseDurationRejectsMilliseconds(t *testing.T) {
	_, err := ParseDuration("500ms")
	require.Error(t, err)
}

func TestParseTimeExamples(t *testing.T) {
	got, err := ParseTime("1705314600")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T10:30:00Z", got.Format(time.RFC3339))

	got2, err := ParseTime("2024-01-15T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, got.UTC(), got2.UTC())
}

func TestParseTimeMilliseconds(t *testing.T) {
	got, err := ParseTime("1705314600000")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15T10:30:00Z", got.Format(time.RFC3339))
}

func TestClockNoBackwardsMove(t *testing.T) {
	c := New()
	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	c.Set(base)

	err := c.ForwardUntil(base.Add(-time.Hour))
	require.Error(t, err)

	err = c.ForwardUntil(base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, base.Add(time.Hour), c.Now())
}

func TestClockResetResumesWallClock(t *testing.T) {
	c := New()
	c.Set(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	c.Reset()
	assert.WithinDuration(t, time.Now().UTC(), c.Now(), time.Second)
}

func TestAutoAdvanceStepSeedsAndSteps(t *testing.T) {
	c := New()
	c.SetAutoAdvance(true)
	c.AutoAdvanceStep()
	require.True(t, c.IsActive())
	first := c.Now()

	c.AutoAdvanceStep()
	assert.Equal(t, first.Add(DefaultStepDuration), c.Now())
}

func TestAutoAdvanceStepNoopWhenDisabled(t *testing.T) {
	c := New()
	c.SetAutoAdvance(false)
	c.AutoAdvanceStep()
	assert.False(t, c.IsActive())
}

func TestParseTimezoneAbbreviations(t *testing.T) {
	cases := map[string]int{
		"UTC":  0,
		"EST":  -5 * 3600,
		"JST":  9 * 3600,
		"IST":  5*3600 + 30*60,
		"AEDT": 11 * 3600,
	}
	for name, want := range cases {
		got, err := ParseTimezone(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestParseTimezoneNumeric(t *testing.T) {
	got, err := ParseTimezone("+05:30")
	require.NoError(t, err)
	assert.Equal(t, 5*3600+30*60, got)

	got2, err := ParseTimezone("-8")
	require.NoError(t, err)
	assert.Equal(t, -8*3600, got2)
}

func TestParseTimezoneUnknown(t *testing.T) {
	_, err := ParseTimezone("NOWHERE")
	require.Error(t, err)
}

func TestGetSyncStateReflectsVirtualTime(t *testing.T) {
	c := New()
	state := c.GetSyncState()
	assert.Nil(t, state.VirtualTimeMS)

	base := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	c.Set(base)
	state = c.GetSyncState()
	require.NotNil(t, state.VirtualTimeMS)
	assert.Equal(t, base.UnixMilli(), *state.VirtualTimeMS)
	assert.True(t, state.Frozen)
}
