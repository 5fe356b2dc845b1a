package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

func testConfig() config.DedupeConfig {
	return config.DedupeConfig{
		ShortWindow: 6 * time.Second,
		LongWindow:  15 * time.Minute,
		MaxEntries:  64,
	}
}

func turnWith(text, messageID string) types.Turn {
	return types.Turn{
		Text:          text,
		Source:        "web",
		Sender:        "alice",
		SessionKey:    "s1",
		UserContextID: "u1",
		MessageID:     messageID,
	}
}

func TestShouldSkipSameMessageIDWithinLongWindow(t *testing.T) {
	now := time.Now()
	store := NewStore(testConfig()).WithClock(func() time.Time { return now })

	require.False(t, store.ShouldSkip(turnWith("turn the lights on", "msg-1")))

	// Redelivered ten minutes later, well past the short window.
	now = now.Add(10 * time.Minute)
	assert.True(t, store.ShouldSkip(turnWith("turn the lights on", "msg-1")))

	// Past the long window the id is forgotten.
	now = now.Add(10 * time.Minute)
	assert.False(t, store.ShouldSkip(turnWith("turn the lights on", "msg-1")))
}

func TestShouldSkipSameContentDifferentID(t *testing.T) {
	now := time.Now()
	store := NewStore(testConfig()).WithClock(func() time.Time { return now })

	require.False(t, store.ShouldSkip(turnWith("what's the weather", "msg-1")))

	// Retry mints a new id for the same content two seconds later.
	now = now.Add(2 * time.Second)
	assert.True(t, store.ShouldSkip(turnWith("what's  the\nweather", "msg-2")))

	// The fresh id was recorded against the fingerprint, so an id-keyed
	// redelivery is caught even after the short window ends.
	now = now.Add(1 * time.Minute)
	assert.True(t, store.ShouldSkip(turnWith("what's the weather", "msg-2")))
}

func TestShouldSkipNoIDShortWindowOnly(t *testing.T) {
	now := time.Now()
	store := NewStore(testConfig()).WithClock(func() time.Time { return now })

	require.False(t, store.ShouldSkip(turnWith("hello", "")))

	now = now.Add(2 * time.Second)
	assert.True(t, store.ShouldSkip(turnWith("hello", "")))

	now = now.Add(10 * time.Second)
	assert.False(t, store.ShouldSkip(turnWith("hello", "")))
}

func TestDifferentScopesNeverSuppressEachOther(t *testing.T) {
	store := NewStore(testConfig())

	a := turnWith("same text", "msg-1")
	b := turnWith("same text", "msg-1")
	b.Sender = "bob"

	require.False(t, store.ShouldSkip(a))
	assert.False(t, store.ShouldSkip(b), "different sender must not be suppressed")
}

func TestCapEvictsOldest(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEntries = 8
	now := time.Now()
	store := NewStore(cfg).WithClock(func() time.Time { return now })

	for i := 0; i < 20; i++ {
		now = now.Add(time.Millisecond)
		store.ShouldSkip(turnWith(fmt.Sprintf("unique message %d", i), ""))
	}
	assert.LessOrEqual(t, store.Len(), cfg.MaxEntries+1)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello world", Normalize("  Hello​   World \n"))
	assert.Equal(t, Fingerprint("Hello  World"), Fingerprint("hello world"))
	assert.NotEqual(t, Fingerprint("hello world"), Fingerprint("hello there"))
}
