// Package dedupe suppresses duplicate inbound turns caused by retried
// deliveries. Two independent windows cover the two retry shapes seen in
// practice: a short window keyed by a content fingerprint (retries that mint
// a fresh message id for the same text) and a long window keyed by the
// caller-supplied message id (straight redeliveries).
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/config"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
	"github.com/AverageNftEnjoyer/Nova-sub008/internal/types"
)

type entry struct {
	seenAt time.Time
	// messageIDs records ids already attributed to this fingerprint so a
	// retry with a fresh id still maps back to the same content.
	messageIDs map[string]struct{}
}

// Store is a bounded associative store of recently seen turns. It is
// constructor-injected (no package-level state) so tests and tenants get
// isolated instances.
type Store struct {
	mu  sync.Mutex
	cfg config.DedupeConfig
	now func() time.Time

	byFingerprint map[string]*entry // scope|fingerprint -> entry (short window)
	byMessageID   map[string]time.Time // scope|messageID -> seen time (long window)
}

// NewStore creates a dedupe store with the given windows and cap.
func NewStore(cfg config.DedupeConfig) *Store {
	return &Store{
		cfg:           cfg,
		now:           time.Now,
		byFingerprint: make(map[string]*entry),
		byMessageID:   make(map[string]time.Time),
	}
}

// WithClock overrides the store's clock. Test hook.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// ShouldSkip reports whether the turn is a duplicate delivery. When it
// returns false the turn is recorded so later retries are caught.
//
// Policy: a supplied message id is checked first against the long window;
// independently, identical normalized text in the same scope inside the
// short window is a duplicate even under a fresh id, and that id is then
// recorded against the fingerprint.
func (s *Store) ShouldSkip(turn types.Turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)

	scope := turn.ScopeKey()
	fp := scope + "|" + Fingerprint(turn.Text)

	if turn.MessageID != "" {
		idKey := scope + "|" + turn.MessageID
		if seen, ok := s.byMessageID[idKey]; ok && now.Sub(seen) < s.cfg.LongWindow {
			logging.TurnDebug("dedupe: suppressed by message id %s", turn.MessageID)
			return true
		}
	}

	if e, ok := s.byFingerprint[fp]; ok && now.Sub(e.seenAt) < s.cfg.ShortWindow {
		// Same content retried under a new id: attribute the id to this
		// fingerprint so the long window covers it too.
		if turn.MessageID != "" {
			e.messageIDs[turn.MessageID] = struct{}{}
			s.byMessageID[scope+"|"+turn.MessageID] = now
		}
		logging.TurnDebug("dedupe: suppressed by content fingerprint in scope %s", scope)
		return true
	}

	s.recordLocked(now, scope, fp, turn.MessageID)
	return false
}

func (s *Store) recordLocked(now time.Time, scope, fp, messageID string) {
	e := &entry{seenAt: now, messageIDs: make(map[string]struct{})}
	if messageID != "" {
		e.messageIDs[messageID] = struct{}{}
		s.byMessageID[scope+"|"+messageID] = now
	}
	s.byFingerprint[fp] = e

	if len(s.byFingerprint)+len(s.byMessageID) > s.cfg.MaxEntries {
		s.evictOldestLocked()
	}
}

// pruneLocked lazily evicts entries whose TTL elapsed.
func (s *Store) pruneLocked(now time.Time) {
	for k, e := range s.byFingerprint {
		if now.Sub(e.seenAt) >= s.cfg.ShortWindow {
			delete(s.byFingerprint, k)
		}
	}
	for k, seen := range s.byMessageID {
		if now.Sub(seen) >= s.cfg.LongWindow {
			delete(s.byMessageID, k)
		}
	}
}

// evictOldestLocked drops the oldest quarter of entries by timestamp once
// the hard cap is exceeded, so a burst cannot grow the store unboundedly.
func (s *Store) evictOldestLocked() {
	type aged struct {
		key    string
		id     bool
		seenAt time.Time
	}
	all := make([]aged, 0, len(s.byFingerprint)+len(s.byMessageID))
	for k, e := range s.byFingerprint {
		all = append(all, aged{key: k, seenAt: e.seenAt})
	}
	for k, seen := range s.byMessageID {
		all = append(all, aged{key: k, id: true, seenAt: seen})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seenAt.Before(all[j].seenAt) })

	drop := len(all) / 4
	if drop < 1 {
		drop = 1
	}
	for _, a := range all[:drop] {
		if a.id {
			delete(s.byMessageID, a.key)
		} else {
			delete(s.byFingerprint, a.key)
		}
	}
}

// Len returns the current entry count across both windows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byFingerprint) + len(s.byMessageID)
}

// Fingerprint hashes normalized text for the short-window key. Whitespace
// runs collapse to one space and zero-width characters are stripped so
// cosmetic re-encodings of the same message still collide.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return hex.EncodeToString(sum[:16])
}

// Normalize lowercases, strips zero-width characters and collapses
// whitespace runs.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff':
			continue
		}
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}
