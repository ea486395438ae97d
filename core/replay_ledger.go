package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	defaultReplayLedgerTTL        = 10 * time.Minute
	defaultReplayLedgerMaxEntries = 8192
)

// MemoryReplayLedger is a bounded, process-local window of recently claimed
// keys. It only filters relay retries cheaply; the consumed-message register
// in the settlement store stays authoritative.
type MemoryReplayLedger struct {
	mu         sync.Mutex
	defaultTTL time.Duration
	maxEntries int
	expiries   map[string]time.Time
	order      []string
	Now        func() time.Time
}

func NewMemoryReplayLedger(defaultTTL time.Duration) *MemoryReplayLedger {
	return NewMemoryReplayLedgerWithLimits(defaultTTL, defaultReplayLedgerMaxEntries)
}

func NewMemoryReplayLedgerWithLimits(defaultTTL time.Duration, maxEntries int) *MemoryReplayLedger {
	if defaultTTL <= 0 {
		defaultTTL = defaultReplayLedgerTTL
	}
	if maxEntries <= 0 {
		maxEntries = defaultReplayLedgerMaxEntries
	}
	return &MemoryReplayLedger{
		defaultTTL: defaultTTL,
		maxEntries: maxEntries,
		expiries:   map[string]time.Time{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Claim returns true when key was not claimed inside its live window.
func (l *MemoryReplayLedger) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, fmt.Errorf("core: replay ledger is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("core: replay key is required")
	}
	if ttl <= 0 {
		ttl = l.defaultTTL
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if expiresAt, ok := l.expiries[key]; ok && now.Before(expiresAt) {
		return false, nil
	}
	l.compactLocked(now)
	for len(l.order) >= l.maxEntries {
		l.dropOldestLocked()
	}
	if _, ok := l.expiries[key]; !ok {
		l.order = append(l.order, key)
	}
	l.expiries[key] = now.Add(ttl)
	return true, nil
}

// Release forgets key so a failed delivery can be retried immediately.
func (l *MemoryReplayLedger) Release(_ context.Context, key string) {
	if l == nil {
		return
	}
	key = strings.TrimSpace(key)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.expiries[key]; !ok {
		return
	}
	delete(l.expiries, key)
	for i, candidate := range l.order {
		if candidate == key {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *MemoryReplayLedger) PurgeExpired(_ context.Context) (int, error) {
	if l == nil {
		return 0, fmt.Errorf("core: replay ledger is not configured")
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	before := len(l.expiries)
	l.compactLocked(now)
	return before - len(l.expiries), nil
}

func (l *MemoryReplayLedger) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.expiries)
}

func (l *MemoryReplayLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryReplayLedger) compactLocked(now time.Time) {
	kept := l.order[:0]
	for _, key := range l.order {
		if now.Before(l.expiries[key]) {
			kept = append(kept, key)
			continue
		}
		delete(l.expiries, key)
	}
	l.order = kept
}

func (l *MemoryReplayLedger) dropOldestLocked() {
	if len(l.order) == 0 {
		return
	}
	delete(l.expiries, l.order[0])
	l.order = l.order[1:]
}

var _ ReplayLedger = (*MemoryReplayLedger)(nil)
