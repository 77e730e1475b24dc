// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pdiddy/leafscan/pkg/types"
)

// Memory is a process-local Store with the same semantics as SQLite.
// Its contents are lost when the process exits.
type Memory struct {
	mu    sync.Mutex
	cache map[string]types.CacheEntry
	scans map[string]*memScan
	seq   int64
}

type memScan struct {
	rec types.ScanRecord
	seq int64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		cache: make(map[string]types.CacheEntry),
		scans: make(map[string]*memScan),
	}
}

func (m *Memory) GetCache(_ context.Context, key string) (types.CacheEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.cache[key]
	if !ok {
		return types.CacheEntry{}, false, nil
	}
	return copyEntry(e), true, nil
}

func (m *Memory) SetCache(_ context.Context, entry types.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.UpdatedAt = time.UnixMilli(entry.UpdatedAt.UnixMilli())
	m.cache[entry.Key] = copyEntry(entry)
	return nil
}

func (m *Memory) DeleteCachePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.cache {
		if strings.HasPrefix(k, prefix) {
			delete(m.cache, k)
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertScan(_ context.Context, rec types.ScanRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: scan record has no id", ErrPersistence)
	}
	rec.CreatedAt = time.UnixMilli(rec.CreatedAt.UnixMilli())

	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.scans[rec.ID]; ok {
		if cur.rec.UserID != "" {
			rec.UserID = cur.rec.UserID
		}
		rec.Synced = rec.Synced || cur.rec.Synced
		cur.rec = rec
		return nil
	}
	m.seq++
	m.scans[rec.ID] = &memScan{rec: rec, seq: m.seq}
	return nil
}

func (m *Memory) ListScans(_ context.Context, limit int) ([]types.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.sorted(func(*memScan) bool { return true })
	out := make([]types.ScanRecord, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i].rec)
	}
	return out, nil
}

func (m *Memory) ListPendingScans(_ context.Context, userID string) ([]types.ScanRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := m.sorted(func(s *memScan) bool {
		return !s.rec.Synced && (s.rec.UserID == "" || s.rec.UserID == userID)
	})
	out := make([]types.ScanRecord, len(pending))
	for i, s := range pending {
		out[i] = s.rec
	}
	return out, nil
}

func (m *Memory) ClaimAnonymous(_ context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.scans {
		if s.rec.UserID == "" && !s.rec.Synced {
			s.rec.UserID = userID
			n++
		}
	}
	return n, nil
}

func (m *Memory) MarkSynced(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scans[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	s.rec.Synced = true
	return nil
}

func (m *Memory) Close() error { return nil }

// sorted returns matching scans oldest first. Callers hold mu.
func (m *Memory) sorted(keep func(*memScan) bool) []*memScan {
	var out []*memScan
	for _, s := range m.scans {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].rec.CreatedAt.UnixMilli(), out[j].rec.CreatedAt.UnixMilli()
		if ti != tj {
			return ti < tj
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func copyEntry(e types.CacheEntry) types.CacheEntry {
	if e.TTLSeconds != nil {
		v := *e.TTLSeconds
		e.TTLSeconds = &v
	}
	return e
}
