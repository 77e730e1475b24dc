// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists the scan history ledger and the response cache.
//
// Two implementations share one interface: SQLite for durable storage and
// an in-memory shim for builds or hosts where SQLite is unusable. Open
// selects between them by capability detection at startup.
//
// Scan rows are never deleted. Their synced flag only moves from false to
// true, and an owned row never becomes anonymous again.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/leafscan/pkg/types"
)

var (
	// ErrPersistence reports that the local store could not complete an
	// operation.
	ErrPersistence = errors.New("local store")

	// ErrScanNotFound reports an operation on a scan id that is not stored.
	ErrScanNotFound = errors.New("scan not found")
)

// Store is the local persistence surface. Implementations serialize
// access internally; callers need no locking.
type Store interface {
	// GetCache returns the entry for key. ok is false when absent.
	// Expired entries are returned; callers decide with IsExpired.
	GetCache(ctx context.Context, key string) (entry types.CacheEntry, ok bool, err error)

	// SetCache inserts or replaces the entry for entry.Key.
	SetCache(ctx context.Context, entry types.CacheEntry) error

	// DeleteCachePrefix removes every entry whose key starts with prefix
	// and returns the number removed.
	DeleteCachePrefix(ctx context.Context, prefix string) (int64, error)

	// InsertScan inserts or updates the record keyed by rec.ID.
	InsertScan(ctx context.Context, rec types.ScanRecord) error

	// ListScans returns up to limit records, newest first. A limit of
	// zero or less returns all records.
	ListScans(ctx context.Context, limit int) ([]types.ScanRecord, error)

	// ListPendingScans returns unsynced records owned by userID or by
	// nobody, oldest first.
	ListPendingScans(ctx context.Context, userID string) ([]types.ScanRecord, error)

	// ClaimAnonymous assigns every unsynced anonymous record to userID and
	// returns the number of records claimed.
	ClaimAnonymous(ctx context.Context, userID string) (int64, error)

	// MarkSynced sets the synced flag of one record.
	MarkSynced(ctx context.Context, id string) error

	Close() error
}

// Open returns the store selected by cfg.Backend. StoreAuto tries SQLite
// and falls back to memory when the driver is unusable, as in builds
// without cgo.
func Open(ctx context.Context, cfg types.StoreConfig, log logrus.FieldLogger) (Store, error) {
	if log == nil {
		log = discardLogger()
	}

	switch cfg.Backend {
	case types.StoreMemory:
		log.Debug("using in-memory store")
		return NewMemory(), nil
	case types.StoreSQLite:
		s, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case types.StoreAuto, "":
		s, err := OpenSQLite(ctx, cfg.Path)
		if err == nil {
			return s, nil
		}
		log.WithError(err).Warn("sqlite unavailable, scan history will not survive restart")
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrPersistence, cfg.Backend)
	}
}

// DefaultPath returns the SQLite file used when none is configured.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".leafscan", "leafscan.db")
	}
	return filepath.Join(home, ".local", "share", "leafscan", "leafscan.db")
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
