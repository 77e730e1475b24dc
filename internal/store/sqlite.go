// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/leafscan/pkg/types"
)

// SQLite stores scans and cache entries in one SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and creates the schema
// if it does not exist. An empty path uses DefaultPath. The path
// ":memory:" opens a private in-process database.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = DefaultPath()
	}

	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, wrap("creating database directory", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, wrap("opening database", err)
	}
	// One connection keeps ":memory:" databases shared and serializes
	// writers without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, wrap("opening database", err)
	}

	s := &SQLite{db: db}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, wrap("creating schema", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS api_cache (
			key TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			ttl_seconds INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS scan_history (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			created_at INTEGER NOT NULL,
			image_uri TEXT,
			crop_type TEXT,
			disease_name TEXT,
			confidence_score REAL,
			severity TEXT,
			health TEXT,
			synced INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_history_created_at ON scan_history(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_history_pending ON scan_history(synced, user_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// GetCache returns the cache entry for key.
func (s *SQLite) GetCache(ctx context.Context, key string) (types.CacheEntry, bool, error) {
	var (
		entry     types.CacheEntry
		updatedAt int64
		ttl       sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, json, updated_at, ttl_seconds FROM api_cache WHERE key = ?`, key,
	).Scan(&entry.Key, &entry.JSON, &updatedAt, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return types.CacheEntry{}, false, nil
	}
	if err != nil {
		return types.CacheEntry{}, false, wrap("reading cache", err)
	}
	entry.UpdatedAt = time.UnixMilli(updatedAt)
	if ttl.Valid {
		v := ttl.Int64
		entry.TTLSeconds = &v
	}
	return entry, true, nil
}

// SetCache upserts a cache entry.
func (s *SQLite) SetCache(ctx context.Context, entry types.CacheEntry) error {
	var ttl sql.NullInt64
	if entry.TTLSeconds != nil {
		ttl = sql.NullInt64{Int64: *entry.TTLSeconds, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_cache (key, json, updated_at, ttl_seconds)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			json = excluded.json,
			updated_at = excluded.updated_at,
			ttl_seconds = excluded.ttl_seconds`,
		entry.Key, entry.JSON, entry.UpdatedAt.UnixMilli(), ttl)
	if err != nil {
		return wrap("writing cache", err)
	}
	return nil
}

// DeleteCachePrefix removes cache entries whose key starts with prefix.
func (s *SQLite) DeleteCachePrefix(ctx context.Context, prefix string) (int64, error) {
	// substr avoids LIKE wildcard escaping; SQLite counts characters.
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_cache WHERE substr(key, 1, ?) = ?`,
		utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return 0, wrap("invalidating cache", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("invalidating cache", err)
	}
	return n, nil
}

// InsertScan upserts a scan record. An owned record keeps its owner and a
// synced record stays synced; ownership otherwise changes only through
// ClaimAnonymous.
func (s *SQLite) InsertScan(ctx context.Context, rec types.ScanRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: scan record has no id", ErrPersistence)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scan_history
			(id, user_id, created_at, image_uri, crop_type, disease_name,
			 confidence_score, severity, health, synced)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			user_id = COALESCE(scan_history.user_id, excluded.user_id),
			created_at = excluded.created_at,
			image_uri = excluded.image_uri,
			crop_type = excluded.crop_type,
			disease_name = excluded.disease_name,
			confidence_score = excluded.confidence_score,
			severity = excluded.severity,
			health = excluded.health,
			synced = MAX(scan_history.synced, excluded.synced)`,
		rec.ID, nullString(rec.UserID), rec.CreatedAt.UnixMilli(), rec.ImageURI,
		rec.CropType, rec.DiseaseName, rec.ConfidenceScore,
		string(rec.Severity), string(rec.Health), boolInt(rec.Synced))
	if err != nil {
		return wrap("writing scan", err)
	}
	return nil
}

const scanColumns = `id, user_id, created_at, image_uri, crop_type, disease_name,
	confidence_score, severity, health, synced`

// ListScans returns records newest first.
func (s *SQLite) ListScans(ctx context.Context, limit int) ([]types.ScanRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scanColumns+` FROM scan_history
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, wrap("listing scans", err)
	}
	return scanRecords(rows)
}

// ListPendingScans returns unsynced records of userID or nobody, oldest
// first.
func (s *SQLite) ListPendingScans(ctx context.Context, userID string) ([]types.ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scanColumns+` FROM scan_history
		 WHERE synced = 0 AND (user_id = ? OR user_id IS NULL)
		 ORDER BY created_at ASC, rowid ASC`, userID)
	if err != nil {
		return nil, wrap("listing pending scans", err)
	}
	return scanRecords(rows)
}

// ClaimAnonymous assigns unsynced anonymous records to userID in one
// statement. A second call matches no rows.
func (s *SQLite) ClaimAnonymous(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE scan_history SET user_id = ? WHERE user_id IS NULL AND synced = 0`, userID)
	if err != nil {
		return 0, wrap("claiming scans", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("claiming scans", err)
	}
	return n, nil
}

// MarkSynced sets the synced flag of one record.
func (s *SQLite) MarkSynced(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE scan_history SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return wrap("marking scan synced", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("marking scan synced", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]types.ScanRecord, error) {
	defer rows.Close()

	var out []types.ScanRecord
	for rows.Next() {
		var (
			rec                       types.ScanRecord
			userID, imageURI, crop    sql.NullString
			disease, severity, health sql.NullString
			createdAt                 int64
			confidence                sql.NullFloat64
			synced                    int
		)
		if err := rows.Scan(&rec.ID, &userID, &createdAt, &imageURI, &crop, &disease,
			&confidence, &severity, &health, &synced); err != nil {
			return nil, wrap("reading scan", err)
		}
		rec.UserID = userID.String
		rec.CreatedAt = time.UnixMilli(createdAt)
		rec.ImageURI = imageURI.String
		rec.CropType = crop.String
		rec.DiseaseName = disease.String
		rec.ConfidenceScore = confidence.Float64
		rec.Severity = types.Severity(severity.String)
		rec.Health = types.Health(health.String)
		rec.Synced = synced != 0
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("reading scans", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
