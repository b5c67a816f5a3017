package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"clip2mp3/internal/filesystem"
	"clip2mp3/internal/logging"
	"clip2mp3/internal/metrics"
)

const defaultTimeout = 5 * time.Second

// sweepProbability is the chance any single request triggers an
// opportunistic sweep, amortizing cleanup cost across traffic.
const sweepProbability = 0.1

// Entry is a cached conversion on disk.
type Entry struct {
	Fingerprint string
	Path        string
	Size        int64
	Format      string
	Quality     string
	Author      string
	Description string
	CoverPath   string
	CreatedAt   time.Time
	LastAccess  time.Time
}

// Meta carries the request parameters and page metadata stored
// alongside the artifact.
type Meta struct {
	Format      string
	Quality     string
	Author      string
	Description string
	CoverPath   string
}

// Options configures a Store.
type Options struct {
	// DBPath is the full path of the SQLite index file.
	DBPath string
	// Dir holds the cached artifacts, named by fingerprint.
	Dir string
	// TTL is how long entries stay valid after creation.
	TTL time.Duration
	// MaxBytes is the capacity ceiling for Dir.
	MaxBytes int64
	// now is injectable for tests.
	now func() time.Time
	// sweepRoll is injectable for tests; returns a value in [0,1).
	sweepRoll func() float64
}

// Store is a TTL- and capacity-bounded cache of converted artifacts,
// indexed in SQLite with the payloads on disk next to it.
type Store struct {
	db       *sql.DB
	dir      string
	ttl      time.Duration
	maxBytes int64

	// writeMu serializes mutations so capacity enforcement sees a
	// consistent total.
	writeMu sync.Mutex

	now       func() time.Time
	sweepRoll func() float64
}

// Open opens (or creates) the cache index and reconciles it against
// the files actually on disk.
func Open(ctx context.Context, opts Options) (*Store, error) {
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", opts.DBPath)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache index: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cache index: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	now := opts.now
	if now == nil {
		now = time.Now
	}
	roll := opts.sweepRoll
	if roll == nil {
		roll = rand.Float64
	}

	s := &Store{
		db:        db,
		dir:       opts.Dir,
		ttl:       opts.TTL,
		maxBytes:  opts.MaxBytes,
		now:       now,
		sweepRoll: roll,
	}

	if err := s.initialize(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	if err := s.reconcile(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reconcile cache: %w", err)
	}
	s.publishGauges(ctx)

	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		fingerprint TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		size INTEGER NOT NULL,
		format TEXT NOT NULL,
		quality TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		cover_path TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		last_access INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_entries_last_access ON entries(last_access);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// reconcile brings index and disk back into agreement after an unclean
// shutdown: rows without files are dropped, files without rows removed.
func (s *Store) reconcile(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT fingerprint, path, cover_path FROM entries`)
	if err != nil {
		return err
	}

	indexed := make(map[string]bool)
	var orphanRows []string
	for rows.Next() {
		var fp, path, coverPath string
		if err := rows.Scan(&fp, &path, &coverPath); err != nil {
			rows.Close()
			return err
		}
		if _, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig()); err != nil {
			orphanRows = append(orphanRows, fp)
			continue
		}
		indexed[filepath.Base(path)] = true
		if coverPath != "" {
			indexed[filepath.Base(coverPath)] = true
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, fp := range orphanRows {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE fingerprint = ?`, fp); err != nil {
			return err
		}
		metrics.CacheEvictionsTotal.WithLabelValues("stale").Inc()
	}

	files, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	removed := 0
	for _, f := range files {
		if f.IsDir() || indexed[f.Name()] {
			continue
		}
		if err := filesystem.RemoveWithRetry(filepath.Join(s.dir, f.Name()), filesystem.DefaultRetryConfig()); err != nil {
			logging.Warn("failed to remove orphaned cache file %s: %v", f.Name(), err)
			continue
		}
		removed++
	}

	if len(orphanRows) > 0 || removed > 0 {
		logging.Info("cache reconciled: dropped %d stale index rows, removed %d orphaned files",
			len(orphanRows), removed)
	}
	return nil
}

// Get returns the live entry for a fingerprint. Expired entries are
// evicted on the spot and reported as a miss.
func (s *Store) Get(ctx context.Context, fingerprint string) (*Entry, bool) {
	row := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, path, size, format, quality, author, description, cover_path, created_at, last_access
		FROM entries WHERE fingerprint = ?`, fingerprint)

	entry, err := scanEntry(row)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logging.Error("cache lookup for %s failed: %v", fingerprint, err)
		}
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}

	now := s.now()
	if s.ttl > 0 && now.Sub(entry.CreatedAt) > s.ttl {
		s.evictFromRead(ctx, entry.Fingerprint, "expired")
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}

	if _, err := filesystem.StatWithRetry(entry.Path, filesystem.DefaultRetryConfig()); err != nil {
		s.evictFromRead(ctx, entry.Fingerprint, "stale")
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE entries SET last_access = ? WHERE fingerprint = ?`,
		now.Unix(), fingerprint); err != nil {
		logging.Warn("failed to touch cache entry %s: %v", fingerprint, err)
	}
	entry.LastAccess = now

	metrics.CacheHitsTotal.Inc()
	return entry, true
}

// Put moves a finished artifact into the cache directory and records
// it. The store owns the file afterwards. An existing entry for the
// same fingerprint is replaced.
func (s *Store) Put(ctx context.Context, fingerprint, artifactPath string, meta Meta) (*Entry, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ext := ".mp3"
	if meta.Format == "video" {
		ext = ".mp4"
	}
	dest := filepath.Join(s.dir, fingerprint+ext)

	if err := moveFile(artifactPath, dest); err != nil {
		return nil, fmt.Errorf("failed to place artifact in cache: %w", err)
	}

	info, err := filesystem.StatWithRetry(dest, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to stat cached artifact: %w", err)
	}

	now := s.now()
	entry := &Entry{
		Fingerprint: fingerprint,
		Path:        dest,
		Size:        info.Size(),
		Format:      meta.Format,
		Quality:     meta.Quality,
		Author:      meta.Author,
		Description: meta.Description,
		CoverPath:   meta.CoverPath,
		CreatedAt:   now,
		LastAccess:  now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entries (fingerprint, path, size, format, quality, author, description, cover_path, created_at, last_access)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			path = excluded.path,
			size = excluded.size,
			format = excluded.format,
			quality = excluded.quality,
			author = excluded.author,
			description = excluded.description,
			cover_path = excluded.cover_path,
			created_at = excluded.created_at,
			last_access = excluded.last_access`,
		entry.Fingerprint, entry.Path, entry.Size, entry.Format, entry.Quality,
		entry.Author, entry.Description, entry.CoverPath,
		entry.CreatedAt.Unix(), entry.LastAccess.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to index cached artifact: %w", err)
	}

	if err := s.enforceCapacity(ctx); err != nil {
		logging.Warn("cache capacity enforcement failed: %v", err)
	}
	s.publishGauges(ctx)
	return entry, nil
}

// MaybeSweep runs a sweep on a small fraction of calls.
func (s *Store) MaybeSweep(ctx context.Context) {
	if s.sweepRoll() >= sweepProbability {
		return
	}
	if _, err := s.Sweep(ctx); err != nil {
		logging.Warn("opportunistic cache sweep failed: %v", err)
	}
}

// Sweep removes expired entries and enforces the capacity ceiling.
// It returns the number of entries removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	removed := 0
	if s.ttl > 0 {
		cutoff := s.now().Add(-s.ttl).Unix()
		expired, err := s.selectEntries(ctx, `SELECT fingerprint, path, size, format, quality, author, description, cover_path, created_at, last_access
			FROM entries WHERE created_at < ?`, cutoff)
		if err != nil {
			return 0, err
		}
		for _, e := range expired {
			s.evict(ctx, e, "expired")
			removed++
		}
	}

	evicted, err := s.enforceCapacityLocked(ctx)
	if err != nil {
		return removed, err
	}
	removed += evicted

	s.publishGauges(ctx)
	if removed > 0 {
		logging.Info("cache sweep removed %d entries", removed)
	}
	return removed, nil
}

// enforceCapacity assumes writeMu is held by the caller via Put.
func (s *Store) enforceCapacity(ctx context.Context) error {
	_, err := s.enforceCapacityLocked(ctx)
	return err
}

// enforceCapacityLocked evicts least-recently-accessed entries until
// total size drops under 90% of the ceiling.
func (s *Store) enforceCapacityLocked(ctx context.Context) (int, error) {
	if s.maxBytes <= 0 {
		return 0, nil
	}

	total, err := s.totalSize(ctx)
	if err != nil {
		return 0, err
	}
	if total <= s.maxBytes {
		return 0, nil
	}

	target := s.maxBytes * 9 / 10
	victims, err := s.selectEntries(ctx, `SELECT fingerprint, path, size, format, quality, author, description, cover_path, created_at, last_access
		FROM entries ORDER BY last_access ASC`)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, v := range victims {
		if total <= target {
			break
		}
		s.evict(ctx, v, "capacity")
		total -= v.Size
		evicted++
	}
	if evicted > 0 {
		logging.Info("cache over capacity: evicted %d entries, %d bytes now in use", evicted, total)
	}
	return evicted, nil
}

// Clear drops every entry and artifact. Returns entries removed and
// bytes freed.
func (s *Store) Clear(ctx context.Context) (int, int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	entries, err := s.selectEntries(ctx, `SELECT fingerprint, path, size, format, quality, author, description, cover_path, created_at, last_access FROM entries`)
	if err != nil {
		return 0, 0, err
	}

	var freed int64
	for _, e := range entries {
		s.evict(ctx, e, "clear")
		freed += e.Size
	}

	s.publishGauges(ctx)
	logging.Info("cache cleared: %d entries, %d bytes freed", len(entries), freed)
	return len(entries), freed, nil
}

// GetStats implements metrics.StatsProvider.
func (s *Store) GetStats() metrics.Stats {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var stats metrics.Stats
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM entries`)
	if err := row.Scan(&stats.Entries, &stats.TotalBytes); err != nil {
		logging.Warn("cache stats query failed: %v", err)
	}
	return stats
}

// Close closes the index.
func (s *Store) Close() error {
	return s.db.Close()
}

// evictFromRead serializes read-path eviction with writers. The
// eviction condition is re-checked under the lock: a Put that replaced
// the entry while the reader was unlocked must not lose its file.
func (s *Store) evictFromRead(ctx context.Context, fingerprint, reason string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	rows, err := s.selectEntries(ctx, `SELECT fingerprint, path, size, format, quality, author, description, cover_path, created_at, last_access
		FROM entries WHERE fingerprint = ?`, fingerprint)
	if err != nil || len(rows) == 0 {
		return
	}
	current := rows[0]

	switch reason {
	case "expired":
		if s.ttl <= 0 || s.now().Sub(current.CreatedAt) <= s.ttl {
			return
		}
	case "stale":
		if _, err := filesystem.StatWithRetry(current.Path, filesystem.DefaultRetryConfig()); err == nil {
			return
		}
	}
	s.evict(ctx, current, reason)
}

// evict removes an entry's files and index row. Callers hold writeMu.
func (s *Store) evict(ctx context.Context, e *Entry, reason string) {
	if err := filesystem.RemoveWithRetry(e.Path, filesystem.DefaultRetryConfig()); err != nil {
		logging.Warn("failed to remove cached artifact %s: %v", e.Path, err)
	}
	if e.CoverPath != "" {
		if err := filesystem.RemoveWithRetry(e.CoverPath, filesystem.DefaultRetryConfig()); err != nil {
			logging.Warn("failed to remove cached cover %s: %v", e.CoverPath, err)
		}
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE fingerprint = ?`, e.Fingerprint); err != nil {
		logging.Warn("failed to drop cache index row %s: %v", e.Fingerprint, err)
		return
	}
	metrics.CacheEvictionsTotal.WithLabelValues(reason).Inc()
	logging.Debug("evicted cache entry %s (%s)", e.Fingerprint, reason)
}

func (s *Store) totalSize(ctx context.Context) (int64, error) {
	var total int64
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM entries`)
	err := row.Scan(&total)
	return total, err
}

func (s *Store) publishGauges(ctx context.Context) {
	var count int
	var total int64
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM entries`)
	if err := row.Scan(&count, &total); err != nil {
		return
	}
	metrics.CacheEntries.Set(float64(count))
	metrics.CacheSizeBytes.Set(float64(total))
}

func (s *Store) selectEntries(ctx context.Context, query string, args ...interface{}) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row scanner) (*Entry, error) {
	var e Entry
	var createdAt, lastAccess int64
	err := row.Scan(&e.Fingerprint, &e.Path, &e.Size, &e.Format, &e.Quality,
		&e.Author, &e.Description, &e.CoverPath, &createdAt, &lastAccess)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = time.Unix(createdAt, 0)
	e.LastAccess = time.Unix(lastAccess, 0)
	return &e, nil
}

// moveFile renames src to dst, copying across filesystems when the
// working and cache directories live on different mounts.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
