// Package sqlite provides a durable item store backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bastiangx/suggestserve/pkg/item"
	"github.com/bastiangx/suggestserve/pkg/store"
	"github.com/bastiangx/suggestserve/pkg/store/sqlite/migrations"
)

// Store is a store.Store persisted in a single SQLite file.
// AUTOINCREMENT keeps removed ids from ever being handed out again.
type Store struct {
	db      *sql.DB
	path    string
	version atomic.Uint64

	mu        sync.RWMutex
	listeners []store.Listener
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %s: %w", name, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("applying migration %s: %w", name, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) Put(ctx context.Context, it item.Item) (item.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return item.Item{}, fmt.Errorf("beginning put: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if it.ID == 0 {
		var id int64
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM items WHERE text = ? AND language = ? ORDER BY id LIMIT 1",
			it.Text, it.Language,
		).Scan(&id)
		switch {
		case err == nil:
			it.ID = uint32(id)
		case errors.Is(err, sql.ErrNoRows):
		default:
			return item.Item{}, fmt.Errorf("looking up natural key: %w", err)
		}
	}

	if it.ID == 0 {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO items (text, language, popularity) VALUES (?, ?, ?)",
			it.Text, it.Language, it.Popularity,
		)
		if err != nil {
			return item.Item{}, fmt.Errorf("inserting item: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return item.Item{}, fmt.Errorf("reading inserted id: %w", err)
		}
		if id <= 0 || id > int64(^uint32(0)) {
			return item.Item{}, fmt.Errorf("id %d outside uint32 range", id)
		}
		it.ID = uint32(id)
	} else {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO items (id, text, language, popularity) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				text = excluded.text,
				language = excluded.language,
				popularity = excluded.popularity,
				updated_at = CURRENT_TIMESTAMP
		`, it.ID, it.Text, it.Language, it.Popularity)
		if err != nil {
			return item.Item{}, fmt.Errorf("upserting item %d: %w", it.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return item.Item{}, fmt.Errorf("committing put: %w", err)
	}
	s.changed(it.ID)
	return it, nil
}

func (s *Store) Get(ctx context.Context, id uint32) (item.Item, error) {
	it := item.Item{ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT text, language, popularity FROM items WHERE id = ?", id,
	).Scan(&it.Text, &it.Language, &it.Popularity)
	if errors.Is(err, sql.ErrNoRows) {
		return item.Item{}, fmt.Errorf("get %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return item.Item{}, fmt.Errorf("get %d: %w", id, err)
	}
	return it, nil
}

func (s *Store) Remove(ctx context.Context, id uint32) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("remove %d: %w", id, store.ErrNotFound)
	}
	s.changed(id)
	return nil
}

func (s *Store) SetPopularity(ctx context.Context, id uint32, popularity float64) error {
	if !item.ValidPopularity(popularity) {
		return fmt.Errorf("%w: popularity must be a finite non-negative number", item.ErrInvalidItem)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE items SET popularity = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		popularity, id,
	)
	if err != nil {
		return fmt.Errorf("set popularity %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set popularity %d: %w", id, store.ErrNotFound)
	}
	s.changed(id)
	return nil
}

// All streams rows inside a read-only transaction, which pins a WAL snapshot
// for the duration of one pass.
func (s *Store) All(ctx context.Context) iter.Seq2[item.Item, error] {
	return func(yield func(item.Item, error) bool) {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
		if err != nil {
			yield(item.Item{}, fmt.Errorf("beginning scan: %w", err))
			return
		}
		defer func() { _ = tx.Rollback() }()

		rows, err := tx.QueryContext(ctx,
			"SELECT id, text, language, popularity FROM items ORDER BY id")
		if err != nil {
			yield(item.Item{}, fmt.Errorf("scanning items: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var it item.Item
			if err := rows.Scan(&it.ID, &it.Text, &it.Language, &it.Popularity); err != nil {
				yield(item.Item{}, fmt.Errorf("reading item row: %w", err))
				return
			}
			if !yield(it, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(item.Item{}, fmt.Errorf("scanning items: %w", err))
		}
	}
}

func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting items: %w", err)
	}
	return n, nil
}

func (s *Store) Version() uint64 {
	return s.version.Load()
}

func (s *Store) OnChange(fn store.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Store) changed(id uint32) {
	s.version.Add(1)
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(id)
	}
}
