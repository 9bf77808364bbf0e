package pageindex

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/dshills/inkwell/internal/pageindex/migrations"
)

// Page is one linkable document known to the index.
type Page struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// DefaultLimit caps Search results when the caller passes no limit.
const DefaultLimit = 50

// Store is the SQLite-backed page index. Titles are stored alongside a
// case-folded copy so substring matching is Unicode-aware without
// leaning on SQLite's ASCII-only lower().
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens the index under dataDir, creating the database and
// schema on first use. An empty dataDir defaults to ~/.inkwell/data.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".inkwell", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "pages.db")

	// WAL mode keeps readers unblocked while seeds load.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
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
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(
			"INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Put stores or updates a page.
func (s *Store) Put(ctx context.Context, p Page) error {
	if p.ID == "" || p.Title == "" {
		return fmt.Errorf("%w: id %q title %q", ErrInvalidPage, p.ID, p.Title)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, title, title_folded, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			title_folded = excluded.title_folded,
			updated_at = excluded.updated_at
	`, p.ID, p.Title, strings.ToLower(p.Title))

	if err != nil {
		return fmt.Errorf("saving page: %w", err)
	}
	return nil
}

// Get retrieves a page by ID.
func (s *Store) Get(ctx context.Context, id string) (Page, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, title FROM pages WHERE id = ?", id)

	var p Page
	if err := row.Scan(&p.ID, &p.Title); err != nil {
		if err == sql.ErrNoRows {
			return Page{}, ErrNotFound
		}
		return Page{}, fmt.Errorf("scanning page: %w", err)
	}
	return p, nil
}

// Delete removes a page.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM pages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting page: %w", err)
	}
	return nil
}

// Count returns the number of indexed pages.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM pages").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pages: %w", err)
	}
	return n, nil
}

// Search returns pages whose title contains query, case-insensitively.
// Earlier match positions rank higher; ties break alphabetically. An
// empty query matches every page in title order. A non-positive limit
// applies DefaultLimit.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Page, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var rows *sql.Rows
	var err error
	if query == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, title FROM pages
			ORDER BY title_folded
			LIMIT ?
		`, limit)
	} else {
		folded := strings.ToLower(query)
		rows, err = s.db.QueryContext(ctx, `
			SELECT id, title FROM pages
			WHERE instr(title_folded, ?) > 0
			ORDER BY instr(title_folded, ?), title_folded
			LIMIT ?
		`, folded, folded, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("querying pages: %w", err)
	}
	defer rows.Close()

	var pages []Page //nolint:prealloc // size unknown from query
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.Title); err != nil {
			return nil, fmt.Errorf("scanning page: %w", err)
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pages: %w", err)
	}
	return pages, nil
}

// LoadSeed bulk-loads pages from a JSON file holding an array of
// {id, title} objects. Existing ids are overwritten. Returns the
// number of pages loaded.
func (s *Store) LoadSeed(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}

	var pages []Page
	if err := json.Unmarshal(data, &pages); err != nil {
		return 0, fmt.Errorf("parsing seed file: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pages (id, title, title_folded, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			title_folded = excluded.title_folded,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, p := range pages {
		if p.ID == "" || p.Title == "" {
			return 0, fmt.Errorf("%w: id %q title %q", ErrInvalidPage, p.ID, p.Title)
		}
		if _, err := stmt.ExecContext(ctx, p.ID, p.Title, strings.ToLower(p.Title)); err != nil {
			return 0, fmt.Errorf("saving page %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return len(pages), nil
}
