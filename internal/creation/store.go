package creation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// schema is applied on every open; all statements are idempotent.
//
// seq is the insertion counter: "most recent first" is ORDER BY seq DESC,
// which stays correct even when two creations share a timestamp.
// created_at is stored as RFC3339Nano text so timestamps survive the
// round trip bit-for-bit.
const schema = `
CREATE TABLE IF NOT EXISTS creations (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    name TEXT NOT NULL,
    html TEXT NOT NULL,
    kind TEXT NOT NULL CHECK(kind IN ('artifact', 'image')),
    input_data_url TEXT,
    input_mime TEXT,
    created_at TEXT NOT NULL,
    identifications TEXT
);
`

// Store persists creations in a local SQLite database.
// Safe for concurrent use; sql.DB serializes access to the file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the creation store at path.
//
// Parameters:
//   - path: SQLite database file, or ":memory:" for tests
//   - logger: logger for debugging (nil = use default)
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open creation store: %w", err)
	}

	// WAL keeps readers unblocked during writes; busy_timeout covers the
	// brief lock contention between the seeder and the first request.
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Put inserts a creation. The record must validate; IDs are unique, so
// inserting the same ID twice fails.
func (s *Store) Put(ctx context.Context, c *Creation) error {
	if err := c.Validate(); err != nil {
		return err
	}

	idents, err := marshalIdentifications(c.Identifications)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO creations (id, name, html, kind, input_data_url, input_mime, created_at, identifications)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Name, c.HTML, string(c.Kind),
		nullable(c.InputDataURL), nullable(c.InputMIME),
		c.CreatedAt.UTC().Format(time.RFC3339Nano), idents,
	)
	if err != nil {
		return fmt.Errorf("put creation %s: %w", c.ID, err)
	}

	s.logger.Debug("stored creation", "id", c.ID, "kind", c.Kind, "name", c.Name)
	return nil
}

// Get retrieves a creation by ID.
// Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Creation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, html, kind, input_data_url, input_mime, created_at, identifications
		 FROM creations WHERE id = ?`, id.String())

	c, err := scanCreation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get creation %s: %w", id, err)
	}
	return c, nil
}

// List returns the full history, most recent first.
func (s *Store) List(ctx context.Context) ([]*Creation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, html, kind, input_data_url, input_mime, created_at, identifications
		 FROM creations ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list creations: %w", err)
	}
	defer rows.Close()

	var creations []*Creation
	for rows.Next() {
		c, err := scanCreation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan creation: %w", err)
		}
		creations = append(creations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list creations: %w", err)
	}
	return creations, nil
}

// Count returns the number of stored creations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM creations").Scan(&n); err != nil {
		return 0, fmt.Errorf("count creations: %w", err)
	}
	return n, nil
}

// Import stores a record unless its ID is already present. When the ID
// exists, the stored record is returned unchanged and imported is false —
// importing the same file twice never duplicates history.
func (s *Store) Import(ctx context.Context, c *Creation) (stored *Creation, imported bool, err error) {
	if err := c.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := s.Get(ctx, c.ID)
	switch {
	case err == nil:
		s.logger.Debug("import matched existing creation", "id", c.ID)
		return existing, false, nil
	case errors.Is(err, ErrNotFound):
		// fall through to insert
	default:
		return nil, false, err
	}

	if err := s.Put(ctx, c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// Prune evicts the oldest creations so that at most max remain.
// max <= 0 disables eviction. Returns the number of evicted records.
func (s *Store) Prune(ctx context.Context, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM creations WHERE seq NOT IN
		   (SELECT seq FROM creations ORDER BY seq DESC LIMIT ?)`, max)
	if err != nil {
		return 0, fmt.Errorf("prune creations: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune creations: %w", err)
	}
	if n > 0 {
		s.logger.Debug("evicted creations", "count", n, "cap", max)
	}
	return int(n), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCreation(row scanner) (*Creation, error) {
	var (
		c          Creation
		id         string
		kind       string
		dataURL    sql.NullString
		mime       sql.NullString
		createdAt  string
		identsJSON sql.NullString
	)
	if err := row.Scan(&id, &c.Name, &c.HTML, &kind, &dataURL, &mime, &createdAt, &identsJSON); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	c.ID = parsed
	c.Kind = Kind(kind)
	c.InputDataURL = dataURL.String
	c.InputMIME = mime.String

	c.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}

	if identsJSON.Valid && identsJSON.String != "" {
		if err := json.Unmarshal([]byte(identsJSON.String), &c.Identifications); err != nil {
			return nil, fmt.Errorf("parse identifications: %w", err)
		}
	}
	return &c, nil
}

func marshalIdentifications(idents []Identification) (sql.NullString, error) {
	if len(idents) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(idents)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal identifications: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
