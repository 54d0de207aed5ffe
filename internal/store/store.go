// Package store keeps a library of validated document templates: a SQLite
// catalog of template records plus the template files themselves, laid out
// as document_templates/<owner>/<name>.<ext> under the store root.
package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/benjaminschreck/go-clause/pkg/clause"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	catalogFile = "catalog.db"
	blobDir     = "document_templates"

	// MaxNameLength bounds template names.
	MaxNameLength = 50
)

var (
	// ErrNotFound is returned for an unknown template id.
	ErrNotFound = errors.New("template not found")
	// ErrDuplicate is returned when an owner already has a template with
	// the same name.
	ErrDuplicate = errors.New("template already exists")
	// ErrInvalidName is returned for names that are empty, too long, or
	// would escape the owner's directory.
	ErrInvalidName = errors.New("invalid template name")
)

var namePattern = regexp.MustCompile(`^[\p{L}\d_.\-]+( [\p{L}\d_.\-]+)*$`)

// Kind is the container format of a stored template.
type Kind string

const (
	KindDocx Kind = "docx"
	KindText Kind = "text"
)

// Ext returns the file extension used for blobs of this kind.
func (k Kind) Ext() string {
	if k == KindDocx {
		return ".docx"
	}
	return ".txt"
}

// KindOf picks the kind from a file name.
func KindOf(filename string) Kind {
	if clause.IsDocxPath(filename) {
		return KindDocx
	}
	return KindText
}

// Record is one catalog entry.
type Record struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Kind      Kind      `json:"kind"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is a template library rooted at a directory.
type Store struct {
	db     *sql.DB
	root   string
	engine *clause.Engine
	// mu serializes operations that touch both the catalog and the blobs.
	mu sync.Mutex
}

// Open creates root if needed and opens the catalog inside it. Templates
// are validated with engine; nil means clause.DefaultEngine.
func Open(root string, engine *clause.Engine) (*Store, error) {
	if engine == nil {
		engine = clause.DefaultEngine
	}
	if err := os.MkdirAll(filepath.Join(root, blobDir), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(root, catalogFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, root: root, engine: engine}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	clause.GetLogger().WithField("root", root).Debug("Template store opened")
	return s, nil
}

// Close closes the catalog.
func (s *Store) Close() error {
	return s.db.Close()
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS document_templates (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		hash TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(owner, name),
		UNIQUE(path)
	);
	CREATE INDEX IF NOT EXISTS idx_templates_owner ON document_templates(owner);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ValidateName reports whether name can be used as a template or owner name.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%q is longer than %d characters: %w", name, MaxNameLength, ErrInvalidName)
	case !namePattern.MatchString(name):
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

// Add validates data as a template and, only if it is valid, stores it
// under owner/name. filename decides the kind (.docx or plain text).
func (s *Store) Add(ctx context.Context, owner, name, filename string, data []byte) (*Record, error) {
	if err := ValidateName(owner); err != nil {
		return nil, fmt.Errorf("owner: %w", err)
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	kind := KindOf(filename)
	tmpl, err := s.parse(kind, data)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.findByName(ctx, owner, name); err == nil {
		return nil, fmt.Errorf("%s/%s: %w", owner, name, ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	rec := &Record{
		ID:        uuid.NewString(),
		Owner:     owner,
		Name:      name,
		Path:      blobPath(owner, name, kind),
		Kind:      kind,
		Hash:      tmpl.Hash(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	full := s.fullPath(rec.Path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create owner directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write template: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO document_templates (id, owner, name, path, kind, hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Owner, rec.Name, rec.Path, string(rec.Kind), rec.Hash, rec.CreatedAt.Unix(), rec.UpdatedAt.Unix())
	if err != nil {
		os.Remove(full)
		return nil, fmt.Errorf("failed to insert template: %w", err)
	}

	clause.GetLogger().WithFields(clause.Fields{
		"id":    rec.ID,
		"owner": owner,
		"name":  name,
		"kind":  string(kind),
	}).Info("Template stored")

	return rec, nil
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+` WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", id, err)
	}
	return rec, nil
}

// List returns the records of owner ordered by name, or every record when
// owner is empty.
func (s *Store) List(ctx context.Context, owner string) ([]Record, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if owner == "" {
		rows, err = s.db.QueryContext(ctx, selectRecord+` ORDER BY owner, name`)
	} else {
		rows, err = s.db.QueryContext(ctx, selectRecord+` WHERE owner = ? ORDER BY name`, owner)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

// Rename changes a template's name and moves its file accordingly.
func (s *Store) Rename(ctx context.Context, id, newName string) (*Record, error) {
	if err := ValidateName(newName); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Name == newName {
		return rec, nil
	}
	if _, err := s.findByName(ctx, rec.Owner, newName); err == nil {
		return nil, fmt.Errorf("%s/%s: %w", rec.Owner, newName, ErrDuplicate)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	newPath := blobPath(rec.Owner, newName, rec.Kind)
	if err := os.Rename(s.fullPath(rec.Path), s.fullPath(newPath)); err != nil {
		return nil, fmt.Errorf("failed to move template: %w", err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	_, err = s.db.ExecContext(ctx,
		`UPDATE document_templates SET name = ?, path = ?, updated_at = ? WHERE id = ?`,
		newName, newPath, now.Unix(), id)
	if err != nil {
		os.Rename(s.fullPath(newPath), s.fullPath(rec.Path))
		return nil, fmt.Errorf("failed to rename template: %w", err)
	}

	rec.Name = newName
	rec.Path = newPath
	rec.UpdatedAt = now
	return rec, nil
}

// Delete removes a template's file and its catalog entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM document_templates WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	if err := os.Remove(s.fullPath(rec.Path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove template file: %w", err)
	}

	clause.GetLogger().WithField("id", id).Info("Template deleted")
	return nil
}

// Open returns the stored file of a template.
func (s *Store) Open(ctx context.Context, id string) ([]byte, *Record, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(s.fullPath(rec.Path))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read template %s: %w", id, err)
	}
	return data, rec, nil
}

// Load returns the parsed template of a stored record.
func (s *Store) Load(ctx context.Context, id string) (*clause.Template, error) {
	data, rec, err := s.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.parse(rec.Kind, data)
}

// Generate renders a stored template against rc. DOCX templates produce a
// DOCX document, text templates the rendered text.
func (s *Store) Generate(ctx context.Context, id string, rc clause.RenderContext) ([]byte, *Record, error) {
	data, rec, err := s.Open(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if rec.Kind == KindDocx {
		dt, err := s.engine.ParseDocx(data)
		if err != nil {
			return nil, nil, err
		}
		var buf bytes.Buffer
		if err := s.engine.RenderDocx(dt, rc, &buf); err != nil {
			return nil, nil, err
		}
		return buf.Bytes(), rec, nil
	}

	tmpl, err := s.engine.Parse(string(data))
	if err != nil {
		return nil, nil, err
	}
	out, err := s.engine.Render(tmpl, rc)
	if err != nil {
		return nil, nil, err
	}
	return []byte(out), rec, nil
}

func (s *Store) parse(kind Kind, data []byte) (*clause.Template, error) {
	if kind == KindDocx {
		dt, err := s.engine.ParseDocx(data)
		if err != nil {
			return nil, err
		}
		return dt.Template(), nil
	}
	return s.engine.Parse(string(data))
}

func (s *Store) findByName(ctx context.Context, owner, name string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectRecord+` WHERE owner = ? AND name = ?`, owner, name)
	return scanRecord(row)
}

func (s *Store) fullPath(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

func blobPath(owner, name string, kind Kind) string {
	return strings.Join([]string{blobDir, owner, name + kind.Ext()}, "/")
}

const selectRecord = `SELECT id, owner, name, path, kind, hash, created_at, updated_at FROM document_templates`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec              Record
		kind             string
		created, updated int64
	)
	err := row.Scan(&rec.ID, &rec.Owner, &rec.Name, &rec.Path, &kind, &rec.Hash, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template record: %w", err)
	}
	rec.Kind = Kind(kind)
	rec.CreatedAt = time.Unix(created, 0).UTC()
	rec.UpdatedAt = time.Unix(updated, 0).UTC()
	return &rec, nil
}
