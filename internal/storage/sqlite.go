package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/xaenox/notekeeper/internal/models"
	"go.uber.org/zap"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// SQLiteStorage keeps notes in a single SQLite file. Tags are stored as a
// JSON array; created_at as Unix nanoseconds.
type SQLiteStorage struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSQLiteStorage opens (or creates) the database at path. Use ":memory:"
// for a throwaway store.
func NewSQLiteStorage(path string, logger *zap.Logger) (*SQLiteStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger.Info("SQLite schema initialized", zap.String("path", path))
	return &SQLiteStorage{db: db, logger: logger, now: time.Now}, nil
}

func (s *SQLiteStorage) List(ctx context.Context, filter models.NoteFilter) ([]*models.Note, error) {
	query := "SELECT id, title, content, tags, created_at FROM notes"
	var args []any
	if filter.Tag != "" {
		query += " WHERE EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE json_each.value = ?)"
		args = append(args, filter.Tag)
	}
	query += " ORDER BY created_at DESC, seq DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeFault("list notes", err)
	}
	defer rows.Close()

	notes := []*models.Note{}
	for rows.Next() {
		note, err := scanSQLiteNote(rows)
		if err != nil {
			return nil, storeFault("list notes", err)
		}
		// SQLite's lower() only folds ASCII, so the text search runs here.
		if filter.Matches(note) {
			notes = append(notes, note)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeFault("list notes", err)
	}

	return notes, nil
}

func (s *SQLiteStorage) Get(ctx context.Context, id string) (*models.Note, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, title, content, tags, created_at FROM notes WHERE id = ?", id)
	note, err := scanSQLiteNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound()
	}
	if err != nil {
		return nil, storeFault("get note", err)
	}
	return note, nil
}

func (s *SQLiteStorage) Create(ctx context.Context, input models.NoteInput) (*models.Note, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	input = input.Normalized()

	tags, err := json.Marshal(input.Tags)
	if err != nil {
		return nil, storeFault("create note", err)
	}

	note := &models.Note{
		ID:        uuid.New().String(),
		Title:     input.Title,
		Content:   input.Content,
		Tags:      input.Tags,
		CreatedAt: s.now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO notes (id, title, content, tags, created_at) VALUES (?, ?, ?, ?, ?)",
		note.ID, note.Title, note.Content, string(tags), note.CreatedAt.UnixNano(),
	)
	if err != nil {
		return nil, storeFault("create note", err)
	}

	return note, nil
}

func (s *SQLiteStorage) Update(ctx context.Context, id string, input models.NoteInput) (*models.Note, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	input = input.Normalized()

	tags, err := json.Marshal(input.Tags)
	if err != nil {
		return nil, storeFault("update note", err)
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE notes SET title = ?, content = ?, tags = ? WHERE id = ?
		 RETURNING id, title, content, tags, created_at`,
		input.Title, input.Content, string(tags), id,
	)
	note, err := scanSQLiteNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound()
	}
	if err != nil {
		return nil, storeFault("update note", err)
	}
	return note, nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return storeFault("delete note", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return storeFault("delete note", err)
	}
	if n == 0 {
		return notFound()
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func scanSQLiteNote(row rowScanner) (*models.Note, error) {
	var (
		note      models.Note
		tags      string
		createdAt int64
	)
	if err := row.Scan(&note.ID, &note.Title, &note.Content, &tags, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &note.Tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	if note.Tags == nil {
		note.Tags = []string{}
	}
	note.CreatedAt = time.Unix(0, createdAt).UTC()
	return &note, nil
}
