package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/xaenox/notekeeper/internal/models"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

const noteColumns = "id, title, content, tags, created_at"

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	return newPostgresStorage(db, logger)
}

func newPostgresStorage(db *sql.DB, logger *zap.Logger) (*PostgresStorage, error) {
	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	s.logger.Info("Database schema initialized")
	return nil
}

// buildListQuery renders the filtered listing. The search term is matched
// with strpos so LIKE wildcards in user input stay literal.
func buildListQuery(filter models.NoteFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)

	if filter.Search != "" {
		args = append(args, filter.Search)
		n := len(args)
		conditions = append(conditions, fmt.Sprintf(
			"(strpos(lower(title), lower($%d)) > 0 OR strpos(lower(content), lower($%d)) > 0)", n, n))
	}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(tags)", len(args)))
	}

	query := "SELECT " + noteColumns + " FROM notes"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, seq DESC"
	return query, args
}

func (s *PostgresStorage) List(ctx context.Context, filter models.NoteFilter) ([]*models.Note, error) {
	query, args := buildListQuery(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeFault("list notes", err)
	}
	defer rows.Close()

	notes := []*models.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, storeFault("list notes", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, storeFault("list notes", err)
	}

	return notes, nil
}

func (s *PostgresStorage) Get(ctx context.Context, id string) (*models.Note, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = $1", id)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound()
	}
	if err != nil {
		return nil, storeFault("get note", err)
	}
	return note, nil
}

func (s *PostgresStorage) Create(ctx context.Context, input models.NoteInput) (*models.Note, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	input = input.Normalized()

	query := `
		INSERT INTO notes (id, title, content, tags)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + noteColumns

	row := s.db.QueryRowContext(ctx, query, uuid.New().String(), input.Title, input.Content, pq.Array(input.Tags))
	note, err := scanNote(row)
	if err != nil {
		return nil, storeFault("create note", err)
	}
	return note, nil
}

func (s *PostgresStorage) Update(ctx context.Context, id string, input models.NoteInput) (*models.Note, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	input = input.Normalized()

	query := `
		UPDATE notes
		SET title = $1, content = $2, tags = $3
		WHERE id = $4
		RETURNING ` + noteColumns

	row := s.db.QueryRowContext(ctx, query, input.Title, input.Content, pq.Array(input.Tags), id)
	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound()
	}
	if err != nil {
		return nil, storeFault("update note", err)
	}
	return note, nil
}

func (s *PostgresStorage) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = $1", id)
	if err != nil {
		return storeFault("delete note", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storeFault("delete note", err)
	}
	if rowsAffected == 0 {
		return notFound()
	}

	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*models.Note, error) {
	note := &models.Note{}
	if err := row.Scan(&note.ID, &note.Title, &note.Content, pq.Array(&note.Tags), &note.CreatedAt); err != nil {
		return nil, err
	}
	if note.Tags == nil {
		note.Tags = []string{}
	}
	note.CreatedAt = note.CreatedAt.UTC()
	return note, nil
}
