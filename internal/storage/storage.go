package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/xaenox/notekeeper/internal/errs"
	"github.com/xaenox/notekeeper/internal/models"
	"go.uber.org/zap"
)

// MsgNoteNotFound is the message carried by every not-found error.
const MsgNoteNotFound = "Note not found"

// Storage is the note store. Every method maps to a single store call.
type Storage interface {
	List(ctx context.Context, filter models.NoteFilter) ([]*models.Note, error)
	Get(ctx context.Context, id string) (*models.Note, error)
	Create(ctx context.Context, input models.NoteInput) (*models.Note, error)
	Update(ctx context.Context, id string, input models.NoteInput) (*models.Note, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Supported values for DatabaseConfig.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
)

type DatabaseConfig struct {
	Driver      string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
	SQLitePath  string

	DynamoTable    string
	DynamoRegion   string
	DynamoEndpoint string
}

// Open builds the store selected by config.Driver.
func Open(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (Storage, error) {
	driver := config.Driver
	if config.UseInMemory {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory, "":
		logger.Info("Using in-memory storage")
		return NewMemoryStorage(), nil
	case DriverPostgres:
		logger.Info("Using PostgreSQL storage", zap.String("host", config.Host), zap.String("dbname", config.DBName))
		return NewPostgresStorage(config, logger)
	case DriverSQLite:
		logger.Info("Using SQLite storage", zap.String("path", config.SQLitePath))
		return NewSQLiteStorage(config.SQLitePath, logger)
	case DriverDynamoDB:
		logger.Info("Using DynamoDB storage", zap.String("table", config.DynamoTable))
		return NewDynamoStorage(ctx, config, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}

func notFound() error {
	return errs.New(errs.NotFound, MsgNoteNotFound)
}

func storeFault(op string, err error) error {
	return errs.Wrap(errs.Internal, "failed to "+op, err)
}

// sequencedNote pairs a note with its insert position.
type sequencedNote struct {
	note *models.Note
	seq  int64
}

// sortNewestFirst orders notes by creation time, newest first. Later inserts
// win timestamp ties.
func sortNewestFirst(notes []sequencedNote) {
	sort.Slice(notes, func(i, j int) bool {
		a, b := notes[i], notes[j]
		if !a.note.CreatedAt.Equal(b.note.CreatedAt) {
			return a.note.CreatedAt.After(b.note.CreatedAt)
		}
		return a.seq > b.seq
	})
}
