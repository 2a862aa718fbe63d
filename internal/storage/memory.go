package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/notekeeper/internal/models"
)

type MemoryStorage struct {
	mu    sync.RWMutex
	notes map[string]*sequencedNote
	seq   int64
	now   func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notes: make(map[string]*sequencedNote),
		now:   time.Now,
	}
}

func (s *MemoryStorage) List(ctx context.Context, filter models.NoteFilter) ([]*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]sequencedNote, 0, len(s.notes))
	for _, n := range s.notes {
		if filter.Matches(n.note) {
			matched = append(matched, *n)
		}
	}
	sortNewestFirst(matched)

	notes := make([]*models.Note, len(matched))
	for i, n := range matched {
		notes[i] = n.note.Clone()
	}
	return notes, nil
}

func (s *MemoryStorage) Get(ctx context.Context, id string) (*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n, exists := s.notes[id]; exists {
		return n.note.Clone(), nil
	}
	return nil, notFound()
}

func (s *MemoryStorage) Create(ctx context.Context, input models.NoteInput) (*models.Note, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	input = input.Normalized()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	note := &models.Note{
		ID:        uuid.New().String(),
		Title:     input.Title,
		Content:   input.Content,
		Tags:      input.Tags,
		CreatedAt: s.now().UTC(),
	}
	s.notes[note.ID] = &sequencedNote{note: note, seq: s.seq}
	return note.Clone(), nil
}

func (s *MemoryStorage) Update(ctx context.Context, id string, input models.NoteInput) (*models.Note, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	input = input.Normalized()

	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.notes[id]
	if !exists {
		return nil, notFound()
	}

	n.note.Title = input.Title
	n.note.Content = input.Content
	n.note.Tags = input.Tags
	return n.note.Clone(), nil
}

func (s *MemoryStorage) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notes[id]; !exists {
		return notFound()
	}
	delete(s.notes, id)
	return nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
