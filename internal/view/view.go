// Package view holds the presentation state of a notes screen: the current
// list, its filters, the load state, and an optional open editor form.
// Renderers read it through Snapshot and drive it through the operations
// below; every mutation is followed by a full refetch of the list.
package view

import (
	"context"
	"sync"

	"github.com/xaenox/notekeeper/internal/models"
	"go.uber.org/zap"
)

const (
	MsgNoNotesYet   = "No notes yet"
	MsgNoNotesFound = "No notes found"

	hintNoNotesYet   = "Create your first note to get started"
	hintNoNotesFound = "Try adjusting your search or filter criteria"
)

// NotesAPI is the subset of the API client the view calls.
type NotesAPI interface {
	List(ctx context.Context, search, tag string) ([]*models.Note, error)
	Create(ctx context.Context, input models.NoteInput) (*models.Note, error)
	Update(ctx context.Context, id string, input models.NoteInput) (*models.Note, error)
	Delete(ctx context.Context, id string) error
}

// State is one of Idle, Loading or Unreachable.
type State interface {
	isState()
	String() string
}

type Idle struct{}

type Loading struct{}

// Unreachable means the last list call failed; only Retry leaves it.
type Unreachable struct {
	Err error
}

func (Idle) isState()        {}
func (Loading) isState()     {}
func (Unreachable) isState() {}

func (Idle) String() string        { return "idle" }
func (Loading) String() string     { return "loading" }
func (Unreachable) String() string { return "unreachable" }

type View struct {
	api    NotesAPI
	logger *zap.Logger

	// opMu serializes operations so responses apply in request order.
	// mu guards the fields below and is never held across a network call.
	opMu sync.Mutex
	mu   sync.RWMutex

	state  State
	notes  []*models.Note
	search string
	tag    string
	form   *Form
}

func New(api NotesAPI, logger *zap.Logger) *View {
	return &View{
		api:    api,
		logger: logger,
		state:  Idle{},
		notes:  []*models.Note{},
	}
}

// Snapshot is a copy of the view safe to read without locking.
type Snapshot struct {
	State  State
	Notes  []*models.Note
	Search string
	Tag    string
	Form   *Form
}

// Filtered reports whether a search term or tag is active.
func (s Snapshot) Filtered() bool {
	return s.Search != "" || s.Tag != ""
}

// EmptyMessage is the headline shown when the list is empty, "" otherwise.
func (s Snapshot) EmptyMessage() string {
	switch {
	case len(s.Notes) > 0:
		return ""
	case s.Filtered():
		return MsgNoNotesFound
	default:
		return MsgNoNotesYet
	}
}

func (s Snapshot) EmptyHint() string {
	switch {
	case len(s.Notes) > 0:
		return ""
	case s.Filtered():
		return hintNoNotesFound
	default:
		return hintNoNotesYet
	}
}

func (v *View) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()

	notes := make([]*models.Note, len(v.notes))
	for i, n := range v.notes {
		notes[i] = n.Clone()
	}
	return Snapshot{
		State:  v.state,
		Notes:  notes,
		Search: v.search,
		Tag:    v.tag,
		Form:   v.form.clone(),
	}
}

// Load fetches the list for the current filters.
func (v *View) Load(ctx context.Context) {
	v.opMu.Lock()
	defer v.opMu.Unlock()
	v.load(ctx)
}

// Retry re-attempts the list call after the service was unreachable.
func (v *View) Retry(ctx context.Context) {
	v.Load(ctx)
}

func (v *View) SetSearch(ctx context.Context, term string) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	v.search = term
	v.mu.Unlock()
	v.load(ctx)
}

// SelectTag filters by tag and clears the search term.
func (v *View) SelectTag(ctx context.Context, tag string) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	v.tag = tag
	v.search = ""
	v.mu.Unlock()
	v.load(ctx)
}

func (v *View) ClearTag(ctx context.Context) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	v.tag = ""
	v.mu.Unlock()
	v.load(ctx)
}

func (v *View) load(ctx context.Context) {
	v.mu.Lock()
	v.state = Loading{}
	search, tag := v.search, v.tag
	v.mu.Unlock()

	notes, err := v.api.List(ctx, search, tag)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.logger.Error("Failed to fetch notes",
			zap.Error(err),
			zap.String("search", search),
			zap.String("tag", tag))
		v.state = Unreachable{Err: err}
		return
	}
	if notes == nil {
		notes = []*models.Note{}
	}
	v.notes = notes
	v.state = Idle{}
}

// OpenCreate opens an empty create form, replacing any open form.
func (v *View) OpenCreate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.form = newCreateForm()
}

// OpenEdit opens the form prefilled from note.
func (v *View) OpenEdit(note *models.Note) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.form = newEditForm(note)
}

// ToggleCreate closes any open form, or opens a create form if none is open.
func (v *View) ToggleCreate() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.form != nil {
		v.form = nil
		return
	}
	v.form = newCreateForm()
}

func (v *View) CloseForm() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.form = nil
}

// EditForm applies fn to the open form. It returns false when no form is open.
func (v *View) EditForm(fn func(f *Form)) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.form == nil {
		return false
	}
	fn(v.form)
	return true
}

// Submit sends the open form as a create or update. It returns false without
// calling the service when no form is open or the form is not ready. The form
// closes only on success; the list is refetched either way.
func (v *View) Submit(ctx context.Context) bool {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	form := v.form.clone()
	if form == nil || !form.Ready() {
		v.mu.Unlock()
		return false
	}
	v.state = Loading{}
	v.mu.Unlock()

	var err error
	switch form.Mode {
	case FormEdit:
		_, err = v.api.Update(ctx, form.NoteID, form.Input())
	default:
		_, err = v.api.Create(ctx, form.Input())
	}

	if err != nil {
		v.logger.Error("Failed to save note",
			zap.Error(err),
			zap.String("mode", form.Mode.String()),
			zap.String("note_id", form.NoteID))
	} else {
		v.mu.Lock()
		v.form = nil
		v.mu.Unlock()
	}

	v.load(ctx)
	return true
}

// Delete removes a note and refetches; a failed delete is only logged.
func (v *View) Delete(ctx context.Context, id string) {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	v.state = Loading{}
	v.mu.Unlock()

	if err := v.api.Delete(ctx, id); err != nil {
		v.logger.Error("Failed to delete note",
			zap.Error(err),
			zap.String("note_id", id))
	}

	v.load(ctx)
}

// Note returns a copy of the listed note with the given id.
func (v *View) Note(id string) (*models.Note, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, n := range v.notes {
		if n.ID == id {
			return n.Clone(), true
		}
	}
	return nil, false
}
