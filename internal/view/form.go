package view

import (
	"slices"
	"strings"

	"github.com/xaenox/notekeeper/internal/models"
)

type FormMode int

const (
	FormCreate FormMode = iota
	FormEdit
)

func (m FormMode) String() string {
	if m == FormEdit {
		return "edit"
	}
	return "create"
}

// Form is the note editor. In edit mode NoteID names the note being replaced.
type Form struct {
	Mode    FormMode
	NoteID  string
	Title   string
	Content string
	Tags    []string
}

func newCreateForm() *Form {
	return &Form{Mode: FormCreate, Tags: []string{}}
}

func newEditForm(note *models.Note) *Form {
	return &Form{
		Mode:    FormEdit,
		NoteID:  note.ID,
		Title:   note.Title,
		Content: note.Content,
		Tags:    append([]string{}, note.Tags...),
	}
}

// AddTag appends the trimmed tag unless it is empty or already present.
func (f *Form) AddTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" || slices.Contains(f.Tags, tag) {
		return false
	}
	f.Tags = append(f.Tags, tag)
	return true
}

func (f *Form) RemoveTag(tag string) {
	f.Tags = slices.DeleteFunc(f.Tags, func(t string) bool { return t == tag })
}

// Ready reports whether title and content are non-blank.
func (f *Form) Ready() bool {
	return strings.TrimSpace(f.Title) != "" && strings.TrimSpace(f.Content) != ""
}

func (f *Form) Input() models.NoteInput {
	return models.NoteInput{
		Title:   f.Title,
		Content: f.Content,
		Tags:    append([]string{}, f.Tags...),
	}
}

func (f *Form) clone() *Form {
	if f == nil {
		return nil
	}
	c := *f
	c.Tags = append([]string{}, f.Tags...)
	return &c
}
