package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/xaenox/notekeeper/internal/errs"
)

// MsgTitleContentRequired is returned whenever a note is saved without a
// title or content.
const MsgTitleContentRequired = "Title and content are required"

var validate = validator.New()

// Note is a single stored note. Tags are kept in the order they were given.
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
}

// NoteInput carries the user-editable fields of a note for create and update.
type NoteInput struct {
	Title   string   `json:"title" validate:"required"`
	Content string   `json:"content" validate:"required"`
	Tags    []string `json:"tags,omitempty"`
}

// Validate rejects input without a title or content.
func (in NoteInput) Validate() error {
	if err := validate.Struct(in); err != nil {
		return errs.Wrap(errs.InvalidArgument, MsgTitleContentRequired, err)
	}
	return nil
}

// Normalized returns a copy with a non-nil tag slice, so an omitted tag list
// is stored as empty rather than null.
func (in NoteInput) Normalized() NoteInput {
	tags := make([]string, len(in.Tags))
	copy(tags, in.Tags)
	in.Tags = tags
	return in
}

// NoteFilter narrows a note listing. Empty fields do not filter.
type NoteFilter struct {
	Search string
	Tag    string
}

// Matches reports whether n satisfies both filters: Search is a
// case-insensitive substring of the title or content, and Tag equals one of
// the note's tags exactly.
func (f NoteFilter) Matches(n *Note) bool {
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(n.Title), term) &&
			!strings.Contains(strings.ToLower(n.Content), term) {
			return false
		}
	}
	if f.Tag != "" && !n.HasTag(f.Tag) {
		return false
	}
	return true
}

// HasTag reports whether tag is attached to the note.
func (n *Note) HasTag(tag string) bool {
	for _, t := range n.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the note.
func (n *Note) Clone() *Note {
	c := *n
	c.Tags = make([]string, len(n.Tags))
	copy(c.Tags, n.Tags)
	return &c
}
