package classifier

import (
	"strings"

	"github.com/xaenox/notekeeper/internal/models"
)

// Classifier turns chat text into note input.
type Classifier interface {
	ClassifyContent(content string) []string
	ParseNote(text string) (models.NoteInput, bool)
}

var _ Classifier = (*SimpleClassifier)(nil)

// SimpleClassifier turns hashtags into tags. Tags keep their case because
// tag filtering is case-sensitive.
type SimpleClassifier struct {
	maxTags int
}

// NewSimpleClassifier returns a classifier keeping at most maxTags tags;
// zero or less means no limit.
func NewSimpleClassifier(maxTags int) *SimpleClassifier {
	return &SimpleClassifier{
		maxTags: maxTags,
	}
}

// ClassifyContent extracts hashtags in order of first appearance.
func (c *SimpleClassifier) ClassifyContent(content string) []string {
	result := []string{}
	seen := make(map[string]struct{})

	for _, word := range strings.Fields(content) {
		tag, ok := hashtag(word)
		if !ok {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		result = append(result, tag)

		if c.maxTags > 0 && len(result) == c.maxTags {
			break
		}
	}

	return result
}

// ParseNote reads "Title | content #tag" or a title line followed by content
// lines. Hashtags in the content become tags and are removed from it. It
// returns false when the text has no title or no content.
func (c *SimpleClassifier) ParseNote(text string) (models.NoteInput, bool) {
	var title, body string
	if before, after, found := strings.Cut(text, "|"); found {
		title, body = before, after
	} else if before, after, found := strings.Cut(text, "\n"); found {
		title, body = before, after
	} else {
		return models.NoteInput{}, false
	}

	input := models.NoteInput{
		Title:   strings.TrimSpace(title),
		Content: stripHashtags(body),
		Tags:    c.ClassifyContent(body),
	}
	if input.Title == "" || input.Content == "" {
		return models.NoteInput{}, false
	}
	return input, true
}

func hashtag(word string) (string, bool) {
	if !strings.HasPrefix(word, "#") {
		return "", false
	}
	tag := strings.TrimRight(strings.TrimPrefix(word, "#"), ".,;:!?")
	if tag == "" || strings.HasPrefix(tag, "#") {
		return "", false
	}
	return tag, true
}

// stripHashtags drops hashtag words from each line, keeping line breaks.
func stripHashtags(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		words := strings.Fields(line)
		kept := words[:0]
		for _, w := range words {
			if _, ok := hashtag(w); !ok {
				kept = append(kept, w)
			}
		}
		lines[i] = strings.Join(kept, " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
