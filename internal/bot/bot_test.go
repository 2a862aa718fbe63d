package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/notekeeper/internal/classifier"
	"github.com/xaenox/notekeeper/internal/models"
	"github.com/xaenox/notekeeper/internal/storage"
	"go.uber.org/zap"
)

const chatID int64 = 42

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests []tgbotapi.Chattable
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
	f.requests = nil
}

func (f *fakeSender) joined() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var texts []string
	for _, m := range f.sent {
		texts = append(texts, m.Text)
	}
	return strings.Join(texts, "\n---\n")
}

// storeAPI serves notes straight from a memory store.
type storeAPI struct {
	store   *storage.MemoryStorage
	listErr error
}

func (s *storeAPI) List(ctx context.Context, search, tag string) ([]*models.Note, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.store.List(ctx, models.NoteFilter{Search: search, Tag: tag})
}

func (s *storeAPI) Create(ctx context.Context, in models.NoteInput) (*models.Note, error) {
	return s.store.Create(ctx, in)
}

func (s *storeAPI) Update(ctx context.Context, id string, in models.NoteInput) (*models.Note, error) {
	return s.store.Update(ctx, id, in)
}

func (s *storeAPI) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func newTestBot() (*Bot, *fakeSender, *storeAPI) {
	sender := &fakeSender{}
	api := &storeAPI{store: storage.NewMemoryStorage()}
	return newBot(sender, api, classifier.NewSimpleClassifier(5), zap.NewNop()), sender, api
}

func textMessage(text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Text: text, Chat: &tgbotapi.Chat{ID: chatID}}}
}

func commandMessage(text string) tgbotapi.Update {
	name, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Text:     text,
		Chat:     &tgbotapi.Chat{ID: chatID},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
	}}
}

func callback(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		Data:    data,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}},
	}}
}

func listAll(t *testing.T, api *storeAPI) []*models.Note {
	t.Helper()
	notes, err := api.store.List(context.Background(), models.NoteFilter{})
	require.NoError(t, err)
	return notes
}

func TestCreateFromText(t *testing.T) {
	ctx := context.Background()
	b, sender, api := newTestBot()

	b.handleUpdate(ctx, textMessage("Groceries | milk, eggs #home"))

	notes := listAll(t, api)
	require.Len(t, notes, 1)
	assert.Equal(t, "Groceries", notes[0].Title)
	assert.Equal(t, "milk, eggs", notes[0].Content)
	assert.Equal(t, []string{"home"}, notes[0].Tags)

	out := sender.joined()
	assert.Contains(t, out, "*Groceries*")
	assert.NotContains(t, out, "Create New Note", "form closes after a successful save")
}

func TestUnparseableTextIsNotSaved(t *testing.T) {
	ctx := context.Background()
	b, sender, api := newTestBot()

	b.handleUpdate(ctx, textMessage("just some words"))

	assert.Empty(t, listAll(t, api))
	assert.Contains(t, sender.joined(), noteFormat)
}

// upperParser files every message under one title, ignoring hashtags.
type upperParser struct{}

func (upperParser) ClassifyContent(string) []string { return []string{} }

func (upperParser) ParseNote(text string) (models.NoteInput, bool) {
	return models.NoteInput{Title: "Inbox", Content: strings.ToUpper(text), Tags: []string{"inbox"}}, true
}

func TestMessagesUseInjectedClassifier(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{}
	api := &storeAPI{store: storage.NewMemoryStorage()}
	b := newBot(sender, api, upperParser{}, zap.NewNop())

	b.handleUpdate(ctx, textMessage("just some words #ignored"))

	notes := listAll(t, api)
	require.Len(t, notes, 1)
	assert.Equal(t, "Inbox", notes[0].Title)
	assert.Equal(t, "JUST SOME WORDS #IGNORED", notes[0].Content)
	assert.Equal(t, []string{"inbox"}, notes[0].Tags)
}

func TestTagChipSelectsTagAndClearsSearch(t *testing.T) {
	ctx := context.Background()
	b, sender, api := newTestBot()
	_, err := api.store.Create(ctx, models.NoteInput{Title: "Groceries", Content: "milk", Tags: []string{"home"}})
	require.NoError(t, err)
	_, err = api.store.Create(ctx, models.NoteInput{Title: "Standup", Content: "milk the release", Tags: []string{"work"}})
	require.NoError(t, err)

	b.handleUpdate(ctx, commandMessage("/search milk"))
	require.Len(t, b.views[chatID].Snapshot().Notes, 2)

	sender.reset()
	b.handleUpdate(ctx, callback("tag:home"))

	snap := b.views[chatID].Snapshot()
	assert.Equal(t, "home", snap.Tag)
	assert.Empty(t, snap.Search)
	require.Len(t, snap.Notes, 1)
	assert.Equal(t, "Groceries", snap.Notes[0].Title)
	assert.Contains(t, sender.joined(), `Filtered by: \#home`)

	b.handleUpdate(ctx, commandMessage("/cleartag"))
	assert.Empty(t, b.views[chatID].Snapshot().Tag)
	assert.Len(t, b.views[chatID].Snapshot().Notes, 2)
}

func chipData(sender *fakeSender, label string) string {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	for _, msg := range sender.sent {
		markup, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
		if !ok {
			continue
		}
		for _, row := range markup.InlineKeyboard {
			for _, btn := range row {
				if btn.Text == label && btn.CallbackData != nil {
					return *btn.CallbackData
				}
			}
		}
	}
	return ""
}

func TestLongTagChipSelectsTag(t *testing.T) {
	ctx := context.Background()
	b, sender, api := newTestBot()
	long := strings.Repeat("project-", 9)
	_, err := api.store.Create(ctx, models.NoteInput{Title: "Plan", Content: "q3", Tags: []string{long}})
	require.NoError(t, err)
	_, err = api.store.Create(ctx, models.NoteInput{Title: "Other", Content: "misc", Tags: []string{"home"}})
	require.NoError(t, err)

	b.handleUpdate(ctx, commandMessage("/notes"))
	data := chipData(sender, "🏷 "+long)
	require.NotEmpty(t, data, "every tag gets a chip")
	require.LessOrEqual(t, len(data), maxCallbackData)

	b.handleUpdate(ctx, callback(data))

	snap := b.views[chatID].Snapshot()
	assert.Equal(t, long, snap.Tag)
	require.Len(t, snap.Notes, 1)
	assert.Equal(t, "Plan", snap.Notes[0].Title)
}

func TestStaleTagChipLeavesFilterAlone(t *testing.T) {
	ctx := context.Background()
	b, sender, api := newTestBot()
	_, err := api.store.Create(ctx, models.NoteInput{Title: "Plan", Content: "q3", Tags: []string{"work"}})
	require.NoError(t, err)

	b.handleUpdate(ctx, commandMessage("/notes"))
	sender.reset()

	b.handleUpdate(ctx, callback("tagat:gone:0"))
	b.handleUpdate(ctx, callback("tagat:bogus"))

	snap := b.views[chatID].Snapshot()
	assert.Empty(t, snap.Tag)
	assert.Len(t, snap.Notes, 1)
	assert.Contains(t, sender.joined(), "*Plan*")
}

func TestEditAndDelete(t *testing.T) {
	ctx := context.Background()
	b, sender, api := newTestBot()
	note, err := api.store.Create(ctx, models.NoteInput{Title: "old", Content: "body", Tags: []string{"a"}})
	require.NoError(t, err)

	b.handleUpdate(ctx, callback("edit:"+note.ID))
	assert.Contains(t, sender.joined(), "Edit Note")
	assert.Contains(t, sender.joined(), "`old | body #a`")

	b.handleUpdate(ctx, textMessage("new | fresh body #b"))
	got, err := api.store.Get(ctx, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Title)
	assert.Equal(t, []string{"b"}, got.Tags)
	assert.Len(t, listAll(t, api), 1, "edit does not create")

	b.handleUpdate(ctx, commandMessage("/delete "+note.ID))
	assert.Empty(t, listAll(t, api))
	assert.Contains(t, sender.joined(), "No notes yet")
}

func TestNewAndCancel(t *testing.T) {
	ctx := context.Background()
	b, sender, _ := newTestBot()

	b.handleUpdate(ctx, commandMessage("/new"))
	assert.NotNil(t, b.views[chatID].Snapshot().Form)
	assert.Contains(t, sender.joined(), "Create New Note")

	b.handleUpdate(ctx, commandMessage("/cancel"))
	assert.Nil(t, b.views[chatID].Snapshot().Form)

	b.handleUpdate(ctx, callback("new"))
	assert.NotNil(t, b.views[chatID].Snapshot().Form)
	b.handleUpdate(ctx, callback("new"))
	assert.Nil(t, b.views[chatID].Snapshot().Form, "the new-note button toggles")
}

func TestUnreachableAndRetry(t *testing.T) {
	ctx := context.Background()
	b, sender, api := newTestBot()
	api.listErr = errors.New("connection refused")

	b.handleUpdate(ctx, commandMessage("/notes"))
	out := sender.joined()
	assert.Contains(t, out, "Server Connection Error")
	assert.NotContains(t, out, "connection refused")

	api.listErr = nil
	sender.reset()
	b.handleUpdate(ctx, callback("retry"))
	assert.Contains(t, sender.joined(), "No notes yet")
}

func TestCallbacksAreAnswered(t *testing.T) {
	ctx := context.Background()
	b, sender, _ := newTestBot()

	b.handleUpdate(ctx, callback("bogus"))

	require.NotEmpty(t, sender.requests)
	_, ok := sender.requests[0].(tgbotapi.CallbackConfig)
	assert.True(t, ok)
}

func TestUnknownCommand(t *testing.T) {
	b, sender, _ := newTestBot()
	b.handleUpdate(context.Background(), commandMessage("/nope"))
	assert.Contains(t, sender.joined(), "Unknown command")
}
