package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/notekeeper/internal/classifier"
	"github.com/xaenox/notekeeper/internal/view"
	"go.uber.org/zap"
)

// Sender is the part of *tgbotapi.BotAPI the bot writes through.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot renders one notes view per chat.
type Bot struct {
	api        *tgbotapi.BotAPI
	sender     Sender
	notes      view.NotesAPI
	classifier classifier.Classifier
	logger     *zap.Logger

	mu    sync.Mutex
	views map[int64]*view.View
}

func New(token string, notes view.NotesAPI, classifier classifier.Classifier, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := newBot(api, notes, classifier, logger)
	b.api = api
	return b, nil
}

func newBot(sender Sender, notes view.NotesAPI, classifier classifier.Classifier, logger *zap.Logger) *Bot {
	return &Bot{
		sender:     sender,
		notes:      notes,
		classifier: classifier,
		logger:     logger,
		views:      make(map[int64]*view.View),
	}
}

// Start long-polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.logger.Info("Bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

// session returns the chat's view, loading it on first use.
func (b *Bot) session(ctx context.Context, chatID int64) *view.View {
	b.mu.Lock()
	v, ok := b.views[chatID]
	if !ok {
		v = view.New(b.notes, b.logger.With(zap.Int64("chat_id", chatID)))
		b.views[chatID] = v
	}
	b.mu.Unlock()

	if !ok {
		b.typing(chatID)
		v.Load(ctx)
	}
	return v
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.IsCommand() {
		b.handleCommand(ctx, message)
		return
	}

	content := message.Text
	if message.Caption != "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		return
	}

	chatID := message.Chat.ID
	v := b.session(ctx, chatID)

	input, ok := b.classifier.ParseNote(content)
	if !ok {
		b.sendMessage(chatID, "Send a note as:\n"+noteFormat+"\nor use /help.")
		return
	}

	if v.Snapshot().Form == nil {
		v.OpenCreate()
	}
	v.EditForm(func(f *view.Form) {
		f.Title = input.Title
		f.Content = input.Content
		f.Tags = []string{}
		for _, tag := range input.Tags {
			f.AddTag(tag)
		}
	})

	b.typing(chatID)
	v.Submit(ctx)
	b.render(chatID, v)
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	chatID := message.Chat.ID
	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start":
		b.sendMessage(chatID, welcomeText)
		b.render(chatID, b.session(ctx, chatID))
	case "help":
		b.sendMessage(chatID, helpText)
	case "notes":
		v := b.session(ctx, chatID)
		b.typing(chatID)
		v.Load(ctx)
		b.render(chatID, v)
	case "search":
		v := b.session(ctx, chatID)
		b.typing(chatID)
		v.SetSearch(ctx, args)
		b.render(chatID, v)
	case "tag":
		if args == "" {
			b.sendMessage(chatID, "Usage: /tag <tag>")
			return
		}
		b.selectTag(ctx, chatID, strings.TrimPrefix(args, "#"))
	case "cleartag":
		b.clearTag(ctx, chatID)
	case "new":
		v := b.session(ctx, chatID)
		v.OpenCreate()
		b.renderForm(chatID, v)
	case "edit":
		if args == "" {
			b.sendMessage(chatID, "Usage: /edit <id>")
			return
		}
		b.openEdit(ctx, chatID, args)
	case "delete":
		if args == "" {
			b.sendMessage(chatID, "Usage: /delete <id>")
			return
		}
		b.deleteNote(ctx, chatID, args)
	case "cancel":
		v := b.session(ctx, chatID)
		v.CloseForm()
		b.sendMessage(chatID, "Cancelled.")
	case "retry":
		b.retry(ctx, chatID)
	default:
		b.sendMessage(chatID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if _, err := b.sender.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Error("Failed to answer callback",
			zap.Error(err),
			zap.String("callback_id", query.ID))
	}
	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	chatID := query.Message.Chat.ID

	action, arg := parseCallback(query.Data)
	switch action {
	case actionTag:
		b.selectTag(ctx, chatID, arg)
	case actionTagAt:
		v := b.session(ctx, chatID)
		tag, ok := tagAt(v, arg)
		if !ok {
			b.logger.Debug("Tag chip no longer matches a listed note", zap.String("data", query.Data), zap.Int64("chat_id", chatID))
			b.render(chatID, v)
			return
		}
		b.selectTag(ctx, chatID, tag)
	case actionClearTag:
		b.clearTag(ctx, chatID)
	case actionEdit:
		b.openEdit(ctx, chatID, arg)
	case actionDelete:
		b.deleteNote(ctx, chatID, arg)
	case actionRetry:
		b.retry(ctx, chatID)
	case actionNew:
		v := b.session(ctx, chatID)
		v.ToggleCreate()
		if v.Snapshot().Form == nil {
			b.sendMessage(chatID, "Cancelled.")
			return
		}
		b.renderForm(chatID, v)
	default:
		b.logger.Warn("Unknown callback", zap.String("data", query.Data), zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) selectTag(ctx context.Context, chatID int64, tag string) {
	v := b.session(ctx, chatID)
	b.typing(chatID)
	v.SelectTag(ctx, tag)
	b.render(chatID, v)
}

// tagAt resolves a "noteID:index" chip against the notes the chat is showing.
func tagAt(v *view.View, arg string) (string, bool) {
	id, pos, ok := strings.Cut(arg, ":")
	if !ok {
		return "", false
	}
	i, err := strconv.Atoi(pos)
	if err != nil {
		return "", false
	}
	note, found := v.Note(id)
	if !found || i < 0 || i >= len(note.Tags) {
		return "", false
	}
	return note.Tags[i], true
}

func (b *Bot) clearTag(ctx context.Context, chatID int64) {
	v := b.session(ctx, chatID)
	b.typing(chatID)
	v.ClearTag(ctx)
	b.render(chatID, v)
}

func (b *Bot) openEdit(ctx context.Context, chatID int64, id string) {
	v := b.session(ctx, chatID)
	note, ok := v.Note(id)
	if !ok {
		b.sendMessage(chatID, "That note is not in the current list.")
		return
	}
	v.OpenEdit(note)
	b.renderForm(chatID, v)
}

func (b *Bot) deleteNote(ctx context.Context, chatID int64, id string) {
	v := b.session(ctx, chatID)
	b.typing(chatID)
	v.Delete(ctx, id)
	b.render(chatID, v)
}

func (b *Bot) retry(ctx context.Context, chatID int64) {
	v := b.session(ctx, chatID)
	b.typing(chatID)
	v.Retry(ctx)
	b.render(chatID, v)
}

func (b *Bot) render(chatID int64, v *view.View) {
	for _, c := range renderSnapshot(v.Snapshot()) {
		b.send(chatID, c)
	}
}

func (b *Bot) renderForm(chatID int64, v *view.View) {
	if form := v.Snapshot().Form; form != nil {
		b.send(chatID, renderForm(form))
	}
}

func (b *Bot) send(chatID int64, c card) {
	if _, err := b.sender.Send(c.message(chatID)); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Error("Failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID))
	}
}

// typing shows the chat that a request is in flight.
func (b *Bot) typing(chatID int64) {
	if _, err := b.sender.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		b.logger.Debug("Failed to send chat action", zap.Error(err), zap.Int64("chat_id", chatID))
	}
}
