package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/notekeeper/internal/models"
	"github.com/xaenox/notekeeper/internal/view"
)

// Telegram rejects callback data longer than 64 bytes.
const maxCallbackData = 64

const (
	actionTag      = "tag"
	actionTagAt    = "tagat"
	actionClearTag = "cleartag"
	actionEdit     = "edit"
	actionDelete   = "del"
	actionRetry    = "retry"
	actionNew      = "new"
)

const noteFormat = "Title | content #tag1 #tag2"

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`, "_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// escapeMarkdown escapes text for MarkdownV2.
func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

func callbackData(action, arg string) string {
	if arg == "" {
		return action
	}
	return action + ":" + arg
}

func parseCallback(data string) (action, arg string) {
	action, arg, _ = strings.Cut(data, ":")
	return action, arg
}

func formatDate(note *models.Note) string {
	return note.CreatedAt.Local().Format("Jan 2, 2006, 03:04 PM")
}

type card struct {
	text     string
	keyboard *tgbotapi.InlineKeyboardMarkup
}

func (c card) message(chatID int64) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, c.text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if c.keyboard != nil {
		msg.ReplyMarkup = *c.keyboard
	}
	return msg
}

func keyboard(rows ...[]tgbotapi.InlineKeyboardButton) *tgbotapi.InlineKeyboardMarkup {
	var kept [][]tgbotapi.InlineKeyboardButton
	for _, row := range rows {
		if len(row) > 0 {
			kept = append(kept, row)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(kept...)
	return &kb
}

// renderSnapshot turns the view into the cards sent to the chat: a header,
// one card per note, and the open form if any.
func renderSnapshot(snap view.Snapshot) []card {
	if u, ok := snap.State.(view.Unreachable); ok {
		return []card{renderUnreachable(u)}
	}

	cards := []card{renderHeader(snap)}
	for _, n := range snap.Notes {
		cards = append(cards, renderNote(n))
	}
	if snap.Form != nil {
		cards = append(cards, renderForm(snap.Form))
	}
	return cards
}

func renderUnreachable(view.Unreachable) card {
	text := "⚠️ *Server Connection Error*\n" +
		escapeMarkdown("Unable to connect to the notes service. Please make sure it is running.")
	return card{
		text: text,
		keyboard: keyboard(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Try Again", callbackData(actionRetry, "")),
		)),
	}
}

func renderHeader(snap view.Snapshot) card {
	var sb strings.Builder
	sb.WriteString("📝 *Notes*")
	if len(snap.Notes) > 0 {
		sb.WriteString(escapeMarkdown(fmt.Sprintf(" (%d)", len(snap.Notes))))
	}
	sb.WriteString("\n")

	if snap.Search != "" {
		sb.WriteString("🔎 Search: " + escapeMarkdown(snap.Search) + "\n")
	}
	if snap.Tag != "" {
		sb.WriteString("🏷 Filtered by: " + escapeMarkdown("#"+snap.Tag) + "\n")
	}

	if msg := snap.EmptyMessage(); msg != "" {
		sb.WriteString("\n*" + escapeMarkdown(msg) + "*\n")
		sb.WriteString(escapeMarkdown(snap.EmptyHint()))
	}

	var filterRow []tgbotapi.InlineKeyboardButton
	if snap.Tag != "" {
		filterRow = append(filterRow, tgbotapi.NewInlineKeyboardButtonData("✖ Clear tag", callbackData(actionClearTag, "")))
	}

	newLabel := "➕ New Note"
	if snap.Form != nil && snap.Form.Mode == view.FormCreate {
		newLabel = "Cancel"
	}

	return card{
		text: strings.TrimRight(sb.String(), "\n"),
		keyboard: keyboard(
			filterRow,
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(newLabel, callbackData(actionNew, ""))),
		),
	}
}

func renderNote(n *models.Note) card {
	var sb strings.Builder
	sb.WriteString("*" + escapeMarkdown(n.Title) + "*\n")
	sb.WriteString(escapeMarkdown(n.Content) + "\n\n")
	sb.WriteString("📅 _" + escapeMarkdown(formatDate(n)) + "_")

	var chips []tgbotapi.InlineKeyboardButton
	for i, tag := range n.Tags {
		chips = append(chips, tgbotapi.NewInlineKeyboardButtonData("🏷 "+tag, tagChipData(n, i)))
	}

	return card{
		text: sb.String(),
		keyboard: keyboard(
			chips,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✏️ Edit", callbackData(actionEdit, n.ID)),
				tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", callbackData(actionDelete, n.ID)),
			),
		),
	}
}

// tagChipData names the tag when it fits in callback data, otherwise its
// position on the note.
func tagChipData(n *models.Note, i int) string {
	if data := callbackData(actionTag, n.Tags[i]); len(data) <= maxCallbackData {
		return data
	}
	return callbackData(actionTagAt, n.ID+":"+strconv.Itoa(i))
}

// formLine renders the form back in the format ParseNote reads.
func formLine(f *view.Form) string {
	line := f.Title + " | " + f.Content
	for _, tag := range f.Tags {
		line += " #" + tag
	}
	return line
}

func renderForm(f *view.Form) card {
	var sb strings.Builder
	if f.Mode == view.FormEdit {
		sb.WriteString("*Edit Note*\n")
		sb.WriteString(escapeMarkdown("Send the new version, or /cancel. Current:") + "\n")
		sb.WriteString("`" + escapeCode(formLine(f)) + "`")
	} else {
		sb.WriteString("*Create New Note*\n")
		sb.WriteString(escapeMarkdown("Send it as "+noteFormat+", or /cancel."))
	}
	return card{text: sb.String()}
}

var codeEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")

// escapeCode escapes text inside a MarkdownV2 code span.
func escapeCode(text string) string {
	return codeEscaper.Replace(text)
}

const helpText = `Available commands:
/notes - Show your notes
/search <term> - Search titles and content
/tag <tag> - Show notes with a tag
/cleartag - Remove the tag filter
/new - Create a note
/edit <id> - Edit a note
/delete <id> - Delete a note
/cancel - Close the note form
/retry - Reconnect to the notes service
/help - Show this help message

Send a note as:
` + noteFormat + `
or put the title on the first line and the content below it.`

const welcomeText = `Welcome to Notekeeper! 📝
Organize your thoughts with tags and search.

Use /help to see all available commands.`
