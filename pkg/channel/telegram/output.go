package telegram

import (
	"context"
	"strconv"
	"strings"

	"chatwire/pkg/channel"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

// Output renders responses with native Telegram messages, photos, and keyboards.
// Attachments and custom elements fall back to text.
type Output struct {
	bot Sender
}

// NewOutput wraps bot.
func NewOutput(bot Sender) *Output {
	return &Output{bot: bot}
}

// Name implements channel.OutputChannel.
func (o *Output) Name() string { return channelName }

// SendText sends text as one message; Telegram renders paragraphs itself.
func (o *Output) SendText(ctx context.Context, recipientID, text string) error {
	_, err := o.bot.SendMessage(ctx, tu.Message(chatID(recipientID), text))
	return err
}

// SendImageURL sends the image by URL.
func (o *Output) SendImageURL(ctx context.Context, recipientID, url string) error {
	_, err := o.bot.SendPhoto(ctx, tu.Photo(chatID(recipientID), tu.FileFromURL(url)))
	return err
}

// SendAttachment posts the attachment descriptor as text.
func (o *Output) SendAttachment(ctx context.Context, recipientID string, attachment any) error {
	return channel.SendAttachmentAsText(ctx, o, recipientID, attachment)
}

// SendTextWithButtons attaches an inline keyboard with one button per row.
func (o *Output) SendTextWithButtons(ctx context.Context, recipientID, text string, buttons []channel.Button) error {
	if len(buttons) == 0 {
		return o.SendText(ctx, recipientID, text)
	}

	rows := make([][]telego.InlineKeyboardButton, 0, len(buttons))
	for _, button := range buttons {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(button.Title).WithCallbackData(callbackData(button)),
		))
	}

	params := tu.Message(chatID(recipientID), textOrPlaceholder(text)).WithReplyMarkup(tu.InlineKeyboard(rows...))
	_, err := o.bot.SendMessage(ctx, params)
	return err
}

// SendQuickReplies shows a one-time reply keyboard.
func (o *Output) SendQuickReplies(ctx context.Context, recipientID, text string, quickReplies []channel.Button) error {
	rows := make([][]telego.KeyboardButton, 0, len(quickReplies))
	for _, reply := range quickReplies {
		rows = append(rows, tu.KeyboardRow(tu.KeyboardButton(reply.Title)))
	}

	keyboard := tu.Keyboard(rows...).WithResizeKeyboard().WithOneTimeKeyboard()
	params := tu.Message(chatID(recipientID), textOrPlaceholder(text)).WithReplyMarkup(keyboard)
	_, err := o.bot.SendMessage(ctx, params)
	return err
}

// SendCustom posts each element as text with its buttons.
func (o *Output) SendCustom(ctx context.Context, recipientID string, elements []channel.Element) error {
	return channel.SendElementsAsText(ctx, o, recipientID, elements)
}

// chatID addresses numeric chat ids directly and anything else as a channel username.
func chatID(recipientID string) telego.ChatID {
	trimmed := strings.TrimSpace(recipientID)
	if id, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return tu.ID(id)
	}
	if !strings.HasPrefix(trimmed, "@") {
		trimmed = "@" + trimmed
	}
	return tu.Username(trimmed)
}

// callbackData is what Telegram echoes back when the button is pressed.
func callbackData(button channel.Button) string {
	if button.Payload != "" {
		return button.Payload
	}
	return button.Title
}

// textOrPlaceholder keeps keyboards sendable: Telegram rejects messages with empty text.
func textOrPlaceholder(text string) string {
	if strings.TrimSpace(text) == "" {
		return "⁣"
	}
	return text
}
