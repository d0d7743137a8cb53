package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatwire/pkg/channel"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const typingRefreshInterval = 4 * time.Second
const maxUpdateBody = 1 << 20

// Sender is the subset of the Telegram Bot API the channel uses. *telego.Bot satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendPhoto(ctx context.Context, params *telego.SendPhotoParams) (*telego.Message, error)
	SendChatAction(ctx context.Context, params *telego.SendChatActionParams) error
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
	SetWebhook(ctx context.Context, params *telego.SetWebhookParams) error
}

// Input receives Telegram webhook updates and turns them into user messages.
type Input struct {
	bot        Sender
	verify     string
	webhookURL string
	allowFrom  map[string]struct{}
	log        *slog.Logger
}

// Option configures an Input.
type Option func(*Input)

// WithWebhookURL makes Start register url with Telegram.
func WithWebhookURL(url string) Option {
	return func(in *Input) {
		in.webhookURL = strings.TrimSpace(url)
	}
}

// WithAllowFrom restricts accepted senders to the given Telegram user ids.
func WithAllowFrom(ids []string) Option {
	return func(in *Input) {
		in.allowFrom = allowFromSet(ids)
	}
}

// NewInput builds the channel around an existing bot client. verify is the bot username.
func NewInput(bot Sender, verify string, log *slog.Logger, opts ...Option) (*Input, error) {
	if bot == nil {
		return nil, errors.New("telegram bot client is required")
	}
	if log == nil {
		log = slog.Default()
	}

	in := &Input{
		bot:    bot,
		verify: strings.TrimPrefix(strings.TrimSpace(verify), "@"),
		log:    log.With("component", "channel.telegram"),
	}
	for _, opt := range opts {
		opt(in)
	}

	return in, nil
}

// FromCredentials builds the channel from access_token, verify, and optional webhook_url
// and allow_from (comma-separated user ids).
func FromCredentials(creds channel.Credentials, log *slog.Logger) (*Input, error) {
	token := creds.String("access_token")
	verify := creds.String("verify")
	if token == "" || verify == "" {
		return nil, channel.NewMissingCredentialsError(channelName)
	}

	bot, err := telego.NewBot(token, telego.WithDiscardLogger())
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	opts := []Option{WithWebhookURL(creds.String("webhook_url"))}
	if raw := creds.String("allow_from"); raw != "" {
		opts = append(opts, WithAllowFrom(strings.Split(raw, ",")))
	}

	return NewInput(bot, verify, log, opts...)
}

// Name implements channel.InputChannel.
func (in *Input) Name() string {
	return channelName
}

// Start registers the webhook URL with Telegram when one is configured.
func (in *Input) Start(ctx context.Context) error {
	if in.webhookURL == "" {
		return nil
	}

	if err := in.bot.SetWebhook(ctx, &telego.SetWebhookParams{URL: in.webhookURL}); err != nil {
		return fmt.Errorf("set telegram webhook: %w", err)
	}

	in.log.Info("Telegram webhook registered", "url", in.webhookURL, "bot", in.verify)
	return nil
}

// Routes implements channel.InputChannel.
func (in *Input) Routes(onNewMessage channel.Handler) []channel.Route {
	return []channel.Route{
		{Method: http.MethodGet, Path: "/", Handler: channel.Health},
		{Method: http.MethodPost, Path: "/webhook", Handler: func(w http.ResponseWriter, r *http.Request) {
			in.handleUpdate(w, r, onNewMessage)
		}},
	}
}

func (in *Input) handleUpdate(w http.ResponseWriter, r *http.Request, onNewMessage channel.Handler) {
	defer writeSuccess(w)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateBody))
	if err != nil {
		in.log.Warn("Failed to read telegram update", "error", err)
		return
	}

	var update telego.Update
	if err := json.Unmarshal(body, &update); err != nil {
		in.log.Warn("Ignoring malformed telegram update", "error", err)
		return
	}

	chatID, senderID, text, ok := in.extract(r.Context(), update)
	if !ok {
		return
	}
	if !in.senderAllowed(senderID) {
		in.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return
	}

	recipient := strconv.FormatInt(chatID, 10)
	msg := channel.NewUserMessage(
		channel.WithText(text),
		channel.WithSenderID(recipient),
		channel.WithInputChannel(channelName),
		channel.WithOutput(NewOutput(in.bot)),
		channel.WithParseData(map[string]any{"update_id": update.UpdateID}),
	)
	in.log.Info("Received message", "chat_id", recipient, "sender_id", senderID, "content", channel.PreviewText(text))

	stopTyping := in.startTypingIndicator(r.Context(), chatID)
	err = channel.SafeHandle(r.Context(), onNewMessage, msg)
	stopTyping()
	if err != nil {
		in.log.Error("Failed to process telegram message", "chat_id", recipient, "content", channel.PreviewText(text), "error", err)
	}
}

// extract returns the chat id, the sending user id and the text of a message or button press.
func (in *Input) extract(ctx context.Context, update telego.Update) (int64, string, string, bool) {
	if query := update.CallbackQuery; query != nil {
		if err := in.bot.AnswerCallbackQuery(ctx, tu.CallbackQuery(query.ID)); err != nil {
			in.log.Debug("Failed to answer callback query", "error", err)
		}
		if strings.TrimSpace(query.Data) == "" {
			return 0, "", "", false
		}
		// Replies go to the chat that showed the keyboard, which is a group for group bots.
		chatID := query.From.ID
		if query.Message != nil {
			chatID = query.Message.GetChat().ID
		}
		return chatID, strconv.FormatInt(query.From.ID, 10), query.Data, true
	}

	message := update.Message
	if message == nil {
		return 0, "", "", false
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		// Non-text updates (stickers, media) carry nothing the handler understands.
		return 0, "", "", false
	}
	if message.From == nil {
		in.log.Debug("Ignoring message without sender")
		return 0, "", "", false
	}

	return message.Chat.ID, strconv.FormatInt(message.From.ID, 10), content, true
}

// senderAllowed checks whether a sender is permitted by allow_from.
//
// When no allow list is configured, all senders are accepted.
func (in *Input) senderAllowed(senderID string) bool {
	if len(in.allowFrom) == 0 {
		return true
	}

	_, ok := in.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// startTypingIndicator sends an initial typing action and refreshes it periodically
// until the returned cancel function is called.
func (in *Input) startTypingIndicator(ctx context.Context, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := in.bot.SendChatAction(typingCtx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping)); err != nil && typingCtx.Err() == nil {
			in.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()
	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}

func writeSuccess(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "success")
}
