// Package socket serves a chat widget over WebSocket.
package socket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"chatwire/pkg/channel"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const channelName = "socket"

const (
	eventUserUttered    = "user_uttered"
	eventBotUttered     = "bot_uttered"
	eventSessionRequest = "session_request"
	eventSessionConfirm = "session_confirm"
)

// inboundFrame is what the widget sends. An empty event means user_uttered.
type inboundFrame struct {
	Event     string `json:"event,omitempty"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// Input accepts widget connections on GET /ws.
type Input struct {
	origins []string
	log     *slog.Logger
}

// NewInput builds the channel. origins are extra host patterns allowed to connect
// besides same-origin pages.
func NewInput(log *slog.Logger, origins ...string) *Input {
	if log == nil {
		log = slog.Default()
	}

	clean := make([]string, 0, len(origins))
	for _, origin := range origins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			clean = append(clean, trimmed)
		}
	}

	return &Input{origins: clean, log: log.With("component", "channel.socket")}
}

// FromCredentials reads the optional comma-separated origins key.
func FromCredentials(creds channel.Credentials, log *slog.Logger) (*Input, error) {
	return NewInput(log, strings.Split(creds.String("origins"), ",")...), nil
}

// Name implements channel.InputChannel.
func (in *Input) Name() string { return channelName }

// Routes implements channel.InputChannel.
func (in *Input) Routes(onNewMessage channel.Handler) []channel.Route {
	return []channel.Route{
		{Method: http.MethodGet, Path: "/", Handler: channel.Health},
		{Method: http.MethodGet, Path: "/ws", Handler: func(w http.ResponseWriter, r *http.Request) {
			in.serveConn(w, r, onNewMessage)
		}},
	}
}

func (in *Input) serveConn(w http.ResponseWriter, r *http.Request, onNewMessage channel.Handler) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: in.origins})
	if err != nil {
		in.log.Warn("Websocket accept failed", "error", err)
		return
	}
	defer ws.CloseNow()

	ctx := r.Context()
	out := NewOutput(ws)
	in.log.Debug("Widget connected", "remote", r.RemoteAddr)

	for {
		var frame inboundFrame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				in.log.Debug("Widget disconnected")
			} else if ctx.Err() == nil {
				in.log.Warn("Failed to read widget frame", "error", err)
			}
			return
		}

		sessionID := strings.TrimSpace(frame.SessionID)
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		switch frame.Event {
		case eventSessionRequest:
			if err := out.write(ctx, outboundFrame{Event: eventSessionConfirm, SessionID: sessionID}); err != nil {
				in.log.Warn("Failed to confirm session", "session_id", sessionID, "error", err)
				return
			}
		case "", eventUserUttered:
			in.dispatch(ctx, out, sessionID, frame.Message, onNewMessage)
		default:
			in.log.Debug("Ignoring widget frame", "event", frame.Event)
		}
	}
}

func (in *Input) dispatch(ctx context.Context, out *Output, sessionID, text string, onNewMessage channel.Handler) {
	msg := channel.NewUserMessage(
		channel.WithText(text),
		channel.WithSenderID(sessionID),
		channel.WithInputChannel(channelName),
		channel.WithOutput(out),
	)
	in.log.Info("Received message", "session_id", sessionID, "content", channel.PreviewText(text))

	err := channel.SafeHandle(ctx, onNewMessage, msg)
	if err != nil && !errors.Is(err, context.Canceled) {
		in.log.Error("Failed to handle widget message", "session_id", sessionID, "error", err)
	}
}
