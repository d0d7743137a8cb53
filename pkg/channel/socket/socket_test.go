package socket

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatwire/pkg/channel"
	"chatwire/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func dialWidget(t *testing.T, handler channel.Handler) *websocket.Conn {
	t.Helper()

	router := chi.NewRouter()
	channel.Register([]channel.InputChannel{NewInput(logger.Discard())}, router, "/webhooks/", handler)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/webhooks/socket/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func readFrame(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var frame map[string]any
	require.NoError(t, wsjson.Read(ctx, ws, &frame))
	return frame
}

func TestWidgetRoundTrip(t *testing.T) {
	got := make(chan *channel.UserMessage, 1)
	ws := dialWidget(t, func(ctx context.Context, msg *channel.UserMessage) error {
		got <- msg
		if err := msg.Output().SendText(ctx, msg.SenderID(), "first\n\nsecond"); err != nil {
			return err
		}
		return msg.Output().SendTextWithButtons(ctx, msg.SenderID(), "pick", []channel.Button{{Title: "Yes", Payload: "/affirm"}})
	})

	ctx := context.Background()
	require.NoError(t, wsjson.Write(ctx, ws, map[string]string{"message": " hi ", "session_id": "s-1"}))

	msg := <-got
	assert.Equal(t, "hi", msg.Text())
	assert.Equal(t, "s-1", msg.SenderID())
	assert.Equal(t, "socket", msg.InputChannel())

	first := readFrame(t, ws)
	assert.Equal(t, "bot_uttered", first["event"])
	assert.Equal(t, "first", first["text"])
	assert.Equal(t, "s-1", first["recipient_id"])
	assert.Equal(t, "second", readFrame(t, ws)["text"])

	buttons := readFrame(t, ws)
	assert.Equal(t, "pick", buttons["text"])
	assert.Equal(t, []any{map[string]any{"content_type": "text", "title": "Yes", "payload": "/affirm"}}, buttons["quick_replies"])
}

func TestWidgetRichFrames(t *testing.T) {
	ws := dialWidget(t, func(ctx context.Context, msg *channel.UserMessage) error {
		out := msg.Output()
		if err := out.SendImageURL(ctx, msg.SenderID(), "https://example.com/a.png"); err != nil {
			return err
		}
		if err := out.SendCustom(ctx, msg.SenderID(), []channel.Element{{Title: "Hat"}}); err != nil {
			return err
		}
		return out.SendAttachment(ctx, msg.SenderID(), map[string]any{"type": "file"})
	})

	require.NoError(t, wsjson.Write(context.Background(), ws, map[string]string{"message": "show", "session_id": "s-2"}))

	image := readFrame(t, ws)["attachment"].(map[string]any)
	assert.Equal(t, "image", image["type"])
	assert.Equal(t, map[string]any{"src": "https://example.com/a.png"}, image["payload"])

	template := readFrame(t, ws)["attachment"].(map[string]any)
	assert.Equal(t, "template", template["type"])
	payload := template["payload"].(map[string]any)
	assert.Equal(t, "generic", payload["template_type"])
	assert.Len(t, payload["elements"], 1)

	assert.Equal(t, map[string]any{"type": "file"}, readFrame(t, ws)["attachment"])
}

func TestWidgetSessionRequest(t *testing.T) {
	ws := dialWidget(t, func(context.Context, *channel.UserMessage) error {
		t.Error("handler must not be called for session requests")
		return nil
	})

	require.NoError(t, wsjson.Write(context.Background(), ws, map[string]string{"event": "session_request"}))

	frame := readFrame(t, ws)
	assert.Equal(t, "session_confirm", frame["event"])
	assert.NotEmpty(t, frame["session_id"])
}

func TestWidgetSurvivesHandlerPanic(t *testing.T) {
	calls := 0
	ws := dialWidget(t, func(ctx context.Context, msg *channel.UserMessage) error {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return msg.Output().SendText(ctx, msg.SenderID(), "still here")
	})

	ctx := context.Background()
	require.NoError(t, wsjson.Write(ctx, ws, map[string]string{"message": "one", "session_id": "s"}))
	require.NoError(t, wsjson.Write(ctx, ws, map[string]string{"message": "two", "session_id": "s"}))

	assert.Equal(t, "still here", readFrame(t, ws)["text"])
}

func TestFromCredentialsOrigins(t *testing.T) {
	in, err := FromCredentials(channel.Credentials{"origins": "app.example.com, ,*.example.org"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.example.com", "*.example.org"}, in.origins)

	in, err = FromCredentials(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, in.origins)
}
