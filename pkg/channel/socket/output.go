package socket

import (
	"context"
	"strings"
	"sync"

	"chatwire/pkg/channel"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type quickReply struct {
	ContentType string `json:"content_type"`
	Title       string `json:"title"`
	Payload     string `json:"payload"`
}

type outboundFrame struct {
	Event        string       `json:"event"`
	SessionID    string       `json:"session_id,omitempty"`
	RecipientID  string       `json:"recipient_id,omitempty"`
	Text         string       `json:"text,omitempty"`
	QuickReplies []quickReply `json:"quick_replies,omitempty"`
	Attachment   any          `json:"attachment,omitempty"`
}

// Output writes bot_uttered frames back over the widget connection.
type Output struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// NewOutput wraps an accepted connection.
func NewOutput(ws *websocket.Conn) *Output {
	return &Output{ws: ws}
}

// Name implements channel.OutputChannel.
func (o *Output) Name() string { return channelName }

// SendText emits one frame per paragraph.
func (o *Output) SendText(ctx context.Context, recipientID, text string) error {
	for _, part := range strings.Split(strings.TrimSpace(text), "\n\n") {
		if err := o.utter(ctx, recipientID, outboundFrame{Text: part}); err != nil {
			return err
		}
	}
	return nil
}

func (o *Output) SendImageURL(ctx context.Context, recipientID, url string) error {
	return o.utter(ctx, recipientID, outboundFrame{Attachment: map[string]any{
		"type":    "image",
		"payload": map[string]any{"src": url},
	}})
}

func (o *Output) SendAttachment(ctx context.Context, recipientID string, attachment any) error {
	return o.utter(ctx, recipientID, outboundFrame{Attachment: attachment})
}

// SendTextWithButtons renders buttons as widget quick replies.
func (o *Output) SendTextWithButtons(ctx context.Context, recipientID, text string, buttons []channel.Button) error {
	replies := make([]quickReply, 0, len(buttons))
	for _, button := range buttons {
		replies = append(replies, quickReply{ContentType: "text", Title: button.Title, Payload: button.Payload})
	}
	return o.utter(ctx, recipientID, outboundFrame{Text: text, QuickReplies: replies})
}

func (o *Output) SendQuickReplies(ctx context.Context, recipientID, text string, quickReplies []channel.Button) error {
	return channel.SendQuickRepliesAsButtons(ctx, o, recipientID, text, quickReplies)
}

// SendCustom sends elements as a generic template attachment.
func (o *Output) SendCustom(ctx context.Context, recipientID string, elements []channel.Element) error {
	return o.utter(ctx, recipientID, outboundFrame{Attachment: map[string]any{
		"type": "template",
		"payload": map[string]any{
			"template_type": "generic",
			"elements":      elements,
		},
	}})
}

func (o *Output) utter(ctx context.Context, recipientID string, frame outboundFrame) error {
	frame.Event = eventBotUttered
	frame.RecipientID = recipientID
	return o.write(ctx, frame)
}

// write serializes frames; a connection allows one concurrent writer.
func (o *Output) write(ctx context.Context, frame outboundFrame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return wsjson.Write(ctx, o.ws, frame)
}
