package responder

import (
	"context"
	"strings"

	"chatwire/pkg/channel"
	"chatwire/pkg/config"
)

// Echo repeats the user's text. Text holding a JSON response object is rendered as that
// response instead, which makes every output shape reachable from a plain client.
type Echo struct{}

func NewEcho() *Echo { return &Echo{} }

// Name implements Responder.
func (*Echo) Name() string { return config.ResponderEcho }

// Handle implements Responder.
func (*Echo) Handle(ctx context.Context, msg *channel.UserMessage) error {
	text := msg.Text()
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "{") {
		if resp, err := channel.DecodeResponse([]byte(text)); err == nil && !emptyResponse(resp) {
			return channel.SendResponse(ctx, msg.Output(), msg.SenderID(), resp)
		}
	}

	return msg.Output().SendText(ctx, msg.SenderID(), text)
}

func emptyResponse(resp channel.Response) bool {
	return resp.Text == "" && resp.Image == "" && resp.Attachment == nil &&
		len(resp.Buttons) == 0 && len(resp.QuickReplies) == 0 && len(resp.Elements) == 0
}
