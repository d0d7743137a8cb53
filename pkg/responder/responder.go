// Package responder holds the response generators the gateway hands messages to.
package responder

import (
	"context"
	"fmt"
	"log/slog"

	"chatwire/pkg/channel"
	"chatwire/pkg/config"
	"chatwire/pkg/responder/openai"
)

// Responder turns one user message into output on the message's channel.
type Responder interface {
	Name() string
	Handle(ctx context.Context, msg *channel.UserMessage) error
}

// HealthChecker is implemented by responders backed by a remote service.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// New builds the responder selected by cfg.Type.
func New(cfg config.ResponderConfig, log *slog.Logger) (Responder, error) {
	if log == nil {
		log = slog.Default()
	}
	log.With("component", "responder.factory").Debug("Resolving responder", "type", cfg.Type)

	switch cfg.Type {
	case "", config.ResponderEcho:
		return NewEcho(), nil
	case config.ResponderOpenAI:
		return openai.New(cfg.OpenAI, log)
	default:
		return nil, fmt.Errorf("unsupported responder: %s", cfg.Type)
	}
}
