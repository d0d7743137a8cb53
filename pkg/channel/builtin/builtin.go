// Package builtin wires the bundled input channels into a channel.Registry.
package builtin

import (
	"log/slog"
	"time"

	"chatwire/pkg/channel"
	"chatwire/pkg/channel/socket"
	"chatwire/pkg/channel/telegram"

	"go.opentelemetry.io/otel/trace"
)

// Deps carries the shared collaborators channels are built with.
type Deps struct {
	Logger          *slog.Logger
	ResponseTimeout time.Duration
	Queues          channel.QueueFactory
	Observer        channel.FragmentObserver
	Tracer          trace.Tracer
}

// Registry returns factories for rest, telegram, and socket.
func Registry(deps Deps) channel.Registry {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	return channel.Registry{
		"rest": func(channel.Credentials) (channel.InputChannel, error) {
			return channel.NewRestInput(
				channel.WithLogger(log),
				channel.WithResponseTimeout(deps.ResponseTimeout),
				channel.WithQueueFactory(deps.Queues),
				channel.WithFragmentObserver(deps.Observer),
				channel.WithTracer(deps.Tracer),
			), nil
		},
		"telegram": func(creds channel.Credentials) (channel.InputChannel, error) {
			return telegram.FromCredentials(creds, log)
		},
		"socket": func(creds channel.Credentials) (channel.InputChannel, error) {
			return socket.FromCredentials(creds, log)
		},
	}
}
