package channel

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"
)

// Handler is the single ingestion entry point shared by every input channel.
//
// It returns once every response fragment for msg has been sent to msg.Output().
type Handler func(ctx context.Context, msg *UserMessage) error

// SafeHandle calls onNewMessage, turning a panic into an error wrapping ErrHandlerPanic.
func SafeHandle(ctx context.Context, onNewMessage Handler, msg *UserMessage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()

	return onNewMessage(ctx, msg)
}

// Route binds one HTTP method and path, relative to the channel mount point, to a handler.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// InputChannel bridges one external transport (REST, Telegram, a chat widget) into
// user messages. One instance serves many requests.
type InputChannel interface {
	Name() string
	Routes(onNewMessage Handler) []Route
}

// URLPrefixer is implemented by input channels whose mount prefix differs from their name.
type URLPrefixer interface {
	URLPrefix() string
}

// Starter is implemented by input channels that must contact their transport before
// serving traffic (for example to register a webhook URL).
type Starter interface {
	Start(ctx context.Context) error
}

// URLPrefix returns the mount prefix of ch, defaulting to its name.
func URLPrefix(ch InputChannel) string {
	if prefixer, ok := ch.(URLPrefixer); ok {
		if prefix := strings.TrimSpace(prefixer.URLPrefix()); prefix != "" {
			return prefix
		}
	}

	return ch.Name()
}

// TypeName returns the name of v's concrete type, dereferencing pointers.
// Custom channels can use it as their Name.
func TypeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return t.Name()
}
