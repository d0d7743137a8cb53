package channel

import (
	"errors"
	"fmt"
)

// DocsPath is where connector setup instructions live.
const DocsPath = "docs/connectors.md"

var (
	// ErrUnsupportedOperation is returned for operations a channel variant cannot perform,
	// such as peeking at the latest output of a queue-backed channel.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrHandlerPanic wraps a panic recovered from a response generator.
	ErrHandlerPanic = errors.New("message handler panicked")
)

// MissingCredentialsError reports that a channel requires credentials that were not supplied.
type MissingCredentialsError struct {
	Channel string
}

// NewMissingCredentialsError builds the configuration error for the named channel.
func NewMissingCredentialsError(channel string) error {
	return &MissingCredentialsError{Channel: channel}
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf(
		"to use the %s input channel, you need to pass a credentials file using '--credentials'; "+
			"the file must contain the %s authentication information (details: %s#%s-setup)",
		e.Channel, e.Channel, DocsPath, e.Channel,
	)
}
