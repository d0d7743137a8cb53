package channel

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// DefaultSenderID is the conversation key used when the transport supplies none.
const DefaultSenderID = "default"

// UserMessage is one inbound user message plus the output channel its responses go to.
// It is immutable after construction.
type UserMessage struct {
	id           string
	text         string
	hasText      bool
	senderID     string
	inputChannel string
	parseData    map[string]any
	output       OutputChannel
}

// MessageOption configures a UserMessage at construction time.
type MessageOption func(*messageOptions)

type messageOptions struct {
	text          *string
	id            string
	senderID      string
	inputChannel  string
	parseData     map[string]any
	output        OutputChannel
	outputFactory func() OutputChannel
}

// WithText sets the message text. Surrounding whitespace is trimmed.
func WithText(text string) MessageOption {
	return func(o *messageOptions) {
		o.text = &text
	}
}

// WithMessageID sets an explicit message id instead of a generated one.
func WithMessageID(id string) MessageOption {
	return func(o *messageOptions) {
		o.id = id
	}
}

// WithSenderID sets the conversation key. An empty id falls back to DefaultSenderID.
func WithSenderID(id string) MessageOption {
	return func(o *messageOptions) {
		o.senderID = id
	}
}

// WithInputChannel records the name of the channel that produced the message.
func WithInputChannel(name string) MessageOption {
	return func(o *messageOptions) {
		o.inputChannel = name
	}
}

// WithParseData attaches upstream-interpreted data such as a pre-parsed intent.
func WithParseData(data map[string]any) MessageOption {
	return func(o *messageOptions) {
		o.parseData = data
	}
}

// WithOutput binds the message to out.
func WithOutput(out OutputChannel) MessageOption {
	return func(o *messageOptions) {
		o.output = out
	}
}

// WithOutputFactory supplies the constructor used when no output channel is given.
func WithOutputFactory(factory func() OutputChannel) MessageOption {
	return func(o *messageOptions) {
		o.outputFactory = factory
	}
}

// NewUserMessage builds a message envelope. Without WithOutput the output channel comes
// from the output factory, or is a fresh CollectingOutput.
func NewUserMessage(opts ...MessageOption) *UserMessage {
	var o messageOptions
	for _, opt := range opts {
		opt(&o)
	}

	msg := &UserMessage{
		id:           o.id,
		senderID:     o.senderID,
		inputChannel: o.inputChannel,
		parseData:    o.parseData,
		output:       o.output,
	}

	if o.text != nil {
		msg.text = strings.TrimSpace(*o.text)
		msg.hasText = true
	}
	if msg.id == "" {
		msg.id = newMessageID()
	}
	if msg.senderID == "" {
		msg.senderID = DefaultSenderID
	}
	if msg.output == nil && o.outputFactory != nil {
		msg.output = o.outputFactory()
	}
	if msg.output == nil {
		msg.output = NewCollectingOutput()
	}

	return msg
}

// ID returns the unique message id.
func (m *UserMessage) ID() string { return m.id }

// Text returns the trimmed message text, or "" when the message carries none.
func (m *UserMessage) Text() string { return m.text }

// HasText reports whether the message was constructed with a text payload.
func (m *UserMessage) HasText() bool { return m.hasText }

// SenderID returns the conversation key.
func (m *UserMessage) SenderID() string { return m.senderID }

// InputChannel returns the name of the producing input channel, if any.
func (m *UserMessage) InputChannel() string { return m.inputChannel }

// ParseData returns upstream parse metadata; it may be nil.
func (m *UserMessage) ParseData() map[string]any { return m.parseData }

// Output returns the output channel responses must be sent to.
func (m *UserMessage) Output() OutputChannel { return m.output }

// newMessageID returns 128 random bits as 32 lowercase hex characters.
func newMessageID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
