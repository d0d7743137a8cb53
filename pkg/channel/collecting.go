package channel

import (
	"context"
	"strings"
	"sync"
)

// paragraphSeparator splits multi-paragraph replies into separate fragments.
const paragraphSeparator = "\n\n"

// fragmentStore is where normalized fragments end up: a slice or a queue.
type fragmentStore interface {
	persist(ctx context.Context, fragment Fragment) error
}

// fragmentOutput renders every shape as Fragments and hands them to a store.
// CollectingOutput and QueueOutput differ only in the store.
type fragmentOutput struct {
	store fragmentStore
}

func (o fragmentOutput) SendText(ctx context.Context, recipientID, text string) error {
	for _, part := range strings.Split(text, paragraphSeparator) {
		if err := o.store.persist(ctx, Fragment{RecipientID: recipientID, Text: part}); err != nil {
			return err
		}
	}

	return nil
}

func (o fragmentOutput) SendImageURL(ctx context.Context, recipientID, url string) error {
	return o.store.persist(ctx, Fragment{RecipientID: recipientID, Image: url})
}

func (o fragmentOutput) SendAttachment(ctx context.Context, recipientID string, attachment any) error {
	return o.store.persist(ctx, Fragment{RecipientID: recipientID, Attachment: attachment})
}

func (o fragmentOutput) SendTextWithButtons(ctx context.Context, recipientID, text string, buttons []Button) error {
	return o.store.persist(ctx, Fragment{RecipientID: recipientID, Text: text, Buttons: buttons})
}

func (o fragmentOutput) SendQuickReplies(ctx context.Context, recipientID, text string, quickReplies []Button) error {
	return o.SendTextWithButtons(ctx, recipientID, text, quickReplies)
}

func (o fragmentOutput) SendCustom(ctx context.Context, recipientID string, elements []Element) error {
	for _, element := range elements {
		text := element.Title + " : " + element.Subtitle
		if err := o.SendTextWithButtons(ctx, recipientID, text, element.Buttons); err != nil {
			return err
		}
	}

	return nil
}

// CollectingOutput buffers fragments in memory for one synchronous request.
type CollectingOutput struct {
	fragmentOutput

	mu       sync.Mutex
	messages []Fragment
}

// NewCollectingOutput returns an empty collector.
func NewCollectingOutput() *CollectingOutput {
	c := &CollectingOutput{}
	c.store = c
	return c
}

// Name implements OutputChannel.
func (c *CollectingOutput) Name() string { return "collector" }

// Messages returns a copy of the collected fragments in send order. It never returns nil.
func (c *CollectingOutput) Messages() []Fragment {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Fragment, len(c.messages))
	copy(out, c.messages)
	return out
}

// LatestOutput returns the most recent fragment, or nil when nothing was sent yet.
func (c *CollectingOutput) LatestOutput() (*Fragment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.messages) == 0 {
		return nil, nil
	}

	latest := c.messages[len(c.messages)-1]
	return &latest, nil
}

func (c *CollectingOutput) persist(_ context.Context, fragment Fragment) error {
	c.mu.Lock()
	c.messages = append(c.messages, fragment)
	c.mu.Unlock()
	return nil
}
