package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// OutputChannel is a sink for bot responses. Concrete channels render the shapes their
// transport supports natively and fall back to the Send*AsText helpers for the rest.
type OutputChannel interface {
	Name() string
	SendText(ctx context.Context, recipientID, text string) error
	SendImageURL(ctx context.Context, recipientID, url string) error
	SendAttachment(ctx context.Context, recipientID string, attachment any) error
	SendTextWithButtons(ctx context.Context, recipientID, text string, buttons []Button) error
	SendQuickReplies(ctx context.Context, recipientID, text string, quickReplies []Button) error
	SendCustom(ctx context.Context, recipientID string, elements []Element) error
}

// TextSender is the one operation every degraded shape is expressed in.
type TextSender interface {
	SendText(ctx context.Context, recipientID, text string) error
}

// SendResponse dispatches resp to the shape-specific operations of out.
//
// Elements are sent first. Quick replies win over buttons, which win over plain text.
// Image and attachment are sent independently afterwards. The first failing send stops
// the dispatch.
func SendResponse(ctx context.Context, out OutputChannel, recipientID string, resp Response) error {
	if len(resp.Elements) > 0 {
		if err := out.SendCustom(ctx, recipientID, resp.Elements); err != nil {
			return fmt.Errorf("send elements: %w", err)
		}
	}

	switch {
	case len(resp.QuickReplies) > 0:
		if err := out.SendQuickReplies(ctx, recipientID, resp.Text, resp.QuickReplies); err != nil {
			return fmt.Errorf("send quick replies: %w", err)
		}
	case len(resp.Buttons) > 0:
		if err := out.SendTextWithButtons(ctx, recipientID, resp.Text, resp.Buttons); err != nil {
			return fmt.Errorf("send buttons: %w", err)
		}
	case resp.Text != "":
		if err := out.SendText(ctx, recipientID, resp.Text); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}

	if resp.Image != "" {
		if err := out.SendImageURL(ctx, recipientID, resp.Image); err != nil {
			return fmt.Errorf("send image: %w", err)
		}
	}

	if resp.Attachment != nil {
		if err := out.SendAttachment(ctx, recipientID, resp.Attachment); err != nil {
			return fmt.Errorf("send attachment: %w", err)
		}
	}

	return nil
}

// SendImageURLAsText posts the image URL as "Image: <url>".
func SendImageURLAsText(ctx context.Context, out TextSender, recipientID, url string) error {
	return out.SendText(ctx, recipientID, "Image: "+url)
}

// SendAttachmentAsText posts the attachment as "Attachment: <descriptor>".
func SendAttachmentAsText(ctx context.Context, out TextSender, recipientID string, attachment any) error {
	return out.SendText(ctx, recipientID, "Attachment: "+describe(attachment))
}

// SendButtonsAsText posts text followed by one line per button.
func SendButtonsAsText(ctx context.Context, out TextSender, recipientID, text string, buttons []Button) error {
	if text != "" {
		if err := out.SendText(ctx, recipientID, text); err != nil {
			return err
		}
	}

	for idx, button := range buttons {
		if err := out.SendText(ctx, recipientID, ButtonString(button, idx)); err != nil {
			return err
		}
	}

	return nil
}

// SendQuickRepliesAsButtons renders quick replies with the channel's own button support.
func SendQuickRepliesAsButtons(ctx context.Context, out OutputChannel, recipientID, text string, quickReplies []Button) error {
	return out.SendTextWithButtons(ctx, recipientID, text, quickReplies)
}

// SendElementsAsText posts every element as "<title> : <subtitle>" together with its buttons.
func SendElementsAsText(ctx context.Context, out OutputChannel, recipientID string, elements []Element) error {
	for _, element := range elements {
		text := element.Title + " : " + element.Subtitle
		if err := out.SendTextWithButtons(ctx, recipientID, text, element.Buttons); err != nil {
			return err
		}
	}

	return nil
}

// ButtonString formats button as "<idx+1>: <title> (<payload>) - <extra json>".
// The payload and extra segments are omitted when empty.
func ButtonString(button Button, idx int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d: %s", idx+1, button.Title)
	if button.Payload != "" {
		fmt.Fprintf(&b, " (%s)", button.Payload)
	}
	if len(button.Extra) > 0 {
		b.WriteString(" - ")
		b.WriteString(detailsJSON(button.Extra))
	}

	return b.String()
}

// NewTextOutput builds an output channel that can only post text. Every other shape
// degrades to text through the Send*AsText helpers.
func NewTextOutput(name string, send func(ctx context.Context, recipientID, text string) error) OutputChannel {
	return &textOutput{name: name, send: send}
}

type textOutput struct {
	name string
	send func(ctx context.Context, recipientID, text string) error
}

func (o *textOutput) Name() string { return o.name }

func (o *textOutput) SendText(ctx context.Context, recipientID, text string) error {
	return o.send(ctx, recipientID, text)
}

func (o *textOutput) SendImageURL(ctx context.Context, recipientID, url string) error {
	return SendImageURLAsText(ctx, o, recipientID, url)
}

func (o *textOutput) SendAttachment(ctx context.Context, recipientID string, attachment any) error {
	return SendAttachmentAsText(ctx, o, recipientID, attachment)
}

func (o *textOutput) SendTextWithButtons(ctx context.Context, recipientID, text string, buttons []Button) error {
	return SendButtonsAsText(ctx, o, recipientID, text, buttons)
}

func (o *textOutput) SendQuickReplies(ctx context.Context, recipientID, text string, quickReplies []Button) error {
	return SendQuickRepliesAsButtons(ctx, o, recipientID, text, quickReplies)
}

func (o *textOutput) SendCustom(ctx context.Context, recipientID string, elements []Element) error {
	return SendElementsAsText(ctx, o, recipientID, elements)
}

func describe(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	return detailsJSON(value)
}

// detailsJSON renders value with sorted keys and ", " / ": " separators so button
// details read the same regardless of map iteration order.
func detailsJSON(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}

	var generic any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return string(raw)
	}

	var b strings.Builder
	writeDetails(&b, generic)
	return b.String()
}

func writeDetails(b *strings.Builder, value any) {
	switch typed := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		slices.Sort(keys)

		b.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			writeScalar(b, key)
			b.WriteString(": ")
			writeDetails(b, typed[key])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range typed {
			if i > 0 {
				b.WriteString(", ")
			}
			writeDetails(b, item)
		}
		b.WriteByte(']')
	default:
		writeScalar(b, typed)
	}
}

// writeScalar keeps <, > and & literal; the result is read by people, not browsers.
func writeScalar(b *strings.Builder, value any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		b.WriteString("null")
		return
	}
	b.Write(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
}
