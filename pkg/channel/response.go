package channel

import (
	"encoding/json"
	"fmt"
	"maps"
)

// Button is one selectable option attached to a message.
//
// Attributes other than title and payload are kept in Extra and serialized inline.
type Button struct {
	Title   string
	Payload string
	Extra   map[string]any
}

// MarshalJSON flattens Extra next to title and payload.
func (b Button) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(b.Extra)+2)
	maps.Copy(out, b.Extra)
	out["title"] = b.Title
	if b.Payload != "" {
		out["payload"] = b.Payload
	}

	return json.Marshal(out)
}

// UnmarshalJSON accepts any object; a missing title decodes as "".
func (b *Button) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*b = buttonFromMap(raw)
	return nil
}

// Element is one item of a custom multi-item (carousel) message.
type Element struct {
	Title    string
	Subtitle string
	Buttons  []Button
	Extra    map[string]any
}

// MarshalJSON flattens Extra next to the known element fields.
func (e Element) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+3)
	maps.Copy(out, e.Extra)
	out["title"] = e.Title
	if e.Subtitle != "" {
		out["subtitle"] = e.Subtitle
	}
	if len(e.Buttons) > 0 {
		out["buttons"] = e.Buttons
	}

	return json.Marshal(out)
}

// UnmarshalJSON accepts any object and tolerates missing or mistyped fields.
func (e *Element) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*e = elementFromMap(raw)
	return nil
}

// Response is the payload a response generator hands to SendResponse.
type Response struct {
	Text         string    `json:"text,omitempty"`
	Image        string    `json:"image,omitempty"`
	Buttons      []Button  `json:"buttons,omitempty"`
	QuickReplies []Button  `json:"quick_replies,omitempty"`
	Attachment   any       `json:"attachment,omitempty"`
	Elements     []Element `json:"elements,omitempty"`
}

// Fragment is the normalized unit buffered or emitted by collecting and queue channels.
// Absent fields are never serialized.
type Fragment struct {
	RecipientID string   `json:"recipient_id"`
	Text        string   `json:"text,omitempty"`
	Image       string   `json:"image,omitempty"`
	Buttons     []Button `json:"buttons,omitempty"`
	Attachment  any      `json:"attachment,omitempty"`
}

// DecodeResponse parses a JSON object into a Response. Only invalid JSON is an error;
// unknown or mistyped fields are dropped.
func DecodeResponse(data []byte) (Response, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}

	return ResponseFromMap(raw), nil
}

// ResponseFromMap converts a loosely typed payload into a Response.
func ResponseFromMap(raw map[string]any) Response {
	resp := Response{
		Text:         stringValue(raw["text"]),
		Image:        stringValue(raw["image"]),
		Buttons:      buttonsValue(raw["buttons"]),
		QuickReplies: buttonsValue(raw["quick_replies"]),
		Attachment:   raw["attachment"],
	}

	if items, ok := raw["elements"].([]any); ok {
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				resp.Elements = append(resp.Elements, elementFromMap(m))
			}
		}
	}

	return resp
}

func buttonFromMap(raw map[string]any) Button {
	b := Button{
		Title:   stringValue(raw["title"]),
		Payload: stringValue(raw["payload"]),
	}

	for key, value := range raw {
		if key == "title" || key == "payload" {
			continue
		}
		if b.Extra == nil {
			b.Extra = make(map[string]any)
		}
		b.Extra[key] = value
	}

	return b
}

func elementFromMap(raw map[string]any) Element {
	e := Element{
		Title:    stringValue(raw["title"]),
		Subtitle: stringValue(raw["subtitle"]),
		Buttons:  buttonsValue(raw["buttons"]),
	}

	for key, value := range raw {
		switch key {
		case "title", "subtitle", "buttons":
			continue
		}
		if e.Extra == nil {
			e.Extra = make(map[string]any)
		}
		e.Extra[key] = value
	}

	return e
}

func buttonsValue(value any) []Button {
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	buttons := make([]Button, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			buttons = append(buttons, buttonFromMap(m))
		}
	}
	if len(buttons) == 0 {
		return nil
	}

	return buttons
}

func stringValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64, bool, json.Number:
		return fmt.Sprint(typed)
	default:
		return ""
	}
}
