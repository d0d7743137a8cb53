package channel

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

type recordingOutput struct {
	calls []string
	fail  string
}

func (r *recordingOutput) record(call string) error {
	r.calls = append(r.calls, call)
	if call == r.fail {
		return errors.New("boom")
	}
	return nil
}

func (r *recordingOutput) Name() string { return "recording" }

func (r *recordingOutput) SendText(_ context.Context, _, text string) error {
	return r.record("text:" + text)
}

func (r *recordingOutput) SendImageURL(_ context.Context, _, url string) error {
	return r.record("image:" + url)
}

func (r *recordingOutput) SendAttachment(_ context.Context, _ string, _ any) error {
	return r.record("attachment")
}

func (r *recordingOutput) SendTextWithButtons(_ context.Context, _, text string, _ []Button) error {
	return r.record("buttons:" + text)
}

func (r *recordingOutput) SendQuickReplies(_ context.Context, _, text string, _ []Button) error {
	return r.record("quick_replies:" + text)
}

func (r *recordingOutput) SendCustom(_ context.Context, _ string, _ []Element) error {
	return r.record("custom")
}

func TestSendResponseDispatchOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp Response
		want []string
	}{
		{
			name: "text only",
			resp: Response{Text: "hi"},
			want: []string{"text:hi"},
		},
		{
			name: "buttons win over text",
			resp: Response{Text: "pick", Buttons: []Button{{Title: "A"}}},
			want: []string{"buttons:pick"},
		},
		{
			name: "quick replies win over buttons",
			resp: Response{Text: "pick", Buttons: []Button{{Title: "A"}}, QuickReplies: []Button{{Title: "B"}}},
			want: []string{"quick_replies:pick"},
		},
		{
			name: "everything",
			resp: Response{
				Text:         "pick",
				Image:        "https://img",
				QuickReplies: []Button{{Title: "B"}},
				Attachment:   "doc.pdf",
				Elements:     []Element{{Title: "e"}},
			},
			want: []string{"custom", "quick_replies:pick", "image:https://img", "attachment"},
		},
		{
			name: "image without text",
			resp: Response{Image: "https://img"},
			want: []string{"image:https://img"},
		},
		{
			name: "empty",
			resp: Response{},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out := &recordingOutput{}
			if err := SendResponse(context.Background(), out, "u1", tt.resp); err != nil {
				t.Fatalf("SendResponse() error = %v", err)
			}
			if !reflect.DeepEqual(out.calls, tt.want) {
				t.Fatalf("calls = %v, want %v", out.calls, tt.want)
			}
		})
	}
}

func TestSendResponseStopsOnFirstError(t *testing.T) {
	t.Parallel()

	out := &recordingOutput{fail: "custom"}
	err := SendResponse(context.Background(), out, "u1", Response{Text: "x", Elements: []Element{{Title: "e"}}})
	if err == nil || !strings.Contains(err.Error(), "send elements") {
		t.Fatalf("SendResponse() error = %v, want send elements error", err)
	}
	if len(out.calls) != 1 {
		t.Fatalf("calls = %v, want only the failing call", out.calls)
	}
}

func TestCollectingSplitsParagraphs(t *testing.T) {
	t.Parallel()

	out := NewCollectingOutput()
	if err := SendResponse(context.Background(), out, "u1", Response{Text: "one\n\ntwo\n\nthree"}); err != nil {
		t.Fatalf("SendResponse() error = %v", err)
	}

	want := []Fragment{
		{RecipientID: "u1", Text: "one"},
		{RecipientID: "u1", Text: "two"},
		{RecipientID: "u1", Text: "three"},
	}
	if got := out.Messages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Messages() = %#v, want %#v", got, want)
	}
}

func TestCollectingButtonsProduceOneFragment(t *testing.T) {
	t.Parallel()

	buttons := []Button{{Title: "Yes", Payload: "/yes"}, {Title: "No", Payload: "/no"}}
	out := NewCollectingOutput()
	if err := SendResponse(context.Background(), out, "u1", Response{Text: "Sure?", Buttons: buttons}); err != nil {
		t.Fatalf("SendResponse() error = %v", err)
	}

	got := out.Messages()
	if len(got) != 1 {
		t.Fatalf("len(Messages()) = %d, want 1", len(got))
	}
	if got[0].Text != "Sure?" || !reflect.DeepEqual(got[0].Buttons, buttons) {
		t.Fatalf("fragment = %#v, want text and buttons together", got[0])
	}
}

func TestTextOutputDegradesButtons(t *testing.T) {
	t.Parallel()

	var lines []string
	out := NewTextOutput("plain", func(_ context.Context, _ string, text string) error {
		lines = append(lines, text)
		return nil
	})

	buttons := []Button{{Title: "Yes", Payload: "/yes"}, {Title: "No"}}
	if err := SendResponse(context.Background(), out, "u1", Response{Text: "Sure?", Buttons: buttons}); err != nil {
		t.Fatalf("SendResponse() error = %v", err)
	}

	want := []string{"Sure?", "1: Yes (/yes)", "2: No"}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
}

func TestTextOutputDefaults(t *testing.T) {
	t.Parallel()

	var lines []string
	out := NewTextOutput("plain", func(_ context.Context, _ string, text string) error {
		lines = append(lines, text)
		return nil
	})
	ctx := context.Background()

	if err := out.SendImageURL(ctx, "u1", "https://example.com/cat.png"); err != nil {
		t.Fatalf("SendImageURL() error = %v", err)
	}
	if err := out.SendAttachment(ctx, "u1", "report.pdf"); err != nil {
		t.Fatalf("SendAttachment() error = %v", err)
	}
	if err := out.SendAttachment(ctx, "u1", map[string]any{"url": "u", "kind": "file"}); err != nil {
		t.Fatalf("SendAttachment() error = %v", err)
	}
	if err := out.SendQuickReplies(ctx, "u1", "Pick", []Button{{Title: "A", Payload: "a"}}); err != nil {
		t.Fatalf("SendQuickReplies() error = %v", err)
	}
	elements := []Element{{Title: "Hotel", Subtitle: "Cheap", Buttons: []Button{{Title: "Book", Payload: "/book"}}}}
	if err := out.SendCustom(ctx, "u1", elements); err != nil {
		t.Fatalf("SendCustom() error = %v", err)
	}

	want := []string{
		"Image: https://example.com/cat.png",
		"Attachment: report.pdf",
		`Attachment: {"kind": "file", "url": "u"}`,
		"Pick",
		"1: A (a)",
		"Hotel : Cheap",
		"1: Book (/book)",
	}
	if !reflect.DeepEqual(lines, want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
}

func TestButtonString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		button string
		idx    int
		want   string
	}{
		{name: "title and payload", button: `{"title":"Yes","payload":"yes"}`, want: "1: Yes (yes)"},
		{name: "extra attributes", button: `{"title":"Yes","payload":"yes","extra":"x"}`, want: `1: Yes (yes) - {"extra": "x"}`},
		{name: "html characters stay literal", button: `{"title":"Yes","payload":"yes","extra":"<é&>"}`, want: `1: Yes (yes) - {"extra": "<é&>"}`},
		{name: "title only", button: `{"title":"Maybe"}`, idx: 2, want: "3: Maybe"},
		{name: "missing title", button: `{"payload":"p"}`, want: "1:  (p)"},
		{name: "sorted nested details", button: `{"title":"T","z":1,"a":{"y":[1,2],"b":true}}`, want: `1: T - {"a": {"b": true, "y": [1, 2]}, "z": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var button Button
			if err := json.Unmarshal([]byte(tt.button), &button); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if got := ButtonString(button, tt.idx); got != tt.want {
				t.Fatalf("ButtonString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFragmentOmitsAbsentFields(t *testing.T) {
	t.Parallel()

	out := NewCollectingOutput()
	if err := SendResponse(context.Background(), out, "u1", Response{Text: "hi"}); err != nil {
		t.Fatalf("SendResponse() error = %v", err)
	}

	raw, err := json.Marshal(out.Messages())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got, want := string(raw), `[{"recipient_id":"u1","text":"hi"}]`; got != want {
		t.Fatalf("json = %s, want %s", got, want)
	}
}

func TestButtonJSONKeepsExtraAttributes(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Button{Title: "Go", Extra: map[string]any{"url": "https://x"}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if got, want := string(raw), `{"title":"Go","url":"https://x"}`; got != want {
		t.Fatalf("json = %s, want %s", got, want)
	}
}

func TestDecodeResponseToleratesMalformedShapes(t *testing.T) {
	t.Parallel()

	resp, err := DecodeResponse([]byte(`{"text":"hi","buttons":[{"payload":"/x"},"junk"],"image":5,"elements":[{"subtitle":"s"}]}`))
	if err != nil {
		t.Fatalf("DecodeResponse() error = %v", err)
	}
	if resp.Text != "hi" || resp.Image != "5" {
		t.Fatalf("resp = %#v", resp)
	}
	if len(resp.Buttons) != 1 || resp.Buttons[0].Title != "" || resp.Buttons[0].Payload != "/x" {
		t.Fatalf("buttons = %#v", resp.Buttons)
	}
	if len(resp.Elements) != 1 || resp.Elements[0].Subtitle != "s" {
		t.Fatalf("elements = %#v", resp.Elements)
	}

	if _, err := DecodeResponse([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestCollectingLatestOutput(t *testing.T) {
	t.Parallel()

	out := NewCollectingOutput()
	latest, err := out.LatestOutput()
	if err != nil || latest != nil {
		t.Fatalf("LatestOutput() = %v, %v, want nil, nil", latest, err)
	}

	ctx := context.Background()
	_ = out.SendText(ctx, "u1", "first")
	_ = out.SendImageURL(ctx, "u1", "https://img")

	latest, err = out.LatestOutput()
	if err != nil {
		t.Fatalf("LatestOutput() error = %v", err)
	}
	if latest.Image != "https://img" || latest.Text != "" {
		t.Fatalf("LatestOutput() = %#v", latest)
	}
}
