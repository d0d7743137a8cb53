package responder

import (
	"context"
	"testing"

	"chatwire/pkg/channel"
	"chatwire/pkg/config"
)

func collect(t *testing.T, text string) []channel.Fragment {
	t.Helper()

	out := channel.NewCollectingOutput()
	msg := channel.NewUserMessage(channel.WithText(text), channel.WithSenderID("u1"), channel.WithOutput(out))
	if err := NewEcho().Handle(context.Background(), msg); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	return out.Messages()
}

func TestEchoRepeatsText(t *testing.T) {
	t.Parallel()

	got := collect(t, "hello\n\nworld")
	if len(got) != 2 || got[0].Text != "hello" || got[1].Text != "world" || got[0].RecipientID != "u1" {
		t.Fatalf("fragments = %+v", got)
	}
}

func TestEchoRendersResponseObjects(t *testing.T) {
	t.Parallel()

	got := collect(t, `{"text": "Pick one", "buttons": [{"title": "A", "payload": "/a"}], "image": "https://example.com/i.png"}`)
	if len(got) != 2 {
		t.Fatalf("fragments = %+v, want buttons then image", got)
	}
	if got[0].Text != "Pick one" || len(got[0].Buttons) != 1 || got[0].Buttons[0].Payload != "/a" {
		t.Fatalf("buttons fragment = %+v", got[0])
	}
	if got[1].Image != "https://example.com/i.png" {
		t.Fatalf("image fragment = %+v", got[1])
	}
}

func TestEchoFallsBackToText(t *testing.T) {
	t.Parallel()

	for _, text := range []string{`{"unrelated": 1}`, `{not json`} {
		got := collect(t, text)
		if len(got) != 1 || got[0].Text != text {
			t.Fatalf("echo(%q) = %+v", text, got)
		}
	}

	if got := collect(t, ""); len(got) != 0 {
		t.Fatalf("empty text produced %+v", got)
	}
}

func TestNewSelectsResponder(t *testing.T) {
	r, err := New(config.ResponderConfig{Type: config.ResponderEcho}, nil)
	if err != nil || r.Name() != "echo" {
		t.Fatalf("New echo = %v, %v", r, err)
	}

	if _, err := New(config.ResponderConfig{Type: "llama"}, nil); err == nil {
		t.Fatal("expected error for unknown responder")
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	r, err = New(config.ResponderConfig{Type: config.ResponderOpenAI, OpenAI: config.OpenAIResponderConfig{Model: "gpt-test"}}, nil)
	if err != nil {
		t.Fatalf("New openai error: %v", err)
	}
	if _, ok := r.(HealthChecker); !ok {
		t.Fatal("expected openai responder to report health")
	}
}
