// Package openai answers messages with the OpenAI Responses API, keeping one
// conversation per sender.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"chatwire/pkg/channel"
	"chatwire/pkg/config"

	osdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/conversations"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
)

type Responder struct {
	client         osdk.Client
	model          string
	instructions   string
	requestTimeout time.Duration
	log            *slog.Logger

	mu            sync.Mutex
	conversations map[string]string
}

// New builds the responder from cfg. extra request options are appended last.
func New(cfg config.OpenAIResponderConfig, log *slog.Logger, extra ...option.RequestOption) (*Responder, error) {
	apiKey := resolveAPIKey(cfg)
	if apiKey == "" {
		return nil, errors.New("responder.openai.api_key_env is required or OPENAI_API_KEY must be set")
	}

	model, err := normalizeModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := strings.TrimSpace(cfg.BaseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if organization := strings.TrimSpace(cfg.Organization); organization != "" {
		opts = append(opts, option.WithOrganization(organization))
	}
	if project := strings.TrimSpace(cfg.Project); project != "" {
		opts = append(opts, option.WithProject(project))
	}

	requestTimeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if requestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(requestTimeout))
	}
	opts = append(opts, extra...)

	if log == nil {
		log = slog.Default()
	}

	return &Responder{
		client:         osdk.NewClient(opts...),
		model:          model,
		instructions:   strings.TrimSpace(cfg.Instructions),
		requestTimeout: requestTimeout,
		log:            log.With("component", "responder.openai"),
		conversations:  make(map[string]string),
	}, nil
}

// Name implements responder.Responder.
func (r *Responder) Name() string { return config.ResponderOpenAI }

// Health lists models to prove the credentials work.
func (r *Responder) Health(ctx context.Context) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	log := r.log.With("operation", "health")
	startedAt := time.Now()
	log.Debug("provider request started")

	if _, err := r.client.Models.List(ctx); err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds())

	return nil
}

// Handle prompts the model within the sender's conversation and sends the reply as text.
func (r *Responder) Handle(ctx context.Context, msg *channel.UserMessage) error {
	prompt := strings.TrimSpace(msg.Text())
	if prompt == "" {
		return nil
	}

	conversationID, err := r.conversation(ctx, msg.SenderID())
	if err != nil {
		return err
	}

	text, err := r.prompt(ctx, conversationID, prompt)
	if err != nil {
		return err
	}

	return msg.Output().SendText(ctx, msg.SenderID(), text)
}

// conversation returns the sender's conversation id, creating one on first contact.
func (r *Responder) conversation(ctx context.Context, senderID string) (string, error) {
	r.mu.Lock()
	id, ok := r.conversations[senderID]
	r.mu.Unlock()
	if ok {
		return id, nil
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	log := r.log.With("operation", "create_conversation", "sender_id", senderID)
	startedAt := time.Now()
	log.Debug("provider request started")

	created, err := r.client.Conversations.New(ctx, conversations.ConversationNewParams{})
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("create conversation failed: %w", err)
	}
	if created == nil || strings.TrimSpace(created.ID) == "" {
		return "", errors.New("create conversation returned empty conversation id")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "conversation_id", created.ID)

	r.mu.Lock()
	defer r.mu.Unlock()
	// A concurrent first message from the same sender may have won the race.
	if existing, ok := r.conversations[senderID]; ok {
		return existing, nil
	}
	r.conversations[senderID] = strings.TrimSpace(created.ID)
	return r.conversations[senderID], nil
}

func (r *Responder) prompt(ctx context.Context, conversationID, prompt string) (string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	log := r.log.With("operation", "prompt")
	startedAt := time.Now()
	log.Debug("provider request started", "conversation_id", conversationID, "model", r.model, "prompt_length", len(prompt))

	params := responses.ResponseNewParams{
		Model: r.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: osdk.String(prompt)},
		Conversation: responses.ResponseNewParamsConversationUnion{
			OfConversationObject: &responses.ResponseConversationParam{ID: conversationID},
		},
	}
	if r.instructions != "" {
		params.Instructions = osdk.String(r.instructions)
	}

	response, err := r.client.Responses.New(ctx, params)
	if err != nil {
		log.Debug("provider request failed", "duration_ms", time.Since(startedAt).Milliseconds(), "error", err)
		return "", fmt.Errorf("prompt failed: %w", err)
	}

	text := strings.TrimSpace(response.OutputText())
	if text == "" {
		return "", errors.New("prompt succeeded but returned no text")
	}
	log.Debug("provider request completed", "duration_ms", time.Since(startedAt).Milliseconds(), "response_length", len(text))

	return text, nil
}

func (r *Responder) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.requestTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, r.requestTimeout)
}

func resolveAPIKey(cfg config.OpenAIResponderConfig) string {
	if apiKeyEnv := strings.TrimSpace(cfg.APIKeyEnv); apiKeyEnv != "" {
		if apiKey := strings.TrimSpace(os.Getenv(apiKeyEnv)); apiKey != "" {
			return apiKey
		}
	}

	return strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
}

func normalizeModel(model string) (string, error) {
	model = strings.TrimSpace(model)
	if model == "" {
		return "", errors.New("model is required")
	}

	providerID, modelID, ok := strings.Cut(model, "/")
	if !ok {
		return model, nil
	}

	providerID = strings.TrimSpace(providerID)
	modelID = strings.TrimSpace(modelID)
	if providerID == "" || modelID == "" {
		return "", errors.New("model is invalid")
	}
	if providerID != "openai" {
		return "", fmt.Errorf("model provider %q is not supported by the openai responder", providerID)
	}

	return modelID, nil
}
