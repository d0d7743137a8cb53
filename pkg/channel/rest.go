package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	restChannelName   = "rest"
	messagePreviewMax = 240
	maxWebhookBody    = 1 << 20
	streamContentType = "text/event-stream"
)

// FragmentObserver is told how many fragments each webhook request produced.
type FragmentObserver interface {
	ObserveFragments(channel, mode string, count int)
}

// RestOption configures a RestInput.
type RestOption func(*RestInput)

// WithLogger sets the logger used by the REST channel.
func WithLogger(log *slog.Logger) RestOption {
	return func(r *RestInput) {
		if log != nil {
			r.log = log
		}
	}
}

// WithResponseTimeout bounds how long one webhook request waits for the response generator.
// Zero disables the bound.
func WithResponseTimeout(timeout time.Duration) RestOption {
	return func(r *RestInput) {
		r.timeout = timeout
	}
}

// WithQueueFactory sets how streaming requests obtain their queue.
func WithQueueFactory(factory QueueFactory) RestOption {
	return func(r *RestInput) {
		if factory != nil {
			r.queues = factory
		}
	}
}

// WithFragmentObserver registers an observer for per-request fragment counts.
func WithFragmentObserver(observer FragmentObserver) RestOption {
	return func(r *RestInput) {
		r.observer = observer
	}
}

// WithTracer sets the tracer used for webhook spans.
func WithTracer(tracer trace.Tracer) RestOption {
	return func(r *RestInput) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// RestInput receives messages as JSON over HTTP and answers either with the whole
// list of fragments or with a newline-delimited stream of them.
type RestInput struct {
	log      *slog.Logger
	timeout  time.Duration
	queues   QueueFactory
	observer FragmentObserver
	tracer   trace.Tracer
}

// NewRestInput builds the REST channel.
func NewRestInput(opts ...RestOption) *RestInput {
	r := &RestInput{
		log:    slog.Default(),
		queues: MemoryQueueFactory(0),
		tracer: otel.Tracer("chatwire/channel"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "channel.rest")

	return r
}

// Name implements InputChannel.
func (r *RestInput) Name() string { return restChannelName }

// Routes implements InputChannel.
func (r *RestInput) Routes(onNewMessage Handler) []Route {
	return []Route{
		{Method: http.MethodGet, Path: "/", Handler: Health},
		{Method: http.MethodPost, Path: "/webhook", Handler: func(w http.ResponseWriter, req *http.Request) {
			r.handleWebhook(w, req, onNewMessage)
		}},
	}
}

// Health answers {"status":"ok"}.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type webhookRequest struct {
	Sender  json.RawMessage `json:"sender"`
	Message *string         `json:"message"`
}

func (r *RestInput) handleWebhook(w http.ResponseWriter, req *http.Request, onNewMessage Handler) {
	body, err := io.ReadAll(io.LimitReader(req.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read request body"})
		return
	}

	var payload webhookRequest
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request body must be a JSON object"})
			return
		}
	}

	stream := strings.EqualFold(strings.TrimSpace(req.URL.Query().Get("stream")), "true")
	senderID := senderString(payload.Sender)

	ctx, span := r.tracer.Start(req.Context(), "rest.webhook", trace.WithAttributes(
		attribute.String("channel", restChannelName),
		attribute.String("sender_id", senderID),
		attribute.Bool("stream", stream),
	))
	defer span.End()

	opts := []MessageOption{
		WithSenderID(senderID),
		WithInputChannel(restChannelName),
	}
	if payload.Message != nil {
		opts = append(opts, WithText(*payload.Message))
		r.log.Info("Received message", "sender_id", senderID, "stream", stream, "content", PreviewText(*payload.Message))
	}

	if stream {
		r.stream(ctx, w, onNewMessage, opts)
		return
	}

	r.batch(ctx, w, onNewMessage, opts)
}

func (r *RestInput) batch(ctx context.Context, w http.ResponseWriter, onNewMessage Handler, opts []MessageOption) {
	collector := NewCollectingOutput()
	msg := NewUserMessage(append(opts, WithOutput(collector))...)

	handlerCtx, cancel := r.handlerContext(ctx)
	defer cancel()

	if err := runHandler(handlerCtx, onNewMessage, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			r.log.Warn("Message handling timed out", "message_id", msg.ID(), "sender_id", msg.SenderID(), "error", err)
		} else {
			r.log.Error("Failed to handle message", "message_id", msg.ID(), "sender_id", msg.SenderID(), "content", PreviewText(msg.Text()), "error", err)
		}
	}

	messages := collector.Messages()
	r.observe("batch", len(messages))
	writeJSON(w, http.StatusOK, messages)
}

func (r *RestInput) stream(ctx context.Context, w http.ResponseWriter, onNewMessage Handler, opts []MessageOption) {
	id := newMessageID()
	queue, err := r.queues(id)
	if err != nil {
		r.log.Error("Failed to create stream queue", "message_id", id, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "stream unavailable"})
		return
	}
	defer closeQueue(queue, r.log)

	msg := NewUserMessage(append(opts, WithMessageID(id), WithOutput(NewQueueOutput(queue)))...)

	// streamCtx ends when the writer stops, which releases a producer blocked on a full queue.
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	producerCtx, cancel := r.handlerContext(streamCtx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := runHandler(producerCtx, onNewMessage, msg); err != nil {
			r.log.Error("Failed to handle streamed message", "message_id", msg.ID(), "sender_id", msg.SenderID(), "error", err)
		}
		if err := queue.Put(streamCtx, EndItem()); err != nil {
			r.log.Debug("Failed to enqueue end of stream", "message_id", msg.ID(), "error", err)
		}
	}()

	w.Header().Set("Content-Type", streamContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher := http.NewResponseController(w)
	_ = flusher.Flush()

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	count := 0
	for {
		item, err := queue.Get(ctx)
		if err != nil {
			r.log.Warn("Stream ended early", "message_id", msg.ID(), "error", err)
			break
		}
		if item.End {
			break
		}
		if err := enc.Encode(item.Fragment); err != nil {
			r.log.Warn("Client went away while streaming", "message_id", msg.ID(), "error", err)
			break
		}
		if err := flusher.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			r.log.Warn("Failed to flush stream", "message_id", msg.ID(), "error", err)
			break
		}
		count++
	}

	stopStream()
	<-done
	r.observe("stream", count)
}

func (r *RestInput) handlerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}

	return context.WithCancel(ctx)
}

func (r *RestInput) observe(mode string, count int) {
	if r.observer != nil {
		r.observer.ObserveFragments(restChannelName, mode, count)
	}
}

// runHandler runs onNewMessage until it returns or ctx is done, converting panics into
// errors. When ctx ends first the handler keeps running in the background with a
// cancelled context.
func runHandler(ctx context.Context, onNewMessage Handler, msg *UserMessage) error {
	result := make(chan error, 1)
	go func() {
		result <- SafeHandle(ctx, onNewMessage, msg)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func closeQueue(queue Queue, log *slog.Logger) {
	closer, ok := queue.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		log.Warn("Failed to close stream queue", "error", err)
	}
}

// senderString accepts a JSON string or number as the sender id.
func senderString(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return n.String()
	}

	return ""
}

// PreviewText returns a bounded log-safe preview of message text.
func PreviewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewMax {
		return trimmed
	}

	return trimmed[:messagePreviewMax] + "..."
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}
