package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"chatwire/pkg/bus"
	"chatwire/pkg/channel"
	"chatwire/pkg/config"
	"chatwire/pkg/metrics"
	"chatwire/pkg/responder"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const eventBuffer = 256

// Deps are the optional collaborators of a Service.
type Deps struct {
	Logger   *slog.Logger
	Bus      *bus.EventBus
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer
}

// Service serves every enabled input channel on one HTTP listener and hands their
// messages to the responder.
type Service struct {
	cfg       *config.Config
	log       *slog.Logger
	responder responder.Responder
	channels  []channel.InputChannel
	bus       *bus.EventBus
	metrics   *metrics.Collector
	gatherer  prometheus.Gatherer
	handler   http.Handler

	mu        sync.RWMutex
	startedAt time.Time
	serving   bool
	addr      net.Addr
}

type statusResponse struct {
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Channels      []string `json:"channels"`
}

func NewService(cfg *config.Config, channels []channel.InputChannel, resp responder.Responder, deps Deps) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(channels) == 0 {
		return nil, errors.New("at least one input channel is required")
	}
	if resp == nil {
		return nil, errors.New("responder is required")
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	events := deps.Bus
	if events == nil {
		events = bus.New()
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Service{
		cfg:       cfg,
		log:       log.With("component", "gateway.service"),
		responder: resp,
		channels:  channels,
		bus:       events,
		metrics:   deps.Metrics,
		gatherer:  gatherer,
	}
	s.handler = s.routes()

	return s, nil
}

// Handler returns the full HTTP surface: status endpoints plus every channel's routes.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Addr reports the bound listener address once Run is serving.
func (s *Service) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

func (s *Service) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(s.log))
	router.Use(middleware.Recoverer)

	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleReady)
	router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	channel.Register(s.channels, router, s.cfg.Server.RoutePrefix, s.handleMessage)
	for _, ch := range s.channels {
		s.log.Info("Channel mounted", "channel", ch.Name(), "path", channel.MountPath(s.cfg.Server.RoutePrefix, ch))
	}

	return router
}

// Run starts the channels, serves HTTP until ctx is done, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if s.metrics != nil {
		events, unsubscribe := s.bus.Subscribe(ctx, eventBuffer)
		defer unsubscribe()
		go s.metrics.Run(ctx, events)
	}

	for _, ch := range s.channels {
		starter, ok := ch.(channel.Starter)
		if !ok {
			continue
		}
		if err := starter.Start(ctx); err != nil {
			return fmt.Errorf("start %s channel: %w", ch.Name(), err)
		}
	}

	listener, err := net.Listen("tcp", s.cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.Addr(), err)
	}

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Serve(listener)
	}()

	s.setServing(true, listener.Addr())
	s.log.Info("Gateway started", "address", listener.Addr().String(), "responder", s.responder.Name())

	select {
	case <-ctx.Done():
	case err := <-serverErrors:
		s.setServing(false, nil)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}

	s.setServing(false, nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.log.Info("Gateway stopped")

	return nil
}

// handleMessage is the handler every channel is bound to. It wraps the responder with
// lifecycle events.
func (s *Service) handleMessage(ctx context.Context, msg *channel.UserMessage) error {
	base := bus.Event{
		Channel:   msg.InputChannel(),
		SenderID:  msg.SenderID(),
		MessageID: msg.ID(),
	}

	received := base
	received.Type = bus.EventMessageReceived
	s.bus.Publish(ctx, received)

	startedAt := time.Now()
	err := s.responder.Handle(ctx, msg)

	outcome := base
	outcome.Duration = time.Since(startedAt)
	outcome.Type = bus.EventMessageCompleted
	if err != nil {
		outcome.Type = bus.EventMessageFailed
		outcome.Error = err.Error()
	}
	// The request context may already be gone; outcomes are still recorded.
	s.bus.Publish(context.WithoutCancel(ctx), outcome)

	return err
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	names := make([]string, 0, len(s.channels))
	for _, ch := range s.channels {
		names = append(names, ch.Name())
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		Channels:      names,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serving
}

func (s *Service) setServing(serving bool, addr net.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serving = serving
	if addr != nil {
		s.addr = addr
	}
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startedAt := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("Request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"request_id", middleware.GetReqID(r.Context()),
				"duration_ms", time.Since(startedAt).Milliseconds(),
			)
		})
	}
}
