package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zjrosen/huddle/internal/api"
	"github.com/zjrosen/huddle/internal/config"
	"github.com/zjrosen/huddle/internal/connection"
	"github.com/zjrosen/huddle/internal/flags"
	"github.com/zjrosen/huddle/internal/log"
	"github.com/zjrosen/huddle/internal/metrics"
	"github.com/zjrosen/huddle/internal/session"
	"github.com/zjrosen/huddle/internal/tracing"
)

const shutdownTimeout = 3 * time.Second

// runtime bundles a session with the tracing and metrics infrastructure it
// reports to. Close releases all of it.
type runtime struct {
	session  *session.Session
	provider *tracing.Provider
	server   *http.Server
}

// openRuntime validates the loaded config, builds the session and connects it.
// beforeConnect hooks run on the new session before the socket opens, so
// observers they register see the first frames.
func openRuntime(ctx context.Context, beforeConnect ...func(*session.Session)) (*runtime, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	provider, err := tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     cfg.Tracing.FilePath,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  tracing.DefaultServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}
	rt := &runtime{provider: provider}

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		rt.server = serveMetrics(cfg.Metrics.Addr, reg)
	}

	client := api.New(cfg.Server.APIBase(), cfg.Auth.Token, api.WithTracer(provider.Tracer()))
	s, err := session.New(session.Options{
		ServerURL:         cfg.Server.URL,
		Token:             cfg.Auth.Token,
		Username:          cfg.Auth.Username,
		Transport:         connection.WebSocketTransport{},
		API:               client,
		HistoryLimit:      cfg.History.Limit,
		BufferSize:        cfg.Session.BufferSize,
		PushTimeout:       cfg.Session.PushTimeout,
		HeartbeatInterval: cfg.Session.HeartbeatInterval,
		Backoff:           cfg.Session.ReconnectBackoff,
		TypingInterval:    cfg.Session.TypingInterval,
		RosterTTL:         cfg.Session.RosterTTL,
		Flags:             flags.New(cfg.Flags),
		Tracer:            provider.Tracer(),
		Metrics:           collector,
	})
	if err != nil {
		rt.shutdownInfra()
		return nil, fmt.Errorf("creating session: %w", err)
	}
	rt.session = s
	for _, hook := range beforeConnect {
		hook(s)
	}

	if err := s.Connect(ctx); err != nil {
		rt.shutdownInfra()
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Server.URL, err)
	}
	return rt, nil
}

// Close disconnects the session and stops tracing and metrics.
func (rt *runtime) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	rt.session.Disconnect(ctx)
	rt.shutdownInfra()
}

func (rt *runtime) shutdownInfra() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if rt.server != nil {
		if err := rt.server.Shutdown(ctx); err != nil {
			log.Error(log.CatConfig, "Error stopping metrics server", "error", err)
		}
	}
	if err := rt.provider.Shutdown(ctx); err != nil {
		log.Error(log.CatConfig, "Error shutting down tracing", "error", err)
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(log.CatConfig, "Metrics server stopped", "addr", addr, "error", err)
		}
	}()
	log.Info(log.CatConfig, "Serving metrics", "addr", addr)
	return srv
}

// subscribeConfigured joins every configured channel and reports failures
// without aborting.
func subscribeConfigured(ctx context.Context, s *session.Session, channels []string) {
	for slug, err := range s.SubscribeToChannels(ctx, channels) {
		log.Warn(log.CatChannel, "Channel not joined", "slug", slug, "error", err)
	}
}
