// Package app wires the authd server runtime: config, logging, store
// selection, metrics, tracing and HTTP routes.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"

	authapi "authd/cmd/internal/auth/api"
	"authd/cmd/internal/auth/session"
	"authd/cmd/security/password"
	"authd/cmd/security/token"
)

// App is the authd server runtime. It owns the store, the HTTP handler
// chain and the tracer provider.
type App struct {
	cfg Config
	log Logger

	backend  *Backend
	registry *prometheus.Registry
	handler  http.Handler

	shutdownTracing func(context.Context) error
}

// New opens the configured store, applies migrations when enabled and
// wires every HTTP route.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	shutdownTracing, err := setupTracing(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}

	backend, err := OpenBackend(ctx, cfg, log)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = backend.Close()
		_ = shutdownTracing(ctx)
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := backend.Migrate(ctx, log); err != nil {
			return fail(err)
		}
	}

	hasher, err := password.New(cfg.Password)
	if err != nil {
		return fail(err)
	}
	codec, err := token.NewCodec(cfg.Token)
	if err != nil {
		return fail(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc, err := session.NewService(cfg.SessionConfig(), backend.Store, hasher, codec,
		session.WithLogger(log),
		session.WithMetrics(session.NewMetrics(reg)),
		session.WithTracer(otel.Tracer("authd/session")),
	)
	if err != nil {
		return fail(err)
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, backend, reg, authapi.NewHandler(log, cfg.API, svc))

	var h http.Handler = mux
	h = WithCORS(h, cfg, log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, log, newHTTPMetrics(reg))
	h = WithRequestID(h)

	log.Info("app.ready",
		"backend", backend.Name,
		"password_scheme", string(cfg.Password.Scheme),
		"token", cfg.Token.String(),
		"tracing", cfg.OTelEndpoint != "",
	)

	return &App{
		cfg:             cfg,
		log:             log,
		backend:         backend,
		registry:        reg,
		handler:         h,
		shutdownTracing: shutdownTracing,
	}, nil
}

// Handler returns the full middleware chain.
func (a *App) Handler() http.Handler { return a.handler }

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails. Resources are released either way.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "backend", a.backend.Name)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if runErr == nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			runErr = err
		}
	}

	a.Close(shutdownCtx)
	a.log.Info("server.stopped")
	return runErr
}

// Close releases the store and flushes traces.
func (a *App) Close(ctx context.Context) {
	if err := a.backend.Close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}
	if err := a.shutdownTracing(ctx); err != nil {
		a.log.Error("tracing.shutdown.fail", "err", err)
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
