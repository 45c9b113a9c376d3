// Package app wires all transvox subsystems into a running HTTP service.
//
// The App struct owns the full lifecycle: New builds the analyzer, the
// pipeline orchestrator and the gin router, Run serves HTTP until the
// context is cancelled, and Shutdown drains in-flight requests and tears
// everything down in order.
//
// Provider clients (staging, translation, decoder) are created by main.go
// through the config registry and handed in via [Providers]. For testing,
// pass mocks there and use [WithListener] to bind an ephemeral port.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/transvox/internal/config"
	"github.com/MrWong99/transvox/internal/gateway"
	"github.com/MrWong99/transvox/internal/health"
	"github.com/MrWong99/transvox/internal/observe"
	"github.com/MrWong99/transvox/internal/pipeline"
	"github.com/MrWong99/transvox/internal/resilience"
	"github.com/MrWong99/transvox/pkg/analyzer"
	"github.com/MrWong99/transvox/pkg/staging"
	"github.com/MrWong99/transvox/pkg/translate"
)

// readHeaderTimeout bounds slow-loris style header reads.
const readHeaderTimeout = 10 * time.Second

// Providers holds the external dependencies. All three clients are
// required. Populated by main.go via the config registry.
type Providers struct {
	Staging    staging.Store
	Translator translate.Provider
	Decoder    analyzer.Decoder

	// Breakers are the translation circuit breakers reported by /readyz.
	// May be empty.
	Breakers []*resilience.CircuitBreaker
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	metrics        *observe.Metrics
	metricsHandler http.Handler
	listener       net.Listener

	// Subsystems, initialised in New.
	analyzer *analyzer.Analyzer
	orch     *pipeline.Orchestrator
	gateway  *gateway.Handler
	health   *health.Handler
	router   *gin.Engine
	server   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithListener serves on ln instead of listening on cfg.Server.ListenAddr.
func WithListener(ln net.Listener) Option {
	return func(a *App) { a.listener = ln }
}

// WithCloser registers fn to run during Shutdown after the HTTP server has
// drained.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New wires the analyzer, orchestrator, gateway and health handlers behind a
// gin router. It performs no network I/O.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.Staging == nil || providers.Translator == nil || providers.Decoder == nil {
		return nil, errors.New("app: staging, translator and decoder providers are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Analyzer ──────────────────────────────────────────────────────
	a.analyzer = analyzer.New(providers.Decoder,
		analyzer.WithWorkers(cfg.Analyzer.Workers),
		analyzer.WithSettings(cfg.Analyzer.Settings()),
	)

	// ── 2. Orchestrator ──────────────────────────────────────────────────
	a.orch = pipeline.New(providers.Staging, a.analyzer, providers.Translator,
		pipeline.WithMetrics(a.metrics),
		pipeline.WithCleanupTimeout(cfg.Pipeline.CleanupTimeout),
		pipeline.WithForwardProcessed(cfg.Pipeline.TranslateSource == config.SourceProcessed),
	)

	// ── 3. HTTP surface ──────────────────────────────────────────────────
	a.gateway = gateway.New(a.orch,
		gateway.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		gateway.WithDebug(cfg.Server.Debug),
	)
	a.health = health.New(
		health.DecoderCheck(a.analyzer),
		health.BreakerCheck("translation", providers.Breakers),
	)

	a.router = gin.New()
	a.router.Use(gin.Recovery())
	a.gateway.Register(a.router)
	a.health.Register(a.router)
	if a.metricsHandler != nil {
		a.router.GET("/metrics", gin.WrapH(a.metricsHandler))
	}

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(a.router),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.server.Handler }

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyDiff applies the hot-reloadable parts of a config change. Log level
// changes are handled by the caller, which owns the slog handler.
func (a *App) ApplyDiff(d config.ConfigDiff) {
	if d.DebugChanged {
		a.gateway.SetDebug(d.NewDebug)
		slog.Info("debug mode changed", "debug", d.NewDebug)
	}
	if d.AnalyzerChanged {
		s := d.NewAnalyzer.Settings()
		a.analyzer.SetSettings(s)
		slog.Info("analyzer settings changed",
			"noise_floor_db", s.NoiseFloorDB,
			"min_silence", s.MinSilence,
			"speech_threshold_percent", s.SpeechThresholdPercent,
		)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that only apply after restart", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP and blocks until ctx is cancelled or the server fails.
// On cancellation Run drains via [App.Shutdown] bounded by
// server.shutdown_timeout and returns its error.
func (a *App) Run(ctx context.Context) error {
	ln := a.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", a.cfg.Server.ListenAddr)
		if err != nil {
			return fmt.Errorf("app: listen %s: %w", a.cfg.Server.ListenAddr, err)
		}
	}
	slog.Info("listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
		defer cancel()
		return a.Shutdown(sctx)
	})
	return g.Wait()
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.cfg.Server.ShutdownTimeout; d > 0 {
		return d
	}
	return config.DefaultShutdownTimeout
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown marks the service as draining, waits for in-flight requests (and
// their deferred staging cleanup) to finish, then runs the registered
// closers. If ctx expires first, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.health.SetDraining(true)

		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown incomplete", "err", err)
			shutdownErr = err
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
