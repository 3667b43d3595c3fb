// Package app wires all VocalQ subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves the HTTP API until the context is cancelled, and
// Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore, WithCarrier,
// WithResolver). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vocalq/outbound/internal/bridge"
	"github.com/vocalq/outbound/internal/config"
	"github.com/vocalq/outbound/internal/dialer"
	"github.com/vocalq/outbound/internal/health"
	"github.com/vocalq/outbound/internal/httpapi"
	"github.com/vocalq/outbound/internal/knowledge"
	"github.com/vocalq/outbound/internal/observe"
	"github.com/vocalq/outbound/internal/resilience"
	"github.com/vocalq/outbound/internal/store"
	"github.com/vocalq/outbound/internal/store/postgres"
	"github.com/vocalq/outbound/internal/summary"
	"github.com/vocalq/outbound/pkg/provider/embeddings"
	"github.com/vocalq/outbound/pkg/provider/llm"
	"github.com/vocalq/outbound/pkg/provider/s2s"
	"github.com/vocalq/outbound/pkg/provider/vad"
	"github.com/vocalq/outbound/pkg/telephony"
	"github.com/vocalq/outbound/pkg/telephony/twilio"
	"github.com/vocalq/outbound/pkg/types"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	S2S         s2s.Provider
	S2SFallback s2s.Provider
	LLM         llm.Provider
	LLMFallback llm.Provider
	Embeddings  embeddings.Provider
	VAD         vad.Engine
}

// Store is the combined persistence surface the application needs. Both the
// PostgreSQL store and the in-memory store satisfy it.
type Store interface {
	store.QueueStore
	store.CallStore
	store.ChunkStore
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	st       Store
	carrier  telephony.Carrier
	resolver telephony.PublicURLResolver

	searcher   *knowledge.Searcher
	summarizer *summary.Summarizer
	bridge     *bridge.Bridge
	dialer     *dialer.Dialer
	httpSrv    *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a persistence layer instead of connecting from config.
func WithStore(s Store) Option {
	return func(a *App) { a.st = s }
}

// WithCarrier injects a telephony carrier instead of creating a Twilio client.
func WithCarrier(c telephony.Carrier) Option {
	return func(a *App) { a.carrier = c }
}

// WithResolver injects a public URL resolver instead of deriving one from
// config.
func WithResolver(r telephony.PublicURLResolver) Option {
	return func(a *App) { a.resolver = r }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initCarrier(); err != nil {
		return nil, fmt.Errorf("app: init carrier: %w", err)
	}
	a.initResolver()
	a.initKnowledge()
	a.initSummarizer()
	if err := a.initBridge(); err != nil {
		return nil, fmt.Errorf("app: init bridge: %w", err)
	}
	if err := a.initDialer(); err != nil {
		return nil, fmt.Errorf("app: init dialer: %w", err)
	}
	if err := a.initServer(); err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects to PostgreSQL, or falls back to the in-memory store when
// no DSN is configured.
func (a *App) initStore(ctx context.Context) error {
	if a.st != nil {
		return nil
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		slog.Warn("no postgres_dsn configured, call history will not survive restarts")
		a.st = store.NewMemStore()
		return nil
	}

	dims := a.cfg.Storage.EmbeddingDimensions
	if dims == 0 && a.providers.Embeddings != nil {
		dims = a.providers.Embeddings.Dimensions()
	}

	pg, err := postgres.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}
	a.st = pg
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

// initCarrier builds the Twilio client from config.
func (a *App) initCarrier() error {
	if a.carrier != nil {
		return nil
	}

	tw := a.cfg.Twilio
	if tw.AccountSID == "" {
		return fmt.Errorf("twilio credentials are required to place calls")
	}

	carrier, err := twilio.New(tw.AccountSID, tw.AuthToken)
	if err != nil {
		return err
	}
	a.carrier = carrier
	return nil
}

// initResolver picks the public URL source: a configured static URL, or the
// local ngrok agent when none is set.
func (a *App) initResolver() {
	if a.resolver != nil {
		return
	}
	if url := a.cfg.Server.PublicURL; url != "" {
		a.resolver = telephony.StaticResolver(url)
		return
	}

	var opts []telephony.NgrokOption
	if a.cfg.Server.NgrokAPIURL != "" {
		opts = append(opts, telephony.WithNgrokAPIURL(a.cfg.Server.NgrokAPIURL))
	}
	a.resolver = telephony.NewNgrokResolver(opts...)
	slog.Info("no public_url configured, discovering via local ngrok agent")
}

// initKnowledge creates the knowledge-base searcher when an embeddings
// provider is configured.
func (a *App) initKnowledge() {
	if a.providers.Embeddings == nil {
		slog.Warn("no embeddings provider configured, knowledge base disabled")
		return
	}

	var opts []knowledge.Option
	if a.cfg.Knowledge.TopK > 0 {
		opts = append(opts, knowledge.WithTopK(a.cfg.Knowledge.TopK))
	}
	a.searcher = knowledge.NewSearcher(a.providers.Embeddings, a.st, opts...)
}

// initSummarizer creates the post-call summarizer, composing the fallback LLM
// behind a circuit breaker when one is configured.
func (a *App) initSummarizer() {
	if a.providers.LLM == nil {
		slog.Warn("no llm provider configured, post-call summaries disabled")
		return
	}

	prov := a.providers.LLM
	if a.providers.LLMFallback != nil {
		group := resilience.NewLLMFallback(prov, a.cfg.Providers.LLM.Name, resilience.FallbackConfig{})
		group.AddFallback(a.cfg.Providers.LLMFallback.Name, a.providers.LLMFallback)
		prov = group
	}
	a.summarizer = summary.New(prov)
}

// initBridge assembles the realtime call bridge.
func (a *App) initBridge() error {
	if a.providers.S2S == nil {
		return fmt.Errorf("an s2s provider is required to bridge calls")
	}

	prov := a.providers.S2S
	if a.providers.S2SFallback != nil {
		group := resilience.NewS2SFallback(prov, a.cfg.Providers.S2S.Name, resilience.FallbackConfig{})
		group.AddFallback(a.cfg.Providers.S2SFallback.Name, a.providers.S2SFallback)
		prov = group
	}

	bcfg := bridge.Config{
		Provider:     prov,
		VAD:          a.providers.VAD,
		Calls:        a.st,
		Summarizer:   a.summarizer,
		Voice:        types.VoiceProfile{ID: a.cfg.Agent.Voice},
		Instructions: a.cfg.Agent.Instructions,
		Greeting:     a.cfg.Agent.Greeting,
	}
	if a.searcher != nil {
		bcfg.Tools = []types.ToolDefinition{knowledge.ToolDefinition()}
		bcfg.ToolHandler = a.searcher.ToolHandler()
	}

	br, err := bridge.New(bcfg)
	if err != nil {
		return err
	}
	a.bridge = br
	return nil
}

// initDialer builds the outbound queue worker from config.
func (a *App) initDialer() error {
	var opts []dialer.Option
	dc := a.cfg.Dialer
	if dc.MaxAttempts > 0 {
		opts = append(opts, dialer.WithMaxAttempts(dc.MaxAttempts))
	}
	if d := dc.RetryDelay.Std(); d > 0 {
		opts = append(opts, dialer.WithRetryDelay(d))
	}
	if d := dc.PollInterval.Std(); d > 0 {
		opts = append(opts, dialer.WithPollInterval(d))
	}
	if d := dc.IdleDelay.Std(); d > 0 {
		opts = append(opts, dialer.WithIdleDelay(d))
	}
	if d := dc.DialGap.Std(); d > 0 {
		opts = append(opts, dialer.WithDialGap(d))
	}

	d, err := dialer.New(a.st, a.carrier, a.resolver, a.cfg.Twilio.FromNumber, opts...)
	if err != nil {
		return err
	}
	a.dialer = d
	a.closers = append(a.closers, func() error {
		d.Stop()
		return nil
	})
	return nil
}

// initServer builds the HTTP API and the server that hosts it.
func (a *App) initServer() error {
	checkers := []health.Checker{{
		Name:  "store",
		Check: a.storeCheck(),
	}}

	srv, err := httpapi.New(httpapi.Config{
		Dialer:   a.dialer,
		Calls:    a.st,
		Searcher: a.searcher,
		Bridge:   a.bridge,
		Health:   health.New(checkers...),
		Metrics:  observe.DefaultMetrics(),
	})
	if err != nil {
		return err
	}

	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// storeCheck probes database connectivity when the store supports it.
func (a *App) storeCheck() func(ctx context.Context) error {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := a.st.(pinger); ok {
		return p.Ping
	}
	return func(context.Context) error { return nil }
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves the HTTP API and blocks until ctx is cancelled or the server
// fails. The dial worker is started lazily by the outbound start endpoint,
// not here.
func (a *App) Run(ctx context.Context) error {
	serveErr := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		serveErr <- err
	}()

	slog.Info("vocalq serving", "addr", a.httpSrv.Addr)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and the
// context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
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

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable parts of a config change. Agent and
// dialer changes only affect subsequent calls, so they are logged and require
// a restart; the log level applies immediately via level.
func (a *App) ApplyConfig(diff config.ConfigDiff, level *slog.LevelVar) {
	if diff.LogLevelChanged && level != nil {
		level.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}
	if diff.AgentChanged {
		slog.Warn("agent config changed, restart to apply to new calls")
	}
	if diff.DialerChanged {
		slog.Warn("dialer config changed, restart to apply")
	}
}

// slogLevel maps a config log level to its slog value.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
