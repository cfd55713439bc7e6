// ABOUTME: Gateway orchestrator that wires routing components and serves HTTP and gRPC
// ABOUTME: Manages the store, conversation service, listeners and shutdown lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/yuin/goldmark"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/support-gateway/internal/agent"
	"github.com/2389/support-gateway/internal/auth"
	"github.com/2389/support-gateway/internal/config"
	"github.com/2389/support-gateway/internal/conversation"
	"github.com/2389/support-gateway/internal/dedupe"
	"github.com/2389/support-gateway/internal/graph"
	"github.com/2389/support-gateway/internal/model"
	"github.com/2389/support-gateway/internal/router"
	"github.com/2389/support-gateway/internal/store"
)

// Gateway orchestrates the support-gateway server components.
type Gateway struct {
	config       *config.Config
	store        store.Store
	registry     *agent.Registry
	conversation *conversation.Service
	httpServer   *http.Server
	grpcServer   *grpc.Server
	health       *health.Server
	tsnetServer  *tsnet.Server
	validate     *validator.Validate
	markdown     goldmark.Markdown
	logger       *slog.Logger
}

// New creates the store and model client described by cfg and wires a Gateway around them.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	completer, err := model.New(ModelOptions(cfg.Model), logger)
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("creating model client: %w", err)
	}

	gw, err := newGateway(cfg, s, completer, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// newGateway builds the routing graph on top of an existing store and completer.
func newGateway(cfg *config.Config, s store.Store, completer model.Completer, logger *slog.Logger) (*Gateway, error) {
	registry, err := agent.NewStandardRegistry(completer, AgentOverrides(cfg.Agents), cfg.Routing.HistoryWindow, logger)
	if err != nil {
		return nil, fmt.Errorf("creating agent registry: %w", err)
	}

	classifier := router.NewLLMClassifier(completer, cfg.Routing.DefaultAgent, cfg.Routing.HistoryWindow, logger)
	supervisor, err := router.New(classifier, registry, router.Config{
		MaxTurns:     cfg.Routing.MaxTurns,
		DefaultAgent: cfg.Routing.DefaultAgent,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	executor := graph.NewExecutor(supervisor, registry, graph.Config{MaxTurns: supervisor.MaxTurns()}, logger)
	logger.Info("routing graph ready",
		"agents", registry.Names(),
		"default_agent", cfg.Routing.DefaultAgent,
		"max_turns", supervisor.MaxTurns(),
	)

	svc := conversation.New(s, executor, conversation.Config{
		CycleTimeout: cfg.Routing.CycleTimeout,
		Dedupe:       dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize),
		Broadcaster:  conversation.NewBroadcaster(logger),
	}, logger)

	gw := &Gateway{
		config:       cfg,
		store:        s,
		registry:     registry,
		conversation: svc,
		validate:     newValidator(),
		markdown:     newMarkdown(),
		logger:       logger.With("component", "gateway"),
	}

	if cfg.Server.GRPCAddr != "" {
		gw.grpcServer, gw.health = newGRPCServer()
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// routes builds the HTTP handler tree.
func (g *Gateway) routes() http.Handler {
	api := http.NewServeMux()
	api.Handle("POST /api/chat", auth.RequireScope(auth.ScopeChat, http.HandlerFunc(g.handleChat)))
	api.HandleFunc("GET /api/agents", g.handleListAgents)
	api.Handle("GET /api/conversations/{id}", auth.RequireScope(auth.ScopeHistory, http.HandlerFunc(g.handleGetConversation)))
	api.Handle("DELETE /api/conversations/{id}", auth.RequireScope(auth.ScopeHistory, http.HandlerFunc(g.handleDeleteConversation)))
	api.Handle("GET /api/conversations/{id}/cycles", auth.RequireScope(auth.ScopeHistory, http.HandlerFunc(g.handleListCycles)))
	api.Handle("GET /api/conversations/{id}/events", auth.RequireScope(auth.ScopeHistory, http.HandlerFunc(g.handleConversationEvents)))

	var apiHandler http.Handler = api
	if g.config.Auth.JWTSecret != "" {
		verifier := auth.NewJWTVerifier([]byte(g.config.Auth.JWTSecret))
		apiHandler = auth.HTTPAuthMiddleware(verifier)(api)
		g.logger.Info("API auth enabled (JWT)")
	} else {
		g.logger.Warn("auth disabled - no jwt_secret configured")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", g.handleRoot)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)
	mux.Handle("/api/", apiHandler)
	return mux
}

// Handler returns the HTTP handler served by the gateway.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// ModelOptions maps the model config section onto provider options.
func ModelOptions(c config.ModelConfig) model.Options {
	return model.Options{
		Provider:       c.Provider,
		Name:           c.Name,
		BaseURL:        c.BaseURL,
		APIKey:         c.APIKey,
		Temperature:    c.Temperature,
		TopP:           c.TopP,
		MaxTokens:      c.MaxTokens,
		RequestTimeout: c.RequestTimeout,
		MaxRetries:     c.MaxRetries,
	}
}

// AgentOverrides maps the agents config section onto registry overrides.
func AgentOverrides(agents []config.AgentConfig) map[string]agent.Options {
	if len(agents) == 0 {
		return nil
	}
	out := make(map[string]agent.Options, len(agents))
	for _, a := range agents {
		out[a.Name] = agent.Options{Description: a.Description, Prompt: a.Prompt}
	}
	return out
}

// initStore creates the store selected by config and environment.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("SUPPORT_GATEWAY_DB_PATH"); envPath != "" {
		dbPath = envPath
	}

	if dbPath == config.MemoryDatabase {
		return store.NewMemoryStore(), nil
	}

	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// setupTCPListeners creates standard TCP listeners for HTTP and, when configured, gRPC.
func (g *Gateway) setupTCPListeners() (grpcLn, httpLn net.Listener, err error) {
	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"grpc_addr", g.config.Server.GRPCAddr,
	)

	httpLn, err = net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if g.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", g.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}

	return grpcLn, httpLn, nil
}

// setupListeners creates listeners based on configuration (Tailscale or TCP).
func (g *Gateway) setupListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", g.config.Server.HTTPAddr)
		}
		return g.setupTailscaleListeners(ctx)
	}
	return g.setupTCPListeners()
}

// startServers starts the HTTP server and the optional gRPC server, returning the error channel.
func (g *Gateway) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		go func() {
			g.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		select {
		case additionalErr := <-errCh:
			g.logger.Error("additional server error", "error", additionalErr)
		default:
		}
		return err
	}
}

// Run starts the gateway servers and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (g *Gateway) Run(ctx context.Context) error {
	grpcLn, httpLn, err := g.setupListeners(ctx)
	if err != nil {
		return err
	}

	if g.health != nil {
		go g.watchReadiness(ctx, readinessInterval)
	}

	errCh := g.startServers(grpcLn, httpLn)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context since the run context is already done.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "support-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListeners joins the tailnet and listens for HTTP on :80 and gRPC on :50051.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	httpLn, err = g.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}

	if g.grpcServer != nil {
		grpcLn, err = g.tsnetServer.Listen("tcp", ":50051")
		if err != nil {
			_ = httpLn.Close()
			_ = g.tsnetServer.Close()
			return nil, nil, fmt.Errorf("listening on tailscale gRPC port: %w", err)
		}
	}

	return grpcLn, httpLn, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops all gateway servers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	if g.grpcServer != nil {
		g.health.Shutdown()
		g.shutdownGRPCServer(ctx)
	}

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}

	g.conversation.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
