// ABOUTME: Tests for Gateway wiring, lifecycle and the gRPC health service
// ABOUTME: Uses in-memory stores and scripted completers instead of a real model

package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/support-gateway/internal/config"
	"github.com/2389/support-gateway/internal/model"
	"github.com/2389/support-gateway/internal/store"
)

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testConfig creates a minimal resolved config.
func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Database: config.DatabaseConfig{Path: config.MemoryDatabase},
		Model: config.ModelConfig{
			Provider:       model.ProviderOpenAI,
			Name:           "gpt-4o-mini",
			APIKey:         "sk-test",
			RequestTimeout: 5 * time.Second,
		},
		Routing: config.RoutingConfig{
			MaxTurns:      3,
			HistoryWindow: 10,
			DefaultAgent:  "general_info_agent",
			CycleTimeout:  5 * time.Second,
		},
		Dedupe: config.DedupeConfig{TTL: time.Minute, MaxSize: 100},
	}
}

// supportModel routes on keywords in the latest customer message and echoes
// that message back as the agent reply.
func supportModel() model.Completer {
	return model.CompleterFunc(func(ctx context.Context, p model.Prompt) (string, error) {
		last := p.Messages[len(p.Messages)-1].Content
		if !strings.HasPrefix(p.System, "You are the router") {
			return "Reply: " + last, nil
		}

		lines := strings.Split(strings.TrimSpace(last), "\n")
		latest := lines[len(lines)-1]
		switch {
		case !strings.HasPrefix(latest, "[user]"):
			return `{"next": "FINISH", "reason": "answered"}`, nil
		case strings.Contains(latest, "charged"):
			return `{"next": "billing_agent", "reason": "payment question"}`, nil
		case strings.Contains(latest, "error"):
			return "```json\n{\"next\": \"technical_agent\", \"reason\": \"bug\"}\n```", nil
		default:
			return "I am not sure", nil
		}
	})
}

func newTestGateway(t *testing.T, cfg *config.Config, c model.Completer) *Gateway {
	t.Helper()
	gw, err := newGateway(cfg, store.NewMemoryStore(), c, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return gw
}

func TestNew_MemoryStore(t *testing.T) {
	cfg := testConfig()

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	_, isMemory := gw.store.(*store.MemoryStore)
	assert.True(t, isMemory, "':memory:' should select the in-memory store")
	assert.Equal(t, 3, gw.registry.Len())
	assert.Nil(t, gw.grpcServer, "no gRPC server without grpc_addr")
}

func TestNew_SQLiteStore(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Path = t.TempDir() + "/gateway.db"

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	_, isSQLite := gw.store.(*store.SQLiteStore)
	assert.True(t, isSQLite)
}

func TestNew_UnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Model.Provider = "cohere"

	_, err := New(cfg, testLogger())
	assert.Error(t, err)
}

func TestNewGateway_BadDefaultAgent(t *testing.T) {
	cfg := testConfig()
	cfg.Routing.DefaultAgent = "sales_agent"

	_, err := newGateway(cfg, store.NewMemoryStore(), supportModel(), testLogger())
	assert.Error(t, err)
}

func TestModelOptions(t *testing.T) {
	opts := ModelOptions(config.ModelConfig{
		Provider:       "anthropic",
		Name:           "claude",
		BaseURL:        "http://localhost/",
		APIKey:         "k",
		Temperature:    0.2,
		TopP:           0.5,
		MaxTokens:      256,
		RequestTimeout: time.Second,
		MaxRetries:     4,
	})

	assert.Equal(t, model.Options{
		Provider:       "anthropic",
		Name:           "claude",
		BaseURL:        "http://localhost/",
		APIKey:         "k",
		Temperature:    0.2,
		TopP:           0.5,
		MaxTokens:      256,
		RequestTimeout: time.Second,
		MaxRetries:     4,
	}, opts)
}

func TestAgentOverrides(t *testing.T) {
	assert.Nil(t, AgentOverrides(nil))

	got := AgentOverrides([]config.AgentConfig{
		{Name: "billing_agent", Prompt: "You are a billing agent for Acme."},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "You are a billing agent for Acme.", got["billing_agent"].Prompt)
}

func TestCheckReadiness(t *testing.T) {
	cfg := testConfig()
	cfg.Server.GRPCAddr = "127.0.0.1:0"
	gw := newTestGateway(t, cfg, supportModel())
	require.NotNil(t, gw.health)

	resp, err := gw.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: HealthService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	assert.True(t, gw.checkReadiness(context.Background()))

	resp, err = gw.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: HealthService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

type failingPingStore struct {
	*store.MemoryStore
}

func (failingPingStore) Ping(context.Context) error { return errors.New("disk gone") }

func TestCheckReadiness_StoreDown(t *testing.T) {
	cfg := testConfig()
	cfg.Server.GRPCAddr = "127.0.0.1:0"
	gw, err := newGateway(cfg, failingPingStore{store.NewMemoryStore()}, supportModel(), testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	assert.False(t, gw.checkReadiness(context.Background()))

	resp, err := gw.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: HealthService})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())
}

func TestGatewayRun_GracefulShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find available HTTP port: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig()
	cfg.Server.HTTPAddr = addr
	gw, err := newGateway(cfg, store.NewMemoryStore(), supportModel(), testLogger())
	if err != nil {
		t.Fatalf("newGateway() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("gateway did not become healthy")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")

	key, err := resolveTailscaleAuthKey("tskey-config")
	require.NoError(t, err)
	assert.Equal(t, "tskey-config", key)

	_, err = resolveTailscaleAuthKey("")
	assert.Error(t, err)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)
}

func TestResolveTailscaleStateDir(t *testing.T) {
	dir, err := resolveTailscaleStateDir("/var/lib/ts")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ts", dir)

	dir, err = resolveTailscaleStateDir("")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(dir, "support-gateway/tailscale"))
}
