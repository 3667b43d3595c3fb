package app_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/vocalq/outbound/internal/app"
	"github.com/vocalq/outbound/internal/config"
	"github.com/vocalq/outbound/internal/store"
	embmock "github.com/vocalq/outbound/pkg/provider/embeddings/mock"
	llmmock "github.com/vocalq/outbound/pkg/provider/llm/mock"
	s2smock "github.com/vocalq/outbound/pkg/provider/s2s/mock"
	"github.com/vocalq/outbound/pkg/provider/s2s"
	"github.com/vocalq/outbound/pkg/telephony"
	telmock "github.com/vocalq/outbound/pkg/telephony/mock"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{ListenAddr: "127.0.0.1:0"},
		Twilio: config.TwilioConfig{
			AccountSID: "AC123",
			AuthToken:  "token",
			FromNumber: "+15550009999",
		},
	}
}

func testProviders() *app.Providers {
	return &app.Providers{
		S2S: &s2smock.Provider{
			Session:              s2smock.NewSession(),
			ProviderCapabilities: s2s.Capabilities{InputSampleRate: 8000, OutputSampleRate: 8000},
		},
		LLM:        &llmmock.Provider{},
		Embeddings: &embmock.Provider{DimensionsValue: 3},
	}
}

func testOptions() []app.Option {
	return []app.Option{
		app.WithStore(store.NewMemStore()),
		app.WithCarrier(&telmock.Carrier{CallSID: "CA1", StatusSequence: []string{"completed"}}),
		app.WithResolver(telephony.StaticResolver("https://example.com")),
	}
}

func TestNew_WiresSubsystems(t *testing.T) {
	a, err := app.New(context.Background(), testConfig(), testProviders(), testOptions()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	if a == nil {
		t.Fatal("New returned nil app")
	}
}

func TestNew_RequiresS2SProvider(t *testing.T) {
	providers := testProviders()
	providers.S2S = nil

	_, err := app.New(context.Background(), testConfig(), providers, testOptions()...)
	if err == nil {
		t.Fatal("New without s2s provider: want error")
	}
}

func TestNew_RequiresCarrierOrCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Twilio = config.TwilioConfig{}

	_, err := app.New(context.Background(), cfg, testProviders(),
		app.WithStore(store.NewMemStore()),
		app.WithResolver(telephony.StaticResolver("https://example.com")),
	)
	if err == nil {
		t.Fatal("New without carrier or twilio credentials: want error")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	a, err := app.New(context.Background(), testConfig(), testProviders(), testOptions()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestRun_FailsOnBadListenAddr(t *testing.T) {
	cfg := testConfig()
	cfg.Server.ListenAddr = "256.256.256.256:99999"

	a, err := app.New(context.Background(), cfg, testProviders(), testOptions()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err == nil {
		t.Error("Run with unroutable listen addr: want error")
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	a, err := app.New(context.Background(), testConfig(), testProviders(), testOptions()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for range 2 {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown: %v", err)
		}
	}

	// The server is already closed, so Run returns promptly without error.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err != nil {
		t.Errorf("Run after Shutdown: %v", err)
	}
}

func TestApplyConfig_LogLevel(t *testing.T) {
	a, err := app.New(context.Background(), testConfig(), testProviders(), testOptions()...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Shutdown(context.Background())

	var level slog.LevelVar
	a.ApplyConfig(config.ConfigDiff{LogLevelChanged: true, NewLogLevel: config.LogDebug}, &level)
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
}
