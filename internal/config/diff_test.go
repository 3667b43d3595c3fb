package config_test

import (
	"testing"

	"github.com/vocalq/outbound/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   config.LogInfo,
		},
		Agent: config.AgentConfig{
			Voice:    "alloy",
			Greeting: "Hello, thanks for calling.",
		},
		Dialer: config.DialerConfig{
			MaxAttempts: 3,
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if d.LogLevelChanged || d.AgentChanged || d.DialerChanged {
		t.Errorf("expected empty diff, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if d.AgentChanged || d.DialerChanged {
		t.Errorf("unrelated sections flagged: %+v", d)
	}
}

func TestDiff_AgentChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Agent.Greeting = "Good evening, thanks for calling."

	d := config.Diff(old, new)
	if !d.AgentChanged {
		t.Fatal("AgentChanged = false, want true")
	}
	if d.NewAgent.Greeting != "Good evening, thanks for calling." {
		t.Errorf("NewAgent.Greeting = %q", d.NewAgent.Greeting)
	}
	if d.LogLevelChanged || d.DialerChanged {
		t.Errorf("unrelated sections flagged: %+v", d)
	}
}

func TestDiff_AgentVoiceChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Agent.Voice = "coral"

	d := config.Diff(old, new)
	if !d.AgentChanged {
		t.Fatal("AgentChanged = false, want true")
	}
	if d.NewAgent.Voice != "coral" {
		t.Errorf("NewAgent.Voice = %q, want coral", d.NewAgent.Voice)
	}
}

func TestDiff_DialerChanged(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Dialer.MaxAttempts = 5

	d := config.Diff(old, new)
	if !d.DialerChanged {
		t.Fatal("DialerChanged = false, want true")
	}
	if d.NewDialer.MaxAttempts != 5 {
		t.Errorf("NewDialer.MaxAttempts = %d, want 5", d.NewDialer.MaxAttempts)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogWarn
	new.Agent.Voice = "coral"
	new.Dialer.MaxAttempts = 1

	d := config.Diff(old, new)
	if !d.LogLevelChanged || !d.AgentChanged || !d.DialerChanged {
		t.Errorf("expected all sections flagged, got %+v", d)
	}
}
