package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked: the agent persona
// applies to the next call, dialer timings to the next queue item, and the
// log level takes effect immediately. Everything else needs a restart.
type ConfigDiff struct {
	AgentChanged    bool
	NewAgent        AgentConfig
	DialerChanged   bool
	NewDialer       DialerConfig
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Agent != new.Agent {
		d.AgentChanged = true
		d.NewAgent = new.Agent
	}

	if old.Dialer != new.Dialer {
		d.DialerChanged = true
		d.NewDialer = new.Dialer
	}

	return d
}
