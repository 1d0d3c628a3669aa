package config

// Built-in defaults.
const (
	DefaultDataDir   = ".policypad/data"
	DefaultStatePath = ".policypad/state.db"
	DefaultEngine    = "sqlite"
	DefaultPort      = 4800
	DefaultPolicyURL = "http://localhost:8181"
)

func defaults() map[string]any {
	return map[string]any{
		"data_dir":   DefaultDataDir,
		"state_path": DefaultStatePath,
		"engine":     DefaultEngine,
		"port":       DefaultPort,
		"policy_url": DefaultPolicyURL,
		"log_level":  "info",
	}
}
