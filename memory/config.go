package memory

import "os"

// Config holds the process-wide options recognized by the engines. Zero
// values are replaced with defaults by WithDefaults.
type Config struct {
	// BackendURL is the connection string for the key-value backend.
	BackendURL string
	// WorkspacePath is the absolute path hashed into the workspace id.
	WorkspacePath string
	// Mode is the workspace read policy. Engines re-read it on every
	// operation, so callers may change it between requests.
	Mode Mode
	// LLMAPIKey is the credential for the keyword-extraction and analyzer
	// LLM. When empty, analyzer calls fail with Misconfigured and embedding
	// falls back to the trigram-only sketch.
	LLMAPIKey string
}

// DefaultBackendURL is used when no backend connection string is given.
const DefaultBackendURL = "redis://localhost:6379"

// WithDefaults returns a copy of c with unset options resolved to their
// defaults. The default workspace path is the process working directory.
func (c Config) WithDefaults() Config {
	if c.BackendURL == "" {
		c.BackendURL = DefaultBackendURL
	}
	if c.WorkspacePath == "" {
		if wd, err := os.Getwd(); err == nil {
			c.WorkspacePath = wd
		}
	}
	if c.Mode == "" {
		c.Mode = ModeIsolated
	}
	return c
}

// Validate reports configuration errors that would otherwise surface mid-
// operation.
func (c Config) Validate() error {
	if !ValidMode(c.Mode) {
		return Errorf(KindMisconfigured, "unknown workspace mode %q", c.Mode)
	}
	if c.WorkspacePath == "" {
		return NewError(KindMisconfigured, "workspace path is not set")
	}
	return nil
}
