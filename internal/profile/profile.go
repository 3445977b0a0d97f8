package profile

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// Profile is configuration to start the main server.
type Profile struct {
	// Mode is "prod", "dev" or "demo".
	Mode string
	// Addr is the bind address of the server.
	Addr string
	// Port is the bind port of the server.
	Port int

	// CatalogPath is the path to the tool catalog YAML file.
	CatalogPath string
	// BackendsPath is the path to the backend registry YAML file.
	BackendsPath string

	// APIKey is the default API key sent to model backends that do not
	// override it in their profile.
	APIKey string

	// TurnBudgetSeconds is the overall single-shot deadline for one turn.
	TurnBudgetSeconds int
	// ToolTimeoutSeconds is the per-call deadline for capability RPCs.
	ToolTimeoutSeconds int

	// Version is the current running version.
	Version string
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
// Values already set (e.g. from flags) are only overridden when empty.
func (p *Profile) FromEnv() {
	if p.APIKey == "" {
		p.APIKey = getEnvOrDefault("PARLEY_API_KEY", "")
	}
	if p.CatalogPath == "" {
		p.CatalogPath = getEnvOrDefault("PARLEY_CATALOG", "config/tools.yaml")
	}
	if p.BackendsPath == "" {
		p.BackendsPath = getEnvOrDefault("PARLEY_BACKENDS", "config/backends.yaml")
	}
	if p.TurnBudgetSeconds == 0 {
		p.TurnBudgetSeconds = getEnvOrDefaultInt("PARLEY_TURN_BUDGET_SECONDS", 30)
	}
	if p.ToolTimeoutSeconds == 0 {
		p.ToolTimeoutSeconds = getEnvOrDefaultInt("PARLEY_TOOL_TIMEOUT_SECONDS", 5)
	}
}

func checkConfigFile(path string) (string, error) {
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", err
		}
		path = abs
	}
	if _, err := os.Stat(path); err != nil {
		return "", errors.Wrapf(err, "unable to access config file %s", path)
	}
	return path, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	catalogPath, err := checkConfigFile(p.CatalogPath)
	if err != nil {
		return err
	}
	p.CatalogPath = catalogPath

	backendsPath, err := checkConfigFile(p.BackendsPath)
	if err != nil {
		return err
	}
	p.BackendsPath = backendsPath

	if p.TurnBudgetSeconds <= 0 {
		return errors.Errorf("turn budget must be positive, got %d", p.TurnBudgetSeconds)
	}
	if p.ToolTimeoutSeconds <= 0 || p.ToolTimeoutSeconds >= p.TurnBudgetSeconds {
		return errors.Errorf("tool timeout must be positive and below the turn budget, got %d", p.ToolTimeoutSeconds)
	}

	return nil
}
