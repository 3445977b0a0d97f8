package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearParleyEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PARLEY_API_KEY",
		"PARLEY_CATALOG",
		"PARLEY_BACKENDS",
		"PARLEY_TURN_BUDGET_SECONDS",
		"PARLEY_TOOL_TIMEOUT_SECONDS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearParleyEnv(t)

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "", p.APIKey)
	assert.Equal(t, "config/tools.yaml", p.CatalogPath)
	assert.Equal(t, "config/backends.yaml", p.BackendsPath)
	assert.Equal(t, 30, p.TurnBudgetSeconds)
	assert.Equal(t, 5, p.ToolTimeoutSeconds)
}

func TestFromEnvOverrides(t *testing.T) {
	clearParleyEnv(t)
	t.Setenv("PARLEY_API_KEY", "sk-test")
	t.Setenv("PARLEY_TURN_BUDGET_SECONDS", "45")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "sk-test", p.APIKey)
	assert.Equal(t, 45, p.TurnBudgetSeconds)
}

func TestFromEnvDoesNotClobberFlags(t *testing.T) {
	clearParleyEnv(t)
	t.Setenv("PARLEY_CATALOG", "from-env.yaml")

	p := &Profile{CatalogPath: "from-flag.yaml"}
	p.FromEnv()

	assert.Equal(t, "from-flag.yaml", p.CatalogPath)
}

func writeTempConfig(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("version: \"1\"\n"), 0o644))
	return path
}

func TestValidate(t *testing.T) {
	catalog := writeTempConfig(t, "tools.yaml")
	backends := writeTempConfig(t, "backends.yaml")

	t.Run("valid profile passes", func(t *testing.T) {
		p := &Profile{
			Mode:               "prod",
			CatalogPath:        catalog,
			BackendsPath:       backends,
			TurnBudgetSeconds:  30,
			ToolTimeoutSeconds: 5,
		}
		require.NoError(t, p.Validate())
		assert.Equal(t, "prod", p.Mode)
	})

	t.Run("unknown mode falls back to dev", func(t *testing.T) {
		p := &Profile{
			Mode:               "staging",
			CatalogPath:        catalog,
			BackendsPath:       backends,
			TurnBudgetSeconds:  30,
			ToolTimeoutSeconds: 5,
		}
		require.NoError(t, p.Validate())
		assert.Equal(t, "dev", p.Mode)
	})

	t.Run("missing catalog file rejected", func(t *testing.T) {
		p := &Profile{
			Mode:               "dev",
			CatalogPath:        filepath.Join(t.TempDir(), "missing.yaml"),
			BackendsPath:       backends,
			TurnBudgetSeconds:  30,
			ToolTimeoutSeconds: 5,
		}
		assert.Error(t, p.Validate())
	})

	t.Run("tool timeout must stay below turn budget", func(t *testing.T) {
		p := &Profile{
			Mode:               "dev",
			CatalogPath:        catalog,
			BackendsPath:       backends,
			TurnBudgetSeconds:  10,
			ToolTimeoutSeconds: 10,
		}
		assert.Error(t, p.Validate())
	})
}

func TestIsDev(t *testing.T) {
	assert.True(t, (&Profile{Mode: "dev"}).IsDev())
	assert.True(t, (&Profile{Mode: "demo"}).IsDev())
	assert.False(t, (&Profile{Mode: "prod"}).IsDev())
}
