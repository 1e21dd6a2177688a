package inject

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmorgan81/sdgen/internal/config"
	"github.com/dmorgan81/sdgen/internal/handler"
	"github.com/dmorgan81/sdgen/internal/image"
	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	for _, k := range []string{
		config.APIKeyEnv, config.LegacyAPIKeyEnv, "STABILITY_API_KEY_PARAM",
		"STABILITY_API_HOST", "STABILITY_ENGINE", "OUTPUT_DIR", "OUTPUT_FILENAME",
		"OUTPUT_BUCKET", "OUTPUT_PREFIX", "DISTRIBUTION", "REQUEST_TIMEOUT", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestSetupMissingKey(t *testing.T) {
	injector := Setup(context.Background(), nil, isolateEnv(t))

	_, err := do.Invoke[*handler.Handler](injector)
	var cfgErr *image.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestSetupLegacyKey(t *testing.T) {
	dotenv := isolateEnv(t)
	t.Setenv(config.LegacyAPIKeyEnv, "sk-legacy")

	injector := Setup(context.Background(), nil, dotenv)

	key, err := do.InvokeNamed[string](injector, APIKeyName)
	require.NoError(t, err)
	assert.Equal(t, "sk-legacy", key)

	_, err = do.Invoke[*handler.Handler](injector)
	assert.NoError(t, err)
}

func TestClientConfig(t *testing.T) {
	cfg := &config.Config{
		APIHost:        "http://localhost:1234",
		Engine:         "sd-test",
		OutputDir:      "out",
		OutputFilename: "cat.png",
		RequestTimeout: time.Minute,
	}

	assert.Equal(t, image.Config{
		APIKey:         "sk",
		BaseURL:        "http://localhost:1234",
		Engine:         "sd-test",
		OutputDir:      "out",
		OutputFilename: "cat.png",
		Timeout:        time.Minute,
	}, ClientConfig(cfg, "sk"))
}

func TestSetupLevelFromDotenv(t *testing.T) {
	dotenv := isolateEnv(t)
	require.NoError(t, os.WriteFile(dotenv, []byte("LOG_LEVEL=debug\n"), 0o644))

	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)
	injector := Setup(context.Background(), level, dotenv)
	assert.Equal(t, slog.LevelInfo, level.Level())

	_, err := do.Invoke[*config.Config](injector)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level.Level())
}

func TestClientOptions(t *testing.T) {
	dotenv := isolateEnv(t)
	t.Setenv(config.APIKeyEnv, "sk-test")
	t.Setenv("OUTPUT_BUCKET", "images")
	t.Setenv("AWS_REGION", "us-east-1")

	injector := Setup(context.Background(), nil, dotenv)

	opts, err := ClientOptions(injector)
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}

func TestClientOptionsLocalOnly(t *testing.T) {
	injector := Setup(context.Background(), nil, isolateEnv(t))

	opts, err := ClientOptions(injector)
	require.NoError(t, err)
	assert.Len(t, opts, 1)
}
