package param

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvFetcher(t *testing.T) {
	f := &EnvFetcher{Aliases: map[string][]string{"STABILITY_API_KEY": {"STABILITY_KEY"}}}
	ctx := context.Background()

	t.Run("primary name wins", func(t *testing.T) {
		t.Setenv("STABILITY_API_KEY", "primary")
		t.Setenv("STABILITY_KEY", "legacy")

		v, err := f.Fetch(ctx, "STABILITY_API_KEY")
		require.NoError(t, err)
		assert.Equal(t, "primary", v)
	})

	t.Run("falls back to alias", func(t *testing.T) {
		t.Setenv("STABILITY_API_KEY", "")
		t.Setenv("STABILITY_KEY", "legacy")

		v, err := f.Fetch(ctx, "STABILITY_API_KEY")
		require.NoError(t, err)
		assert.Equal(t, "legacy", v)
	})

	t.Run("missing", func(t *testing.T) {
		t.Setenv("STABILITY_API_KEY", "")
		t.Setenv("STABILITY_KEY", "")

		_, err := f.Fetch(ctx, "STABILITY_API_KEY")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
