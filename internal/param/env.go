package param

import (
	"context"
	"fmt"
	"os"

	"github.com/dmorgan81/sdgen/internal/log"
)

// EnvFetcher resolves a parameter from the first non-empty environment variable among the
// requested name and its aliases.
type EnvFetcher struct {
	Aliases map[string][]string
}

func (f *EnvFetcher) Fetch(ctx context.Context, name string) (string, error) {
	log.FromContextOrDiscard(ctx).WithGroup("env").Debug("fetching parameter", "name", name)

	for _, n := range append([]string{name}, f.Aliases[name]...) {
		if v := os.Getenv(n); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}
