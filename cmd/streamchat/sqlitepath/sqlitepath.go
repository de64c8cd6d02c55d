// Package sqlitepath finds the SQLite database "streamchat serve" opens when
// no path is configured.
package sqlitepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/streamchat/pkg/dotdir"
)

// DefaultFileName is created in the config dir when no database exists yet.
const DefaultFileName = "streamchat.sqlite"

// ResolveSQLitePath returns override when set, then the first existing
// candidate database, then DefaultFileName inside the resolved config dir.
func ResolveSQLitePath(override, configDir string) (string, error) {
	if override != "" {
		return override, nil
	}

	for _, candidate := range sqliteCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return "", fmt.Errorf("resolving sqlite path: %w", err)
	}
	return filepath.Join(dir, DefaultFileName), nil
}

func sqliteCandidates() []string {
	candidates := []string{
		"streamchat.db",
		"streamchat.sqlite",
		filepath.Join(".streamchat", "streamchat.db"),
		filepath.Join(".streamchat", "streamchat.sqlite"),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".streamchat", "streamchat.db"),
			filepath.Join(home, ".streamchat", "streamchat.sqlite"),
		)
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append(candidates,
			filepath.Join(xdgHome, "streamchat", "streamchat.db"),
			filepath.Join(xdgHome, "streamchat", "streamchat.sqlite"),
		)
	}

	return candidates
}
