// Package workspace manages the on-disk directory where run reports,
// metrics textfiles and logs are kept.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// EnvVar overrides the default workspace location.
const EnvVar = "FWRECON_WORKSPACE"

const (
	ReportsDir = "reports"
	MetricsDir = "metrics"
	LogsDir    = "logs"
)

var defaultSubdirs = []string{ReportsDir, MetricsDir, LogsDir}

var (
	userHomeDir = os.UserHomeDir
	getGOOS     = func() string { return runtime.GOOS }
)

// Prepare creates root and its subdirectories and returns the absolute root.
// An empty root resolves to the platform default.
func Prepare(root string) (string, error) {
	if root == "" {
		var err error
		if root, err = defaultRoot(); err != nil {
			return "", err
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace path: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o750); err != nil {
		return "", fmt.Errorf("create workspace root: %w", err)
	}
	for _, sub := range defaultSubdirs {
		if err := os.MkdirAll(filepath.Join(absRoot, sub), 0o750); err != nil {
			return "", fmt.Errorf("create workspace subdir %q: %w", sub, err)
		}
	}
	return absRoot, nil
}

type ctxKey string

const rootKey ctxKey = "fwrecon.workspace.root"

// WithContext stores the prepared root on ctx.
func WithContext(ctx context.Context, root string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, rootKey, root)
}

// FromContext returns the root stored by WithContext.
func FromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	root, ok := ctx.Value(rootKey).(string)
	return root, ok && root != ""
}

// Path joins elem under root.
func Path(root string, elem ...string) string {
	return filepath.Join(append([]string{root}, elem...)...)
}

func defaultRoot() (string, error) {
	if dir := os.Getenv(EnvVar); dir != "" {
		return dir, nil
	}

	switch getGOOS() {
	case "darwin":
		home, err := homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "fwrecon"), nil
	case "windows":
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "fwrecon"), nil
		}
		home, err := homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "AppData", "Roaming", "fwrecon"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "fwrecon"), nil
		}
		home, err := homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share", "fwrecon"), nil
	}
}

func homeDir() (string, error) {
	home, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	if home == "" {
		return "", errors.New("cannot determine workspace directory")
	}
	return home, nil
}

// Subdirectories returns the directories Prepare creates under the root.
func Subdirectories() []string {
	return append([]string(nil), defaultSubdirs...)
}
