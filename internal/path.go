package path

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigEnv overrides the default config location.
const ConfigEnv = "WALSCAN_CONFIG"

var (
	_, b, _, _               = runtime.Caller(0)
	ProjectRoot              = filepath.Join(filepath.Dir(b), "../")
	DefaultConfigPath string = filepath.Join(ProjectRoot, "config", "config.toml")
)

// ConfigPath picks the config file: an explicit flag value, then the
// environment, then the in-tree default.
func ConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(ConfigEnv); env != "" {
		return env
	}
	return DefaultConfigPath
}
