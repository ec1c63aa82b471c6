package path

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigPath(t *testing.T) {
	t.Setenv(ConfigEnv, "")
	assert.Equal(t, DefaultConfigPath, ConfigPath(""))
	assert.Equal(t, "config", filepath.Base(filepath.Dir(DefaultConfigPath)))

	t.Setenv(ConfigEnv, "/etc/walscan.toml")
	assert.Equal(t, "/etc/walscan.toml", ConfigPath(""))
	assert.Equal(t, "/tmp/x.toml", ConfigPath("/tmp/x.toml"))
}
