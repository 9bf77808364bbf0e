package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoCmd_Use(t *testing.T) {
	assert.Equal(t, "demo", demoCmd.Use)
}

func TestDemoCmd_Long(t *testing.T) {
	assert.Contains(t, demoCmd.Long, "autocomplete")
	assert.Contains(t, demoCmd.Long, "Ctrl+S")
}

func TestDemoCmd_HasFileFlag(t *testing.T) {
	flag := demoCmd.Flags().Lookup("file")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log-level"))
}

func TestLoadConfig_LogLevelOverride(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "config.toml")
	logLevel = "debug"
	defer func() {
		configPath = ""
		logLevel = ""
	}()

	cfg, err := loadConfig()

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Diag.Level)
}

func TestLoadConfig_BadLogLevel(t *testing.T) {
	configPath = filepath.Join(t.TempDir(), "config.toml")
	logLevel = "chatty"
	defer func() {
		configPath = ""
		logLevel = ""
	}()

	_, err := loadConfig()

	assert.Error(t, err)
}
