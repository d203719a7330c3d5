package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/relaydrop/relaydrop/cmd/relaydrop/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitCreatesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	dir := filepath.Join(t.TempDir(), "relaydrop")

	require.NoError(t, config.InitIn(dir))
	content, err := os.ReadFile(filepath.Join(dir, "config.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "relay: 127.0.0.1:8000\n")
	assert.Contains(t, string(content), "consent_timeout: 1m0s\n")

	assert.Equal(t, config.StyleRich, viper.GetString("tui_style"))
	assert.Equal(t, time.Minute, viper.GetDuration("consent_timeout"))
	assert.Equal(t, 64*1024, viper.GetInt("chunk_size"))
	assert.True(t, config.IsDefault("relay"))
}

func TestInitReadsExisting(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("relay: relay.example.com:9000\nrequire_consent: true\n"), 0o644))

	require.NoError(t, config.InitIn(dir))
	assert.Equal(t, "relay.example.com:9000", viper.GetString("relay"))
	assert.True(t, viper.GetBool("require_consent"))
	assert.False(t, config.IsDefault("relay"))
	assert.Equal(t, ".", viper.GetString("output_dir"))
}

func TestYamlIsSorted(t *testing.T) {
	yaml := string(config.GetDefault().Yaml())
	assert.Less(t, strings.Index(yaml, "chunk_size"), strings.Index(yaml, "verbose"))
}
