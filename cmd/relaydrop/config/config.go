package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fatih/structs"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	CONFIGS_DIR_NAME          = ".config"
	RELAYDROP_CONFIG_DIR_NAME = "relaydrop"
	CONFIG_FILE_NAME          = "config"
	CONFIG_FILE_EXT           = "yml"

	StyleRich = "rich"
	StyleRaw  = "raw"
)

type Config struct {
	Relay          string        `mapstructure:"relay"`
	Verbose        bool          `mapstructure:"verbose"`
	TuiStyle       string        `mapstructure:"tui_style"`
	OutputDir      string        `mapstructure:"output_dir"`
	StreamToDisk   bool          `mapstructure:"stream_to_disk"`
	Overwrite      bool          `mapstructure:"overwrite"`
	RequireConsent bool          `mapstructure:"require_consent"`
	ConsentTimeout time.Duration `mapstructure:"consent_timeout"`
	SyncClipboard  bool          `mapstructure:"sync_clipboard"`
	RelayPort      int           `mapstructure:"relay_port"`
	UploadDir      string        `mapstructure:"upload_dir"`
	ChunkSize      int           `mapstructure:"chunk_size"`
}

func GetDefault() Config {
	return Config{
		Relay:          "127.0.0.1:8000",
		Verbose:        false,
		TuiStyle:       StyleRich,
		OutputDir:      ".",
		StreamToDisk:   true,
		Overwrite:      false,
		RequireConsent: false,
		ConsentTimeout: 60 * time.Second,
		SyncClipboard:  false,
		RelayPort:      8000,
		UploadDir:      "uploads",
		ChunkSize:      64 * 1024,
	}
}

func (config Config) Map() map[string]any {
	m := map[string]any{}
	for _, field := range structs.Fields(config) {
		m[field.Tag("mapstructure")] = field.Value()
	}
	return m
}

// Yaml renders the config with its keys sorted.
func (config Config) Yaml() []byte {
	m := config.Map()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	for _, k := range keys {
		builder.WriteString(fmt.Sprintf("%s: %v\n", k, m[k]))
	}
	return []byte(builder.String())
}

func IsDefault(key string) bool {
	defaults := GetDefault().Map()
	return viper.Get(key) == defaults[key]
}

// Init initializes the viper config.
// `config.yml` is created in $HOME/.config/relaydrop if not already existing.
// NOTE: The precedence levels of viper are the following: flags -> config file -> defaults.
func Init() error {
	home, err := homedir.Dir()
	if err != nil {
		return fmt.Errorf("resolving home dir: %w", err)
	}
	return InitIn(filepath.Join(home, CONFIGS_DIR_NAME, RELAYDROP_CONFIG_DIR_NAME))
}

// InitIn initializes the viper config from the config file in configPath.
func InitIn(configPath string) error {
	viper.AddConfigPath(configPath)
	viper.SetConfigName(CONFIG_FILE_NAME)
	viper.SetConfigType(CONFIG_FILE_EXT)

	if err := viper.ReadInConfig(); err != nil {
		// Create config file if not found.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("could not read config file: %w", err)
		}
		if err := os.MkdirAll(configPath, os.ModePerm); err != nil {
			return fmt.Errorf("could not create config directory: %w", err)
		}
		path := filepath.Join(configPath, fmt.Sprintf("%s.%s", CONFIG_FILE_NAME, CONFIG_FILE_EXT))
		if err := os.WriteFile(path, GetDefault().Yaml(), 0o644); err != nil {
			return fmt.Errorf("could not write defaults to config file: %w", err)
		}
		viper.SetConfigFile(path)
	}
	for k, v := range GetDefault().Map() {
		viper.SetDefault(k, v)
	}
	return nil
}
