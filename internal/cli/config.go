package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/casebook/internal/paths"
	"github.com/mesh-intelligence/casebook/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "CASEBOOK"

	cfgKeyBackend    = "backend"
	cfgKeyDataDir    = "data_dir"
	cfgKeyLogLevel   = "log_level"
	cfgKeyServeAddr  = "serve.addr"
	cfgKeyGlobalTags = "import.global_tags"

	defaultServeAddr = "127.0.0.1:7878"
	defaultLogLevel  = "warn"
)

// configFile is the shape written to config.yaml on first run.
type configFile struct {
	Backend  string       `yaml:"backend"`
	DataDir  string       `yaml:"data_dir,omitempty"`
	LogLevel string       `yaml:"log_level"`
	Serve    serveConfig  `yaml:"serve"`
	Import   importConfig `yaml:"import"`
}

type serveConfig struct {
	Addr string `yaml:"addr"`
}

type importConfig struct {
	GlobalTags []string `yaml:"global_tags"`
}

const configHeader = `# Casebook configuration.
# Every key can be overridden with a CASEBOOK_ environment variable,
# e.g. CASEBOOK_BACKEND=leveldb or CASEBOOK_SERVE_ADDR=127.0.0.1:9000.
`

// loadConfig reads config.yaml from configDir using Viper. It creates the
// directory and a default config.yaml on first run.
func loadConfig(configDir string) (*viper.Viper, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	if err := writeConfigIfMissing(configDir); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetDefault(cfgKeyServeAddr, defaultServeAddr)
	v.SetDefault(cfgKeyGlobalTags, []string{})
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// writeConfigIfMissing creates config.yaml with default values. An existing
// file is left alone.
func writeConfigIfMissing(configDir string) error {
	path := paths.ConfigFile(configDir)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}

	cfg := configFile{
		Backend:  types.BackendSQLite,
		LogLevel: defaultLogLevel,
		Serve:    serveConfig{Addr: defaultServeAddr},
		Import:   importConfig{GlobalTags: []string{}},
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(configHeader), data...), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
