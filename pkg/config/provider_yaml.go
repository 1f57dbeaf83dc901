package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files.
// ${VAR} references are expanded from the environment after the optional
// dotenv files are loaded.
type YAMLProvider struct {
	filename string
	envFiles []string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string, envFiles ...string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
		envFiles: envFiles,
	}
}

// StationYAML is a station as written in the YAML file
type StationYAML struct {
	Name             string  `yaml:"name"`
	Type             string  `yaml:"type"`
	Callsign         string  `yaml:"callsign"`
	Passcode         string  `yaml:"passcode,omitempty"`
	Server           string  `yaml:"server,omitempty"`
	Port             int     `yaml:"port,omitempty"`
	Filter           string  `yaml:"filter,omitempty"`
	ReconnectBackoff string  `yaml:"reconnect-backoff,omitempty"`
	DialTimeout      string  `yaml:"dial-timeout,omitempty"`
	Drain            string  `yaml:"drain,omitempty"`
	Debug            bool    `yaml:"debug,omitempty"`
	Latitude         float64 `yaml:"latitude"`
	Longitude        float64 `yaml:"longitude"`
	Timezone         string  `yaml:"timezone,omitempty"`
	TxInterval       int     `yaml:"tx-interval,omitempty"`
	PurgeInterval    int     `yaml:"purge-interval,omitempty"`
	Comment          string  `yaml:"comment,omitempty"`
	Symbol           string  `yaml:"symbol,omitempty"`
}

// StorageYAML is the storage section of the YAML file
type StorageYAML struct {
	Backend     string `yaml:"backend,omitempty"`
	SQLitePath  string `yaml:"sqlite-path,omitempty"`
	PostgresDSN string `yaml:"postgres-dsn,omitempty"`
}

// APIYAML is the api section of the YAML file
type APIYAML struct {
	Enabled    *bool  `yaml:"enabled,omitempty"`
	ListenAddr string `yaml:"listen-addr,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
}

// LogYAML is the log section of the YAML file
type LogYAML struct {
	Debug      bool   `yaml:"debug,omitempty"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max-size-mb,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty"`
	MaxAgeDays int    `yaml:"max-age-days,omitempty"`
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	if y.config != nil {
		return y.config, nil
	}

	for _, f := range y.envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("unable to load env file %s: %w", f, err)
		}
	}

	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := Parse(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}
	y.config = config
	return config, nil
}

// Parse expands environment references in data, decodes it, applies
// defaults and validates the result.
func Parse(data []byte) (*ConfigData, error) {
	var yamlConfig struct {
		Stations []StationYAML `yaml:"stations"`
		Storage  StorageYAML   `yaml:"storage,omitempty"`
		API      APIYAML       `yaml:"api,omitempty"`
		Log      LogYAML       `yaml:"log,omitempty"`
	}

	if err := yaml.UnmarshalStrict([]byte(os.ExpandEnv(string(data))), &yamlConfig); err != nil {
		return nil, err
	}

	config := &ConfigData{
		Stations: make([]StationData, len(yamlConfig.Stations)),
		Storage: StorageData{
			Backend:     yamlConfig.Storage.Backend,
			SQLitePath:  yamlConfig.Storage.SQLitePath,
			PostgresDSN: yamlConfig.Storage.PostgresDSN,
		},
		API: APIData{
			Enabled:    yamlConfig.API.Enabled == nil || *yamlConfig.API.Enabled,
			ListenAddr: yamlConfig.API.ListenAddr,
			Port:       yamlConfig.API.Port,
			Cert:       yamlConfig.API.Cert,
			Key:        yamlConfig.API.Key,
		},
		Log: LogData{
			Debug:      yamlConfig.Log.Debug,
			File:       yamlConfig.Log.File,
			MaxSizeMB:  yamlConfig.Log.MaxSizeMB,
			MaxBackups: yamlConfig.Log.MaxBackups,
			MaxAgeDays: yamlConfig.Log.MaxAgeDays,
		},
	}

	for i, st := range yamlConfig.Stations {
		backoff, err := parseDuration(st.ReconnectBackoff)
		if err != nil {
			return nil, fmt.Errorf("station %s: reconnect-backoff: %w", st.Name, err)
		}
		dial, err := parseDuration(st.DialTimeout)
		if err != nil {
			return nil, fmt.Errorf("station %s: dial-timeout: %w", st.Name, err)
		}
		drain, err := parseDuration(st.Drain)
		if err != nil {
			return nil, fmt.Errorf("station %s: drain: %w", st.Name, err)
		}

		config.Stations[i] = StationData{
			Name:             st.Name,
			Type:             st.Type,
			Callsign:         st.Callsign,
			Passcode:         st.Passcode,
			Server:           st.Server,
			Port:             st.Port,
			Filter:           st.Filter,
			ReconnectBackoff: backoff,
			DialTimeout:      dial,
			Drain:            drain,
			Debug:            st.Debug,
			Latitude:         st.Latitude,
			Longitude:        st.Longitude,
			Timezone:         st.Timezone,
			TxInterval:       st.TxInterval,
			PurgeInterval:    st.PurgeInterval,
			Comment:          st.Comment,
			Symbol:           st.Symbol,
		}
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// GetStations returns the configured stations
func (y *YAMLProvider) GetStations() ([]StationData, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return config.Stations, nil
}

// GetStorageConfig returns the storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.Storage, nil
}

// GetAPIConfig returns the HTTP API configuration
func (y *YAMLProvider) GetAPIConfig() (*APIData, error) {
	config, err := y.LoadConfig()
	if err != nil {
		return nil, err
	}
	return &config.API, nil
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
