package config

import "time"

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetStations() ([]StationData, error)
	GetStorageConfig() (*StorageData, error)
	GetAPIConfig() (*APIData, error)

	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Stations []StationData `json:"stations"`
	Storage  StorageData   `json:"storage"`
	API      APIData       `json:"api"`
	Log      LogData       `json:"log"`
}

// StationData holds the configuration of one weather station
type StationData struct {
	Name string `json:"name"`
	// Type is wx-station, main or remote-station.
	Type string `json:"type"`

	Callsign         string        `json:"callsign"`
	Passcode         string        `json:"passcode,omitempty"`
	Server           string        `json:"server"`
	Port             int           `json:"port"`
	Filter           string        `json:"filter,omitempty"`
	ReconnectBackoff time.Duration `json:"reconnect_backoff"`
	DialTimeout      time.Duration `json:"dial_timeout"`
	Drain            time.Duration `json:"drain"`
	Debug            bool          `json:"debug,omitempty"`

	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Timezone      string  `json:"timezone"`
	TxInterval    int     `json:"tx_interval"`
	PurgeInterval int     `json:"purge_interval,omitempty"`
	Comment       string  `json:"comment"`
	// Symbol is the two-character APRS symbol, table then code.
	Symbol string `json:"symbol,omitempty"`
}

// StorageData selects where rain state is persisted
type StorageData struct {
	// Backend is memory, sqlite or postgres.
	Backend     string `json:"backend"`
	SQLitePath  string `json:"sqlite_path,omitempty"`
	PostgresDSN string `json:"postgres_dsn,omitempty"`
}

// APIData holds the HTTP API listener configuration
type APIData struct {
	Enabled    bool   `json:"enabled"`
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
}

// LogData configures logging
type LogData struct {
	Debug      bool   `json:"debug,omitempty"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
}
