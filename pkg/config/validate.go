package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Station types.
const (
	TypeWXStation = "wx-station"
	TypeMain      = "main"
	TypeRemote    = "remote-station"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

const (
	DefaultServer           = "rotate.aprs2.net"
	DefaultPort             = 14580
	DefaultReconnectBackoff = 10 * time.Second
	DefaultDialTimeout      = 10 * time.Second
	DefaultDrain            = 15 * time.Second
	DefaultTxInterval       = 10
	DefaultComment          = "wxrelay WX-Station"
	DefaultSQLitePath       = "wxrelay.db"
)

// ApplyDefaults fills unset fields.
func (c *ConfigData) ApplyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendMemory
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = DefaultSQLitePath
	}

	for i := range c.Stations {
		st := &c.Stations[i]
		st.Callsign = strings.ToUpper(strings.TrimSpace(st.Callsign))
		if st.Server == "" {
			st.Server = DefaultServer
		}
		if st.Port == 0 {
			st.Port = DefaultPort
		}
		if st.ReconnectBackoff == 0 {
			st.ReconnectBackoff = DefaultReconnectBackoff
		}
		if st.DialTimeout == 0 {
			st.DialTimeout = DefaultDialTimeout
		}
		if st.Drain == 0 {
			st.Drain = DefaultDrain
		}
		if st.TxInterval == 0 && st.Type != TypeRemote {
			st.TxInterval = DefaultTxInterval
		}
		if st.Comment == "" {
			st.Comment = DefaultComment
		}
		if st.Timezone == "" {
			st.Timezone = "Local"
		}
	}
}

// Validate checks the configuration. Errors name the offending station.
func (c *ConfigData) Validate() error {
	if len(c.Stations) == 0 {
		return fmt.Errorf("no stations configured")
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage: postgres backend requires postgres-dsn")
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}

	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api: port %d out of range", c.API.Port)
	}

	seen := make(map[string]bool, len(c.Stations))
	for i, st := range c.Stations {
		if st.Name == "" {
			return fmt.Errorf("station #%d: name is required", i+1)
		}
		if seen[st.Name] {
			return fmt.Errorf("station %s: duplicate name", st.Name)
		}
		seen[st.Name] = true

		if err := st.validate(); err != nil {
			return fmt.Errorf("station %s: %w", st.Name, err)
		}
	}
	return nil
}

func (st StationData) validate() error {
	switch st.Type {
	case TypeWXStation, TypeMain, TypeRemote:
	default:
		return fmt.Errorf("unknown type %q", st.Type)
	}

	if st.Callsign == "" {
		return fmt.Errorf("callsign is required")
	}
	if strings.ContainsAny(st.Callsign, " >:,") {
		return fmt.Errorf("invalid callsign %q", st.Callsign)
	}
	if st.Port < 1 || st.Port > 65535 {
		return fmt.Errorf("port %d out of range", st.Port)
	}

	if st.Type != TypeRemote {
		if math.Abs(st.Latitude) > 90 || math.Abs(st.Longitude) > 180 {
			return fmt.Errorf("position %v,%v out of range", st.Latitude, st.Longitude)
		}
		if st.TxInterval < 1 || 60%st.TxInterval != 0 {
			return fmt.Errorf("tx-interval %d must divide 60", st.TxInterval)
		}
	}
	if st.PurgeInterval < 0 || (st.PurgeInterval > 0 && 60%st.PurgeInterval != 0) {
		return fmt.Errorf("purge-interval %d must divide 60", st.PurgeInterval)
	}
	if st.Symbol != "" && len(st.Symbol) != 2 {
		return fmt.Errorf("symbol %q must be two characters", st.Symbol)
	}
	if _, err := time.LoadLocation(st.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}
