package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/chrissnell/wxrelay/internal/api"
	"github.com/chrissnell/wxrelay/internal/aprsis"
	"github.com/chrissnell/wxrelay/internal/kvstore"
	"github.com/chrissnell/wxrelay/internal/metrics"
	"github.com/chrissnell/wxrelay/internal/station"
	"github.com/chrissnell/wxrelay/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
	version        string
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger, version string) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
		version:        version,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	storageCfg, err := a.configProvider.GetStorageConfig()
	if err != nil {
		return fmt.Errorf("failed to load storage config: %w", err)
	}
	stationCfgs, err := a.configProvider.GetStations()
	if err != nil {
		return fmt.Errorf("failed to load stations: %w", err)
	}
	apiCfg, err := a.configProvider.GetAPIConfig()
	if err != nil {
		return fmt.Errorf("failed to load API config: %w", err)
	}

	store, err := OpenStore(*storageCfg)
	if err != nil {
		return err
	}
	defer store.Close()
	a.logger.Infof("rain state stored in %s backend", storageCfg.Backend)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	stations, err := BuildStations(stationCfgs, store, m, a.logger, a.version)
	if err != nil {
		return err
	}

	for _, st := range stations {
		wg.Add(1)
		go func(st *station.Station) {
			defer wg.Done()
			if err := st.Run(ctx); err != nil {
				a.logger.Errorf("station %s exited: %v", st.Name(), err)
			}
		}(st)
	}

	if apiCfg.Enabled {
		apiStations := make([]api.Station, len(stations))
		for i, st := range stations {
			apiStations[i] = st
		}
		srv, err := api.NewServer(api.Config{
			ListenAddr: apiCfg.ListenAddr,
			Port:       apiCfg.Port,
			Cert:       apiCfg.Cert,
			Key:        apiCfg.Key,
		}, apiStations, reg, a.logger)
		if err != nil {
			cancel()
			wg.Wait()
			return err
		}
		srv.Start(ctx, &wg)
	}

	a.logger.Infof("wxrelay started with %d station(s)", len(stations))

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	// Wait for shutdown signal
	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}

// OpenStore opens the configured rain-state backend.
func OpenStore(cfg config.StorageData) (kvstore.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return kvstore.NewMemory(), nil
	case config.BackendSQLite:
		return kvstore.NewSQLite(cfg.SQLitePath)
	case config.BackendPostgres:
		return kvstore.NewPostgres(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// BuildStations turns station configuration into stations sharing store,
// each under its own key namespace.
func BuildStations(cfgs []config.StationData, store kvstore.Store, m *metrics.Metrics, logger *zap.SugaredLogger, version string) ([]*station.Station, error) {
	out := make([]*station.Station, 0, len(cfgs))
	for _, sc := range cfgs {
		stCfg, err := StationConfig(sc, version)
		if err != nil {
			return nil, err
		}
		st, err := station.New(stCfg, station.Options{
			Logger:  logger,
			Metrics: m,
			Store:   kvstore.WithNamespace(store, sc.Name),
		})
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// StationConfig maps one configured station onto station.Config.
func StationConfig(sc config.StationData, version string) (station.Config, error) {
	loc, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		return station.Config{}, fmt.Errorf("station %s: %w", sc.Name, err)
	}

	cfg := station.Config{
		Name:          sc.Name,
		Kind:          station.Kind(sc.Type),
		Latitude:      sc.Latitude,
		Longitude:     sc.Longitude,
		Location:      loc,
		TxInterval:    sc.TxInterval,
		PurgeInterval: sc.PurgeInterval,
		Comment:       sc.Comment,
		Drain:         sc.Drain,
		Connection: aprsis.Config{
			Host:             sc.Server,
			Port:             sc.Port,
			Callsign:         sc.Callsign,
			Passcode:         sc.Passcode,
			Filter:           sc.Filter,
			AppVersion:       "wxrelay " + version,
			ReconnectBackoff: sc.ReconnectBackoff,
			DialTimeout:      sc.DialTimeout,
			Debug:            sc.Debug,
		},
	}
	if len(sc.Symbol) == 2 {
		cfg.SymbolTable, cfg.SymbolCode = sc.Symbol[0], sc.Symbol[1]
	}
	return cfg, nil
}
