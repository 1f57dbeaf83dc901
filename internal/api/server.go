// Package api serves the HTTP interface of the relay: sensor ingest, station
// status and Prometheus metrics.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chrissnell/wxrelay/internal/log"
	"github.com/chrissnell/wxrelay/internal/station"
	"github.com/chrissnell/wxrelay/pkg/aprs"
)

const (
	DefaultListenAddr = "127.0.0.1"
	DefaultPort       = 8090
)

// Station is the part of a station the API drives.
type Station interface {
	Name() string
	Status(ctx context.Context) (station.Status, error)
	Packets(ctx context.Context) ([]aprs.Packet, error)
	UpdateTemperature(ctx context.Context, celsius float64) error
	UpdateHumidity(ctx context.Context, percent float64) error
	UpdatePressure(ctx context.Context, hpa float64) error
	UpdateWind(ctx context.Context, w station.Wind) error
	UpdateRain(ctx context.Context, amount float64, units string) error
	UpdateSettings(ctx context.Context, set station.Settings) error
}

// Config configures the listener.
type Config struct {
	ListenAddr string
	Port       int
	Cert       string
	Key        string
}

// Server is the HTTP API server.
type Server struct {
	cfg      Config
	server   http.Server
	stations map[string]Station
	names    []string
	logger   *zap.SugaredLogger
}

// NewServer builds the API over stations. gatherer backs /metrics; nil uses
// the default registry.
func NewServer(cfg Config, stations []Station, gatherer prometheus.Gatherer, logger *zap.SugaredLogger) (*Server, error) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = log.GetSugaredLogger()
	}

	s := &Server{
		cfg:      cfg,
		stations: make(map[string]Station, len(stations)),
		logger:   logger,
	}
	for _, st := range stations {
		if _, dup := s.stations[st.Name()]; dup {
			return nil, fmt.Errorf("duplicate station name %q", st.Name())
		}
		s.stations[st.Name()] = st
		s.names = append(s.names, st.Name())
	}
	sort.Strings(s.names)

	s.server = http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ListenAddr, cfg.Port),
		Handler:           s.router(gatherer),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx is done.
func (s *Server) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		s.logger.Infof("HTTP API listening on %s", s.server.Addr)
		var err error
		if s.cfg.Cert != "" && s.cfg.Key != "" {
			err = s.server.ListenAndServeTLS(s.cfg.Cert, s.cfg.Key)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("HTTP API server error: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		s.logger.Info("shutting down the HTTP API server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()
}

func (s *Server) router(gatherer prometheus.Gatherer) *mux.Router {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/stations", s.listStations).Methods("GET")
	api.HandleFunc("/stations/{name}", s.getStation).Methods("GET")
	api.HandleFunc("/stations/{name}/packets", s.getPackets).Methods("GET")
	api.HandleFunc("/stations/{name}/temperature", s.postTemperature).Methods("POST")
	api.HandleFunc("/stations/{name}/humidity", s.postHumidity).Methods("POST")
	api.HandleFunc("/stations/{name}/pressure", s.postPressure).Methods("POST")
	api.HandleFunc("/stations/{name}/wind", s.postWind).Methods("POST")
	api.HandleFunc("/stations/{name}/rain", s.postRain).Methods("POST")
	api.HandleFunc("/stations/{name}/settings", s.putSettings).Methods("PUT")

	return router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		// scrapes are too frequent to be worth a line each
		if r.URL.Path == "/metrics" && m.Code < 400 {
			return
		}
		log.LogHTTPRequest(s.logger, log.HTTPLogEntry{
			Method:     r.Method,
			Path:       r.URL.Path,
			Status:     m.Code,
			Duration:   m.Duration,
			Size:       m.Written,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
	})
}
