// Package app wires the configured components into a runnable service.
package app

import (
	"errors"
	"fmt"

	"github.com/awaistahir/spotswitch/internal/actuator"
	"github.com/awaistahir/spotswitch/internal/config"
	"github.com/awaistahir/spotswitch/internal/logger"
	"github.com/awaistahir/spotswitch/internal/metrics"
	"github.com/awaistahir/spotswitch/internal/notify"
	"github.com/awaistahir/spotswitch/internal/planner"
	"github.com/awaistahir/spotswitch/internal/prices"
	"github.com/awaistahir/spotswitch/internal/store"
	"github.com/awaistahir/spotswitch/internal/uiapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service holds every component built from one configuration
type Service struct {
	Config   *config.Config
	Store    *store.Store
	Prices   *prices.Service
	Notifier *notify.Notifier
	Planner  *planner.Planner
	Registry *prometheus.Registry

	output actuator.Output
	log    logger.Logger
}

// New opens the store and output and wires the planner around them
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	reg := prometheus.NewRegistry()
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	st, err := store.NewStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var output actuator.Output
	if cfg.MQTT != nil {
		output, err = actuator.NewMQTTOutput(*cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("mqtt output: %w", err)
		}
	} else {
		logg.Warnf("No MQTT broker configured, pin states are only logged")
		output = actuator.NewLogOutput(logger.New("output"))
	}

	notifier, err := notify.New(cfg.Email, logger.New("notify"))
	if err != nil {
		output.Close()
		st.Close()
		return nil, fmt.Errorf("email: %w", err)
	}

	priceSvc := NewPriceService(cfg, recorder)
	controller := actuator.NewController(output, st, recorder, logger.New("actuator"))

	p := planner.New(planner.Options{
		Constraints:       cfg.Schedules,
		Location:          cfg.Location(),
		TomorrowAfterHour: cfg.TomorrowAfterHour,
		Prices:            priceSvc,
		Store:             st,
		Notifier:          notifier,
		Controller:        controller,
		Recorder:          recorder,
		Log:               logger.New("planner"),
	})

	return &Service{
		Config:   cfg,
		Store:    st,
		Prices:   priceSvc,
		Notifier: notifier,
		Planner:  p,
		Registry: reg,
		output:   output,
		log:      logg,
	}, nil
}

// NewPriceService builds the Elering source with the Porssisahko fallback
func NewPriceService(cfg *config.Config, recorder prices.FetchRecorder) *prices.Service {
	pc := cfg.Prices
	return prices.NewService(pc.MinEntries, logger.New("prices"), recorder,
		prices.NewEleringClient(pc.EleringURL, pc.Area, pc.VATPercent, pc.Timeout),
		prices.NewPorssisahkoClient(pc.PorssisahkoURL, pc.Timeout),
	)
}

// API returns the dashboard server backed by this service's store
func (s *Service) API() *uiapi.Server {
	return uiapi.NewServer(s.Store, s.Notifier, uiapi.Options{
		Location:       s.Config.Location(),
		StatsStartYear: s.Config.Stats.StartYear,
		Metrics:        promhttp.HandlerFor(s.Registry, promhttp.HandlerOpts{}),
	})
}

// Close releases the output and the store
func (s *Service) Close() error {
	return errors.Join(s.output.Close(), s.Store.Close())
}
