package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder publishes scheduling and actuation metrics to Prometheus. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	priceFetches *prometheus.CounterVec
	computed     prometheus.Counter
	pinOn        *prometheus.GaugeVec
	pinOnHours   *prometheus.GaugeVec
}

// NewRecorder registers metrics on reg. A nil registerer defaults to the
// global Prometheus registerer.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	priceFetches, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spotswitch_price_fetch_total",
		Help: "Spot price fetch attempts by source and result",
	}, []string{"source", "ok"}))
	if err != nil {
		return nil, err
	}
	computed, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "spotswitch_schedules_computed_total",
		Help: "Number of daily schedules computed from fetched prices",
	}))
	if err != nil {
		return nil, err
	}
	pinOn, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spotswitch_pin_on",
		Help: "Last state driven to each device (1 on, 0 off)",
	}, []string{"device_id"}))
	if err != nil {
		return nil, err
	}
	pinOnHours, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spotswitch_pin_on_hours",
		Help: "Number of on-hours in the latest computed schedule per device",
	}, []string{"device_id"}))
	if err != nil {
		return nil, err
	}

	return &Recorder{
		priceFetches: priceFetches,
		computed:     computed,
		pinOn:        pinOn,
		pinOnHours:   pinOnHours,
	}, nil
}

// register returns the already registered collector when c was registered before
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (r *Recorder) PriceFetch(source string, ok bool) {
	if r == nil {
		return
	}
	r.priceFetches.WithLabelValues(source, strconv.FormatBool(ok)).Inc()
}

// ScheduleComputed records a freshly computed schedule and its on-hours per device
func (r *Recorder) ScheduleComputed(onHours map[string]int) {
	if r == nil {
		return
	}
	r.computed.Inc()
	for device, n := range onHours {
		r.pinOnHours.WithLabelValues(device).Set(float64(n))
	}
}

func (r *Recorder) PinState(deviceID string, on bool) {
	if r == nil {
		return
	}
	v := 0.0
	if on {
		v = 1
	}
	r.pinOn.WithLabelValues(deviceID).Set(v)
}
