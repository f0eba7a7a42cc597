package uiapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/awaistahir/spotswitch/internal/day"
	"github.com/awaistahir/spotswitch/internal/engine"
	"github.com/awaistahir/spotswitch/internal/prices"
	"github.com/awaistahir/spotswitch/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const Version = "1.0.0"

// ScheduleStore is the part of the store the API reads and writes
type ScheduleStore interface {
	LoadSchedule(ctx context.Context, date time.Time) (*engine.Schedule, error)
	SaveSchedule(ctx context.Context, date time.Time, schedule *engine.Schedule) error
	HasSchedule(ctx context.Context, date time.Time) (bool, error)
	ScheduleDates(ctx context.Context, from, to time.Time) ([]string, error)
	Lock() func()
}

type Mailer interface {
	SendSchedule(date time.Time, schedule *engine.Schedule) error
}

type Options struct {
	Location       *time.Location
	StatsStartYear int
	// Metrics serves /metrics; defaults to the global Prometheus registry
	Metrics http.Handler
}

type Server struct {
	store  ScheduleStore
	mailer Mailer
	opts   Options
	now    func() time.Time

	// serialises read-modify-write of schedule overrides
	mu sync.Mutex
}

func NewServer(store ScheduleStore, mailer Mailer, opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}
	return &Server{
		store:  store,
		mailer: mailer,
		opts:   opts,
		now:    time.Now,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	// CORS for local development
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Handle("/metrics", s.opts.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/schedule", s.handleGetSchedule)
		r.Post("/schedule", s.handleUpdateSchedule)
		r.Post("/email", s.handleEmail)
		r.Get("/stats", s.handleStats)
	})

	return r
}

type PinStatus struct {
	Name     string `json:"name"`
	DeviceID string `json:"device_id"`
	On       bool   `json:"on"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := s.now().In(s.opts.Location)
	status := map[string]interface{}{
		"status":   "ok",
		"version":  Version,
		"timezone": s.opts.Location.String(),
		"date":     day.Format(now),
	}

	schedule, err := s.store.LoadSchedule(r.Context(), day.Today.Date(now, s.opts.Location))
	switch {
	case err == nil:
		pins := make([]PinStatus, 0, len(schedule.Pins))
		for _, pin := range schedule.Pins {
			pins = append(pins, PinStatus{Name: pin.Name, DeviceID: pin.DeviceID, On: pin.IsOn(now)})
		}
		status["pins"] = pins
		if price, ok := schedule.AvgPriceForHour(now); ok {
			status["price"] = price
		}
	case errors.Is(err, store.ErrNotFound):
		status["pins"] = []PinStatus{}
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, status)
}

type HourView struct {
	Hour  string   `json:"hour"`
	On    bool     `json:"on"`
	Price *float64 `json:"price"`
	Past  bool     `json:"past"`
}

type PinView struct {
	Name     string     `json:"name"`
	DeviceID string     `json:"device_id"`
	Hours    []HourView `json:"hours"`
	AvgPrice float64    `json:"avg_price"`
}

type ScheduleView struct {
	Date     string    `json:"date"`
	PrevDate string    `json:"prev_date,omitempty"`
	NextDate string    `json:"next_date,omitempty"`
	Pins     []PinView `json:"pins"`
	AvgPrice float64   `json:"avg_price"`
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	date, err := day.Parse(r.URL.Query().Get("date"), s.now(), s.opts.Location)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	schedule, err := s.store.LoadSchedule(r.Context(), date)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	view, err := s.scheduleView(r.Context(), date, schedule)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (s *Server) scheduleView(ctx context.Context, date time.Time, schedule *engine.Schedule) (ScheduleView, error) {
	view := ScheduleView{
		Date:     day.Format(date),
		Pins:     make([]PinView, 0, len(schedule.Pins)),
		AvgPrice: schedule.DayAvgPrice(),
	}

	var err error
	if view.PrevDate, err = s.storedDate(ctx, date.AddDate(0, 0, -1)); err != nil {
		return view, err
	}
	if view.NextDate, err = s.storedDate(ctx, date.AddDate(0, 0, 1)); err != nil {
		return view, err
	}

	current := day.CurrentHour(s.now().In(s.opts.Location))
	hours := day.Hours(date)
	for _, pin := range schedule.Pins {
		pv := PinView{
			Name:     pin.Name,
			DeviceID: pin.DeviceID,
			Hours:    make([]HourView, 0, len(hours)),
			AvgPrice: pin.AvgPrice(schedule.Prices, true),
		}
		for _, h := range hours {
			hv := HourView{
				Hour: h.Format("15"),
				On:   pin.IsOn(h),
				Past: h.Before(current),
			}
			if price, ok := schedule.AvgPriceForHour(h); ok {
				hv.Price = &price
			}
			pv.Hours = append(pv.Hours, hv)
		}
		view.Pins = append(view.Pins, pv)
	}
	return view, nil
}

// storedDate formats date when a schedule is stored for it and returns "" otherwise
func (s *Server) storedDate(ctx context.Context, date time.Time) (string, error) {
	ok, err := s.store.HasSchedule(ctx, date)
	if err != nil || !ok {
		return "", err
	}
	return day.Format(date), nil
}

// UpdateScheduleRequest replaces the on-hours of every pin. PinHours entries
// are "device_id,hour_index" with the index into the date's local hours.
type UpdateScheduleRequest struct {
	Date     string   `json:"date"`
	PinHours []string `json:"pin_hours"`
}

type pinHour struct {
	deviceID string
	index    int
}

func parsePinHours(entries []string) (map[pinHour]bool, error) {
	set := make(map[pinHour]bool, len(entries))
	for _, e := range entries {
		deviceID, idx, ok := strings.Cut(e, ",")
		if !ok {
			return nil, fmt.Errorf("invalid pin hour %q", e)
		}
		i, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil || i < 0 {
			return nil, fmt.Errorf("invalid hour index in %q", e)
		}
		set[pinHour{strings.TrimSpace(deviceID), i}] = true
	}
	return set, nil
}

// hourStart maps the repeated hour of a DST fall-back onto its first
// instance, which starts the merged price hour
func hourStart(hours []time.Time, idx int) time.Time {
	if idx > 0 && hours[idx-1].Hour() == hours[idx].Hour() {
		return hours[idx-1]
	}
	return hours[idx]
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req UpdateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	date, err := time.ParseInLocation(day.Layout, req.Date, s.opts.Location)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid date")
		return
	}
	selected, err := parsePinHours(req.PinHours)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, err := s.store.LoadSchedule(r.Context(), date)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	current := day.CurrentHour(s.now().In(s.opts.Location))
	hours := day.Hours(date)
	for i := range schedule.Pins {
		pin := &schedule.Pins[i]
		var on []time.Time
		for idx, h := range hours {
			// hours already gone keep their stored state
			isOn := selected[pinHour{pin.DeviceID, idx}]
			if h.Before(current) {
				isOn = pin.IsOn(h)
			}
			if isOn {
				on = append(on, hourStart(hours, idx))
			}
		}
		pin.SetOnHours(on)
	}

	unlock := s.store.Lock()
	err = s.store.SaveSchedule(r.Context(), date, schedule)
	unlock()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	view, err := s.scheduleView(r.Context(), date, schedule)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type EmailRequest struct {
	Date string `json:"date"`
}

func (s *Server) handleEmail(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	date, err := day.Parse(req.Date, s.now(), s.opts.Location)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	schedule, err := s.store.LoadSchedule(r.Context(), date)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if err := s.mailer.SendSchedule(date, schedule); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "sent", "date": day.Format(date)})
}

type MonthStats struct {
	Month    string  `json:"month"`
	AvgPrice float64 `json:"avg_price"`
	Days     int     `json:"days"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := s.now().In(s.opts.Location)
	from := time.Date(s.opts.StatsStartYear, time.January, 1, 0, 0, 0, 0, s.opts.Location)
	to := day.Tomorrow.Date(now, s.opts.Location)

	dates, err := s.store.ScheduleDates(ctx, from, to)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stats := []MonthStats{}
	var total decimal.Decimal
	flush := func() {
		last := &stats[len(stats)-1]
		avg := total.Div(decimal.NewFromInt(int64(last.Days)))
		last.AvgPrice = prices.RoundPrice(avg).InexactFloat64()
	}
	for _, d := range dates {
		date, err := time.ParseInLocation(day.Layout, d, s.opts.Location)
		if err != nil {
			continue
		}
		schedule, err := s.store.LoadSchedule(ctx, date)
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}

		month := d[:7]
		if len(stats) == 0 || stats[len(stats)-1].Month != month {
			if len(stats) > 0 {
				flush()
			}
			stats = append(stats, MonthStats{Month: month})
			total = decimal.Zero
		}
		stats[len(stats)-1].Days++
		total = total.Add(decimal.NewFromFloat(schedule.DayAvgPrice()))
	}
	if len(stats) > 0 {
		flush()
	}

	slices.Reverse(stats)
	respondJSON(w, http.StatusOK, stats)
}

func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
