package uiapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/awaistahir/spotswitch/internal/engine"
	"github.com/awaistahir/spotswitch/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tz = time.FixedZone("EET", 2*60*60)

type fakeMailer struct {
	sent []time.Time
	err  error
}

func (m *fakeMailer) SendSchedule(date time.Time, _ *engine.Schedule) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, date)
	return nil
}

func flatSchedule(date time.Time, price float64, onHours ...int) *engine.Schedule {
	prices := make([]engine.Price, 24)
	for i := range prices {
		prices[i] = engine.Price{Validity: date.Add(time.Duration(i) * time.Hour), Price: price + float64(i)}
	}
	on := make([]time.Time, 0, len(onHours))
	for _, h := range onHours {
		on = append(on, date.Add(time.Duration(h)*time.Hour))
	}
	return &engine.Schedule{
		Pins:   []engine.PinSchedule{{Name: "Boiler", DeviceID: "17", OnHours: on}},
		Prices: prices,
	}
}

type testServer struct {
	srv    *Server
	store  *store.Store
	mailer *fakeMailer
	h      http.Handler
}

func newTestServer(t *testing.T, now time.Time) *testServer {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "spotswitch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := prometheus.NewRegistry()
	mailer := &fakeMailer{}
	srv := NewServer(st, mailer, Options{
		Location:       tz,
		StatsStartYear: 2023,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	srv.now = func() time.Time { return now }
	return &testServer{srv: srv, store: st, mailer: mailer, h: srv.Handler()}
}

func (ts *testServer) save(t *testing.T, date time.Time, s *engine.Schedule) {
	t.Helper()
	unlock := ts.store.Lock()
	defer unlock()
	require.NoError(t, ts.store.SaveSchedule(context.Background(), date, s))
}

func (ts *testServer) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	ts.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestStatus(t *testing.T) {
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, tz)
	ts := newTestServer(t, date.Add(1*time.Hour+30*time.Minute))

	rec := ts.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[map[string]interface{}](t, rec)["pins"])

	ts.save(t, date, flatSchedule(date, 10, 1, 2))
	rec = ts.do(http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		Status string      `json:"status"`
		Date   string      `json:"date"`
		Price  float64     `json:"price"`
		Pins   []PinStatus `json:"pins"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "2024-05-02", status.Date)
	assert.Equal(t, 11.0, status.Price)
	assert.Equal(t, []PinStatus{{Name: "Boiler", DeviceID: "17", On: true}}, status.Pins)
}

func TestGetSchedule(t *testing.T) {
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, tz)
	ts := newTestServer(t, date.Add(3*time.Hour))
	ts.save(t, date, flatSchedule(date, 0, 0, 1))
	ts.save(t, date.AddDate(0, 0, 1), flatSchedule(date.AddDate(0, 0, 1), 0))

	rec := ts.do(http.MethodGet, "/api/schedule?date=2024-05-02", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	view := decode[ScheduleView](t, rec)
	assert.Equal(t, "2024-05-02", view.Date)
	assert.Empty(t, view.PrevDate)
	assert.Equal(t, "2024-05-03", view.NextDate)
	assert.Equal(t, 11.5, view.AvgPrice)

	require.Len(t, view.Pins, 1)
	pin := view.Pins[0]
	assert.Equal(t, 0.5, pin.AvgPrice)
	require.Len(t, pin.Hours, 24)
	assert.Equal(t, "00", pin.Hours[0].Hour)
	assert.True(t, pin.Hours[0].On)
	assert.True(t, pin.Hours[0].Past)
	assert.Equal(t, "23", pin.Hours[23].Hour)
	assert.False(t, pin.Hours[23].On)
	assert.False(t, pin.Hours[3].Past)
	require.NotNil(t, pin.Hours[23].Price)
	assert.Equal(t, 23.0, *pin.Hours[23].Price)

	// defaults to today
	rec = ts.do(http.MethodGet, "/api/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-05-02", decode[ScheduleView](t, rec).Date)
}

func TestGetScheduleErrors(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 5, 2, 3, 0, 0, 0, tz))

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/api/schedule?date=2024-05-02", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(http.MethodGet, "/api/schedule?date=02.05.2024", nil).Code)
}

func TestUpdateScheduleKeepsPastHours(t *testing.T) {
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, tz)
	ts := newTestServer(t, date.Add(10*time.Hour+30*time.Minute))
	ts.save(t, date, flatSchedule(date, 0, 0, 1))

	rec := ts.do(http.MethodPost, "/api/schedule", UpdateScheduleRequest{
		Date:     "2024-05-02",
		PinHours: []string{"17,2", "17,12", "17,13", "99,5"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := ts.store.LoadSchedule(context.Background(), date)
	require.NoError(t, err)
	at := func(h int) time.Time { return date.Add(time.Duration(h) * time.Hour) }
	got := stored.Pins[0].OnHours
	require.Len(t, got, 4)
	for i, want := range []time.Time{at(0), at(1), at(12), at(13)} {
		assert.True(t, want.Equal(got[i]), "hour %d: want %s got %s", i, want, got[i])
	}

	view := decode[ScheduleView](t, rec)
	assert.True(t, view.Pins[0].Hours[12].On)
	assert.False(t, view.Pins[0].Hours[2].On)
}

func TestUpdateScheduleFutureDate(t *testing.T) {
	date := time.Date(2024, 5, 3, 0, 0, 0, 0, tz)
	ts := newTestServer(t, time.Date(2024, 5, 2, 20, 0, 0, 0, tz))
	ts.save(t, date, flatSchedule(date, 0, 0, 1, 2))

	rec := ts.do(http.MethodPost, "/api/schedule", UpdateScheduleRequest{
		Date:     "2024-05-03",
		PinHours: []string{"17,5"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := ts.store.LoadSchedule(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, stored.Pins[0].OnHours, 1)
	assert.True(t, stored.Pins[0].OnHours[0].Equal(date.Add(5*time.Hour)))
}

func TestUpdateScheduleRepeatedHour(t *testing.T) {
	helsinki, err := time.LoadLocation("Europe/Helsinki")
	require.NoError(t, err)

	date := time.Date(2024, 10, 27, 0, 0, 0, 0, helsinki)
	var prices []engine.Price
	for h := date; h.Day() == 27; h = h.Add(time.Hour) {
		prices = append(prices, engine.Price{Validity: h, Price: float64(h.Hour())})
	}
	require.Len(t, prices, 25)

	ts := newTestServer(t, time.Date(2024, 10, 26, 20, 0, 0, 0, helsinki))
	ts.srv.opts.Location = helsinki
	ts.save(t, date, &engine.Schedule{
		Pins:   []engine.PinSchedule{{Name: "Boiler", DeviceID: "17"}},
		Prices: prices,
	})

	// index 4 is the second 03:00
	rec := ts.do(http.MethodPost, "/api/schedule", UpdateScheduleRequest{
		Date:     "2024-10-27",
		PinHours: []string{"17,4"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored, err := ts.store.LoadSchedule(context.Background(), date)
	require.NoError(t, err)
	require.Len(t, stored.Pins[0].OnHours, 1)
	assert.True(t, stored.Pins[0].OnHours[0].Equal(prices[3].Validity), "first 03:00 starts the merged hour")
	assert.Equal(t, 3.0, stored.Pins[0].AvgPrice(stored.Prices, true))

	view := decode[ScheduleView](t, rec)
	hours := view.Pins[0].Hours
	require.Len(t, hours, 25)
	assert.Equal(t, "03", hours[3].Hour)
	assert.Equal(t, "03", hours[4].Hour)
	assert.True(t, hours[3].On)
	assert.True(t, hours[4].On)
	assert.False(t, hours[5].On)
}

func TestUpdateScheduleBadRequests(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 5, 2, 20, 0, 0, 0, tz))

	tests := []struct {
		name string
		body interface{}
		code int
	}{
		{"bad date", UpdateScheduleRequest{Date: "tomorrow"}, http.StatusBadRequest},
		{"bad entry", UpdateScheduleRequest{Date: "2024-05-02", PinHours: []string{"17"}}, http.StatusBadRequest},
		{"bad index", UpdateScheduleRequest{Date: "2024-05-02", PinHours: []string{"17,x"}}, http.StatusBadRequest},
		{"missing schedule", UpdateScheduleRequest{Date: "2024-05-02"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ts.do(http.MethodPost, "/api/schedule", tt.body).Code)
		})
	}
}

func TestEmail(t *testing.T) {
	date := time.Date(2024, 5, 2, 0, 0, 0, 0, tz)
	ts := newTestServer(t, date.Add(8*time.Hour))
	ts.save(t, date, flatSchedule(date, 0, 3))

	rec := ts.do(http.MethodPost, "/api/email", EmailRequest{Date: "2024-05-02"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.mailer.sent, 1)
	assert.True(t, ts.mailer.sent[0].Equal(date))

	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodPost, "/api/email", EmailRequest{Date: "2024-05-09"}).Code)

	ts.mailer.err = errors.New("smtp down")
	assert.Equal(t, http.StatusBadGateway, ts.do(http.MethodPost, "/api/email", EmailRequest{Date: "2024-05-02"}).Code)
}

func TestStats(t *testing.T) {
	ts := newTestServer(t, time.Date(2024, 5, 2, 12, 0, 0, 0, tz))
	for _, d := range []struct {
		date  time.Time
		price float64
	}{
		{time.Date(2022, 12, 31, 0, 0, 0, 0, tz), 100},
		{time.Date(2024, 4, 30, 0, 0, 0, 0, tz), -10.5},
		{time.Date(2024, 5, 1, 0, 0, 0, 0, tz), -9.5},
		{time.Date(2024, 5, 2, 0, 0, 0, 0, tz), -7.5},
	} {
		ts.save(t, d.date, flatSchedule(d.date, d.price))
	}

	rec := ts.do(http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// day averages are price + 11.5
	assert.Equal(t, []MonthStats{
		{Month: "2024-05", AvgPrice: 3, Days: 2},
		{Month: "2024-04", AvgPrice: 1, Days: 1},
	}, decode[[]MonthStats](t, rec))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, time.Now())
	rec := ts.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
