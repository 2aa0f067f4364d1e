// Package api serves the dashboard views over HTTP and a live websocket.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/guregu/null"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"co2-monitor/internal/lastupdate"
	"co2-monitor/internal/live"
	"co2-monitor/internal/metrics"
	"co2-monitor/internal/models"
	"co2-monitor/internal/series"
)

// Dashboard is the view layer the handlers read from
type Dashboard interface {
	Latest(ctx context.Context) *models.Reading
	EfficiencySeries(ctx context.Context, from, to time.Time) series.DenseSeries
	ReductionSeries(ctx context.Context, from, to time.Time) series.DenseSeries
	Window(ctx context.Context, from, to time.Time) series.WindowSeries
	TodayOverview(ctx context.Context) models.TodayOverview
	TotalKgInRange(ctx context.Context, from, to time.Time) decimal.Decimal
	History(ctx context.Context, q models.HistoryQuery) models.HistoryResult
	HourlyCo2(ctx context.Context, from, to time.Time) []models.HourlyCo2
	HourlyPh(ctx context.Context, from, to time.Time) []models.HourlyPh
	Energy(ctx context.Context, from, to time.Time) series.EnergySeries
	DataSpan(ctx context.Context, table string) (first, last time.Time, ok bool)
	LastUpdate() null.Time
	ReportingLocation() *time.Location
	DisplayLocation() *time.Location
}

// ChangeFeed delivers row changes to live views
type ChangeFeed interface {
	Subscribe(onRowChange live.RowHandler) (unsubscribe func())
}

// LastUpdateFeed pushes the last-update timestamp to live sessions
type LastUpdateFeed interface {
	OnChange(l lastupdate.Listener) (unregister func())
}

// Handler handles HTTP requests
type Handler struct {
	dashboard Dashboard
	changes   ChangeFeed
	updates   LastUpdateFeed
	upgrader  websocket.Upgrader
	log       *slog.Logger

	now func() time.Time
}

// NewHandler creates a new handler. changes and updates may be nil, in
// which case /ws/live is not served.
func NewHandler(dashboard Dashboard, changes ChangeFeed, updates LastUpdateFeed, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		dashboard: dashboard,
		changes:   changes,
		updates:   updates,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log: logger.With("component", "api"),
		now: time.Now,
	}
}

// Routes returns the HTTP router
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/latest", h.instrument("/api/latest", h.GetLatest))
	mux.HandleFunc("GET /api/efficiency", h.instrument("/api/efficiency", h.GetEfficiency))
	mux.HandleFunc("GET /api/reduction", h.instrument("/api/reduction", h.GetReduction))
	mux.HandleFunc("GET /api/window", h.instrument("/api/window", h.GetWindow))
	mux.HandleFunc("GET /api/today", h.instrument("/api/today", h.GetToday))
	mux.HandleFunc("GET /api/kg", h.instrument("/api/kg", h.GetKg))
	mux.HandleFunc("GET /api/history", h.instrument("/api/history", h.GetHistory))
	mux.HandleFunc("GET /api/history.csv", h.instrument("/api/history.csv", h.ExportHistory))
	mux.HandleFunc("GET /api/hourly/co2", h.instrument("/api/hourly/co2", h.GetHourlyCo2))
	mux.HandleFunc("GET /api/hourly/ph", h.instrument("/api/hourly/ph", h.GetHourlyPh))
	mux.HandleFunc("GET /api/energy", h.instrument("/api/energy", h.GetEnergy))
	mux.HandleFunc("GET /api/span", h.instrument("/api/span", h.GetSpan))
	mux.HandleFunc("GET /api/last-update", h.instrument("/api/last-update", h.GetLastUpdate))
	mux.HandleFunc("GET /health", h.instrument("/health", h.HealthCheck))
	if h.changes != nil && h.updates != nil {
		mux.HandleFunc("GET /ws/live", h.ServeLive)
	}

	// Prometheus metrics endpoint
	mux.Handle("GET /prometheus", promhttp.Handler())
	return mux
}

// statusRecorder keeps the response status for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (h *Handler) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next(rec, r)

		metrics.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("failed to encode response", "error", err)
	}
}

func (h *Handler) badRequest(w http.ResponseWriter, err error) {
	h.log.Debug("rejected request", "error", err)
	http.Error(w, err.Error(), http.StatusBadRequest)
}

// GetLatest returns the newest reading, or null
func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.dashboard.Latest(r.Context()))
}

// GetEfficiency returns the dense efficiency series for from..to
func (h *Handler) GetEfficiency(w http.ResponseWriter, r *http.Request) {
	from, to, err := dayRangeParams(r.URL.Query(), h.now(), h.dashboard.ReportingLocation())
	if err != nil {
		h.badRequest(w, err)
		return
	}
	h.writeJSON(w, h.dashboard.EfficiencySeries(r.Context(), from, to))
}

// GetReduction returns the dense reduction trend for from..to
func (h *Handler) GetReduction(w http.ResponseWriter, r *http.Request) {
	from, to, err := dayRangeParams(r.URL.Query(), h.now(), h.dashboard.ReportingLocation())
	if err != nil {
		h.badRequest(w, err)
		return
	}
	h.writeJSON(w, h.dashboard.ReductionSeries(r.Context(), from, to))
}

// GetWindow returns the raw samples of one window of at most a day
func (h *Handler) GetWindow(w http.ResponseWriter, r *http.Request) {
	from, to, err := windowParams(r.URL.Query(), h.now(), h.dashboard.DisplayLocation())
	if err != nil {
		h.badRequest(w, err)
		return
	}
	h.writeJSON(w, h.dashboard.Window(r.Context(), from, to))
}

// GetEnergy returns the energy-used samples of a window
func (h *Handler) GetEnergy(w http.ResponseWriter, r *http.Request) {
	from, to, err := windowParams(r.URL.Query(), h.now(), h.dashboard.DisplayLocation())
	if err != nil {
		h.badRequest(w, err)
		return
	}
	h.writeJSON(w, h.dashboard.Energy(r.Context(), from, to))
}

// GetToday returns today's summary and the kg trend
func (h *Handler) GetToday(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.dashboard.TodayOverview(r.Context()))
}

type kgResponse struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	TotalKg decimal.Decimal `json:"total_kg"`
}

// GetKg returns the kilograms reduced over the calendar days from..to
func (h *Handler) GetKg(w http.ResponseWriter, r *http.Request) {
	loc := h.dashboard.ReportingLocation()
	from, to, err := dayRangeParams(r.URL.Query(), h.now(), loc)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	h.writeJSON(w, kgResponse{
		From:    series.ISODate(from, loc),
		To:      series.ISODate(to, loc),
		TotalKg: h.dashboard.TotalKgInRange(r.Context(), from, to),
	})
}

// GetHistory returns raw readings with search and averages applied
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q, err := historyParams(r.URL.Query(), h.now(), h.dashboard.DisplayLocation())
	if err != nil {
		h.badRequest(w, err)
		return
	}
	h.writeJSON(w, h.dashboard.History(r.Context(), q))
}

// ExportHistory streams the history query as CSV
func (h *Handler) ExportHistory(w http.ResponseWriter, r *http.Request) {
	loc := h.dashboard.DisplayLocation()
	q, err := historyParams(r.URL.Query(), h.now(), loc)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	result := h.dashboard.History(r.Context(), q)

	name := "co2-history-" + series.ISODate(q.From, loc) + "-" + series.ISODate(q.To, loc) + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if err := writeHistoryCSV(w, result.Rows, loc); err != nil {
		h.log.Warn("failed to write csv export", "error", err)
	}
}

func (h *Handler) hourlyRange(r *http.Request) (time.Time, time.Time, error) {
	now := h.now()
	loc := h.dashboard.DisplayLocation()
	q := r.URL.Query()

	from, err := timeParam(q, "from", now, loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := timeParam(q, "to", from, loc, false)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

// GetHourlyCo2 returns hourly position averages for whole days, today by default
func (h *Handler) GetHourlyCo2(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.hourlyRange(r)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	h.writeJSON(w, h.dashboard.HourlyCo2(r.Context(), from, to))
}

// GetHourlyPh returns hourly pH averages for whole days, today by default
func (h *Handler) GetHourlyPh(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.hourlyRange(r)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	h.writeJSON(w, h.dashboard.HourlyPh(r.Context(), from, to))
}

type spanResponse struct {
	Table string    `json:"table"`
	First null.Time `json:"first"`
	Last  null.Time `json:"last"`
}

// GetSpan returns the first and last stored timestamps of a table
func (h *Handler) GetSpan(w http.ResponseWriter, r *http.Request) {
	table, err := tableParam(r.URL.Query())
	if err != nil {
		h.badRequest(w, err)
		return
	}

	resp := spanResponse{Table: table}
	if first, last, ok := h.dashboard.DataSpan(r.Context(), table); ok {
		resp.First, resp.Last = null.TimeFrom(first), null.TimeFrom(last)
	}
	h.writeJSON(w, resp)
}

// GetLastUpdate returns the newest observed reading timestamp
func (h *Handler) GetLastUpdate(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]null.Time{"last_update": h.dashboard.LastUpdate()})
}

// HealthCheck handles health checks
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": h.now().UTC(),
	})
}

// IsInputError reports whether err came from invalid request input
func IsInputError(err error) bool {
	for _, target := range []error{ErrInvalidTime, ErrInvalidDuration, ErrInvalidSort, ErrInvalidLimit, ErrInvalidTable, ErrInvalidView} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
