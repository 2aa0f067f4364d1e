package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/guregu/null"
	"github.com/pkg/errors"

	"co2-monitor/internal/cache"
	"co2-monitor/internal/metrics"
	"co2-monitor/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	sendBuffer = 16
)

// Live view names a client may follow
const (
	ViewEfficiency = "efficiency"
	ViewReduction  = "reduction"
	ViewWindow     = "window"
	ViewToday      = "today"
	ViewHourlyCo2  = "hourly_co2"
	ViewHourlyPh   = "hourly_ph"
	ViewEnergy     = "energy"
)

// Frame types sent to live clients
const (
	FrameLastUpdate = "last_update"
	FrameSeries     = "series"
	FrameError      = "error"
)

// ViewRequest is a client message. Range fields take the same forms as
// the HTTP query parameters. Close stops following the view.
type ViewRequest struct {
	View  string `json:"view"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Span  string `json:"span,omitempty"`
	Close bool   `json:"close,omitempty"`
}

// Frame is a server message
type Frame struct {
	Type       string     `json:"type"`
	View       string     `json:"view,omitempty"`
	Key        string     `json:"key,omitempty"`
	LastUpdate *null.Time `json:"last_update,omitempty"`
	Data       any        `json:"data,omitempty"`
	Error      string     `json:"error,omitempty"`
}

func (r ViewRequest) values() url.Values {
	q := url.Values{}
	for k, v := range map[string]string{"from": r.From, "to": r.To, "span": r.Span} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

// resolved is a view request with its range parsed
type resolved struct {
	view     string
	from, to time.Time
}

func (r resolved) key() string {
	return r.view + "|" + r.from.UTC().Format(time.RFC3339Nano) + "|" + r.to.UTC().Format(time.RFC3339Nano)
}

func parseKey(key string) (resolved, error) {
	parts := strings.Split(key, "|")
	if len(parts) != 3 {
		return resolved{}, errors.Errorf("malformed view key %q", key)
	}
	from, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return resolved{}, errors.Wrapf(err, "view key %q", key)
	}
	to, err := time.Parse(time.RFC3339Nano, parts[2])
	if err != nil {
		return resolved{}, errors.Wrapf(err, "view key %q", key)
	}
	return resolved{view: parts[0], from: from, to: to}, nil
}

// liveView is one followed view of a session: a query kept fresh by the
// change feed
type liveView struct {
	query       *cache.Query[any]
	unsubscribe func()
}

type session struct {
	id   string
	h    *Handler
	conn *websocket.Conn
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	out    chan Frame

	mu    sync.Mutex
	views map[string]*liveView
}

// ServeLive upgrades to a websocket that pushes last-update frames and the
// series of every view the client follows
func (h *Handler) ServeLive(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.NewString(),
		h:      h,
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan Frame, sendBuffer),
		views:  make(map[string]*liveView),
	}
	s.log = h.log.With("session", s.id)

	metrics.WebsocketSessions.Inc()
	s.log.Info("live session opened", "remote", r.RemoteAddr)

	go s.writeLoop()
	unregister := h.updates.OnChange(func(t null.Time) {
		s.send(Frame{Type: FrameLastUpdate, LastUpdate: &t})
	})

	s.readLoop()

	unregister()
	s.closeViews()
	cancel()
	metrics.WebsocketSessions.Dec()
	s.log.Info("live session closed")
}

func (s *session) send(f Frame) {
	select {
	case s.out <- f:
	case <-s.ctx.Done():
	}
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case f := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(f); err != nil {
				s.log.Debug("write failed", "error", err)
				s.cancel()
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.cancel()
				return
			}
		}
	}
}

func (s *session) readLoop() {
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var req ViewRequest
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("read failed", "error", err)
			}
			return
		}
		if s.ctx.Err() != nil {
			return
		}
		if err := s.handle(req); err != nil {
			if !IsInputError(err) {
				s.log.Warn("view request failed", "view", req.View, "error", err)
			}
			s.send(Frame{Type: FrameError, View: req.View, Error: err.Error()})
		}
	}
}

func (s *session) handle(req ViewRequest) error {
	if req.Close {
		s.closeView(req.View)
		return nil
	}

	res, err := s.resolve(req)
	if err != nil {
		return err
	}

	v := s.view(req.View)
	key := res.key()
	go func() {
		if _, err := v.query.SetKey(s.ctx, key); err != nil && s.ctx.Err() == nil {
			s.log.Warn("live view fetch failed", "view", req.View, "error", err)
		}
	}()
	return nil
}

func (s *session) resolve(req ViewRequest) (resolved, error) {
	now := s.h.now()
	q := req.values()
	res := resolved{view: req.View}

	var err error
	switch req.View {
	case ViewEfficiency, ViewReduction:
		res.from, res.to, err = dayRangeParams(q, now, s.h.dashboard.ReportingLocation())
	case ViewWindow, ViewEnergy:
		res.from, res.to, err = windowParams(q, now, s.h.dashboard.DisplayLocation())
	case ViewHourlyCo2, ViewHourlyPh:
		loc := s.h.dashboard.DisplayLocation()
		if res.from, err = timeParam(q, "from", now, loc, false); err == nil {
			res.to, err = timeParam(q, "to", res.from, loc, false)
		}
	case ViewToday:
		// today has no range; the key still changes with the calendar day
		y, m, d := now.In(s.h.dashboard.ReportingLocation()).Date()
		res.from = time.Date(y, m, d, 0, 0, 0, 0, s.h.dashboard.ReportingLocation())
		res.to = res.from
	default:
		return res, errors.Wrapf(ErrInvalidView, "%q", req.View)
	}
	return res, err
}

// view returns the session's view of that name, creating and subscribing
// it on first use
func (s *session) view(name string) *liveView {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.views[name]; ok {
		return v
	}

	v := &liveView{}
	v.query = cache.NewQuery[any](
		func(ctx context.Context, key string) (any, error) {
			res, err := parseKey(key)
			if err != nil {
				return nil, err
			}
			return s.fetch(ctx, res), nil
		},
		func(key string, data any) {
			s.send(Frame{Type: FrameSeries, View: name, Key: key, Data: data})
		},
	)
	v.unsubscribe = s.h.changes.Subscribe(func(models.Reading) {
		go func() {
			if _, err := v.query.Revalidate(s.ctx); err != nil && s.ctx.Err() == nil {
				s.log.Warn("live view revalidate failed", "view", name, "error", err)
			}
		}()
	})
	s.views[name] = v
	return v
}

func (s *session) fetch(ctx context.Context, res resolved) any {
	d := s.h.dashboard
	switch res.view {
	case ViewEfficiency:
		return d.EfficiencySeries(ctx, res.from, res.to)
	case ViewReduction:
		return d.ReductionSeries(ctx, res.from, res.to)
	case ViewWindow:
		return d.Window(ctx, res.from, res.to)
	case ViewHourlyCo2:
		return d.HourlyCo2(ctx, res.from, res.to)
	case ViewHourlyPh:
		return d.HourlyPh(ctx, res.from, res.to)
	case ViewEnergy:
		return d.Energy(ctx, res.from, res.to)
	default:
		return d.TodayOverview(ctx)
	}
}

func (s *session) closeView(name string) {
	s.mu.Lock()
	v, ok := s.views[name]
	delete(s.views, name)
	s.mu.Unlock()

	if ok {
		v.unsubscribe()
	}
}

func (s *session) closeViews() {
	s.mu.Lock()
	views := s.views
	s.views = make(map[string]*liveView)
	s.mu.Unlock()

	for _, v := range views {
		v.unsubscribe()
	}
}
