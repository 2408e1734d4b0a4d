// Package web provides the HTTP status server: status page, JSON
// endpoints, toggle requests and websocket live push.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/sweeney/dht-telemetry/internal/history"
	"github.com/sweeney/dht-telemetry/internal/logic"
	"github.com/sweeney/dht-telemetry/internal/status"
)

const maxControlBody = 1 << 10

// Controller accepts actuator toggle requests.
type Controller interface {
	RequestToggle(ctx context.Context, enable bool) error
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	store      *history.Store
	control    Controller
	hub        *Hub
	logger     *slog.Logger
}

// New creates a Server that reads state from tracker and store.
// A nil control leaves /control unregistered.
func New(addr string, tracker *status.Tracker, store *history.Store, control Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		tracker: tracker,
		store:   store,
		control: control,
		logger:  logger,
	}
	s.hub = NewHub(logger.With("component", "ws"), s.renderState)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/history.json", s.handleHistory)
	if control != nil {
		mux.HandleFunc("/control", s.handleControl)
	}
	mux.Handle("/ws", s.hub)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Hub returns the websocket hub. Its Run must be started by the caller.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) renderState() ([]byte, error) {
	hist := make(map[logic.Metric][]logic.Sample, len(logic.Metrics))
	for _, m := range logic.Metrics {
		hist[m] = s.store.Snapshot(m)
	}
	return formatState(s.tracker.Snapshot(), hist)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, s.control != nil); err != nil {
		s.logger.Warn("render index", "error", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	metric, err := logic.ParseMetric(r.URL.Query().Get("metric"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, HistoryJSON{
		Metric:   string(metric),
		Capacity: s.store.Capacity(),
		Samples:  samplesJSON(s.store.Snapshot(metric)),
	})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, ControlResponse{Error: "method not allowed"})
		return
	}

	var req ControlRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxControlBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil || req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, ControlResponse{Error: `body must be {"enabled": true|false}`})
		return
	}

	err := s.control.RequestToggle(r.Context(), *req.Enabled)
	code := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, logic.ErrNotConnected):
		code = http.StatusConflict
	default:
		code = http.StatusServiceUnavailable
	}
	if err != nil {
		s.logger.Info("toggle rejected", "enabled", *req.Enabled, "error", err)
	}

	ctl := s.tracker.Snapshot().Control
	resp := ControlResponse{Enabled: ctl.Enabled, Connected: ctl.Connected}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
