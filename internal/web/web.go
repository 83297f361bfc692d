// Package web exposes the control API: session inspection, travel query
// and selection updates, alert history, and demo simulation hooks.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	appLog "railwatch/internal/log"
	"railwatch/internal/model"
	"railwatch/internal/monitor"
	"railwatch/internal/notify"
	"railwatch/internal/watch"
)

// Simulators are the demo-only mutation hooks. Both fields are nil when the
// corresponding provider is a real one, and the simulate endpoint rejects
// requests it cannot serve.
type Simulators struct {
	Calendar interface{ ShiftNextMeeting(time.Duration) }
	Travel   interface{ SetDisruption(model.Disruption) }
}

// Server handles the control API against one monitor session.
type Server struct {
	monitor  *monitor.Monitor
	history  *notify.HistoryStore
	detector *watch.Detector
	sims     Simulators
}

func NewServer(m *monitor.Monitor, history *notify.HistoryStore, detector *watch.Detector, sims Simulators) *Server {
	return &Server{monitor: m, history: history, detector: detector, sims: sims}
}

// Router builds the chi handler for the control API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/alerts", s.handleAlerts)
		r.Post("/query", s.handleQuery)
		r.Post("/select", s.handleSelect)
		r.Post("/clear", s.handleClear)
		r.Post("/recheck", s.handleRecheck)
		r.Post("/simulate", s.handleSimulate)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"session": s.monitor.Session(),
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []model.TravelAlert{})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	alerts, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		appLog.Error("alert history query failed", err)
		writeError(w, http.StatusInternalServerError, "alert history unavailable")
		return
	}
	if alerts == nil {
		alerts = []model.TravelAlert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var patch model.TravelQueryPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	s.monitor.SetTravelQuery(patch)
	writeJSON(w, http.StatusOK, s.monitor.Session())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var option model.RouteOption
	if err := json.NewDecoder(r.Body).Decode(&option); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if option.ID == "" {
		writeError(w, http.StatusBadRequest, "option id is required")
		return
	}
	s.monitor.SelectOption(r.Context(), option)
	writeJSON(w, http.StatusOK, s.monitor.Session())
}

func (s *Server) handleClear(w http.ResponseWriter, _ *http.Request) {
	s.monitor.ClearSelection()
	writeJSON(w, http.StatusOK, s.monitor.Session())
}

func (s *Server) handleRecheck(w http.ResponseWriter, r *http.Request) {
	s.monitor.Recheck(r.Context())
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "rechecked"})
}

type simulateRequest struct {
	Action  string `json:"action"`
	Minutes int    `json:"minutes,omitempty"`
	Status  string `json:"status,omitempty"`
}

// handleSimulate drives the demo scenarios: moving the next meeting on the
// mock calendar, or flipping the mock travel source's disruption state.
func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	switch req.Action {
	case "shift_meeting":
		if s.sims.Calendar == nil {
			writeError(w, http.StatusConflict, "calendar provider is not simulatable")
			return
		}
		if req.Minutes == 0 {
			writeError(w, http.StatusBadRequest, "minutes must be non-zero")
			return
		}
		s.sims.Calendar.ShiftNextMeeting(time.Duration(req.Minutes) * time.Minute)
		// Let the change flow through the detector so the cycle is
		// triggered the same way a real calendar edit would trigger it.
		if s.detector != nil {
			if err := s.detector.CheckOnce(r.Context()); err != nil {
				appLog.Error("post-simulate calendar check failed", err)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "shifted", "minutes": req.Minutes})

	case "disruption":
		if s.sims.Travel == nil {
			writeError(w, http.StatusConflict, "travel provider is not simulatable")
			return
		}
		var d model.Disruption
		switch req.Status {
		case string(model.DisruptionNone), "":
			d = model.DisruptionNone
		case string(model.DisruptionCancelled):
			d = model.DisruptionCancelled
		case string(model.DisruptionDelayed):
			d = model.DisruptionDelayed
		default:
			writeError(w, http.StatusBadRequest, "unknown disruption status")
			return
		}
		s.sims.Travel.SetDisruption(d)
		s.monitor.Recheck(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"status": "disruption set", "disruption": d})

	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("response encode failed", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve runs the control API until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("control api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
