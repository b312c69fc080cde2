// Package observability provides the ops and session HTTP server and the
// gRPC health interceptors.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"call-recap-service/internal/errs"
	"call-recap-service/internal/service/session"
)

// SessionControl is the controller surface exposed over HTTP.
type SessionControl interface {
	Status() session.Status
	End(ctx context.Context) (*session.Outcome, error)
	Terminate(ctx context.Context)
}

// Deps wires the server to the rest of the service. Nil fields disable
// the matching routes.
type Deps struct {
	Sessions   SessionControl
	Events     http.Handler // websocket notification stream
	CallEvents chan<- session.CallEvent
	Ready      func() bool
	Gatherer   prometheus.Gatherer // defaults to the global registry
}

// Server provides HTTP endpoints for observability and session control.
type Server struct {
	server *http.Server
	addr   string
}

// NewServer creates the HTTP server.
func NewServer(addr string, deps Deps) *Server {
	return &Server{
		addr: addr,
		server: &http.Server{
			Addr:        addr,
			Handler:     NewRouter(deps),
			ReadTimeout: 5 * time.Second,
			// No write timeout: /v1/session/stop waits for finalization and
			// /v1/events is long-lived.
			IdleTimeout: 60 * time.Second,
		},
	}
}

// NewRouter builds the chi router.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if deps.Ready != nil && !deps.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(requestLogger)

		if deps.Sessions != nil {
			h := &sessionHandler{sessions: deps.Sessions}
			r.Get("/session", h.status)
			r.Post("/session/stop", h.stop)
			r.Post("/session/terminate", h.terminate)
		}
		if deps.CallEvents != nil {
			r.Post("/call-events", callEventHandler(deps.CallEvents))
		}
		if deps.Events != nil {
			r.Handle("/events", deps.Events)
		}
	})

	return r
}

type sessionHandler struct {
	sessions SessionControl
}

type stopResponse struct {
	Reference string `json:"reference,omitempty"`
	Record    any    `json:"record,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *sessionHandler) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Status())
}

func (h *sessionHandler) stop(w http.ResponseWriter, r *http.Request) {
	out, err := h.sessions.End(r.Context())
	switch {
	case errors.Is(err, session.ErrNoSession), errors.Is(err, session.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, stopResponse{Error: err.Error()})
	case errors.Is(err, session.ErrTerminated):
		writeJSON(w, http.StatusGone, stopResponse{Error: err.Error()})
	case err != nil:
		resp := stopResponse{Error: err.Error()}
		if out != nil {
			resp.Record = out.Record
		}
		status := http.StatusInternalServerError
		if errs.CodeOf(err) == errs.CodeStorage {
			status = http.StatusBadGateway
		}
		writeJSON(w, status, resp)
	case out == nil:
		// ended before capture began
		writeJSON(w, http.StatusOK, stopResponse{})
	default:
		writeJSON(w, http.StatusOK, stopResponse{Reference: out.Reference, Record: out.Record})
	}
}

func (h *sessionHandler) terminate(w http.ResponseWriter, r *http.Request) {
	h.sessions.Terminate(r.Context())
	writeJSON(w, http.StatusAccepted, h.sessions.Status())
}

func callEventHandler(events chan<- session.CallEvent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev session.CallEvent
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&ev); err != nil {
			writeJSON(w, http.StatusBadRequest, stopResponse{Error: "invalid call event: " + err.Error()})
			return
		}
		switch ev.Kind {
		case session.CallBegan, session.CallConnected, session.CallEnded:
		default:
			writeJSON(w, http.StatusBadRequest, stopResponse{Error: "unknown call event " + string(ev.Kind)})
			return
		}
		if ev.At.IsZero() {
			ev.At = time.Now().UTC()
		}
		select {
		case events <- ev:
			w.WriteHeader(http.StatusAccepted)
		case <-r.Context().Done():
		default:
			writeJSON(w, http.StatusServiceUnavailable, stopResponse{Error: "call event queue full"})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Str("requestId", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Info().Str("addr", s.addr).Msg("Starting HTTP server")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
