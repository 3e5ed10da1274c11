package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-ivscan/logger"
)

// Server is the monitoring HTTP server.
type Server struct {
	address  string
	runs     *Registry
	gatherer prometheus.Gatherer
	logger   logger.Logger
	server   *http.Server
	router   chi.Router
}

// NewServer creates a server for runs. A nil gatherer disables /metrics and a
// nil logger selects the default logger.
func NewServer(address string, runs *Registry, gatherer prometheus.Gatherer, l logger.Logger) *Server {
	if l == nil {
		l = logger.GetLogger()
	}

	s := &Server{
		address:  address,
		runs:     runs,
		gatherer: gatherer,
		logger:   l.With("component", "monitor"),
	}
	s.router = s.routes()

	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/live", s.handleLive)
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleRuns)
		r.Get("/{id}", s.handleRun)
		r.Post("/{id}/abort", s.handleAbort)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler { return s.router }

// Start listens on the configured address and serves in a goroutine. It
// returns the bound address, which differs from the configured one when the
// port is 0.
func (s *Server) Start() (string, error) {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return "", err
	}

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.logger.Info("starting monitor server", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("monitor server error", "error", err)
		}
	}()

	return ln.Addr().String(), nil
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrRunNotFound):
		code = http.StatusNotFound
	case errors.Is(err, ErrRunFinished):
		code = http.StatusConflict
	}

	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleRuns(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.runs.Statuses())
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	status, err := s.runs.Status(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.runs.Abort(id); err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Warn("run abort requested", "run_id", id, "remote", r.RemoteAddr)

	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id, "status": "aborting"})
}
