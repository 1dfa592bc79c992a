package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	// Jobs enables GET /v1/jobs/{id}. Nil leaves it out.
	Jobs         JobStore
	Checks       []Check
	ReadyTimeout time.Duration
}

// Server is the worker's ops surface: metrics, liveness, readiness and job
// inspection.
type Server struct {
	Mux *http.ServeMux
}

func New(opts Options) *Server {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 2 * time.Second
	}
	m := http.NewServeMux()
	m.Handle("/metrics", promhttp.Handler())
	m.HandleFunc("/healthz", Healthz())
	m.HandleFunc("/readyz", Readyz(opts.ReadyTimeout, opts.Checks...))
	if opts.Jobs != nil {
		(&JobsAPI{Store: opts.Jobs}).Register(m)
	}
	return &Server{Mux: m}
}

// Handler is the mux wrapped in request logging.
func (s *Server) Handler() http.Handler { return Logging(s.Mux) }
