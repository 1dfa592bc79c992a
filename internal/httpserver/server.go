package httpserver

import (
	"github.com/gorilla/mux"

	"correspondence/internal/observability"
)

type Server struct {
	Mux *mux.Router
}

// New returns a router that logs and counts every request by route template.
func New() *Server {
	r := mux.NewRouter()
	r.Use(Logging, Metrics(observability.APIRequests))
	return &Server{Mux: r}
}
