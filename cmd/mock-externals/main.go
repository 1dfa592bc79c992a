package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/kelseyhightower/envconfig"

	"correspondence/internal/logging"
)

// config drives a local stand-in for the dialog, notification, register and
// legacy services. Outcomes apply to every request before it reaches a
// handler, so retry and breaker behaviour can be exercised end to end.
type config struct {
	Port              string  `envconfig:"PORT" default:"8090"`
	APIKey            string  `envconfig:"EXTERNAL_API_KEY"`
	OutcomeMode       string  `envconfig:"MOCK_OUTCOME_MODE" default:"fixed"`
	OutcomesRaw       string  `envconfig:"MOCK_OUTCOMES" default:"ok"`
	SuccessRate       float64 `envconfig:"MOCK_SUCCESS_RATE" default:"0.95"`
	FailureWeightsRaw string  `envconfig:"MOCK_FAILURE_WEIGHTS" default:"server_error:1"`
	DelayMs           int     `envconfig:"MOCK_DELAY_MS" default:"0"`
	TimeoutDelayMs    int     `envconfig:"MOCK_TIMEOUT_DELAY_MS" default:"12000"`

	// Shipments report sent once this much time has passed since the order.
	DeliveryDelayMs int `envconfig:"MOCK_DELIVERY_DELAY_MS" default:"2000"`
	// Identifiers the register reports as deleted or unknown.
	DeletedPartiesRaw string `envconfig:"MOCK_DELETED_PARTIES"`
	UnknownPartiesRaw string `envconfig:"MOCK_UNKNOWN_PARTIES"`

	Outcomes       []string
	FailureWeights []weightedOutcome
	Delay          time.Duration
	TimeoutDelay   time.Duration
	DeliveryDelay  time.Duration
	DeletedParties map[string]bool
	UnknownParties map[string]bool
}

type weightedOutcome struct {
	Kind   string
	Weight float64
}

type server struct {
	cfg   config
	idx   uint64
	rng   *rand.Rand
	rngMu sync.Mutex
	state *state
}

func main() {
	logging.Init("mock-externals", os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
	cfg := loadConfig()

	s := &server{
		cfg:   cfg,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		state: newState(),
	}

	router := mux.NewRouter()
	router.Use(loggingMiddleware, s.authMiddleware, s.outcomeMiddleware)
	s.routes(router)

	slog.Info("mock externals listening", "port", cfg.Port)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("mock externals server failed", "err", err)
		os.Exit(1)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		slog.Info("mock externals request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func loadConfig() config {
	var cfg config
	if err := envconfig.Process("", &cfg); err != nil {
		slog.Error("mock externals config load failed", "err", err)
		os.Exit(1)
	}
	cfg.OutcomeMode = strings.ToLower(cfg.OutcomeMode)
	cfg.Outcomes = parseCSV(cfg.OutcomesRaw)
	cfg.FailureWeights = parseWeightedOutcomes(cfg.FailureWeightsRaw)
	cfg.Delay = time.Duration(cfg.DelayMs) * time.Millisecond
	cfg.TimeoutDelay = time.Duration(cfg.TimeoutDelayMs) * time.Millisecond
	cfg.DeliveryDelay = time.Duration(cfg.DeliveryDelayMs) * time.Millisecond
	cfg.DeletedParties = parseSet(cfg.DeletedPartiesRaw)
	cfg.UnknownParties = parseSet(cfg.UnknownPartiesRaw)

	if len(cfg.Outcomes) == 0 {
		cfg.Outcomes = []string{"ok"}
	}
	if len(cfg.FailureWeights) == 0 {
		cfg.FailureWeights = []weightedOutcome{{Kind: "server_error", Weight: 1}}
	}
	return cfg
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.Header.Get("X-Api-Key") != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// outcomeMiddleware injects the configured failure before the handler runs,
// so a failed call never mutates mock state.
func (s *server) outcomeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(s.cfg.Delay):
			}
		}

		status, msg := classifyOutcome(s.nextOutcome())
		switch status {
		case 0:
			next.ServeHTTP(w, r)
		case http.StatusGatewayTimeout:
			s.sleep(r.Context(), s.cfg.TimeoutDelay)
			writeError(w, status, msg)
		case http.StatusTooManyRequests:
			w.Header().Set("Retry-After", "1")
			writeError(w, status, msg)
		default:
			writeError(w, status, msg)
		}
	})
}

func (s *server) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *server) nextOutcome() string {
	switch s.cfg.OutcomeMode {
	case "round_robin":
		idx := atomic.AddUint64(&s.idx, 1) - 1
		return s.cfg.Outcomes[int(idx)%len(s.cfg.Outcomes)]
	case "weighted":
		s.rngMu.Lock()
		ok := s.rng.Float64() <= s.cfg.SuccessRate
		r := s.rng.Float64()
		s.rngMu.Unlock()
		if ok {
			return "ok"
		}
		return pickWeighted(r, s.cfg.FailureWeights)
	case "random":
		s.rngMu.Lock()
		i := s.rng.Intn(len(s.cfg.Outcomes))
		s.rngMu.Unlock()
		return s.cfg.Outcomes[i]
	default:
		return s.cfg.Outcomes[0]
	}
}

// classifyOutcome returns status 0 when the request should be served.
func classifyOutcome(raw string) (int, string) {
	switch kind := strings.TrimSpace(raw); kind {
	case "", "ok", "success":
		return 0, ""
	case "rate_limit", "429":
		return http.StatusTooManyRequests, "rate limited"
	case "bad_request", "400":
		return http.StatusBadRequest, "bad request"
	case "server_error", "500":
		return http.StatusInternalServerError, "server error"
	case "unavailable", "503":
		return http.StatusServiceUnavailable, "unavailable"
	case "timeout":
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "mock error: " + kind
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, p := range parseCSV(s) {
		out[p] = true
	}
	return out
}

func parseWeightedOutcomes(s string) []weightedOutcome {
	var out []weightedOutcome
	for _, p := range parseCSV(s) {
		kv := strings.Split(p, ":")
		if len(kv) != 2 {
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil || w <= 0 {
			continue
		}
		kind := strings.TrimSpace(kv[0])
		if kind == "" {
			continue
		}
		out = append(out, weightedOutcome{Kind: kind, Weight: w})
	}
	return out
}

func pickWeighted(r float64, items []weightedOutcome) string {
	if len(items) == 0 {
		return "server_error"
	}
	var total float64
	for _, it := range items {
		total += it.Weight
	}
	if total <= 0 {
		return items[0].Kind
	}
	target := r * total
	var cumulative float64
	for _, it := range items {
		cumulative += it.Weight
		if target <= cumulative {
			return it.Kind
		}
	}
	return items[len(items)-1].Kind
}
