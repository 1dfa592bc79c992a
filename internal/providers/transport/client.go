package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"correspondence/internal/domain"
	"correspondence/internal/observability"
)

type Options struct {
	APIKey          string
	HTTPTimeout     time.Duration
	CallTimeout     time.Duration
	RPS             float64
	Burst           int
	BreakerFailures uint32
	BreakerOpenFor  time.Duration
	MaxAttempts     int
}

// Client is a JSON HTTP client for one collaborating service, with a per-pod
// rate limit, a circuit breaker and small in-call retries.
type Client struct {
	Service     string
	BaseURL     string
	APIKey      string
	HTTP        *http.Client
	Limiter     *rate.Limiter
	Breaker     *gobreaker.CircuitBreaker
	CallTimeout time.Duration
	MaxAttempts int

	sleep func(ctx context.Context, d time.Duration) error
}

func New(service, baseURL string, o Options) *Client {
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = 8 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 6 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	c := &Client{
		Service:     service,
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      o.APIKey,
		HTTP:        &http.Client{Timeout: o.HTTPTimeout},
		CallTimeout: o.CallTimeout,
		MaxAttempts: o.MaxAttempts,
	}
	if o.RPS > 0 {
		c.Limiter = rate.NewLimiter(rate.Limit(o.RPS), max(o.Burst, 1))
	}
	if o.BreakerFailures > 0 {
		c.Breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        service,
			MaxRequests: 3,
			Timeout:     o.BreakerOpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= o.BreakerFailures },
			// caller mistakes (4xx) say nothing about the health of the service
			IsSuccessful: func(err error) bool {
				var se *StatusError
				if errors.As(err, &se) {
					return !ShouldRetry(nil, se.Status)
				}
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				slog.Warn("circuit breaker state change", "service", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return c
}

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, truncate(e.Body, 200))
}

// IsStatus reports whether err is a response with the given HTTP status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// Do sends in as JSON and decodes the response into out when out is non-nil.
// Retryable failures that outlive MaxAttempts come back wrapped in
// domain.ErrExternalTransient; other failures come back as *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: encode: %w", method, path, err)
		}
		body = b
	}

	op := c.Service + " " + method + " " + path
	var lastErr error
	for attempt := 0; attempt < c.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, Backoff(attempt-1)); err != nil {
				return domain.Transient(op, err)
			}
		}

		if c.Limiter != nil {
			waitCtx, cancelWait := context.WithTimeout(ctx, 2*time.Second)
			err := c.Limiter.Wait(waitCtx)
			cancelWait()
			if err != nil {
				observability.ExternalCalls.WithLabelValues(c.Service, "rate_limited_local", "0").Inc()
				lastErr = err
				continue
			}
		}

		start := time.Now()
		raw, status, err := c.executeWithBreaker(ctx, method, path, body)
		observability.ExternalLatency.WithLabelValues(c.Service).Observe(time.Since(start).Seconds())

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.ExternalCalls.WithLabelValues(c.Service, "cb_open", "0").Inc()
			return domain.Transient(op, err)
		}
		if err == nil {
			observability.ExternalCalls.WithLabelValues(c.Service, "ok", strconv.Itoa(status)).Inc()
			if out != nil && len(raw) > 0 {
				if err := json.Unmarshal(raw, out); err != nil {
					return fmt.Errorf("%s: decode: %w", op, err)
				}
			}
			return nil
		}

		observability.ExternalCalls.WithLabelValues(c.Service, "error", strconv.Itoa(status)).Inc()
		lastErr = err
		if !ShouldRetry(err, status) {
			return fmt.Errorf("%s: %w", op, err)
		}
		slog.Debug("outbound call failed, retrying", "service", c.Service, "path", path, "attempt", attempt, "err", err)
	}
	return domain.Transient(op, lastErr)
}

func (c *Client) executeWithBreaker(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	call := func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, c.CallTimeout)
		defer cancel()
		return c.send(reqCtx, method, path, body)
	}

	var (
		res any
		err error
	)
	if c.Breaker == nil {
		res, err = call()
	} else {
		res, err = c.Breaker.Execute(call)
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Body, se.Status, err
	}
	if err != nil {
		return nil, 0, err
	}
	r := res.(callResult)
	return r.raw, r.status, nil
}

type callResult struct {
	raw    []byte
	status int
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (any, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, Body: raw}
	}
	return callResult{raw: raw, status: resp.StatusCode}, nil
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
