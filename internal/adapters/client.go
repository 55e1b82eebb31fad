// Package adapters wraps every third-party HTTP dependency behind a narrow
// function. Transport failures, timeouts, non-2xx answers and an open circuit
// breaker are all reported as apperr.KindUnavailable.
package adapters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/massy-ia/citydesk/internal/apperr"
	"github.com/massy-ia/citydesk/internal/logging"
	"github.com/massy-ia/citydesk/internal/metrics"
)

const maxBodySize = 10 << 20

// StatusError is returned for a non-2xx upstream answer.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// Client is an HTTP client guarded by a circuit breaker, one per upstream.
type Client struct {
	name    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// NewClient creates a client whose calls time out after timeout.
// The breaker opens when at least 60% of 10 or more calls in a minute fail
// and probes again after 30 seconds.
func NewClient(name string, timeout time.Duration) *Client {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// A caller giving up says nothing about the upstream.
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("adapter", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
	})

	return &Client{
		name:    name,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Do sends req and returns the response body.
func (c *Client) Do(req *http.Request) ([]byte, error) {
	body, err := c.breaker.Execute(func() ([]byte, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &StatusError{StatusCode: resp.StatusCode}
		}
		return data, nil
	})
	if err != nil {
		outcome := "failure"
		switch {
		case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
			outcome = "rejected"
		case errors.Is(err, context.Canceled):
			outcome = "canceled"
		}
		metrics.RecordAdapterCall(c.name, outcome)
		logging.Warn().Err(err).Str("adapter", c.name).Str("url", req.URL.Redacted()).Msg("Upstream call failed")
		return nil, apperr.Unavailable(c.name+" service unavailable", err)
	}
	metrics.RecordAdapterCall(c.name, "success")
	return body, nil
}

// Get fetches rawURL with the query appended. Options may decorate the request.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values, opts ...func(*http.Request)) ([]byte, error) {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperr.Internal("failed to build request", err)
	}
	for _, opt := range opts {
		opt(req)
	}
	return c.Do(req)
}

// GetJSON fetches rawURL and decodes the JSON answer into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any, opts ...func(*http.Request)) error {
	body, err := c.Get(ctx, rawURL, query, opts...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperr.Unavailable(c.name+" returned an unreadable answer", err)
	}
	return nil
}

// PostJSON sends payload as JSON and discards the answer.
func (c *Client) PostJSON(ctx context.Context, rawURL string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return apperr.Internal("failed to encode payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(data))
	if err != nil {
		return apperr.Internal("failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.Do(req)
	return err
}

// WithBasicAuth sets HTTP basic credentials on a request.
func WithBasicAuth(username, password string) func(*http.Request) {
	return func(req *http.Request) {
		req.SetBasicAuth(username, password)
	}
}
