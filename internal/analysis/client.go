// Package analysis calls the optional listing-analysis webhook that runs
// before an approval commits.  Calls are bounded by a timeout and guarded
// by a circuit breaker; every failure surfaces as an upstream error so
// the approval rolls back.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/iliyamo/dealer-syndication/internal/apperr"
	"github.com/iliyamo/dealer-syndication/internal/logging"
	"github.com/iliyamo/dealer-syndication/internal/metrics"
	"github.com/iliyamo/dealer-syndication/internal/model"
)

const breakerName = "analysis-webhook"

// Request is the JSON body posted to the webhook.
type Request struct {
	ListingID    uint64        `json:"listing_id"`
	Kind         string        `json:"kind"`
	DealershipID *uint64       `json:"dealership_id,omitempty"`
	CarListingID *uint64       `json:"car_listing_id,omitempty"`
	Vehicle      model.Vehicle `json:"vehicle"`
}

// Result is the webhook's reply.  A 202 Accepted reply carries no body
// and yields Accepted=true with no verdict.
type Result struct {
	Accepted bool   `json:"accepted"`
	Verdict  string `json:"verdict,omitempty"`
	Score    *int   `json:"score,omitempty"`
}

// Client posts analysis requests.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[Result]
}

// NewClient returns a Client for url.  A zero timeout defaults to five
// seconds.
func NewClient(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	cb := gobreaker.NewCircuitBreaker[Result](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	return &Client{url: url, timeout: timeout, http: &http.Client{}, cb: cb}
}

// Analyze posts req and returns the webhook's result.  Timeouts, transport
// errors and 5xx replies are retryable upstream errors; other non-2xx
// replies are not.
func (c *Client) Analyze(ctx context.Context, req Request) (Result, error) {
	res, err := c.cb.Execute(func() (Result, error) {
		return c.post(ctx, req)
	})
	switch {
	case err == nil:
		metrics.UpstreamRequests.WithLabelValues(breakerName, "success").Inc()
		return res, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.UpstreamRequests.WithLabelValues(breakerName, "rejected").Inc()
		return Result{}, apperr.Upstream(err, true, "analysis webhook unavailable")
	default:
		metrics.UpstreamRequests.WithLabelValues(breakerName, "failure").Inc()
		if apperr.KindOf(err) == apperr.KindUpstream {
			return Result{}, err
		}
		return Result{}, apperr.Upstream(err, true, "analysis webhook failed")
	}
}

func (c *Client) post(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("encode analysis request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, apperr.Upstream(err, false, "build analysis request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if id := logging.RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, apperr.Upstream(err, true, "analysis webhook timed out after %s", c.timeout)
		}
		return Result{}, apperr.Upstream(err, true, "analysis webhook request failed")
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return Result{Accepted: true}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out Result
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &out); err != nil {
				return Result{}, apperr.Upstream(err, false, "analysis webhook returned invalid JSON")
			}
		}
		out.Accepted = true
		return out, nil
	default:
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return Result{}, apperr.Upstream(nil, retryable, "analysis webhook returned %d", resp.StatusCode)
	}
}
