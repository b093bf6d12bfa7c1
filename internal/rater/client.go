// Package rater is a thin client for an external rating service. When
// configured, the calculation worker sends section batches there instead
// of running the local calculator; the response items flow through the
// same reconciliation merge either way.
package rater

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-polis/internal/premium"
	"github.com/noah-isme/backend-polis/internal/resilience"
)

// ErrUnavailable indicates the rating service rejected or failed the call.
var ErrUnavailable = errors.New("rating service unavailable")

// SectionRequest is one section batch sent for rating.
type SectionRequest struct {
	ProposalNo     string             `json:"proposalNo"`
	SectionID      string             `json:"sectionId"`
	ProportionRate float64            `json:"proportionRate"`
	Items          []premium.RiskItem `json:"items"`
}

// SectionResponse carries the rated items plus the service's own totals.
// Totals are advisory; callers re-aggregate locally.
type SectionResponse struct {
	Items  []premium.RiskItem  `json:"items"`
	Totals premium.BatchTotals `json:"totals"`
}

// Client calls the rating service over HTTP with retries and a circuit
// breaker in front of it.
type Client struct {
	BaseURL string
	HTTP    resilience.HTTPClient
}

// New builds a rater client with a traced, breaker-guarded transport.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("rater base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: resilience.HTTPClient{
			Client: &http.Client{
				Timeout:   timeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			},
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("rater"),
			MaxAttempts: 3,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
		},
	}, nil
}

// CalculateSection rates one section batch.
func (c *Client) CalculateSection(ctx context.Context, req SectionRequest) (*SectionResponse, error) {
	if c == nil || c.HTTP.Client == nil {
		return nil, errors.New("rater client not configured")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode section request: %w", err)
	}
	httpReq, err := http.NewRequest(http.MethodPost, c.BaseURL+"/v1/rate/section", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.HTTP.Do(ctx, httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, res.StatusCode, strings.TrimSpace(string(snippet)))
	}
	var out SectionResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode section response: %w", err)
	}
	return &out, nil
}
