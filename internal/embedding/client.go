// Package embedding talks to the image embedding service.
//
// The service fetches an image by URL and answers with a fixed-length vector:
//
//	POST /embed   {"image_url": "..."} -> {"embedding": [...], "dimensions": 512}
//	GET  /health  -> {"status": "ok", "service": "...", "model": "...", "device": "..."}
package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"

	"github.com/timmy/petmatch/internal/apperr"
	"github.com/timmy/petmatch/internal/config"
	"github.com/timmy/petmatch/internal/logger"
	"github.com/timmy/petmatch/internal/metrics"
)

const opEmbed = "embedding.embed"

// Causes wrapped inside the apperr errors returned by Embed.
var (
	ErrTimeout           = errors.New("embedding service timed out")
	ErrTransport         = errors.New("embedding service unreachable")
	ErrServiceStatus     = errors.New("embedding service returned an error status")
	ErrMalformedResponse = errors.New("malformed embedding response")
	ErrCircuitOpen       = errors.New("embedding service circuit open")
)

// Client calls the embedding service.
type Client struct {
	http          *resty.Client
	breaker       *gobreaker.CircuitBreaker
	timeout       time.Duration
	healthTimeout time.Duration
	dimensions    int
}

type embedRequest struct {
	ImageURL string `json:"image_url"`
}

type embedResponse struct {
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Health is the service's self-report. Status is "offline" when it could not be reached.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service,omitempty"`
	Model   string `json:"model,omitempty"`
	Device  string `json:"device,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewClient creates a client for cfg.URL.
func NewClient(cfg *config.EmbeddingConfig) *Client {
	client := resty.New()
	client.SetBaseURL(strings.TrimSuffix(cfg.URL, "/"))
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("Accept", "application/json")

	healthTimeout := cfg.HealthTimeout
	if healthTimeout <= 0 {
		healthTimeout = 5 * time.Second
	}

	c := &Client{
		http:          client,
		timeout:       cfg.Timeout,
		healthTimeout: healthTimeout,
		dimensions:    cfg.Dimensions,
	}
	if cfg.Breaker.Enabled {
		c.breaker = newBreaker(cfg.Breaker)
	}
	return c
}

func newBreaker(cfg config.BreakerConfig) *gobreaker.CircuitBreaker {
	maxFailures := cfg.MaxFailures
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A caller giving up says nothing about the service.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, apperr.ErrValidation)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Default().WithFields(logger.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
}

// Embed returns the embedding of the image at imageURL.
//
// Errors are *apperr.Error: KindUpstreamTimeout wrapping ErrTimeout, or
// KindUpstreamFailure wrapping ErrTransport, ErrServiceStatus,
// ErrMalformedResponse or ErrCircuitOpen.
func (c *Client) Embed(ctx context.Context, imageURL string) ([]float32, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, apperr.Validation("image_url", "image URL is required")
	}

	start := time.Now()
	var (
		vec []float32
		err error
	)
	if c.breaker == nil {
		vec, err = c.embed(ctx, imageURL)
	} else {
		var out interface{}
		out, err = c.breaker.Execute(func() (interface{}, error) {
			return c.embed(ctx, imageURL)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = apperr.Upstream(opEmbed, "embedding service unavailable", fmt.Errorf("%w: %w", ErrCircuitOpen, err))
		}
		if err == nil {
			vec = out.([]float32)
		}
	}

	elapsed := time.Since(start)
	metrics.ObserveEmbedding(outcome(err), elapsed)
	if err != nil {
		logger.With(logger.Fields{logger.FieldErrorKind: apperr.KindOf(err).String()}).
			WithDuration(elapsed).
			Warn(ctx, "Embedding request failed: %v", err)
		return nil, err
	}

	logger.With(logger.Fields{"dimensions": len(vec)}).WithDuration(elapsed).Debug(ctx, "Embedding generated")
	return vec, nil
}

func (c *Client) embed(ctx context.Context, imageURL string) ([]float32, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(embedRequest{ImageURL: imageURL}).
		Post("/embed")
	if err != nil {
		if isTimeout(err) {
			return nil, apperr.Timeout(opEmbed, fmt.Errorf("%w after %s: %w", ErrTimeout, c.timeout, err))
		}
		return nil, apperr.Upstream(opEmbed, "embedding request failed", fmt.Errorf("%w: %w", ErrTransport, err))
	}

	if !resp.IsSuccess() {
		reason := resp.Status()
		var body errorResponse
		if json.Unmarshal(resp.Body(), &body) == nil && body.Error != "" {
			reason = body.Error
		}
		return nil, apperr.Upstream(opEmbed, "embedding service error",
			fmt.Errorf("%w: status %d: %s", ErrServiceStatus, resp.StatusCode(), reason))
	}

	var out embedResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, malformed(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}
	if len(out.Embedding) == 0 {
		return nil, malformed(fmt.Errorf("%w: no embedding in response", ErrMalformedResponse))
	}
	if out.Dimensions > 0 && out.Dimensions != len(out.Embedding) {
		return nil, malformed(fmt.Errorf("%w: declared %d dimensions, got %d", ErrMalformedResponse, out.Dimensions, len(out.Embedding)))
	}
	if c.dimensions > 0 && len(out.Embedding) != c.dimensions {
		return nil, malformed(fmt.Errorf("%w: expected %d dimensions, got %d", ErrMalformedResponse, c.dimensions, len(out.Embedding)))
	}
	return out.Embedding, nil
}

// Health asks the service for its status. It never fails: an unreachable or
// unhealthy service is reported as Status "offline".
func (c *Client) Health(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		return Health{Status: "offline", Error: err.Error()}
	}
	if !resp.IsSuccess() {
		return Health{Status: "offline", Error: resp.Status()}
	}

	var h Health
	if err := json.Unmarshal(resp.Body(), &h); err != nil || h.Status == "" {
		return Health{Status: "offline", Error: "malformed health response"}
	}
	return h
}

func malformed(err error) error {
	return apperr.Upstream(opEmbed, "invalid embedding response", err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCircuitOpen):
		return "rejected"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	default:
		return apperr.KindOf(err).String()
	}
}
