package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/grid-profile-aggregation/internal/grid"
	"github.com/i474232898/grid-profile-aggregation/internal/observability"
)

// BackoffConfig controls exponential backoff behaviour. MaxRetries of 0
// means a failed fetch is never retried.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

var (
	errNotFound      = errors.New("not found")
	errRateLimited   = errors.New("rate limited")
	errServerError   = errors.New("server error")
	errUnexpected    = errors.New("unexpected status code")
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		// A missing day is a normal answer from a healthy server.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotFound)
		},
	})
}

// doRequestWithResilience executes the HTTP request through the circuit
// breaker, retrying transient failures with exponential backoff.
func doRequestWithResilience(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || cfg.Backoff.InitialInterval <= 0 {
		return nil, errInvalidConfig
	}

	var attempt int

	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		req, err := buildRequest()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}

			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return resp, nil
			case resp.StatusCode == http.StatusNotFound:
				execErr = errNotFound
			case resp.StatusCode == http.StatusTooManyRequests:
				execErr = errRateLimited
			case resp.StatusCode >= 500:
				execErr = errServerError
			default:
				execErr = fmt.Errorf("%w: %d", errUnexpected, resp.StatusCode)
			}
			resp.Body.Close()
			return nil, execErr
		})

		if err == nil {
			resp, ok := result.(*http.Response)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			return resp, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", errCircuitOpen, err)
		}
		if errors.Is(err, errNotFound) || attempt >= cfg.Backoff.MaxRetries {
			return nil, err
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}

		attempt++
	}
}

// readPayload reads the whole body as text, undoing zstd or gzip encoding.
func readPayload(r io.Reader, encoding string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
	case "zstd", "zst":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return "", err
		}
		defer zr.Close()
		r = zr
	case "gzip", "gz":
		gr, err := gzip.NewReader(r)
		if err != nil {
			return "", err
		}
		defer gr.Close()
		r = gr
	default:
		return "", fmt.Errorf("unsupported content encoding %q", encoding)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// decodePayload runs the two-stage decoder and records the outcome.
func decodePayload(log *zap.Logger, resource, dateKey, text string) ([]grid.RawRecord, error) {
	decoded, err := grid.DecodeRecords(text)
	if decoded.Repaired {
		observability.PayloadRepairsTotal.Inc()
		log.Debug("payload parsed after repair", zap.String("resource", resource), zap.String("date", dateKey))
	}
	if decoded.Skipped > 0 {
		log.Debug("records without a valid time skipped",
			zap.String("resource", resource),
			zap.String("date", dateKey),
			zap.Int("skipped", decoded.Skipped),
		)
	}
	if err != nil {
		outcome := "malformed"
		if errors.Is(err, grid.ErrEmptyPayload) {
			outcome = "empty"
		}
		observability.SourceFetchTotal.WithLabelValues(resource, outcome).Inc()
		return nil, fmt.Errorf("%s %s: %w", resource, dateKey, err)
	}

	observability.SourceFetchTotal.WithLabelValues(resource, "ok").Inc()
	return decoded.Records, nil
}

func unavailable(resource, dateKey string, err error) error {
	observability.SourceFetchTotal.WithLabelValues(resource, "unavailable").Inc()
	return fmt.Errorf("%s %s: %w: %v", resource, dateKey, grid.ErrSourceUnavailable, err)
}
