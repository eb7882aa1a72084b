package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/grid-profile-aggregation/internal/grid"
)

// HTTPSource implements grid.RecordSource over HTTP. The per-date path is
// built from a fmt pattern such as "dailydata_clean/day_%s.json".
type HTTPSource struct {
	name    string
	baseURL string
	pattern string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewHTTPSource creates an HTTPSource named after the resource it serves.
func NewHTTPSource(name string, client *http.Client, baseURL, pattern string, backoff BackoffConfig, log *zap.Logger) *HTTPSource {
	if backoff.InitialInterval <= 0 {
		backoff.InitialInterval = 500 * time.Millisecond
	}
	return &HTTPSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		pattern: pattern,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: backoff,
		},
		circuit: newCircuitBreaker(name),
		log:     log,
	}
}

func (s *HTTPSource) Name() string {
	return s.name
}

// FetchDay fetches one date's resource and decodes it.
func (s *HTTPSource) FetchDay(ctx context.Context, dateKey string) ([]grid.RawRecord, error) {
	buildRequest := func() (*http.Request, error) {
		u := s.baseURL + "/" + (&url.URL{Path: fmt.Sprintf(s.pattern, dateKey)}).EscapedPath()
		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Accept-Encoding", "zstd, gzip")
		return req, nil
	}

	resp, err := doRequestWithResilience(ctx, s.httpCfg, s.circuit, buildRequest)
	if err != nil {
		return nil, unavailable(s.name, dateKey, err)
	}
	defer resp.Body.Close()

	text, err := readPayload(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, unavailable(s.name, dateKey, err)
	}
	return decodePayload(s.log, s.name, dateKey, text)
}
