// Package elastic implements the oracle and the job store on top of Elasticsearch.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/talent-screener/internal/condition"
	"github.com/spigell/talent-screener/internal/logger"
	"github.com/spigell/talent-screener/internal/oracle"
	"github.com/spigell/talent-screener/internal/utils"
)

const (
	defaultTimeout = 10 * time.Second
	maxQueryLogLen = 512
)

type Config struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
	// Timeout bounds every request, including the wait for the rate limiter.
	Timeout time.Duration
	// RateLimit is the number of requests per second. Zero disables limiting.
	RateLimit float64
	Burst     int
	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// Client talks to Elasticsearch. It implements oracle.Oracle.
type Client struct {
	es      *elasticsearch.Client
	limiter *rate.Limiter
	timeout time.Duration
	logger  *zap.Logger
}

var _ oracle.Oracle = (*Client)(nil)

func New(cfg Config, l *zap.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: cfg.Transport,
		// retries belong to the caller
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		es:      es,
		limiter: limiter,
		timeout: timeout,
		logger:  logger.WithFields(l, zap.String("component", "elastic")),
	}, nil
}

type countResponse struct {
	Count int64 `json:"count"`
}

// Count returns the number of documents in index matching query.
func (c *Client) Count(ctx context.Context, index string, query condition.Fragment) (int64, error) {
	body, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return 0, fmt.Errorf("encode count query: %w", err)
	}

	start := time.Now()
	var out countResponse
	err = c.call(ctx, func(ctx context.Context) (*esapi.Response, error) {
		return c.es.Count(
			c.es.Count.WithContext(ctx),
			c.es.Count.WithIndex(index),
			c.es.Count.WithBody(bytes.NewReader(body)),
		)
	}, &out)

	c.logger.Debug("count",
		zap.String(logger.FieldIndex, index),
		zap.String("query", utils.TruncateForLog(string(body), maxQueryLogLen)),
		zap.Int64("count", out.Count),
		zap.Duration("took", time.Since(start)),
		zap.Error(err),
	)
	if err != nil {
		return 0, err
	}
	return out.Count, nil
}

// call waits for the limiter, runs req under the request timeout and decodes a successful
// response into out. Failed responses are classified into oracle errors.
func (c *Client) call(ctx context.Context, req func(context.Context) (*esapi.Response, error), out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return &oracle.UnavailableError{Cause: fmt.Errorf("rate limiter: %w", err)}
	}

	res, err := req(ctx)
	if err != nil {
		return &oracle.UnavailableError{Cause: err}
	}
	defer res.Body.Close()

	if res.IsError() {
		return classify(res)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		if ctx.Err() != nil {
			return &oracle.UnavailableError{Cause: ctx.Err()}
		}
		return fmt.Errorf("decode elasticsearch response: %w", err)
	}
	return nil
}
