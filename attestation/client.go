package attestation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/vitwit/usdcflow/logger"
	"github.com/vitwit/usdcflow/metrics"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/utils"
)

// Config represents Gateway API client configuration
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client talks to the Gateway attestation service.
type Client struct {
	config         Config
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	rateLimiter    *rate.Limiter
	logger         logger.Logger
	metrics        metrics.Recorder
}

type Option func(*Client)

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) { c.metrics = r }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a new Gateway API client
func NewClient(config Config, opts ...Option) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.BaseURL == "" {
		config.BaseURL = GatewayTestnetURL
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaultRequestsPerSecond
	}

	c := &Client{
		config:      config,
		httpClient:  &http.Client{Timeout: config.Timeout},
		rateLimiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		logger:      logger.NoopLogger{},
		metrics:     metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GatewayAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		// a rejected intent means the service is healthy
		IsSuccessful: func(err error) bool {
			var apiErr *ErrorResponse
			return err == nil || (errors.As(err, &apiErr) && !apiErr.Temporary())
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Warn("gateway circuit breaker state changed", map[string]any{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})

	return c
}

func (c *Client) BaseURL() string { return c.config.BaseURL }

// Submit posts signed burn intents and returns the attestation. It never
// retries: a retry must go through a new intent with a new salt.
func (c *Client) Submit(ctx context.Context, intents []SignedBurnIntent) (*Attested, error) {
	if len(intents) == 0 {
		return nil, types.NewError(types.ErrCodeInvalidRequest, 0, "no burn intents to submit")
	}

	body, err := json.Marshal(intents)
	if err != nil {
		return nil, fmt.Errorf("marshal burn intents: %w", err)
	}

	start := time.Now()
	var resp TransferResponse
	err = c.do(ctx, http.MethodPost, transferPath, body, &resp)
	c.metrics.ObserveLatency(metrics.Attestation, time.Since(start), map[string]string{"outcome": metrics.Outcome(err)})

	if err != nil {
		return nil, c.classify(err, "submit burn intent")
	}

	attestation, err := hexutil.Decode(resp.Attestation)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeAttestationRejected, 0, err, "malformed attestation in response")
	}
	signature, err := hexutil.Decode(resp.Signature)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeAttestationRejected, 0, err, "malformed attestation signature in response")
	}

	var expiration *big.Int
	if resp.ExpirationBlock != "" {
		if expiration, err = utils.ValidateBigInt(resp.ExpirationBlock); err != nil {
			return nil, types.WrapError(types.ErrCodeAttestationRejected, 0, err, "malformed expirationBlock in response")
		}
	}

	c.logger.Info("burn intent attested", map[string]any{
		"transferId":      resp.TransferID,
		"expirationBlock": resp.ExpirationBlock,
	})

	return &Attested{
		TransferID:      resp.TransferID,
		Attestation:     attestation,
		Signature:       signature,
		Fees:            resp.Fees,
		ExpirationBlock: expiration,
	}, nil
}

// Info fetches the service's domain and contract registry. Reads are
// idempotent, so 5xx replies are retried with backoff.
func (c *Client) Info(ctx context.Context) (*InfoResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= maxInfoRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 250 * time.Millisecond
			select {
			case <-ctx.Done():
				return nil, c.classify(ctx.Err(), "gateway info")
			case <-time.After(backoff):
			}
		}

		var resp InfoResponse
		err := c.do(ctx, http.MethodGet, infoPath, nil, &resp)
		if err == nil {
			return &resp, nil
		}
		lastErr = err

		var apiErr *ErrorResponse
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			break
		}
	}
	return nil, c.classify(lastErr, "gateway info")
}

func (c *Client) do(ctx context.Context, method, endpoint string, body []byte, response interface{}) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	_, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, c.doRequestInternal(ctx, method, endpoint, body, response)
	})
	return err
}

func (c *Client) doRequestInternal(ctx context.Context, method, endpoint string, body []byte, response interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseErrorBody(resp.StatusCode, respBody)
		c.logger.Warn("gateway API returned an error", map[string]any{
			"endpoint": endpoint,
			"status":   resp.StatusCode,
			"message":  apiErr.Message,
		})
		return apiErr
	}

	if response != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, response); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// classify maps transport and API failures into the error taxonomy. Every
// non-2xx reply is a rejection carrying the service message verbatim;
// IsTemporary tells 5xx and 429 apart.
func (c *Client) classify(err error, op string) error {
	var apiErr *ErrorResponse
	if errors.As(err, &apiErr) {
		return types.WrapError(types.ErrCodeAttestationRejected, 0, apiErr, "%s", apiErr.Message)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.WrapError(types.ErrCodeNetworkTransient, 0, err, "%s: gateway API circuit open", op)
	}
	return types.Classify(err, 0, types.ErrCodeNetworkTransient, op)
}
