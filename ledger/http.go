package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/vitwit/usdcflow/logger"
	"github.com/vitwit/usdcflow/types"
)

const (
	transactionsPath = "/transactions"
	refundsPath      = "/refunds"
	bridgesPath      = "/bridges"
)

// HTTPRecorder posts records as JSON to an external ledger service.
type HTTPRecorder struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker
	logger         logger.Logger
}

type HTTPOption func(*HTTPRecorder)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPRecorder) { r.httpClient = c }
}

func WithLogger(l logger.Logger) HTTPOption {
	return func(r *HTTPRecorder) { r.logger = l }
}

func NewHTTPRecorder(baseURL string, timeout time.Duration, opts ...HTTPOption) *HTTPRecorder {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	r := &HTTPRecorder{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}

	r.circuitBreaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "Ledger",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("ledger circuit breaker state changed", map[string]any{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})
	return r
}

func (r *HTTPRecorder) RecordTransaction(ctx context.Context, rec TransactionRecord) error {
	return r.post(ctx, transactionsPath, rec)
}

func (r *HTTPRecorder) RecordRefund(ctx context.Context, rec RefundRecord) error {
	return r.post(ctx, refundsPath, rec)
}

func (r *HTTPRecorder) RecordBridge(ctx context.Context, rec BridgeRecord) error {
	return r.post(ctx, bridgesPath, rec)
}

func (r *HTTPRecorder) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal ledger record: %w", err)
	}

	_, err = r.circuitBreaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			return nil, fmt.Errorf("ledger returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		}
		return nil, nil
	})
	if err != nil {
		return types.Classify(err, 0, types.ErrCodeNetworkTransient, "record "+strings.TrimPrefix(path, "/"))
	}
	return nil
}
