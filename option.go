package usdcflow

import (
	"net/http"

	"github.com/vitwit/usdcflow/gateway"
	"github.com/vitwit/usdcflow/ledger"
	"github.com/vitwit/usdcflow/logger"
	"github.com/vitwit/usdcflow/metrics"
)

type Option func(*Flow)

func WithLogger(l logger.Logger) Option {
	return func(f *Flow) {
		f.logger = l
	}
}

func WithMetrics(r metrics.Recorder) Option {
	return func(f *Flow) {
		f.metrics = r
	}
}

// WithRecorder overrides the ledger recorder built from the config.
func WithRecorder(r ledger.Recorder) Option {
	return func(f *Flow) {
		f.recorder = r
	}
}

// WithAttestor replaces the Gateway HTTP client, mostly for tests.
func WithAttestor(a gateway.Attestor) Option {
	return func(f *Flow) {
		f.attestor = a
	}
}

// WithHTTPClient sets the client used for the Gateway API and the ledger.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Flow) {
		f.httpClient = c
	}
}
