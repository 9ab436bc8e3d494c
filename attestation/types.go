package attestation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/vitwit/usdcflow/burnintent"
)

// SignedBurnIntent is one element of a transfer request.
type SignedBurnIntent struct {
	BurnIntent burnintent.WireBurnIntent `json:"burnIntent"`
	Signature  string                    `json:"signature"`
}

// TransferResponse is the service reply to POST /v1/transfer.
type TransferResponse struct {
	TransferID      string          `json:"transferId"`
	Attestation     string          `json:"attestation"`
	Signature       string          `json:"signature"`
	Fees            json.RawMessage `json:"fees,omitempty"`
	ExpirationBlock string          `json:"expirationBlock,omitempty"`
}

// Attested is a decoded TransferResponse, ready for gatewayMint.
type Attested struct {
	TransferID      string
	Attestation     []byte
	Signature       []byte
	Fees            json.RawMessage
	ExpirationBlock *big.Int
}

// ContractInfo describes a Gateway contract on one domain.
type ContractInfo struct {
	Address         string   `json:"address"`
	SupportedTokens []string `json:"supportedTokens"`
}

// DomainInfo is one entry of GET /v1/info.
type DomainInfo struct {
	Chain          string        `json:"chain"`
	Network        string        `json:"network"`
	Domain         uint32        `json:"domain"`
	WalletContract *ContractInfo `json:"walletContract,omitempty"`
	MinterContract *ContractInfo `json:"minterContract,omitempty"`
}

type InfoResponse struct {
	Version int          `json:"version"`
	Domains []DomainInfo `json:"domains"`
}

// ErrorResponse carries a non-2xx reply from the service. Message is the
// service's own text, unmodified.
type ErrorResponse struct {
	StatusCode int
	Message    string
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("gateway API error [%d]: %s", e.StatusCode, e.Message)
}

// Temporary reports a server-side or throttling failure that a fresh
// attempt may get past.
func (e *ErrorResponse) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// IsTemporary reports whether err carries a temporary service reply.
func IsTemporary(err error) bool {
	var apiErr *ErrorResponse
	return errors.As(err, &apiErr) && apiErr.Temporary()
}

// parseErrorBody extracts the message from {error:{message}}, {error:"..."}
// or {message}, falling back to the raw body.
func parseErrorBody(status int, body []byte) *ErrorResponse {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	msg := ""
	if json.Unmarshal(body, &envelope) == nil {
		if len(envelope.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			var plain string
			switch {
			case json.Unmarshal(envelope.Error, &nested) == nil && nested.Message != "":
				msg = nested.Message
			case json.Unmarshal(envelope.Error, &plain) == nil:
				msg = plain
			}
		}
		if msg == "" {
			msg = envelope.Message
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = fmt.Sprintf("status %d", status)
	}
	return &ErrorResponse{StatusCode: status, Message: msg}
}
