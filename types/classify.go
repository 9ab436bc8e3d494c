package types

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// EIP-1193 code returned by browser and WalletConnect wallets when the user
// declines a prompt.
const userRejectedCode = 4001

var userRejectedPhrases = []string{
	"user rejected",
	"user denied",
	"rejected by user",
	"request rejected",
}

var transientPhrases = []string{
	"connection refused",
	"connection reset",
	"i/o timeout",
	"too many requests",
	"503 service unavailable",
	"502 bad gateway",
	"header not found",
}

// Classify maps a raw chain, RPC or wallet error into the taxonomy.
// Errors that are already coded pass through untouched. fallback is used
// when nothing more specific matches.
func Classify(err error, chain ChainID, fallback ErrorCode, op string) error {
	if err == nil {
		return nil
	}

	var coded *Error
	if errors.As(err, &coded) {
		return err
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode {
		return WrapError(ErrCodeUserRejectedSignature, chain, err, "%s: request declined in wallet", op)
	}

	msg := strings.ToLower(err.Error())
	for _, p := range userRejectedPhrases {
		if strings.Contains(msg, p) {
			return WrapError(ErrCodeUserRejectedSignature, chain, err, "%s: request declined in wallet", op)
		}
	}

	if reason, ok := RevertReason(err); ok {
		return WrapError(ErrCodeOnChainRevert, chain, err, "%s reverted: %s", op, reason)
	}
	if strings.Contains(msg, "execution reverted") {
		return WrapError(ErrCodeOnChainRevert, chain, err, "%s reverted", op)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return WrapError(ErrCodeNetworkTransient, chain, err, "%s timed out", op)
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return WrapError(ErrCodeNetworkTransient, chain, err, "%s: network failure", op)
	}
	for _, p := range transientPhrases {
		if strings.Contains(msg, p) {
			return WrapError(ErrCodeNetworkTransient, chain, err, "%s: network failure", op)
		}
	}

	return WrapError(fallback, chain, err, "%s failed", op)
}

// RevertReason extracts a decoded Error(string) reason from an RPC error
// that carries revert data.
func RevertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}

	var raw []byte
	switch d := dataErr.ErrorData().(type) {
	case string:
		b, decErr := hexutil.Decode(d)
		if decErr != nil {
			return "", false
		}
		raw = b
	case []byte:
		raw = d
	default:
		return "", false
	}

	reason, unpackErr := abi.UnpackRevert(raw)
	if unpackErr != nil {
		return "", false
	}
	return reason, true
}
