package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vitwit/usdcflow/logger"
	"github.com/vitwit/usdcflow/types"
	"github.com/vitwit/usdcflow/utils"
)

// Backend is the subset of ethclient.Client a KeySession needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

const defaultPollInterval = 2 * time.Second

// KeySession is a Session backed by a local private key, for operators and
// the CLI. Browser wallets implement Session on the caller side.
type KeySession struct {
	mu           sync.Mutex
	key          *ecdsa.PrivateKey
	address      common.Address
	backends     map[types.ChainID]Backend
	chain        types.ChainID
	pollInterval time.Duration
	logger       logger.Logger
}

type KeyOption func(*KeySession)

func WithPollInterval(d time.Duration) KeyOption {
	return func(s *KeySession) { s.pollInterval = d }
}

func WithLogger(l logger.Logger) KeyOption {
	return func(s *KeySession) { s.logger = l }
}

func NewKeySession(key *ecdsa.PrivateKey, backends map[types.ChainID]Backend, chain types.ChainID, opts ...KeyOption) (*KeySession, error) {
	if key == nil {
		return nil, errors.New("private key is required")
	}
	if _, ok := backends[chain]; !ok {
		return nil, types.NewError(types.ErrCodeUnsupportedChain, chain, "no RPC endpoint for chain %d", chain)
	}

	s := &KeySession{
		key:          key,
		address:      utils.AddressFromPrivateKey(key),
		backends:     backends,
		chain:        chain,
		pollInterval: defaultPollInterval,
		logger:       logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *KeySession) Address() common.Address { return s.address }

func (s *KeySession) ChainID() types.ChainID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain
}

func (s *KeySession) backend() (Backend, types.ChainID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backends[s.chain], s.chain
}

// SwitchChain checks the target endpoint really serves chain before
// attaching to it.
func (s *KeySession) SwitchChain(ctx context.Context, chain types.ChainID) error {
	b, ok := s.backends[chain]
	if !ok {
		return types.NewError(types.ErrCodeUnsupportedChain, chain, "no RPC endpoint for chain %d", chain)
	}

	remote, err := b.ChainID(ctx)
	if err != nil {
		return types.Classify(err, chain, types.ErrCodeNetworkTransient, "eth_chainId")
	}
	if remote.Uint64() != uint64(chain) {
		return types.NewError(types.ErrCodeChainMismatch, chain, "endpoint serves chain %s", remote)
	}

	s.mu.Lock()
	s.chain = chain
	s.mu.Unlock()

	s.logger.Debug("wallet switched chain", map[string]any{"chain": chain.String()})
	return nil
}

func (s *KeySession) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeInvalidRequest, s.ChainID(), err, "hash typed data")
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (s *KeySession) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	b, chain := s.backend()

	nonce, err := b.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := b.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}
	gas, err := b.EstimateGas(ctx, ethereum.CallMsg{From: s.address, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}
	gas = gas * 120 / 100 // 20% buffer

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    big.NewInt(0),
		Data:     data,
	})

	chainID := new(big.Int).SetUint64(uint64(chain))
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := b.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}

	s.logger.Info("transaction sent", map[string]any{
		"chain": chain.String(),
		"hash":  signed.Hash().Hex(),
		"to":    to.Hex(),
		"nonce": nonce,
	})
	return signed.Hash(), nil
}

// WaitMined polls for the receipt until it exists or ctx ends.
func (s *KeySession) WaitMined(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	b, _ := s.backend()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := b.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			s.logger.Debug("receipt lookup failed", map[string]any{"hash": hash.Hex(), "error": err.Error()})
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
