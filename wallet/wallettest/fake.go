// Package wallettest provides in-memory wallet sessions and contract
// callers for tests.
package wallettest

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vitwit/usdcflow/clients"
	"github.com/vitwit/usdcflow/types"
)

// ErrRejected mimics an EIP-1193 user rejection.
var ErrRejected = rpcError{code: 4001, msg: "User rejected the request."}

type rpcError struct {
	code int
	msg  string
}

func (e rpcError) Error() string  { return e.msg }
func (e rpcError) ErrorCode() int { return e.code }

// Tx is a transaction the fake session accepted.
type Tx struct {
	ChainID types.ChainID
	To      common.Address
	Method  string
	Args    []interface{}
	Hash    common.Hash
}

// Session is a scripted wallet. Hooks run under the session lock and must
// not call back into it.
type Session struct {
	mu sync.Mutex

	key   *ecdsa.PrivateKey
	addr  common.Address
	chain types.ChainID

	Switches []types.ChainID
	Signed   []apitypes.TypedData
	Sent     []Tx

	// OnSign, OnSend and OnSwitch may return an error to fail the call.
	OnSign   func(data apitypes.TypedData) error
	OnSend   func(tx Tx) error
	OnSwitch func(chain types.ChainID) error
	// Reverted marks methods whose receipts come back with failed status.
	Reverted map[string]bool
	// Logs are attached to the receipt of the matching method.
	Logs map[string][]*ethtypes.Log

	receipts map[common.Hash]*ethtypes.Receipt
}

// NewSession returns a session with a fresh key attached to chain.
func NewSession(chain types.ChainID) *Session {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &Session{
		key:      key,
		addr:     crypto.PubkeyToAddress(key.PublicKey),
		chain:    chain,
		Reverted: map[string]bool{},
		Logs:     map[string][]*ethtypes.Log{},
		receipts: map[common.Hash]*ethtypes.Receipt{},
	}
}

func (s *Session) Address() common.Address { return s.addr }

func (s *Session) Key() *ecdsa.PrivateKey { return s.key }

func (s *Session) ChainID() types.ChainID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain
}

func (s *Session) SwitchChain(_ context.Context, chain types.ChainID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.OnSwitch != nil {
		if err := s.OnSwitch(chain); err != nil {
			return err
		}
	}
	s.Switches = append(s.Switches, chain)
	s.chain = chain
	return nil
}

func (s *Session) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.OnSign != nil {
		if err := s.OnSign(data); err != nil {
			return nil, err
		}
	}

	digest, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest, s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	s.Signed = append(s.Signed, data)
	return sig, nil
}

func (s *Session) SendTransaction(_ context.Context, to common.Address, data []byte) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	method, args, err := clients.DecodeCall(data)
	if err != nil {
		return common.Hash{}, err
	}

	var seed [16]byte
	binary.BigEndian.PutUint64(seed[:8], uint64(s.chain))
	binary.BigEndian.PutUint64(seed[8:], uint64(len(s.Sent)))
	tx := Tx{ChainID: s.chain, To: to, Method: method, Args: args, Hash: crypto.Keccak256Hash(seed[:], data)}

	if s.OnSend != nil {
		if err := s.OnSend(tx); err != nil {
			return common.Hash{}, err
		}
	}

	status := ethtypes.ReceiptStatusSuccessful
	if s.Reverted[method] {
		status = ethtypes.ReceiptStatusFailed
	}
	s.receipts[tx.Hash] = &ethtypes.Receipt{
		Status:      status,
		TxHash:      tx.Hash,
		BlockNumber: big.NewInt(int64(len(s.Sent) + 1)),
		Logs:        s.Logs[method],
	}
	s.Sent = append(s.Sent, tx)
	return tx.Hash, nil
}

func (s *Session) WaitMined(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// Methods lists the method names of every sent transaction in order.
func (s *Session) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, len(s.Sent))
	for i, tx := range s.Sent {
		out[i] = tx.Method
	}
	return out
}

// Caller answers eth_call from fixed outputs keyed by method name.
type Caller struct {
	mu      sync.Mutex
	Outputs map[string][]interface{}
	Errors  map[string]error
	Calls   []string
}

func NewCaller() *Caller {
	return &Caller{Outputs: map[string][]interface{}{}, Errors: map[string]error{}}
}

// Set scripts the output of method.
func (c *Caller) Set(method string, outputs ...interface{}) *Caller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Outputs[method] = outputs
	return c
}

// Fail scripts an error for method.
func (c *Caller) Fail(method string, err error) *Caller {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors[method] = err
	return c
}

func (c *Caller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := clients.MethodBySelector(msg.Data)
	if !ok {
		return nil, errors.New("execution reverted")
	}
	c.Calls = append(c.Calls, m.Name)

	if err := c.Errors[m.Name]; err != nil {
		return nil, err
	}
	out, ok := c.Outputs[m.Name]
	if !ok {
		return nil, nil
	}
	return m.Outputs.Pack(out...)
}
