package clients

import (
	"context"
	"fmt"
	"sort"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/usdcflow/types"
)

// Caller is the read side of a chain connection.
type Caller interface {
	ethereum.ContractCaller
}

// ReceiptReader fetches mined transaction receipts.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// CallerSource resolves a Caller for a chain.
type CallerSource interface {
	Caller(chain types.ChainID) (Caller, error)
}

// StaticCallers is a fixed CallerSource, mostly for tests.
type StaticCallers map[types.ChainID]Caller

func (s StaticCallers) Caller(chain types.ChainID) (Caller, error) {
	c, ok := s[chain]
	if !ok {
		return nil, types.NewError(types.ErrCodeUnsupportedChain, chain, "no RPC endpoint for chain %d", chain)
	}
	return c, nil
}

// Pool holds one RPC connection per chain.
type Pool struct {
	mu      sync.RWMutex
	clients map[types.ChainID]*ethclient.Client
}

// DialPool connects to every endpoint and checks that each reports the
// chain id it is configured for.
func DialPool(ctx context.Context, endpoints map[types.ChainID]string) (*Pool, error) {
	p := &Pool{clients: make(map[types.ChainID]*ethclient.Client, len(endpoints))}

	for chain, url := range endpoints {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			p.Close()
			return nil, types.Classify(fmt.Errorf("failed to connect to RPC %s: %w", url, err),
				chain, types.ErrCodeNetworkTransient, "dial")
		}

		remote, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			p.Close()
			return nil, types.Classify(err, chain, types.ErrCodeNetworkTransient, "eth_chainId")
		}
		if remote.Uint64() != uint64(chain) {
			client.Close()
			p.Close()
			return nil, types.NewError(types.ErrCodeChainMismatch, chain,
				"RPC %s serves chain %s, configured as %d", url, remote, chain)
		}

		p.clients[chain] = client
	}

	return p, nil
}

// Client returns the raw connection for chain.
func (p *Pool) Client(chain types.ChainID) (*ethclient.Client, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.clients[chain]
	if !ok {
		return nil, types.NewError(types.ErrCodeUnsupportedChain, chain, "no RPC endpoint for chain %d", chain)
	}
	return c, nil
}

func (p *Pool) Caller(chain types.ChainID) (Caller, error) {
	c, err := p.Client(chain)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (p *Pool) Receipts(chain types.ChainID) (ReceiptReader, error) {
	c, err := p.Client(chain)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Chains lists the connected chains in ascending order.
func (p *Pool) Chains() []types.ChainID {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]types.ChainID, 0, len(p.clients))
	for id := range p.clients {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, c := range p.clients {
		c.Close()
		delete(p.clients, id)
	}
}
