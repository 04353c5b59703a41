package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/chainraise/chainraise/internal/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

// Client abstracts over the read-only RPC connection and the optional
// wallet-backed connection. Campaign data stays readable with no wallet
// connected; once a wallet is attached, reads prefer its handle so reads and
// writes observe the same node.
//
// Handles are immutable for the duration of a session: attaching, detaching,
// or switching chain replaces the wallet handle rather than mutating it, so
// an in-flight call on a stale handle cannot race a fresh one.
type Client struct {
	network *types.NetworkConfig

	mu       sync.RWMutex
	readonly []Backend
	current  int
	wallet   *WalletHandle

	logger zerolog.Logger
}

// NewClient dials every configured read-only RPC endpoint and keeps the ones
// that answer. At least one endpoint must be reachable.
func NewClient(network *types.NetworkConfig, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		network:  network,
		readonly: make([]Backend, 0, len(network.RPCEndpoints)),
		logger:   logger.With().Str("component", "chain").Str("network", network.Name).Logger(),
	}

	for i, endpoint := range network.RPCEndpoints {
		rpcClient, err := ethclient.Dial(endpoint)
		if err != nil {
			c.logger.Warn().
				Err(err).
				Str("endpoint", endpoint).
				Int("index", i).
				Msg("Failed to connect to RPC endpoint")
			continue
		}
		c.readonly = append(c.readonly, rpcClient)
	}

	if len(c.readonly) == 0 {
		return nil, fmt.Errorf("%w: no reachable RPC endpoint for %s", types.ErrChainUnavailable, network.Name)
	}

	c.logger.Info().
		Int("connected_rpcs", len(c.readonly)).
		Uint64("chain_id", network.ChainID).
		Msg("Chain client initialized")

	return c, nil
}

// NewClientWithBackends builds a client over pre-constructed backends.
func NewClientWithBackends(network *types.NetworkConfig, backends []Backend, logger zerolog.Logger) (*Client, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: no backends provided", types.ErrChainUnavailable)
	}
	return &Client{
		network:  network,
		readonly: backends,
		logger:   logger.With().Str("component", "chain").Str("network", network.Name).Logger(),
	}, nil
}

// Network returns the fixed parameters of the required network.
func (c *Client) Network() *types.NetworkConfig {
	return c.network
}

// AttachWallet installs the wallet-backed handle for a new session, replacing
// any previous one.
func (c *Client) AttachWallet(h *WalletHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wallet = h

	c.logger.Info().
		Str("address", h.From().Hex()).
		Uint64("chain_id", h.ChainID()).
		Msg("Wallet handle attached")
}

// DetachWallet drops the wallet-backed handle. Outstanding calls on the old
// handle finish against it; their results are discarded by session guards
// upstream.
func (c *Client) DetachWallet() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.wallet != nil {
		c.logger.Info().Msg("Wallet handle detached")
	}
	c.wallet = nil
}

// Wallet returns the current wallet handle, or nil when no wallet is
// connected.
func (c *Client) Wallet() *WalletHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wallet
}

// WalletAttached reports whether a wallet-backed handle is present.
func (c *Client) WalletAttached() bool {
	return c.Wallet() != nil
}

// WalletChainID returns the chain id the wallet handle is bound to.
func (c *Client) WalletChainID() (uint64, bool) {
	w := c.Wallet()
	if w == nil {
		return 0, false
	}
	return w.ChainID(), true
}

// WalletAddress returns the signing account of the wallet handle.
func (c *Client) WalletAddress() (common.Address, bool) {
	w := c.Wallet()
	if w == nil {
		return common.Address{}, false
	}
	return w.From(), true
}

func (c *Client) getReadonly() Backend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.readonly) == 0 {
		return nil
	}
	return c.readonly[c.current%len(c.readonly)]
}

func (c *Client) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = (c.current + 1) % len(c.readonly)
	c.logger.Debug().
		Int("new_index", c.current).
		Msg("Rotated to next RPC endpoint")
}

// executeWithFailover runs fn against the preferred backend, rotating through
// the read-only endpoints on failure. The wallet handle, when attached, is
// tried first and only once; endpoint rotation applies to the read-only set.
func (c *Client) executeWithFailover(ctx context.Context, fn func(Backend) error) error {
	if w := c.Wallet(); w != nil {
		if err := fn(w.Backend()); err == nil {
			return nil
		} else {
			c.logger.Warn().
				Err(err).
				Msg("Wallet-backed call failed, falling back to read-only endpoints")
		}
	}

	maxRetries := len(c.readonly)
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		backend := c.getReadonly()
		if backend == nil {
			return fmt.Errorf("%w: no available backends", types.ErrChainUnavailable)
		}

		err := fn(backend)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		c.logger.Warn().
			Err(err).
			Int("attempt", i+1).
			Msg("RPC call failed, trying next endpoint")

		c.rotate()
	}

	return fmt.Errorf("%w: all RPC endpoints failed: %v", types.ErrChainUnavailable, lastErr)
}

// GetBalance returns the native balance of an address in the smallest unit.
func (c *Client) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	addr := common.HexToAddress(address)
	var balance *big.Int

	err := c.executeWithFailover(ctx, func(b Backend) error {
		out, err := b.BalanceAt(ctx, addr, nil)
		if err != nil {
			return err
		}
		balance = out
		return nil
	})

	return balance, err
}

// GetNetwork returns the chain id the active handle is connected to.
func (c *Client) GetNetwork(ctx context.Context) (uint64, error) {
	var chainID uint64

	err := c.executeWithFailover(ctx, func(b Backend) error {
		id, err := b.ChainID(ctx)
		if err != nil {
			return err
		}
		out, err := AsUint64(id)
		if err != nil {
			return err
		}
		chainID = out
		return nil
	})

	return chainID, err
}

// GetCode returns the bytecode at an address. Empty bytecode at the contract
// address means the contract is not deployed there.
func (c *Client) GetCode(ctx context.Context, address string) ([]byte, error) {
	addr := common.HexToAddress(address)
	var code []byte

	err := c.executeWithFailover(ctx, func(b Backend) error {
		out, err := b.CodeAt(ctx, addr, nil)
		if err != nil {
			return err
		}
		code = out
		return nil
	})

	return code, err
}

// CallContract executes a read-only contract call against the preferred
// handle.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	msg := ethereum.CallMsg{To: &to, Data: data}
	var out []byte

	err := c.executeWithFailover(ctx, func(b Backend) error {
		res, err := b.CallContract(ctx, msg, nil)
		if err != nil {
			return err
		}
		out = res
		return nil
	})

	return out, err
}

// Send submits a state-changing transaction through the wallet-backed handle.
func (c *Client) Send(ctx context.Context, to common.Address, value *big.Int, callData []byte, gasLimit uint64) (common.Hash, error) {
	w := c.Wallet()
	if w == nil {
		return common.Hash{}, types.ErrNoWalletConnected
	}
	return w.Send(ctx, to, value, callData, gasLimit)
}

// TransactionReceipt fetches a receipt using the preferred handle.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	var receipt *ethtypes.Receipt

	err := c.executeWithFailover(ctx, func(b Backend) error {
		out, err := b.TransactionReceipt(ctx, txHash)
		if err != nil {
			return err
		}
		receipt = out
		return nil
	})

	return receipt, err
}

// WaitForReceipt blocks until the transaction is mined or ctx expires,
// re-checking once per second. Not-found responses keep the wait alive;
// only ctx expiry ends it without a receipt.
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// IsHealthy reports whether the chain answers basic queries.
func (c *Client) IsHealthy(ctx context.Context) bool {
	_, err := c.GetNetwork(ctx)
	return err == nil
}

// Close closes all read-only connections. The wallet handle's backend is
// owned by the session manager and closed there.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, backend := range c.readonly {
		backend.Close()
		c.logger.Debug().Int("index", i).Msg("Closed RPC client")
	}
	c.readonly = nil
}
