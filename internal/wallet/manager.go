package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/chainraise/chainraise/internal/amount"
	"github.com/chainraise/chainraise/internal/chain"
	"github.com/chainraise/chainraise/internal/config"
	"github.com/chainraise/chainraise/internal/monitoring"
	"github.com/chainraise/chainraise/internal/types"
)

// DialFunc opens a wallet-backed RPC connection to one endpoint.
type DialFunc func(ctx context.Context, endpoint string) (chain.Backend, error)

func defaultDial(ctx context.Context, endpoint string) (chain.Backend, error) {
	return ethclient.DialContext(ctx, endpoint)
}

// ProviderInfo describes one registered provider for listing.
type ProviderInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
}

// Manager owns the single active wallet session, or none. It discovers
// accounts through registered providers, negotiates the required chain,
// back-fills balances asynchronously, and rebuilds an immutable session
// snapshot on every change, invoking registered observers with the new
// snapshot.
//
// A generation counter guards against stale async results: any result tagged
// with an older generation than the current session is discarded, never
// applied blindly.
type Manager struct {
	cfg     config.WalletConfig
	network *types.NetworkConfig
	client  *chain.Client
	dial    DialFunc

	mu         sync.RWMutex
	providers  map[string]Provider
	order      []string
	session    types.WalletSession
	keys       map[common.Address]*ecdsa.PrivateKey
	active     Provider
	backend    chain.Backend
	generation uint64
	stopWatch  func()
	pollCancel context.CancelFunc

	obsMu     sync.Mutex
	observers map[int]func(types.WalletSession)
	nextObs   int

	logger zerolog.Logger
}

// NewManager creates a wallet session manager dialing real RPC endpoints.
func NewManager(cfg config.WalletConfig, network *types.NetworkConfig, client *chain.Client, logger zerolog.Logger) *Manager {
	return NewManagerWithDial(cfg, network, client, defaultDial, logger)
}

// NewManagerWithDial creates a manager with a custom dial function.
func NewManagerWithDial(cfg config.WalletConfig, network *types.NetworkConfig, client *chain.Client, dial DialFunc, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		network:   network,
		client:    client,
		dial:      dial,
		providers: make(map[string]Provider),
		observers: make(map[int]func(types.WalletSession)),
		logger:    logger.With().Str("component", "wallet").Logger(),
	}
}

// RegisterProvider makes a provider connectable.
func (m *Manager) RegisterProvider(p Provider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.providers[p.ID()]; !exists {
		m.order = append(m.order, p.ID())
	}
	m.providers[p.ID()] = p
}

// Providers lists registered providers in registration order.
func (m *Manager) Providers() []ProviderInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ProviderInfo, 0, len(m.order))
	for _, id := range m.order {
		p := m.providers[id]
		out = append(out, ProviderInfo{
			ID:        p.ID(),
			Name:      p.Name(),
			Available: p.Available(),
		})
	}
	return out
}

// Subscribe registers an observer invoked with a fresh session snapshot on
// every change. The returned id deregisters it via Unsubscribe.
func (m *Manager) Subscribe(fn func(types.WalletSession)) int {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	return id
}

// Unsubscribe removes an observer.
func (m *Manager) Unsubscribe(id int) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	delete(m.observers, id)
}

// Session returns a snapshot of the current session.
func (m *Manager) Session() types.WalletSession {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session.Clone()
}

// Connect opens the chosen provider, enumerates all of its accounts, selects
// the first one and reports the session connected before any balance has
// resolved; balances are back-filled asynchronously and observers see each
// one as it arrives. A chain mismatch triggers a non-blocking switch request.
func (m *Manager) Connect(ctx context.Context, providerID string) (types.WalletSession, error) {
	m.mu.RLock()
	p, ok := m.providers[providerID]
	m.mu.RUnlock()
	if !ok || !p.Available() {
		return types.WalletSession{}, fmt.Errorf("%w: %s", types.ErrProviderUnavailable, providerID)
	}

	creds, err := p.Open(ctx)
	if err != nil {
		return types.WalletSession{}, err
	}
	if len(creds.Accounts) == 0 {
		return types.WalletSession{}, fmt.Errorf("%w: provider %s exposed no accounts", types.ErrProviderUnavailable, providerID)
	}

	endpoint := m.cfg.RPCEndpoint
	if endpoint == "" && len(m.network.RPCEndpoints) > 0 {
		endpoint = m.network.RPCEndpoints[0]
	}
	backend, err := m.dial(ctx, endpoint)
	if err != nil {
		return types.WalletSession{}, fmt.Errorf("%w: failed to dial wallet endpoint: %v", types.ErrChainUnavailable, err)
	}
	rawChainID, err := backend.ChainID(ctx)
	if err != nil {
		backend.Close()
		return types.WalletSession{}, fmt.Errorf("%w: failed to read chain id: %v", types.ErrChainUnavailable, err)
	}
	chainID, err := chain.AsUint64(rawChainID)
	if err != nil {
		backend.Close()
		return types.WalletSession{}, err
	}

	m.mu.Lock()
	m.teardownLocked()
	m.generation++
	gen := m.generation

	selected := creds.Accounts[0]
	m.session = types.WalletSession{
		ProviderID:      providerID,
		Accounts:        creds.Accounts,
		SelectedAccount: &selected,
		ChainID:         chainID,
		Connected:       true,
	}
	m.keys = creds.Keys
	m.active = p
	m.backend = backend

	key := creds.Keys[common.HexToAddress(selected.Address)]
	handle := chain.NewWalletHandle(backend, key, new(big.Int).SetUint64(chainID), m.logger)
	m.client.AttachWallet(handle)

	if watcher, ok := p.(AccountWatcher); ok {
		stop, err := watcher.WatchAccounts(func() { m.handleAccountsChanged(p) })
		if err != nil {
			m.logger.Warn().Err(err).Msg("Failed to watch provider accounts")
		} else {
			m.stopWatch = stop
		}
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	m.pollCancel = cancel
	go m.watchChain(pollCtx)

	snapshot := m.session.Clone()
	addresses := make([]string, len(creds.Accounts))
	for i, a := range creds.Accounts {
		addresses[i] = a.Address
	}
	m.mu.Unlock()

	monitoring.SetWalletSessionActive(true)
	m.logger.Info().
		Str("provider", providerID).
		Int("accounts", len(addresses)).
		Uint64("chain_id", chainID).
		Msg("Wallet connected")

	m.notify(snapshot)

	go m.backfillBalances(gen, addresses)

	if chainID != m.network.ChainID {
		m.RequireChain()
	}

	return snapshot, nil
}

// SelectAccount switches the selected account to a member of the session's
// account list, replacing the wallet handle. A balance never fetched before
// is fetched lazily on first selection.
func (m *Manager) SelectAccount(ctx context.Context, address string) (types.WalletSession, error) {
	m.mu.Lock()

	if !m.session.Connected {
		m.mu.Unlock()
		return types.WalletSession{}, types.ErrNoWalletConnected
	}

	var picked *types.Account
	for i := range m.session.Accounts {
		if common.HexToAddress(m.session.Accounts[i].Address) == common.HexToAddress(address) {
			picked = &m.session.Accounts[i]
			break
		}
	}
	if picked == nil {
		m.mu.Unlock()
		return types.WalletSession{}, fmt.Errorf("%w: account %s is not part of the session", types.ErrInvalidInput, address)
	}

	key, ok := m.keys[common.HexToAddress(picked.Address)]
	if !ok {
		m.mu.Unlock()
		return types.WalletSession{}, fmt.Errorf("%w: no signing key for %s", types.ErrInvalidInput, address)
	}

	sel := *picked
	m.session.SelectedAccount = &sel
	gen := m.generation

	handle := chain.NewWalletHandle(m.backend, key, new(big.Int).SetUint64(m.session.ChainID), m.logger)
	m.client.AttachWallet(handle)

	needsBalance := !sel.HasBalance()
	snapshot := m.session.Clone()
	m.mu.Unlock()

	m.logger.Info().Str("address", sel.Address).Msg("Account selected")
	m.notify(snapshot)

	if needsBalance {
		go m.backfillBalances(gen, []string{sel.Address})
	}

	return snapshot, nil
}

// RequireChain requests a switch to the required chain without blocking the
// caller. The outcome is observed through the session change notification.
func (m *Manager) RequireChain() {
	go func() {
		if err := m.EnsureChain(context.Background()); err != nil {
			m.logger.Warn().Err(err).Msg("Chain switch request failed")
		}
	}()
}

// EnsureChain synchronously brings the session onto the required chain. It is
// a no-op when already there; callers dispatching chain-sensitive writes use
// it as a barrier so nothing is submitted on the wrong chain.
func (m *Manager) EnsureChain(ctx context.Context) error {
	m.mu.RLock()
	connected := m.session.Connected
	current := m.session.ChainID
	m.mu.RUnlock()

	if !connected {
		return types.ErrNoWalletConnected
	}
	if current == m.network.ChainID {
		return nil
	}
	return m.switchChain(ctx)
}

// switchChain re-establishes the wallet connection on the required chain.
// The wallet's own endpoint is asked first; when it does not serve the
// required chain the fixed network parameters are used to reach it directly.
func (m *Manager) switchChain(ctx context.Context) error {
	candidates := make([]string, 0, len(m.network.RPCEndpoints)+1)
	if m.cfg.RPCEndpoint != "" {
		candidates = append(candidates, m.cfg.RPCEndpoint)
	}
	candidates = append(candidates, m.network.RPCEndpoints...)

	var lastErr error
	for _, endpoint := range candidates {
		backend, err := m.dial(ctx, endpoint)
		if err != nil {
			lastErr = err
			continue
		}
		rawChainID, err := backend.ChainID(ctx)
		if err != nil {
			backend.Close()
			lastErr = err
			continue
		}
		chainID, err := chain.AsUint64(rawChainID)
		if err != nil || chainID != m.network.ChainID {
			backend.Close()
			lastErr = fmt.Errorf("endpoint %s serves chain %d, required %d", endpoint, chainID, m.network.ChainID)
			continue
		}

		m.adoptBackend(backend, chainID)
		m.logger.Info().
			Str("endpoint", endpoint).
			Uint64("chain_id", chainID).
			Msg("Switched to required chain")
		return nil
	}

	return fmt.Errorf("%w: could not reach chain %d: %v", types.ErrChainUnavailable, m.network.ChainID, lastErr)
}

// adoptBackend replaces the wallet connection and handle for a new chain.
// The old handle is left untouched for any in-flight call; the generation
// bump makes its late results discardable.
func (m *Manager) adoptBackend(backend chain.Backend, chainID uint64) {
	m.mu.Lock()

	if !m.session.Connected {
		m.mu.Unlock()
		backend.Close()
		return
	}

	old := m.backend
	m.backend = backend
	m.session.ChainID = chainID
	m.generation++

	var snapshot types.WalletSession
	if sel := m.session.SelectedAccount; sel != nil {
		if key, ok := m.keys[common.HexToAddress(sel.Address)]; ok {
			handle := chain.NewWalletHandle(backend, key, new(big.Int).SetUint64(chainID), m.logger)
			m.client.AttachWallet(handle)
		}
	}
	snapshot = m.session.Clone()
	m.mu.Unlock()

	if old != nil && old != backend {
		old.Close()
	}

	m.notify(snapshot)
}

// Disconnect tears down listeners and clears the session back to empty. The
// provider's own credentials are untouched.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.generation++
	m.session = types.WalletSession{}
	m.keys = nil
	m.active = nil
	snapshot := m.session.Clone()
	m.mu.Unlock()

	monitoring.SetWalletSessionActive(false)
	m.logger.Info().Msg("Wallet disconnected")
	m.notify(snapshot)
}

// teardownLocked stops watchers and detaches the wallet handle. Callers hold
// the session mutex.
func (m *Manager) teardownLocked() {
	if m.stopWatch != nil {
		m.stopWatch()
		m.stopWatch = nil
	}
	if m.pollCancel != nil {
		m.pollCancel()
		m.pollCancel = nil
	}
	m.client.DetachWallet()
	if m.backend != nil {
		m.backend.Close()
		m.backend = nil
	}
}

// backfillBalances fetches each account's balance and applies it to the
// session it was requested for. Results for a superseded session generation
// are discarded.
func (m *Manager) backfillBalances(gen uint64, addresses []string) {
	ctx := context.Background()
	for _, address := range addresses {
		wei, err := m.client.GetBalance(ctx, address)
		if err != nil {
			monitoring.RecordBalanceFetch("error")
			m.logger.Warn().Err(err).Str("address", address).Msg("Failed to fetch balance")
			continue
		}
		monitoring.RecordBalanceFetch("ok")
		m.applyBalance(gen, address, amount.FormatBalance(amount.FromWei(wei)))
	}
}

func (m *Manager) applyBalance(gen uint64, address, balance string) {
	m.mu.Lock()

	if gen != m.generation || !m.session.Connected {
		m.mu.Unlock()
		return
	}

	updated := false
	for i := range m.session.Accounts {
		if common.HexToAddress(m.session.Accounts[i].Address) == common.HexToAddress(address) {
			m.session.Accounts[i].Balance = balance
			updated = true
			break
		}
	}
	if sel := m.session.SelectedAccount; sel != nil && common.HexToAddress(sel.Address) == common.HexToAddress(address) {
		sel.Balance = balance
	}

	if !updated {
		m.mu.Unlock()
		return
	}

	snapshot := m.session.Clone()
	m.mu.Unlock()

	m.notify(snapshot)
}

// handleAccountsChanged rebuilds the session after the provider's account
// list changed. Balances already fetched are preserved when the address is
// unchanged, to avoid redundant refetching. Events raised for a provider that
// is no longer active are discarded.
func (m *Manager) handleAccountsChanged(p Provider) {
	m.mu.RLock()
	stale := m.active != p || !m.session.Connected
	m.mu.RUnlock()
	if stale {
		return
	}

	creds, err := p.Open(context.Background())
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to re-enumerate accounts after change")
		return
	}

	m.mu.Lock()
	if m.active != p || !m.session.Connected {
		m.mu.Unlock()
		return
	}
	gen := m.generation

	previous := make(map[common.Address]string, len(m.session.Accounts))
	for _, a := range m.session.Accounts {
		if a.HasBalance() {
			previous[common.HexToAddress(a.Address)] = a.Balance
		}
	}

	for i := range creds.Accounts {
		if bal, ok := previous[common.HexToAddress(creds.Accounts[i].Address)]; ok {
			creds.Accounts[i].Balance = bal
		}
	}

	m.session.Accounts = creds.Accounts
	m.keys = creds.Keys

	// Keep the selection when the address survived the change, else fall
	// back to the first account.
	var sel *types.Account
	if prev := m.session.SelectedAccount; prev != nil {
		for i := range creds.Accounts {
			if common.HexToAddress(creds.Accounts[i].Address) == common.HexToAddress(prev.Address) {
				sel = &creds.Accounts[i]
				break
			}
		}
	}
	if sel == nil && len(creds.Accounts) > 0 {
		sel = &creds.Accounts[0]
	}

	var missing []string
	if sel != nil {
		picked := *sel
		m.session.SelectedAccount = &picked
		if key, ok := m.keys[common.HexToAddress(picked.Address)]; ok {
			handle := chain.NewWalletHandle(m.backend, key, new(big.Int).SetUint64(m.session.ChainID), m.logger)
			m.client.AttachWallet(handle)
		}
		if !picked.HasBalance() {
			missing = append(missing, picked.Address)
		}
	} else {
		m.session.SelectedAccount = nil
		m.client.DetachWallet()
	}

	snapshot := m.session.Clone()
	m.mu.Unlock()

	m.logger.Info().
		Int("accounts", len(snapshot.Accounts)).
		Msg("Session rebuilt after account change")
	m.notify(snapshot)

	if len(missing) > 0 {
		go m.backfillBalances(gen, missing)
	}
}

// watchChain polls the wallet connection for chain changes for the life of
// the session. It is stopped by the cancel installed at connect time.
func (m *Manager) watchChain(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.GetChainPollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.RLock()
		connected := m.session.Connected
		backend := m.backend
		current := m.session.ChainID
		m.mu.RUnlock()
		if !connected || backend == nil {
			return
		}

		rawChainID, err := backend.ChainID(ctx)
		if err != nil {
			monitoring.UpdateChainHealth(false)
			continue
		}
		monitoring.UpdateChainHealth(true)

		chainID, err := chain.AsUint64(rawChainID)
		if err != nil || chainID == current {
			continue
		}

		m.logger.Info().
			Uint64("old_chain_id", current).
			Uint64("new_chain_id", chainID).
			Msg("Chain change observed")
		m.adoptBackend(backend, chainID)

		if chainID != m.network.ChainID {
			m.RequireChain()
		}
	}
}

// notify invokes every registered observer with the snapshot.
func (m *Manager) notify(snapshot types.WalletSession) {
	m.obsMu.Lock()
	fns := make([]func(types.WalletSession), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.obsMu.Unlock()

	for _, fn := range fns {
		fn(snapshot.Clone())
	}
}
