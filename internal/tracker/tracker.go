package tracker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/chainraise/chainraise/internal/config"
	"github.com/chainraise/chainraise/internal/monitoring"
	"github.com/chainraise/chainraise/internal/types"
)

// Source is the receipt surface the tracker resolves transactions against.
// WaitForReceipt blocks until mined or its context expires; TransactionReceipt
// is a single point-in-time check used by the polling path.
type Source interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// resolution is what one of the two racing paths reports.
type resolution struct {
	receipt  *ethtypes.Receipt
	path     string
	timedOut bool
}

// Tracker resolves submitted transactions to a terminal outcome by racing a
// blocking receipt wait against bounded polling. Whichever path resolves
// first wins and cancels the other. A confirmed outcome triggers exactly one
// reload of dependent read state through the onConfirmed callback.
//
// Polling exhaustion is always indeterminate: the transaction may still land,
// so the caller is told to verify manually, never that the write failed.
type Tracker struct {
	cfg config.TrackerConfig

	mu  sync.RWMutex
	txs map[string]*types.PendingTx

	logger zerolog.Logger
}

// NewTracker creates a transaction confirmation tracker.
func NewTracker(cfg config.TrackerConfig, logger zerolog.Logger) *Tracker {
	return &Tracker{
		cfg:    cfg,
		txs:    make(map[string]*types.PendingTx),
		logger: logger.With().Str("component", "tracker").Logger(),
	}
}

// Register records a freshly submitted transaction in the pending state.
func (t *Tracker) Register(p types.PendingTx) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p.State = types.TxStatePending
	t.txs[p.TrackingID] = &p
}

// Get returns a snapshot of a tracked transaction.
func (t *Tracker) Get(trackingID string) (types.PendingTx, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.txs[trackingID]
	if !ok {
		return types.PendingTx{}, false
	}
	return *p, true
}

// List returns snapshots of all tracked transactions, newest first.
func (t *Tracker) List() []types.PendingTx {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.PendingTx, 0, len(t.txs))
	for _, p := range t.txs {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

// Track starts background confirmation of a registered transaction.
// onConfirmed fires exactly once if and only if a successful receipt is
// observed; onTerminal fires exactly once for every terminal state.
// Both callbacks may be nil.
func (t *Tracker) Track(ctx context.Context, source Source, trackingID string, onConfirmed, onTerminal func(types.PendingTx)) {
	go t.track(ctx, source, trackingID, onConfirmed, onTerminal)
}

func (t *Tracker) track(ctx context.Context, source Source, trackingID string, onConfirmed, onTerminal func(types.PendingTx)) {
	p, ok := t.Get(trackingID)
	if !ok {
		t.logger.Error().Str("tracking_id", trackingID).Msg("Track called for unknown transaction")
		return
	}

	txHash := common.HexToHash(p.TxHash)

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan resolution, 2)
	go t.waitPath(raceCtx, source, txHash, results)
	go t.pollPath(raceCtx, source, txHash, results)

	var res resolution
	select {
	case res = <-results:
	case <-ctx.Done():
		final := t.setState(trackingID, types.TxStateTimedOut, "confirmation tracking cancelled")
		t.recordOutcome(final)
		if onTerminal != nil {
			onTerminal(final)
		}
		return
	}
	cancel()

	elapsed := time.Since(p.SubmittedAt)

	switch {
	case res.timedOut:
		final := t.setState(trackingID, types.TxStateTimedOut, "no receipt observed, verify manually")
		t.logger.Warn().
			Str("tracking_id", trackingID).
			Str("tx_hash", p.TxHash).
			Dur("elapsed", elapsed).
			Msg("Confirmation attempts exhausted without a receipt")
		t.recordOutcome(final)
		if onTerminal != nil {
			onTerminal(final)
		}

	case res.receipt.Status == ethtypes.ReceiptStatusSuccessful:
		state := types.TxStateConfirmedByWait
		if res.path == "poll" {
			state = types.TxStateConfirmedByPoll
		}
		final := t.setState(trackingID, state, "")
		t.logger.Info().
			Str("tracking_id", trackingID).
			Str("tx_hash", p.TxHash).
			Str("path", res.path).
			Dur("elapsed", elapsed).
			Msg("Transaction confirmed")
		monitoring.ObserveConfirmation(res.path, elapsed.Seconds())
		t.recordOutcome(final)
		if onConfirmed != nil {
			onConfirmed(final)
		}
		if onTerminal != nil {
			onTerminal(final)
		}

	default:
		final := t.setState(trackingID, types.TxStateReverted, RevertReason(nil))
		t.logger.Warn().
			Str("tracking_id", trackingID).
			Str("tx_hash", p.TxHash).
			Msg("Transaction reverted on-chain")
		t.recordOutcome(final)
		if onTerminal != nil {
			onTerminal(final)
		}
	}
}

// MarkReverted records a synchronous submission failure with its decoded
// reason. Used when the send itself is rejected before tracking starts.
func (t *Tracker) MarkReverted(trackingID, reason string) types.PendingTx {
	final := t.setState(trackingID, types.TxStateReverted, reason)
	t.recordOutcome(final)
	return final
}

func (t *Tracker) waitPath(ctx context.Context, source Source, txHash common.Hash, results chan<- resolution) {
	waitCtx, cancel := context.WithTimeout(ctx, t.cfg.GetWaitTimeout())
	defer cancel()

	receipt, err := source.WaitForReceipt(waitCtx, txHash)
	if err != nil || receipt == nil {
		// The polling path owns the timeout verdict.
		return
	}

	select {
	case results <- resolution{receipt: receipt, path: "wait"}:
	case <-ctx.Done():
	}
}

func (t *Tracker) pollPath(ctx context.Context, source Source, txHash common.Hash, results chan<- resolution) {
	ticker := time.NewTicker(t.cfg.GetPollInterval())
	defer ticker.Stop()

	for attempt := 1; attempt <= t.cfg.PollMaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		receipt, err := source.TransactionReceipt(ctx, txHash)
		if err != nil || receipt == nil {
			t.logger.Debug().
				Str("tx_hash", txHash.Hex()).
				Int("attempt", attempt).
				Msg("Receipt not yet available")
			continue
		}

		select {
		case results <- resolution{receipt: receipt, path: "poll"}:
		case <-ctx.Done():
		}
		return
	}

	select {
	case results <- resolution{timedOut: true}:
	case <-ctx.Done():
	}
}

func (t *Tracker) setState(trackingID string, state types.TxState, reason string) types.PendingTx {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.txs[trackingID]
	if !ok {
		return types.PendingTx{TrackingID: trackingID, State: state, Reason: reason}
	}
	p.State = state
	p.Reason = reason
	return *p
}

func (t *Tracker) recordOutcome(p types.PendingTx) {
	monitoring.RecordTxOutcome(string(p.Op), string(p.State))
}
