package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/chainraise/chainraise/internal/types"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

const (
	gasBoostPercent = 30
	sendMaxRetries  = 3
)

// WalletHandle is a wallet-backed connection bound to one signing account and
// one chain. It is immutable after construction; account or chain switches
// create a replacement handle.
type WalletHandle struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int

	nonceMu   sync.Mutex
	nonceLast uint64
	nonceInit bool

	logger zerolog.Logger
}

// NewWalletHandle binds a signing key to a backend connected to chainID.
func NewWalletHandle(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, logger zerolog.Logger) *WalletHandle {
	from := crypto.PubkeyToAddress(key.PublicKey)
	return &WalletHandle{
		backend: backend,
		key:     key,
		from:    from,
		chainID: new(big.Int).Set(chainID),
		logger:  logger.With().Str("component", "wallet-handle").Str("address", from.Hex()).Logger(),
	}
}

// From returns the signing account address.
func (h *WalletHandle) From() common.Address {
	return h.from
}

// ChainID returns the chain this handle is bound to.
func (h *WalletHandle) ChainID() uint64 {
	return h.chainID.Uint64()
}

// Backend returns the underlying RPC connection.
func (h *WalletHandle) Backend() Backend {
	return h.backend
}

// Close closes the underlying connection.
func (h *WalletHandle) Close() {
	h.backend.Close()
}

// Send builds, signs and broadcasts a transaction. A zero gasLimit means
// estimate with a safety boost. Underpriced-replacement rejections reset the
// cached nonce and retry.
func (h *WalletHandle) Send(ctx context.Context, to common.Address, value *big.Int, callData []byte, gasLimit uint64) (common.Hash, error) {
	var lastErr error

	for i := 0; i < sendMaxRetries; i++ {
		hash, err := h.send(ctx, to, value, callData, gasLimit)
		if err == nil {
			return hash, nil
		}
		lastErr = err

		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "replacement transaction underpriced") ||
			strings.Contains(msg, "nonce too low") {
			h.clearNonce()
			continue
		}
		return common.Hash{}, err
	}

	return common.Hash{}, lastErr
}

func (h *WalletHandle) send(ctx context.Context, to common.Address, value *big.Int, callData []byte, gasLimit uint64) (common.Hash, error) {
	nonce, err := h.nonce(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to make nonce: %w", err)
	}

	gas := gasLimit
	if gas == 0 {
		gas, err = h.estimateGas(ctx, ethereum.CallMsg{
			From:  h.from,
			To:    &to,
			Value: value,
			Data:  callData,
		})
		if err != nil {
			return common.Hash{}, err
		}
	}

	gasFeeCap, gasTipCap, err := h.suggestedFeeAndTip(ctx, gasBoostPercent)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get suggested gas price: %w", err)
	}

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		Nonce:     nonce,
		ChainID:   h.chainID,
		To:        &to,
		Value:     value,
		Gas:       gas,
		GasFeeCap: gasFeeCap,
		GasTipCap: gasTipCap,
		Data:      callData,
	})

	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewLondonSigner(h.chainID), h.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := h.backend.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	txHash := signedTx.Hash()
	h.logger.Info().
		Str("tx_hash", txHash.Hex()).
		Str("to", to.Hex()).
		Uint64("nonce", nonce).
		Msg("Transaction sent")

	return txHash, nil
}

func (h *WalletHandle) estimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := h.backend.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return gas * (100 + gasBoostPercent) / 100, nil
}

func (h *WalletHandle) suggestedFeeAndTip(ctx context.Context, boostPercent int) (*big.Int, *big.Int, error) {
	gasPrice, err := h.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, err
	}

	gasTipCap, err := h.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}

	boost := big.NewInt(int64(boostPercent) + 100)
	gasTipCap = new(big.Int).Div(new(big.Int).Mul(boost, gasTipCap), big.NewInt(100))
	gasPrice = new(big.Int).Div(new(big.Int).Mul(boost, gasPrice), big.NewInt(100))
	gasFeeCap := new(big.Int).Add(gasTipCap, gasPrice)

	return gasFeeCap, gasTipCap, nil
}

func (h *WalletHandle) nonce(ctx context.Context) (uint64, error) {
	h.nonceMu.Lock()
	defer h.nonceMu.Unlock()

	if !h.nonceInit {
		nonce, err := h.backend.PendingNonceAt(ctx, h.from)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to get nonce: %v", types.ErrChainUnavailable, err)
		}
		h.nonceLast = nonce
		h.nonceInit = true
	} else {
		h.nonceLast++
	}

	return h.nonceLast, nil
}

func (h *WalletHandle) clearNonce() {
	h.nonceMu.Lock()
	defer h.nonceMu.Unlock()
	h.nonceInit = false
	h.nonceLast = 0
}
