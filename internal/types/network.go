package types

import "time"

// Environment represents the deployment environment
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentTestnet     Environment = "testnet"
	EnvironmentMainnet     Environment = "mainnet"
)

// NativeCurrency describes the native currency of a network, used when the
// wallet has to be taught about the required chain.
type NativeCurrency struct {
	Name     string `mapstructure:"name" json:"name"`
	Symbol   string `mapstructure:"symbol" json:"symbol"`
	Decimals int    `mapstructure:"decimals" json:"decimals"`
}

// NetworkConfig holds the fixed parameters of one EVM network. The required
// network and the contract address are configuration constants, never user
// input.
type NetworkConfig struct {
	Name           string         `mapstructure:"name" json:"name"`
	ChainID        uint64         `mapstructure:"chain_id" json:"chain_id"`
	Environment    Environment    `mapstructure:"environment" json:"environment"`
	NativeCurrency NativeCurrency `mapstructure:"native_currency" json:"native_currency"`
	RPCEndpoints   []string       `mapstructure:"rpc_endpoints" json:"rpc_endpoints"`
	ExplorerURL    string         `mapstructure:"explorer_url" json:"explorer_url"`
	BlockTime      string         `mapstructure:"block_time" json:"block_time"`
}

// GetBlockTimeDuration returns the configured block time, defaulting to 12s.
func (n *NetworkConfig) GetBlockTimeDuration() time.Duration {
	d, err := time.ParseDuration(n.BlockTime)
	if err != nil || d <= 0 {
		return 12 * time.Second
	}
	return d
}

// TxState is the terminal (or in-flight) state of a tracked transaction.
type TxState string

const (
	TxStatePending         TxState = "PENDING"
	TxStateConfirmedByWait TxState = "CONFIRMED_BY_WAIT"
	TxStateConfirmedByPoll TxState = "CONFIRMED_BY_POLL"
	TxStateTimedOut        TxState = "TIMED_OUT"
	TxStateReverted        TxState = "REVERTED"
)

// Confirmed reports whether the state is one of the two confirmed outcomes.
func (s TxState) Confirmed() bool {
	return s == TxStateConfirmedByWait || s == TxStateConfirmedByPoll
}

// Terminal reports whether the tracker is done with the transaction.
func (s TxState) Terminal() bool {
	return s != TxStatePending
}

// WriteOp names a state-changing contract operation.
type WriteOp string

const (
	OpCreateCampaign WriteOp = "create_campaign"
	OpDonate         WriteOp = "donate"
	OpCloseCampaign  WriteOp = "close_campaign"
	OpWithdrawFunds  WriteOp = "withdraw_funds"
)

// PendingTx is the handle returned for a submitted write. The outcome is
// resolved asynchronously by the confirmation tracker.
type PendingTx struct {
	TrackingID  string    `json:"tracking_id"`
	TxHash      string    `json:"tx_hash"`
	Op          WriteOp   `json:"operation"`
	CampaignID  *uint64   `json:"campaign_id,omitempty"`
	State       TxState   `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}
