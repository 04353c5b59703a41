package contract

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/chainraise/chainraise/internal/amount"
	"github.com/chainraise/chainraise/internal/chain"
	"github.com/chainraise/chainraise/internal/config"
	"github.com/chainraise/chainraise/internal/monitoring"
	"github.com/chainraise/chainraise/internal/types"
)

// ChainClient is the connection surface the gateway dispatches through.
type ChainClient interface {
	Network() *types.NetworkConfig
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	GetCode(ctx context.Context, address string) ([]byte, error)
	Send(ctx context.Context, to common.Address, value *big.Int, callData []byte, gasLimit uint64) (common.Hash, error)
	WalletAttached() bool
	WalletChainID() (uint64, bool)
	WalletAddress() (common.Address, bool)
}

// Gateway offers typed wrappers over the deployed donation contract. Each
// write wrapper validates local preconditions before dispatching; a validation
// failure never reaches the chain. Client-side ownership and state checks are
// advisory UX only; the contract remains the authority and may still reject.
type Gateway struct {
	client    ChainClient
	address   common.Address
	gasLimits config.GasLimitConfig
	logger    zerolog.Logger
}

// NewGateway binds the gateway to the deployed contract address.
func NewGateway(client ChainClient, cfg config.ContractConfig, logger zerolog.Logger) *Gateway {
	return &Gateway{
		client:    client,
		address:   common.HexToAddress(cfg.Address),
		gasLimits: cfg.GasLimits,
		logger:    logger.With().Str("component", "contract").Str("address", cfg.Address).Logger(),
	}
}

// Address returns the bound contract address.
func (g *Gateway) Address() common.Address {
	return g.address
}

// EnsureContract verifies bytecode is deployed at the bound address.
func (g *Gateway) EnsureContract(ctx context.Context) error {
	code, err := g.client.GetCode(ctx, g.address.Hex())
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return fmt.Errorf("%w: no bytecode at %s", types.ErrContractNotFound, g.address.Hex())
	}
	return nil
}

// call packs a view invocation, dispatches it and unpacks the raw result.
func (g *Gateway) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsedABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	raw, err := g.client.CallContract(ctx, g.address, data)
	if err != nil {
		monitoring.RecordContractRead(method, "error")
		return nil, err
	}

	if len(raw) == 0 {
		monitoring.RecordContractRead(method, "error")
		// An empty return from a view call usually means no contract at
		// the address; distinguish that from a decode problem.
		if err := g.EnsureContract(ctx); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("empty result from %s", method)
	}

	out, err := parsedABI.Unpack(method, raw)
	if err != nil {
		monitoring.RecordContractRead(method, "error")
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}

	monitoring.RecordContractRead(method, "ok")
	return out, nil
}

// CampaignCount returns the total number of campaigns recorded on-chain.
func (g *Gateway) CampaignCount(ctx context.Context) (uint64, error) {
	out, err := g.call(ctx, "getNumberOfCampaigns")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("getNumberOfCampaigns returned %d values", len(out))
	}
	return chain.AsUint64(out[0])
}

// GetCampaign reads and decodes a single campaign by id.
func (g *Gateway) GetCampaign(ctx context.Context, id uint64) (*types.Campaign, error) {
	out, err := g.call(ctx, "getCampaign", new(big.Int).SetUint64(id))
	if err != nil {
		return nil, err
	}
	return decodeCampaign(id, out)
}

// ListCampaigns reads every campaign in ascending index order. An index whose
// decode fails is logged and skipped rather than failing the whole listing;
// only a total failure to reach the chain aborts the operation.
func (g *Gateway) ListCampaigns(ctx context.Context) ([]types.Campaign, error) {
	count, err := g.CampaignCount(ctx)
	if err != nil {
		return nil, err
	}

	campaigns := make([]types.Campaign, 0, count)
	for id := uint64(0); id < count; id++ {
		c, err := g.GetCampaign(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn().
				Err(err).
				Uint64("campaign_id", id).
				Msg("Skipping campaign that failed to decode")
			monitoring.CampaignDecodeFailures.Inc()
			continue
		}
		campaigns = append(campaigns, *c)
	}

	monitoring.CampaignsLoaded.Set(float64(len(campaigns)))

	g.logger.Debug().
		Uint64("count", count).
		Int("decoded", len(campaigns)).
		Msg("Campaigns listed")

	return campaigns, nil
}

// GetCampaignDonations reads a campaign's donation list in index order,
// oldest first. Individual decode failures are skipped, not fatal.
func (g *Gateway) GetCampaignDonations(ctx context.Context, campaignID uint64) ([]types.Donation, error) {
	out, err := g.call(ctx, "getCampaignDonationsCount", new(big.Int).SetUint64(campaignID))
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("getCampaignDonationsCount returned %d values", len(out))
	}
	count, err := chain.AsUint64(out[0])
	if err != nil {
		return nil, err
	}

	donations := make([]types.Donation, 0, count)
	for index := uint64(0); index < count; index++ {
		out, err := g.call(ctx, "getCampaignDonation",
			new(big.Int).SetUint64(campaignID), new(big.Int).SetUint64(index))
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn().
				Err(err).
				Uint64("campaign_id", campaignID).
				Uint64("index", index).
				Msg("Skipping donation that failed to decode")
			monitoring.DonationDecodeFailures.Inc()
			continue
		}

		d, err := decodeDonation(out)
		if err != nil {
			g.logger.Warn().
				Err(err).
				Uint64("campaign_id", campaignID).
				Uint64("index", index).
				Msg("Skipping donation that failed to decode")
			monitoring.DonationDecodeFailures.Inc()
			continue
		}
		donations = append(donations, *d)
	}

	return donations, nil
}

// GetAllUserDonations reads a donor's cross-campaign history, newest first.
func (g *Gateway) GetAllUserDonations(ctx context.Context, donor string) ([]types.UserDonation, error) {
	if !common.IsHexAddress(donor) {
		return nil, fmt.Errorf("%w: %q is not a valid address", types.ErrInvalidInput, donor)
	}

	out, err := g.call(ctx, "getAllUserDonations", common.HexToAddress(donor))
	if err != nil {
		return nil, err
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("getAllUserDonations returned %d values", len(out))
	}

	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected campaignIds type %T", out[0])
	}
	amounts, ok := out[1].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected amounts type %T", out[1])
	}
	timestamps, ok := out[2].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected timestamps type %T", out[2])
	}
	names, ok := out[3].([]string)
	if !ok {
		return nil, fmt.Errorf("unexpected campaignNames type %T", out[3])
	}

	if len(ids) != len(amounts) || len(ids) != len(timestamps) || len(ids) != len(names) {
		return nil, fmt.Errorf("getAllUserDonations returned mismatched array lengths")
	}

	history := make([]types.UserDonation, 0, len(ids))
	for i := range ids {
		id, err := chain.AsUint64(ids[i])
		if err != nil {
			g.logger.Warn().Err(err).Int("index", i).Msg("Skipping user donation that failed to decode")
			monitoring.DonationDecodeFailures.Inc()
			continue
		}
		wei, err := chain.AsBigInt(amounts[i])
		if err != nil {
			g.logger.Warn().Err(err).Int("index", i).Msg("Skipping user donation that failed to decode")
			monitoring.DonationDecodeFailures.Inc()
			continue
		}
		ts, err := chain.AsInt64(timestamps[i])
		if err != nil {
			g.logger.Warn().Err(err).Int("index", i).Msg("Skipping user donation that failed to decode")
			monitoring.DonationDecodeFailures.Inc()
			continue
		}

		history = append(history, types.UserDonation{
			CampaignID:   id,
			CampaignName: names[i],
			Amount:       amount.FromWei(wei),
			Timestamp:    ts,
		})
	}

	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp > history[j].Timestamp
	})

	return history, nil
}

// CreateCampaign submits a campaign creation transaction.
func (g *Gateway) CreateCampaign(ctx context.Context, name, description, goal string) (common.Hash, error) {
	if strings.TrimSpace(name) == "" {
		return common.Hash{}, fmt.Errorf("%w: campaign name must not be empty", types.ErrInvalidInput)
	}
	if strings.TrimSpace(description) == "" {
		return common.Hash{}, fmt.Errorf("%w: campaign description must not be empty", types.ErrInvalidInput)
	}
	goalWei, err := amount.ToWeiPositive(goal)
	if err != nil {
		return common.Hash{}, err
	}

	data, err := parsedABI.Pack("createCampaign", name, description, goalWei)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack createCampaign: %w", err)
	}

	return g.submit(ctx, types.OpCreateCampaign, data, nil)
}

// Donate submits a payable donation transaction. The wallet must be connected
// to the required chain before dispatch.
func (g *Gateway) Donate(ctx context.Context, campaignID uint64, donationAmount, message string) (common.Hash, error) {
	wei, err := amount.ToWeiPositive(donationAmount)
	if err != nil {
		return common.Hash{}, err
	}

	if chainID, ok := g.client.WalletChainID(); ok && chainID != g.client.Network().ChainID {
		return common.Hash{}, fmt.Errorf("%w: wallet on chain %d, required %d",
			types.ErrWrongNetwork, chainID, g.client.Network().ChainID)
	}

	data, err := parsedABI.Pack("donate", new(big.Int).SetUint64(campaignID), message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack donate: %w", err)
	}

	return g.submit(ctx, types.OpDonate, data, wei)
}

// CloseCampaign submits a campaign closure transaction. Ownership and state
// are pre-checked against a fresh read as a courtesy; the contract decides.
func (g *Gateway) CloseCampaign(ctx context.Context, campaignID uint64) (common.Hash, error) {
	campaign, err := g.GetCampaign(ctx, campaignID)
	if err != nil {
		return common.Hash{}, err
	}
	if !campaign.IsActive {
		return common.Hash{}, fmt.Errorf("%w: campaign %d is already closed", types.ErrInvalidInput, campaignID)
	}
	if err := g.requireOwner(campaign); err != nil {
		return common.Hash{}, err
	}

	data, err := parsedABI.Pack("closeCampaign", new(big.Int).SetUint64(campaignID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack closeCampaign: %w", err)
	}

	return g.submit(ctx, types.OpCloseCampaign, data, nil)
}

// WithdrawFunds submits a withdrawal transaction for a campaign's raised
// balance.
func (g *Gateway) WithdrawFunds(ctx context.Context, campaignID uint64) (common.Hash, error) {
	campaign, err := g.GetCampaign(ctx, campaignID)
	if err != nil {
		return common.Hash{}, err
	}
	raised, err := amount.ToWei(campaign.AmountRaised)
	if err != nil || raised.Sign() <= 0 {
		return common.Hash{}, fmt.Errorf("%w: campaign %d has nothing to withdraw", types.ErrInvalidInput, campaignID)
	}
	if err := g.requireOwner(campaign); err != nil {
		return common.Hash{}, err
	}

	data, err := parsedABI.Pack("withdrawFunds", new(big.Int).SetUint64(campaignID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack withdrawFunds: %w", err)
	}

	return g.submit(ctx, types.OpWithdrawFunds, data, nil)
}

func (g *Gateway) requireOwner(campaign *types.Campaign) error {
	from, ok := g.client.WalletAddress()
	if !ok {
		return types.ErrNoWalletConnected
	}
	if from != common.HexToAddress(campaign.CampaignOwner) {
		return fmt.Errorf("%w: account %s is not the owner of campaign %d",
			types.ErrInvalidInput, from.Hex(), campaign.ID)
	}
	return nil
}

func (g *Gateway) submit(ctx context.Context, op types.WriteOp, data []byte, value *big.Int) (common.Hash, error) {
	if !g.client.WalletAttached() {
		return common.Hash{}, types.ErrNoWalletConnected
	}
	if value == nil {
		value = big.NewInt(0)
	}

	hash, err := g.client.Send(ctx, g.address, value, data, g.gasLimits.ForOp(op))
	if err != nil {
		return common.Hash{}, err
	}

	monitoring.RecordTxSubmitted(string(op))

	g.logger.Info().
		Str("operation", string(op)).
		Str("tx_hash", hash.Hex()).
		Msg("Transaction submitted")

	return hash, nil
}

// decodeCampaign normalizes the raw getCampaign tuple into a Campaign.
func decodeCampaign(id uint64, out []interface{}) (*types.Campaign, error) {
	if len(out) != 6 {
		return nil, fmt.Errorf("getCampaign returned %d values", len(out))
	}

	name, ok := out[0].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected name type %T", out[0])
	}
	description, ok := out[1].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected description type %T", out[1])
	}
	goal, err := chain.AsBigInt(out[2])
	if err != nil {
		return nil, fmt.Errorf("bad goal: %w", err)
	}
	raised, err := chain.AsBigInt(out[3])
	if err != nil {
		return nil, fmt.Errorf("bad amountRaised: %w", err)
	}
	isActive, ok := out[4].(bool)
	if !ok {
		return nil, fmt.Errorf("unexpected isActive type %T", out[4])
	}
	owner, ok := out[5].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected owner type %T", out[5])
	}

	return &types.Campaign{
		ID:            id,
		Name:          name,
		Description:   description,
		Goal:          amount.FromWei(goal),
		AmountRaised:  amount.FromWei(raised),
		IsActive:      isActive,
		CampaignOwner: owner.Hex(),
		Progress:      amount.Progress(goal, raised),
	}, nil
}

// decodeDonation normalizes the raw getCampaignDonation tuple into a Donation.
func decodeDonation(out []interface{}) (*types.Donation, error) {
	if len(out) != 4 {
		return nil, fmt.Errorf("getCampaignDonation returned %d values", len(out))
	}

	donor, ok := out[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("unexpected donor type %T", out[0])
	}
	wei, err := chain.AsBigInt(out[1])
	if err != nil {
		return nil, fmt.Errorf("bad amount: %w", err)
	}
	ts, err := chain.AsInt64(out[2])
	if err != nil {
		return nil, fmt.Errorf("bad timestamp: %w", err)
	}
	message, ok := out[3].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected message type %T", out[3])
	}

	return &types.Donation{
		Donor:     donor.Hex(),
		Amount:    amount.FromWei(wei),
		Timestamp: ts,
		Message:   message,
	}, nil
}
