package contract

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/chainraise/chainraise/internal/config"
	"github.com/chainraise/chainraise/internal/types"
)

// fakeChain scripts the ChainClient surface and counts every chain call so
// tests can assert that validation failures never reach the chain.
type fakeChain struct {
	network     *types.NetworkConfig
	code        []byte
	results     map[string][][]byte
	readCalls   int
	sendCalls   int
	sendErr     error
	sentValue   *big.Int
	sentGas     uint64
	wallet      bool
	walletChain uint64
	walletAddr  common.Address
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		network: &types.NetworkConfig{Name: "Testnet", ChainID: 17000},
		code:    []byte{0x60, 0x80},
		results: make(map[string][][]byte),
	}
}

// queue packs method outputs and queues them as the next result for that
// method, in FIFO order.
func (f *fakeChain) queue(t *testing.T, method string, values ...interface{}) {
	t.Helper()
	packed, err := parsedABI.Methods[method].Outputs.Pack(values...)
	if err != nil {
		t.Fatalf("failed to pack %s outputs: %v", method, err)
	}
	f.results[method] = append(f.results[method], packed)
}

// queueRaw queues a raw response so tests can script undecodable results.
func (f *fakeChain) queueRaw(method string, raw []byte) {
	f.results[method] = append(f.results[method], raw)
}

func (f *fakeChain) Network() *types.NetworkConfig { return f.network }

func (f *fakeChain) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	f.readCalls++

	method, err := parsedABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	queued := f.results[method.Name]
	if len(queued) == 0 {
		return nil, errors.New("no scripted result for " + method.Name)
	}
	out := queued[0]
	f.results[method.Name] = queued[1:]
	return out, nil
}

func (f *fakeChain) GetCode(ctx context.Context, address string) ([]byte, error) {
	f.readCalls++
	return f.code, nil
}

func (f *fakeChain) Send(ctx context.Context, to common.Address, value *big.Int, callData []byte, gasLimit uint64) (common.Hash, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sentValue = value
	f.sentGas = gasLimit
	return common.HexToHash("0xdead"), nil
}

func (f *fakeChain) WalletAttached() bool { return f.wallet }

func (f *fakeChain) WalletChainID() (uint64, bool) {
	if !f.wallet {
		return 0, false
	}
	return f.walletChain, true
}

func (f *fakeChain) WalletAddress() (common.Address, bool) {
	if !f.wallet {
		return common.Address{}, false
	}
	return f.walletAddr, true
}

func testGasLimits() config.GasLimitConfig {
	return config.GasLimitConfig{
		CreateCampaign: 3000000,
		Donate:         3000000,
		CloseCampaign:  1000000,
		WithdrawFunds:  1000000,
	}
}

func newTestGateway(f *fakeChain) *Gateway {
	return NewGateway(f, config.ContractConfig{
		Address:   "0x51394f9Dc0e1CaC12Fe68dC88d90F4BC6Baa7C3B",
		GasLimits: testGasLimits(),
	}, zerolog.Nop())
}

func eth(s string) *big.Int {
	d, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad test amount " + s)
	}
	return d
}

func TestListCampaignsWithoutWallet(t *testing.T) {
	f := newFakeChain()
	owner := common.HexToAddress("0xabc0000000000000000000000000000000000001")

	f.queue(t, "getNumberOfCampaigns", big.NewInt(1))
	f.queue(t, "getCampaign", "Test", "desc", eth("1000000000000000000"), eth("250000000000000000"), true, owner)

	g := newTestGateway(f)

	campaigns, err := g.ListCampaigns(context.Background())
	if err != nil {
		t.Fatalf("ListCampaigns failed: %v", err)
	}
	if len(campaigns) != 1 {
		t.Fatalf("got %d campaigns, want 1", len(campaigns))
	}

	got := campaigns[0]
	want := types.Campaign{
		ID:            0,
		Name:          "Test",
		Description:   "desc",
		Goal:          "1",
		AmountRaised:  "0.25",
		IsActive:      true,
		CampaignOwner: owner.Hex(),
		Progress:      25.0,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("campaign = %+v, want %+v", got, want)
	}
}

func TestListCampaignsSkipsFailedDecodes(t *testing.T) {
	f := newFakeChain()
	owner := common.HexToAddress("0xabc0000000000000000000000000000000000001")

	f.queue(t, "getNumberOfCampaigns", big.NewInt(3))
	f.queue(t, "getCampaign", "First", "d", eth("1000000000000000000"), big.NewInt(0), true, owner)
	f.queueRaw("getCampaign", []byte{0x01}) // index 1 fails to decode
	f.queue(t, "getCampaign", "Third", "d", eth("1000000000000000000"), big.NewInt(0), true, owner)

	g := newTestGateway(f)

	campaigns, err := g.ListCampaigns(context.Background())
	if err != nil {
		t.Fatalf("ListCampaigns failed: %v", err)
	}
	if len(campaigns) != 2 {
		t.Fatalf("got %d campaigns, want 2", len(campaigns))
	}
	if campaigns[0].Name != "First" || campaigns[1].Name != "Third" {
		t.Errorf("unexpected campaigns: %+v", campaigns)
	}
	// Ascending index order is preserved around the skipped entry.
	if campaigns[0].ID != 0 || campaigns[1].ID != 2 {
		t.Errorf("unexpected ids: %d, %d", campaigns[0].ID, campaigns[1].ID)
	}
}

func TestListCampaignsIdempotent(t *testing.T) {
	f := newFakeChain()
	owner := common.HexToAddress("0xabc0000000000000000000000000000000000001")

	for i := 0; i < 2; i++ {
		f.queue(t, "getNumberOfCampaigns", big.NewInt(1))
		f.queue(t, "getCampaign", "Test", "d", eth("2000000000000000000"), eth("1000000000000000000"), true, owner)
	}

	g := newTestGateway(f)

	first, err := g.ListCampaigns(context.Background())
	if err != nil {
		t.Fatalf("first ListCampaigns failed: %v", err)
	}
	second, err := g.ListCampaigns(context.Background())
	if err != nil {
		t.Fatalf("second ListCampaigns failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated listing differs: %+v vs %+v", first, second)
	}
}

func TestGetCampaignDonations(t *testing.T) {
	f := newFakeChain()
	donor := common.HexToAddress("0xabc0000000000000000000000000000000000002")

	f.queue(t, "getCampaignDonationsCount", big.NewInt(2))
	f.queue(t, "getCampaignDonation", donor, eth("100000000000000000"), big.NewInt(1700000000), "hi")
	f.queue(t, "getCampaignDonation", donor, eth("250000000000000000"), big.NewInt(1700000100), "")

	g := newTestGateway(f)

	donations, err := g.GetCampaignDonations(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetCampaignDonations failed: %v", err)
	}
	if len(donations) != 2 {
		t.Fatalf("got %d donations, want 2", len(donations))
	}
	// Oldest first, by index.
	if donations[0].Amount != "0.1" || donations[0].Message != "hi" {
		t.Errorf("unexpected first donation: %+v", donations[0])
	}
	if donations[1].Amount != "0.25" || donations[1].Timestamp != 1700000100 {
		t.Errorf("unexpected second donation: %+v", donations[1])
	}
}

func TestGetAllUserDonationsNewestFirst(t *testing.T) {
	f := newFakeChain()

	f.queue(t, "getAllUserDonations",
		[]*big.Int{big.NewInt(0), big.NewInt(2)},
		[]*big.Int{eth("100000000000000000"), eth("500000000000000000")},
		[]*big.Int{big.NewInt(1700000000), big.NewInt(1700009999)},
		[]string{"First", "Third"},
	)

	g := newTestGateway(f)

	history, err := g.GetAllUserDonations(context.Background(), "0xabc0000000000000000000000000000000000002")
	if err != nil {
		t.Fatalf("GetAllUserDonations failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d entries, want 2", len(history))
	}
	if history[0].CampaignName != "Third" || history[1].CampaignName != "First" {
		t.Errorf("history not newest first: %+v", history)
	}
}

func TestGetAllUserDonationsRejectsBadAddress(t *testing.T) {
	f := newFakeChain()
	g := newTestGateway(f)

	_, err := g.GetAllUserDonations(context.Background(), "not-an-address")
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
	if f.readCalls != 0 {
		t.Errorf("chain called %d times for invalid input, want 0", f.readCalls)
	}
}

func TestDonateRejectsZeroAmountWithoutChainCall(t *testing.T) {
	f := newFakeChain()
	f.wallet = true
	f.walletChain = 17000

	g := newTestGateway(f)

	for _, bad := range []string{"0", "-1"} {
		_, err := g.Donate(context.Background(), 0, bad, "hi")
		if !errors.Is(err, types.ErrInvalidInput) {
			t.Errorf("Donate(%q) error = %v, want ErrInvalidInput", bad, err)
		}
	}

	if f.readCalls != 0 || f.sendCalls != 0 {
		t.Errorf("chain called (%d reads, %d sends) for invalid amounts, want 0", f.readCalls, f.sendCalls)
	}
}

func TestDonateRejectsWrongChain(t *testing.T) {
	f := newFakeChain()
	f.wallet = true
	f.walletChain = 1 // mainnet, not the required testnet

	g := newTestGateway(f)

	_, err := g.Donate(context.Background(), 0, "0.1", "hi")
	if !errors.Is(err, types.ErrWrongNetwork) {
		t.Errorf("error = %v, want ErrWrongNetwork", err)
	}
	if f.sendCalls != 0 {
		t.Errorf("transaction submitted on wrong chain: %d sends", f.sendCalls)
	}
}

func TestDonateSendsValueAndGasLimit(t *testing.T) {
	f := newFakeChain()
	f.wallet = true
	f.walletChain = 17000

	g := newTestGateway(f)

	hash, err := g.Donate(context.Background(), 3, "0.1", "good luck")
	if err != nil {
		t.Fatalf("Donate failed: %v", err)
	}
	if hash == (common.Hash{}) {
		t.Error("Donate returned zero hash")
	}
	if f.sentValue.Cmp(eth("100000000000000000")) != 0 {
		t.Errorf("sent value = %s, want 0.1 in wei", f.sentValue)
	}
	if f.sentGas != 3000000 {
		t.Errorf("gas limit = %d, want 3000000", f.sentGas)
	}
}

func TestCreateCampaignValidation(t *testing.T) {
	f := newFakeChain()
	f.wallet = true
	f.walletChain = 17000

	g := newTestGateway(f)

	cases := []struct {
		name, description, goal string
	}{
		{"", "desc", "1"},
		{"  ", "desc", "1"},
		{"Name", "", "1"},
		{"Name", "desc", "0"},
		{"Name", "desc", "abc"},
	}

	for _, c := range cases {
		if _, err := g.CreateCampaign(context.Background(), c.name, c.description, c.goal); !errors.Is(err, types.ErrInvalidInput) {
			t.Errorf("CreateCampaign(%q,%q,%q) error = %v, want ErrInvalidInput", c.name, c.description, c.goal, err)
		}
	}

	if f.sendCalls != 0 {
		t.Errorf("%d transactions submitted for invalid input, want 0", f.sendCalls)
	}
}

func TestCreateCampaignWithoutWallet(t *testing.T) {
	f := newFakeChain()
	g := newTestGateway(f)

	_, err := g.CreateCampaign(context.Background(), "Name", "desc", "1")
	if !errors.Is(err, types.ErrNoWalletConnected) {
		t.Errorf("error = %v, want ErrNoWalletConnected", err)
	}
}

func TestCloseCampaignAlreadyClosed(t *testing.T) {
	f := newFakeChain()
	owner := common.HexToAddress("0xabc0000000000000000000000000000000000001")
	f.wallet = true
	f.walletChain = 17000
	f.walletAddr = owner

	f.queue(t, "getCampaign", "Test", "d", eth("1000000000000000000"), big.NewInt(0), false, owner)

	g := newTestGateway(f)

	_, err := g.CloseCampaign(context.Background(), 0)
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
	if f.sendCalls != 0 {
		t.Error("closure submitted for an already closed campaign")
	}
}

func TestCloseCampaignNotOwner(t *testing.T) {
	f := newFakeChain()
	owner := common.HexToAddress("0xabc0000000000000000000000000000000000001")
	f.wallet = true
	f.walletAddr = common.HexToAddress("0xabc0000000000000000000000000000000000099")

	f.queue(t, "getCampaign", "Test", "d", eth("1000000000000000000"), big.NewInt(0), true, owner)

	g := newTestGateway(f)

	_, err := g.CloseCampaign(context.Background(), 0)
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
	if f.sendCalls != 0 {
		t.Error("closure submitted by a non-owner")
	}
}

func TestWithdrawFundsNothingRaised(t *testing.T) {
	f := newFakeChain()
	owner := common.HexToAddress("0xabc0000000000000000000000000000000000001")
	f.wallet = true
	f.walletAddr = owner

	f.queue(t, "getCampaign", "Test", "d", eth("1000000000000000000"), big.NewInt(0), true, owner)

	g := newTestGateway(f)

	_, err := g.WithdrawFunds(context.Background(), 0)
	if !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
	if f.sendCalls != 0 {
		t.Error("withdrawal submitted with nothing raised")
	}
}

func TestWithdrawFundsByOwner(t *testing.T) {
	f := newFakeChain()
	owner := common.HexToAddress("0xabc0000000000000000000000000000000000001")
	f.wallet = true
	f.walletChain = 17000
	f.walletAddr = owner

	f.queue(t, "getCampaign", "Test", "d", eth("1000000000000000000"), eth("500000000000000000"), true, owner)

	g := newTestGateway(f)

	if _, err := g.WithdrawFunds(context.Background(), 0); err != nil {
		t.Fatalf("WithdrawFunds failed: %v", err)
	}
	if f.sendCalls != 1 {
		t.Errorf("sendCalls = %d, want 1", f.sendCalls)
	}
	if f.sentGas != 1000000 {
		t.Errorf("gas limit = %d, want 1000000", f.sentGas)
	}
}

func TestEnsureContractMissingBytecode(t *testing.T) {
	f := newFakeChain()
	f.code = nil

	g := newTestGateway(f)

	err := g.EnsureContract(context.Background())
	if !errors.Is(err, types.ErrContractNotFound) {
		t.Errorf("error = %v, want ErrContractNotFound", err)
	}
}
