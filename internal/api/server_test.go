package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/chainraise/chainraise/internal/cache"
	"github.com/chainraise/chainraise/internal/chain"
	"github.com/chainraise/chainraise/internal/config"
	"github.com/chainraise/chainraise/internal/contract"
	"github.com/chainraise/chainraise/internal/notify"
	"github.com/chainraise/chainraise/internal/tracker"
	"github.com/chainraise/chainraise/internal/types"
	"github.com/chainraise/chainraise/internal/wallet"
)

func selector(signature string) [4]byte {
	var out [4]byte
	copy(out[:], crypto.Keccak256([]byte(signature))[:4])
	return out
}

func mustType(t *testing.T, name string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(name, "", nil)
	if err != nil {
		t.Fatalf("failed to build abi type %s: %v", name, err)
	}
	return typ
}

// scriptedBackend answers contract reads by selector with pre-packed results.
type scriptedBackend struct {
	chainID   *big.Int
	results   map[[4]byte][]byte
	readCalls int
}

func (b *scriptedBackend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *scriptedBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return big.NewInt(0), nil
}

func (b *scriptedBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x01}, nil
}

func (b *scriptedBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	b.readCalls++
	var sel [4]byte
	copy(sel[:], call.Data[:4])
	if out, ok := b.results[sel]; ok {
		return out, nil
	}
	return nil, ethereum.NotFound
}

func (b *scriptedBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return 0, nil
}

func (b *scriptedBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (b *scriptedBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (b *scriptedBackend) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (b *scriptedBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	return nil
}

func (b *scriptedBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return nil, ethereum.NotFound
}

func (b *scriptedBackend) Close() {}

// scriptCampaigns scripts a single-campaign contract state onto the backend.
func scriptCampaigns(t *testing.T, backend *scriptedBackend) {
	t.Helper()

	uint256T := mustType(t, "uint256")
	stringT := mustType(t, "string")
	boolT := mustType(t, "bool")
	addressT := mustType(t, "address")

	countOut, err := abi.Arguments{{Type: uint256T}}.Pack(big.NewInt(1))
	if err != nil {
		t.Fatalf("failed to pack campaign count: %v", err)
	}
	backend.results[selector("getNumberOfCampaigns()")] = countOut

	goal, _ := new(big.Int).SetString("1000000000000000000", 10)
	raised, _ := new(big.Int).SetString("250000000000000000", 10)
	campaignOut, err := abi.Arguments{
		{Type: stringT}, {Type: stringT}, {Type: uint256T},
		{Type: uint256T}, {Type: boolT}, {Type: addressT},
	}.Pack("Test", "desc", goal, raised, true,
		common.HexToAddress("0xabc0000000000000000000000000000000000001"))
	if err != nil {
		t.Fatalf("failed to pack campaign: %v", err)
	}
	backend.results[selector("getCampaign(uint256)")] = campaignOut
}

func newTestServer(t *testing.T) (*Server, *scriptedBackend) {
	t.Helper()

	backend := &scriptedBackend{
		chainID: big.NewInt(17000),
		results: make(map[[4]byte][]byte),
	}

	network := types.NetworkConfig{
		Name:         "Testnet",
		ChainID:      17000,
		Environment:  types.EnvironmentTestnet,
		RPCEndpoints: []string{"stub://network"},
	}

	cfg := &config.Config{
		Environment: types.EnvironmentTestnet,
		Network:     network,
		Contract: config.ContractConfig{
			Address: "0x51394f9Dc0e1CaC12Fe68dC88d90F4BC6Baa7C3B",
			GasLimits: config.GasLimitConfig{
				CreateCampaign: 3000000,
				Donate:         3000000,
				CloseCampaign:  1000000,
				WithdrawFunds:  1000000,
			},
		},
		Tracker: config.TrackerConfig{
			PollInterval:    "5ms",
			PollMaxAttempts: 2,
			WaitTimeout:     "10ms",
		},
	}

	client, err := chain.NewClientWithBackends(&cfg.Network, []chain.Backend{backend}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to build chain client: %v", err)
	}

	gateway := contract.NewGateway(client, cfg.Contract, zerolog.Nop())
	wallets := wallet.NewManager(cfg.Wallet, &cfg.Network, client, zerolog.Nop())
	trk := tracker.NewTracker(cfg.Tracker, zerolog.Nop())
	snapshots := cache.NewSnapshotCache(time.Minute, zerolog.Nop())
	notifier := notify.NewNotifier(zerolog.Nop())

	return NewServer(cfg, client, gateway, wallets, trk, snapshots, notifier, zerolog.Nop()), backend
}

func doRequest(s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "GET", "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "healthy" {
		t.Errorf("status field = %v, want healthy", body["status"])
	}
}

func TestReadyEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "GET", "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["chain_id"] != float64(17000) {
		t.Errorf("chain_id = %v, want 17000", body["chain_id"])
	}
}

func TestListCampaignsServesFromCacheOnRepeat(t *testing.T) {
	s, backend := newTestServer(t)
	scriptCampaigns(t, backend)

	rec := doRequest(s, "GET", "/v1/campaigns", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["total"] != float64(1) {
		t.Fatalf("total = %v, want 1", body["total"])
	}

	campaigns := body["campaigns"].([]interface{})
	first := campaigns[0].(map[string]interface{})
	if first["name"] != "Test" || first["goal"] != "1" || first["amount_raised"] != "0.25" {
		t.Errorf("unexpected campaign payload: %+v", first)
	}
	if first["progress"] != float64(25) {
		t.Errorf("progress = %v, want 25", first["progress"])
	}

	callsAfterFirst := backend.readCalls
	rec = doRequest(s, "GET", "/v1/campaigns", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second listing status = %d, want 200", rec.Code)
	}
	if backend.readCalls != callsAfterFirst {
		t.Errorf("repeat listing hit the chain: %d calls, want %d", backend.readCalls, callsAfterFirst)
	}
}

func TestGetCampaignInvalidID(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "GET", "/v1/campaigns/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "GET", "/v1/transactions/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestCreateCampaignInvalidBody(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "POST", "/v1/campaigns", []byte("{not json"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateCampaignWithoutWallet(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(CreateCampaignRequest{Name: "Test", Description: "desc", Goal: "1"})
	rec := doRequest(s, "POST", "/v1/campaigns", body)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401: %s", rec.Code, rec.Body.String())
	}
}

func TestDonateWithoutWallet(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(DonateRequest{Amount: "0.1"})
	rec := doRequest(s, "POST", "/v1/campaigns/0/donations", body)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401: %s", rec.Code, rec.Body.String())
	}
}

func TestWalletProvidersEmpty(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "GET", "/v1/wallet/providers", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["total"] != float64(0) {
		t.Errorf("total = %v, want 0", body["total"])
	}
}

func TestWalletSessionDisconnected(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "GET", "/v1/wallet", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["connected"] != false {
		t.Errorf("connected = %v, want false", body["connected"])
	}
}

func TestWalletChainWithoutSession(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "POST", "/v1/wallet/chain", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWalletConnectUnknownProvider(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(WalletConnectRequest{ProviderID: "missing"})
	rec := doRequest(s, "POST", "/v1/wallet/connect", body)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestCORSHeaders(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, "GET", "/health", nil)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS origin header missing")
	}
}
