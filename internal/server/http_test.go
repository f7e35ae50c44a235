package server

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"VaultLedger/internal/asset"
	"VaultLedger/internal/custody"
	"VaultLedger/internal/gate"
	"VaultLedger/internal/oracle"
	"VaultLedger/internal/vault"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	server    *httptest.Server
	custodian *custody.MemoryCustodian
	gate      *gate.StaticGate
	ledger    *vault.Ledger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	registry := asset.NewRegistry("USDV", 6, 18)
	require.NoError(t, registry.Register("WETH", 18, nil))

	feed := oracle.NewStaticFeed()
	feed.Set("WETH", big.NewInt(2000_0000_0000), time.Now())

	custodian := custody.NewMemoryCustodian()

	cfg := vault.Config{
		GlobalCapacity:    big.NewInt(10_000_000_000),
		WithdrawalCeiling: big.NewInt(1_000_000_000),
		MinimumDeposit:    big.NewInt(1_000_000),
		MaxSlippageBps:    1_000,
		SlippageBps:       50,
		ExecuteDeadline:   time.Minute,
		VaultPrincipal:    "vault",
	}
	ledger, err := vault.NewLedger(cfg, vault.Deps{
		Registry:  registry,
		Source:    oracle.NewFeedSource(feed, registry, 8, oracle.DefaultMaxQuoteAge),
		Custodian: custodian,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	g := gate.NewStaticGate("admin")
	srv := New(ledger, nil, registry, g, nil, zerolog.Nop())

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, custodian: custodian, gate: g, ledger: ledger}
}

func (e *testEnv) do(t *testing.T, method, path, principal string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if principal != "" {
		req.Header.Set(principalHeader, principal)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestDepositEndpoint(t *testing.T) {
	e := newTestEnv(t)
	e.custodian.Fund("alice", "USDV", big.NewInt(5_000_000))

	resp := e.do(t, http.MethodPost, "/v1/deposits", "alice", depositRequest{Asset: "USDV", Amount: "5000000"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	out := decode[depositResponse](t, resp)
	require.Equal(t, "5000000", out.Credited)
	require.Equal(t, "5000000", out.Balance)
}

func TestDepositEndpoint_RequiresPrincipal(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/v1/deposits", "", depositRequest{Asset: "USDV", Amount: "100"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDepositEndpoint_PolicyRejection(t *testing.T) {
	e := newTestEnv(t)
	e.custodian.Fund("alice", "USDV", big.NewInt(500))

	// Below the one-unit minimum.
	resp := e.do(t, http.MethodPost, "/v1/deposits", "alice", depositRequest{Asset: "USDV", Amount: "500"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/deposits", "alice", depositRequest{Asset: "DOGE", Amount: "100"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/deposits", "alice", depositRequest{Asset: "USDV", Amount: "not-a-number"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWithdrawEndpoints(t *testing.T) {
	e := newTestEnv(t)
	e.custodian.Fund("alice", "USDV", big.NewInt(500_000_000))

	resp := e.do(t, http.MethodPost, "/v1/deposits", "alice", depositRequest{Asset: "USDV", Amount: "500000000"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/withdrawals", "alice", withdrawRequest{Amount: "200000000"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[withdrawResponse](t, resp)
	require.Equal(t, "200000000", out.Withdrawn)
	require.Equal(t, "300000000", out.Balance)

	// Insufficient balance maps to 422.
	resp = e.do(t, http.MethodPost, "/v1/withdrawals", "bob", withdrawRequest{Amount: "1"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/withdrawals/all", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out = decode[withdrawResponse](t, resp)
	require.Equal(t, "300000000", out.Withdrawn)
	require.Equal(t, "0", out.Balance)
}

func TestBalanceAndStatsEndpoints(t *testing.T) {
	e := newTestEnv(t)
	e.custodian.Fund("alice", "USDV", big.NewInt(2_000_000))

	resp := e.do(t, http.MethodPost, "/v1/deposits", "alice", depositRequest{Asset: "USDV", Amount: "2000000"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/v1/accounts/alice/balance", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bal := decode[balanceResponse](t, resp)
	require.Equal(t, "2000000", bal.Balance)

	resp = e.do(t, http.MethodGet, "/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[statsResponse](t, resp)
	require.Equal(t, "2000000", stats.TotalHeld)
	require.Equal(t, int64(1), stats.DepositCount)
	require.Equal(t, uint64(50), stats.SlippageBps)
}

func TestEstimateEndpoint(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/v1/estimate?asset=WETH&amount=1000000000000000000", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	est := decode[estimateResponse](t, resp)
	require.Equal(t, "2000000000", est.Estimate)

	resp = e.do(t, http.MethodGet, "/v1/estimate?asset=WETH", "", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssetEndpoints(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodGet, "/v1/assets/WETH", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/v1/assets/WETH/route", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	route := decode[routeResponse](t, resp)
	require.Equal(t, []string{"WETH", "USDV"}, route.Route)

	resp = e.do(t, http.MethodGet, "/v1/assets/DOGE", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminEndpoints_Authorization(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPut, "/v1/admin/slippage", "alice", slippageRequest{Bps: 100})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodPut, "/v1/admin/slippage", "admin", slippageRequest{Bps: 100})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, uint64(100), e.ledger.SlippageBps())

	// Tolerance above the configured maximum.
	resp = e.do(t, http.MethodPut, "/v1/admin/slippage", "admin", slippageRequest{Bps: 9_999})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminEndpoints_RegisterAsset(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/v1/admin/assets", "admin", registerAssetRequest{Symbol: "WBTC", Decimals: 8})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/v1/assets/WBTC", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPut, "/v1/admin/assets/WBTC/accepted", "admin", setAcceptedRequest{Accepted: false})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// De-listed assets stop accepting deposits.
	e.custodian.Fund("alice", "WBTC", big.NewInt(100_000_000))
	resp = e.do(t, http.MethodPost, "/v1/deposits", "alice", depositRequest{Asset: "WBTC", Amount: "100000000"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestPausedVaultRejectsMutations(t *testing.T) {
	e := newTestEnv(t)
	e.gate.SetPaused(true)

	e.custodian.Fund("alice", "USDV", big.NewInt(5_000_000))
	resp := e.do(t, http.MethodPost, "/v1/deposits", "alice", depositRequest{Asset: "USDV", Amount: "5000000"})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/v1/withdrawals", "alice", withdrawRequest{Amount: "1"})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
