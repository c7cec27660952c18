package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/vdcapital/copytrader/internal/broker"
	"github.com/vdcapital/copytrader/internal/config"
	"github.com/vdcapital/copytrader/internal/copytrade"
	"github.com/vdcapital/copytrader/internal/logger"
	"github.com/vdcapital/copytrader/internal/notify"
	"github.com/vdcapital/copytrader/internal/storage"
)

type okAdapter struct{}

func (okAdapter) SubmitOrder(context.Context, *storage.BrokerCredential, string, broker.OrderSpec) broker.SubmitResult {
	return broker.SubmitResult{OK: true, BrokerOrderID: "WEB-1"}
}

func (okAdapter) CheckHealth(context.Context, *storage.BrokerCredential) broker.HealthStatus {
	return broker.HealthStatus{State: storage.StatusConnected}
}

type nopSink struct{}

func (nopSink) Emit(notify.Kind, string, string) {}

func newTestServer(t *testing.T) (*Server, *gorm.DB, *storage.Repository) {
	t.Helper()

	db, err := storage.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	repo := storage.NewRepository(db)

	registry := broker.NewRegistry()
	registry.Register(storage.BrokerTastytrade, okAdapter{})

	cfg := &config.Config{
		Copy: config.CopyConfig{MaxParallelFollowers: 1, SubmitTimeoutSeconds: 5},
		Web:  config.WebConfig{Port: 0},
	}
	log := logger.Discard()
	orch := copytrade.NewOrchestrator(repo, registry, nopSink{}, cfg, log)

	return NewServer(orch, registry, repo, cfg, log), db, repo
}

func seedCopySetup(t *testing.T, db *gorm.DB) (master, follower *storage.BrokerAccount) {
	t.Helper()

	cred := &storage.BrokerCredential{Name: "tt", BrokerType: storage.BrokerTastytrade, IsActive: true, SessionToken: "tok"}
	require.NoError(t, db.Create(cred).Error)

	master = &storage.BrokerAccount{CredentialID: cred.ID, AccountRef: "M", AccountName: "master", Balance: 100000, IsActive: true}
	follower = &storage.BrokerAccount{CredentialID: cred.ID, AccountRef: "F", AccountName: "follower", Balance: 50000, IsActive: true}
	require.NoError(t, db.Create(master).Error)
	require.NoError(t, db.Create(follower).Error)

	require.NoError(t, db.Create(&storage.AllocationPolicy{IsActive: true, Mode: storage.AllocMirror}).Error)
	require.NoError(t, db.Create(&storage.SymbolPolicy{Symbol: "AAPL", IsActive: true}).Error)
	return master, follower
}

func TestHandleCopyTradeInline(t *testing.T) {
	srv, db, repo := newTestServer(t)
	master, follower := seedCopySetup(t, db)

	body := `{"broker_account_id": ` + jsonUint(master.ID) + `, "symbol": "AAPL", "quantity": 10, "price": 150, "side": "buy", "order_type": "market"}`
	req := httptest.NewRequest(http.MethodPost, "/api/copy-trade", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.handleCopyTrade(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result copytrade.EventResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Success)
	require.Len(t, result.Results, 1)
	assert.Equal(t, follower.ID, result.Results[0].AccountID)
	assert.True(t, result.Results[0].Success)

	// The inline trade was persisted as a manual source trade.
	trades, err := repo.GetRecentTrades(10)
	require.NoError(t, err)
	var manual, copied int
	for _, tr := range trades {
		switch tr.Type {
		case "manual":
			manual++
		case "copy":
			copied++
		}
	}
	assert.Equal(t, 1, manual)
	assert.Equal(t, 1, copied)
}

func TestHandleCopyTradeByID(t *testing.T) {
	srv, db, _ := newTestServer(t)
	master, _ := seedCopySetup(t, db)

	trade := &storage.Trade{
		BrokerAccountID: master.ID, Symbol: "AAPL", Quantity: 3, Price: 150,
		Side: storage.SideBuy, OrderType: storage.OrderMarket, Status: "filled", Type: "manual",
	}
	require.NoError(t, db.Create(trade).Error)

	body := `{"source_trade_id": ` + jsonUint(trade.ID) + `}`
	req := httptest.NewRequest(http.MethodPost, "/api/copy-trade", strings.NewReader(body))
	rec := httptest.NewRecorder()

	srv.handleCopyTrade(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var result copytrade.EventResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Success)
}

func TestHandleCopyTradeValidation(t *testing.T) {
	srv, _, _ := newTestServer(t)

	t.Run("rejects GET", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handleCopyTrade(rec, httptest.NewRequest(http.MethodGet, "/api/copy-trade", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("rejects bad body", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handleCopyTrade(rec, httptest.NewRequest(http.MethodPost, "/api/copy-trade", strings.NewReader("not json")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects incomplete inline trade", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handleCopyTrade(rec, httptest.NewRequest(http.MethodPost, "/api/copy-trade", strings.NewReader(`{"symbol": "AAPL"}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown trade id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.handleCopyTrade(rec, httptest.NewRequest(http.MethodPost, "/api/copy-trade", strings.NewReader(`{"source_trade_id": 9999}`)))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleHealthUpdatesCredentials(t *testing.T) {
	srv, db, repo := newTestServer(t)
	seedCopySetup(t, db)

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodPost, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []credentialHealth
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, storage.StatusConnected, out[0].Status)

	creds, err := repo.ListActiveCredentials()
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, storage.StatusConnected, creds[0].ConnectionStatus)
	assert.NotNil(t, creds[0].LastConnectionCheck)
}

type fetchingAdapter struct {
	okAdapter
	balance broker.AccountBalance
}

func (f fetchingAdapter) FetchBalance(context.Context, *storage.BrokerCredential, string) (*broker.AccountBalance, error) {
	return &f.balance, nil
}

func TestHandleRefreshBalancesPersists(t *testing.T) {
	srv, db, repo := newTestServer(t)
	master, follower := seedCopySetup(t, db)

	srv.brokers.Register(storage.BrokerTastytrade, fetchingAdapter{
		balance: broker.AccountBalance{Balance: 12345.5, BuyingPower: 24691},
	})

	rec := httptest.NewRecorder()
	srv.handleRefreshBalances(rec, httptest.NewRequest(http.MethodPost, "/api/refresh-balances", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []balanceRefresh
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Len(t, out, 2)
	for _, entry := range out {
		assert.Empty(t, entry.Error)
		assert.Equal(t, 12345.5, entry.Balance)
	}

	for _, id := range []uint{master.ID, follower.ID} {
		acct, err := repo.GetAccount(id)
		require.NoError(t, err)
		assert.Equal(t, 12345.5, acct.Balance)
		assert.Equal(t, float64(24691), acct.BuyingPower)
	}
}

func TestHandleRefreshBalancesUnsupportedAdapter(t *testing.T) {
	srv, db, _ := newTestServer(t)
	seedCopySetup(t, db)

	// okAdapter has no balance capability; every account reports the gap.
	rec := httptest.NewRecorder()
	srv.handleRefreshBalances(rec, httptest.NewRequest(http.MethodPost, "/api/refresh-balances", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []balanceRefresh
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Len(t, out, 2)
	for _, entry := range out {
		assert.Equal(t, "balance refresh not supported for this broker", entry.Error)
	}
}

func jsonUint(v uint) string {
	b, _ := json.Marshal(v)
	return string(b)
}
