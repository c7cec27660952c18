package broker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vdcapital/copytrader/internal/config"
	"github.com/vdcapital/copytrader/internal/logger"
	"github.com/vdcapital/copytrader/internal/storage"
)

func newTastytradeForTest(baseURL string) *Tastytrade {
	return NewTastytrade(config.BrokerEndpointConfig{BaseURL: baseURL, TimeoutSeconds: 2}, logger.Discard())
}

func testCredential() *storage.BrokerCredential {
	return &storage.BrokerCredential{
		ID:           1,
		BrokerType:   storage.BrokerTastytrade,
		SessionToken: "session-abc",
		IsActive:     true,
	}
}

func TestTastytradeSubmitEquityOrder(t *testing.T) {
	var got tastytradeOrder
	var rawKeys map[string]json.RawMessage
	var gotAuth, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		require.NoError(t, json.Unmarshal(body, &rawKeys))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"order_id": 987654}`))
	}))
	defer srv.Close()

	adapter := newTastytradeForTest(srv.URL)
	result := adapter.SubmitOrder(context.Background(), testCredential(), "5WT1234", OrderSpec{
		Symbol:    "AAPL",
		Quantity:  10,
		Side:      storage.SideBuy,
		OrderType: storage.OrderMarket,
	})

	assert.True(t, result.OK)
	assert.Equal(t, "987654", result.BrokerOrderID)
	assert.Equal(t, "Bearer session-abc", gotAuth)
	assert.Equal(t, "/accounts/5WT1234/orders", gotPath)

	assert.Equal(t, "5WT1234", got.AccountNumber)
	assert.Equal(t, "MARKET", got.OrderType)
	assert.Equal(t, "debit", got.PriceEffect)
	assert.Equal(t, "Day", got.TimeInForce)
	assert.NotEmpty(t, got.ExternalOrderID)
	// Payload keys are uniformly snake_case.
	assert.Contains(t, rawKeys, "external_order_id")
	assert.Contains(t, rawKeys, "account_number")
	require.Len(t, got.Legs, 1)
	assert.Equal(t, "Equity", got.Legs[0].InstrumentType)
	assert.Equal(t, "AAPL", got.Legs[0].Symbol)
	assert.Equal(t, int64(10), got.Legs[0].Quantity)
	assert.Equal(t, "BUY", got.Legs[0].Side)
}

func TestTastytradeSubmitOptionOrder(t *testing.T) {
	var got tastytradeOrder

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"order_id": "11"}`))
	}))
	defer srv.Close()

	adapter := newTastytradeForTest(srv.URL)
	result := adapter.SubmitOrder(context.Background(), testCredential(), "5WT1234", OrderSpec{
		Symbol:     "AAPL",
		Quantity:   2,
		Side:       storage.SideSell,
		OrderType:  storage.OrderLimit,
		LimitPrice: 3.5,
		IsOption:   true,
		Option: &OptionLeg{
			Expiration: "2025-01-17",
			Strike:     150,
			Type:       storage.OptionCall,
		},
	})

	assert.True(t, result.OK)
	require.Len(t, got.Legs, 1)
	assert.Equal(t, "Equity Option", got.Legs[0].InstrumentType)
	assert.Equal(t, "AAPL20250117C00150000", got.Legs[0].Symbol)
	assert.Equal(t, "SELL", got.Legs[0].Side)
	assert.Equal(t, "credit", got.PriceEffect)
	assert.Equal(t, 3.5, got.Price)
}

func TestTastytradeSubmitRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error": {"message": "insufficient buying power"}}`))
	}))
	defer srv.Close()

	adapter := newTastytradeForTest(srv.URL)
	result := adapter.SubmitOrder(context.Background(), testCredential(), "5WT1234", OrderSpec{
		Symbol: "AAPL", Quantity: 10, Side: storage.SideBuy, OrderType: storage.OrderMarket,
	})

	assert.False(t, result.OK)
	assert.Equal(t, "insufficient buying power", result.Message)
}

func TestTastytradeSubmitTransportFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close() // connection refused from here on

	adapter := newTastytradeForTest(srv.URL)
	result := adapter.SubmitOrder(context.Background(), testCredential(), "5WT1234", OrderSpec{
		Symbol: "AAPL", Quantity: 10, Side: storage.SideBuy, OrderType: storage.OrderMarket,
	})

	assert.False(t, result.OK)
	assert.NotEmpty(t, result.Message)
}

func TestTastytradeSubmitMissingToken(t *testing.T) {
	adapter := newTastytradeForTest("http://localhost:1")
	cred := testCredential()
	cred.SessionToken = ""

	result := adapter.SubmitOrder(context.Background(), cred, "5WT1234", OrderSpec{
		Symbol: "AAPL", Quantity: 1, Side: storage.SideBuy, OrderType: storage.OrderMarket,
	})

	assert.False(t, result.OK)
	assert.Equal(t, "no session token available", result.Message)
}

func TestTastytradeCheckHealth(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/customers/me", r.URL.Path)
			w.Write([]byte(`{"data": {}}`))
		}))
		defer srv.Close()

		health := newTastytradeForTest(srv.URL).CheckHealth(context.Background(), testCredential())
		assert.Equal(t, storage.StatusConnected, health.State)
	})

	t.Run("expired token", func(t *testing.T) {
		cred := testCredential()
		past := time.Now().Add(-time.Hour)
		cred.Expiry = &past

		health := newTastytradeForTest("http://localhost:1").CheckHealth(context.Background(), cred)
		assert.Equal(t, storage.StatusDisconnected, health.State)
		assert.Equal(t, "session token expired", health.Message)
	})

	t.Run("no token", func(t *testing.T) {
		cred := testCredential()
		cred.SessionToken = ""

		health := newTastytradeForTest("http://localhost:1").CheckHealth(context.Background(), cred)
		assert.Equal(t, storage.StatusDisconnected, health.State)
	})

	t.Run("api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "invalid session"}`))
		}))
		defer srv.Close()

		health := newTastytradeForTest(srv.URL).CheckHealth(context.Background(), testCredential())
		assert.Equal(t, storage.StatusError, health.State)
		assert.Equal(t, "invalid session", health.Message)
	})
}

func TestTastytradeFetchBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/accounts/5WT1234/balances", r.URL.Path)
		w.Write([]byte(`{"data": {"cash-balance": "25000.50", "equity-buying-power": "50001"}}`))
	}))
	defer srv.Close()

	balance, err := newTastytradeForTest(srv.URL).FetchBalance(context.Background(), testCredential(), "5WT1234")
	require.NoError(t, err)
	assert.Equal(t, 25000.50, balance.Balance)
	assert.Equal(t, 50001.0, balance.BuyingPower)
}

func TestOCCOptionSymbol(t *testing.T) {
	tests := []struct {
		underlying string
		leg        OptionLeg
		want       string
	}{
		{"AAPL", OptionLeg{Expiration: "2025-01-17", Strike: 150, Type: storage.OptionCall}, "AAPL20250117C00150000"},
		{"SPY", OptionLeg{Expiration: "2025-06-20", Strike: 450.5, Type: storage.OptionPut}, "SPY20250620P00450500"},
		{"F", OptionLeg{Expiration: "2024-12-20", Strike: 12, Type: storage.OptionPut}, "F20241220P00012000"},
	}

	for _, tt := range tests {
		leg := tt.leg
		assert.Equal(t, tt.want, occOptionSymbol(tt.underlying, &leg))
	}
}
