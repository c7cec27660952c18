package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vdcapital/copytrader/internal/config"
	"github.com/vdcapital/copytrader/internal/logger"
	"github.com/vdcapital/copytrader/internal/storage"
)

// Tastytrade speaks the Tastytrade REST API. Orders are leg-based; option
// contracts use OCC-style composed symbols.
type Tastytrade struct {
	baseURL string
	client  *http.Client
	logger  *logger.Logger
}

func NewTastytrade(cfg config.BrokerEndpointConfig, log *logger.Logger) *Tastytrade {
	return &Tastytrade{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger:  log,
	}
}

type tastytradeLeg struct {
	InstrumentType string `json:"instrument_type"`
	Symbol         string `json:"symbol"`
	Quantity       int64  `json:"quantity"`
	Side           string `json:"side"`
}

type tastytradeOrder struct {
	AccountNumber   string          `json:"account_number"`
	Source          string          `json:"source"`
	OrderType       string          `json:"order_type"`
	Price           float64         `json:"price,omitempty"`
	PriceEffect     string          `json:"price_effect"`
	TimeInForce     string          `json:"time_in_force"`
	ExternalOrderID string          `json:"external_order_id"`
	Legs            []tastytradeLeg `json:"legs"`
}

func (t *Tastytrade) SubmitOrder(ctx context.Context, cred *storage.BrokerCredential, accountRef string, spec OrderSpec) SubmitResult {
	if cred.SessionToken == "" {
		return SubmitResult{OK: false, Message: "no session token available"}
	}

	priceEffect := "credit"
	if spec.Side == storage.SideBuy {
		priceEffect = "debit"
	}

	order := tastytradeOrder{
		AccountNumber:   accountRef,
		Source:          "API",
		OrderType:       strings.ToUpper(string(spec.OrderType)),
		PriceEffect:     priceEffect,
		TimeInForce:     "Day",
		ExternalOrderID: uuid.NewString(),
	}
	if spec.OrderType == storage.OrderLimit {
		order.Price = spec.LimitPrice
	}

	leg := tastytradeLeg{
		InstrumentType: "Equity",
		Symbol:         spec.Symbol,
		Quantity:       spec.Quantity,
		Side:           strings.ToUpper(string(spec.Side)),
	}
	if spec.IsOption && spec.Option != nil {
		leg.InstrumentType = "Equity Option"
		leg.Symbol = occOptionSymbol(spec.Symbol, spec.Option)
	}
	order.Legs = []tastytradeLeg{leg}

	url := fmt.Sprintf("%s/accounts/%s/orders", t.baseURL, accountRef)
	status, body, err := postJSON(ctx, t.client, url, cred.SessionToken, order)
	if err != nil {
		t.logger.Error("tastytrade submit transport failure", "account", accountRef, "error", err)
		return SubmitResult{OK: false, Message: err.Error()}
	}
	if status < 200 || status >= 300 {
		return SubmitResult{OK: false, Message: errorMessage(body, "failed to execute trade"), Raw: body}
	}

	var resp struct {
		OrderID json.Number `json:"order_id"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.OrderID.String() == "" {
		return SubmitResult{OK: false, Message: "failed to execute trade", Raw: body}
	}

	return SubmitResult{OK: true, BrokerOrderID: resp.OrderID.String(), Raw: body}
}

func (t *Tastytrade) CheckHealth(ctx context.Context, cred *storage.BrokerCredential) HealthStatus {
	now := time.Now()

	if cred.SessionToken == "" {
		return HealthStatus{State: storage.StatusDisconnected, Message: "no session token available", Timestamp: now}
	}
	if cred.Expiry != nil && cred.Expiry.Before(now) {
		return HealthStatus{State: storage.StatusDisconnected, Message: "session token expired", Timestamp: now}
	}

	status, body, err := getJSON(ctx, t.client, t.baseURL+"/customers/me", cred.SessionToken)
	if err != nil {
		return HealthStatus{State: storage.StatusError, Message: err.Error(), Timestamp: now}
	}
	if status != http.StatusOK {
		return HealthStatus{State: storage.StatusError, Message: errorMessage(body, "failed to validate session"), Timestamp: now}
	}

	return HealthStatus{State: storage.StatusConnected, Timestamp: now}
}

// FetchBalance returns the account's cash balance and buying power for the
// balance-refresh endpoint and the dashboard.
func (t *Tastytrade) FetchBalance(ctx context.Context, cred *storage.BrokerCredential, accountRef string) (*AccountBalance, error) {
	url := fmt.Sprintf("%s/accounts/%s/balances", t.baseURL, accountRef)
	status, body, err := getJSON(ctx, t.client, url, cred.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch balance: %s", errorMessage(body, fmt.Sprintf("status %d", status)))
	}

	var resp struct {
		Data struct {
			CashBalance       json.Number `json:"cash-balance"`
			EquityBuyingPower json.Number `json:"equity-buying-power"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}

	balance, _ := resp.Data.CashBalance.Float64()
	buyingPower, _ := resp.Data.EquityBuyingPower.Float64()
	return &AccountBalance{Balance: balance, BuyingPower: buyingPower}, nil
}

// FetchPositions lists open positions on the account.
func (t *Tastytrade) FetchPositions(ctx context.Context, cred *storage.BrokerCredential, accountRef string) ([]Position, error) {
	url := fmt.Sprintf("%s/accounts/%s/positions", t.baseURL, accountRef)
	status, body, err := getJSON(ctx, t.client, url, cred.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch positions: %s", errorMessage(body, fmt.Sprintf("status %d", status)))
	}

	var resp struct {
		Data struct {
			Items []struct {
				Symbol       string      `json:"symbol"`
				Quantity     json.Number `json:"quantity"`
				AverageOpen  json.Number `json:"average-open-price"`
				InstrumentAt string      `json:"instrument-type"`
			} `json:"items"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	positions := make([]Position, 0, len(resp.Data.Items))
	for _, item := range resp.Data.Items {
		qty, _ := item.Quantity.Float64()
		avg, _ := item.AverageOpen.Float64()
		positions = append(positions, Position{
			Symbol:       item.Symbol,
			Quantity:     qty,
			AveragePrice: avg,
		})
	}
	return positions, nil
}

// occOptionSymbol composes the option contract symbol: underlying, expiration
// with dashes stripped, C or P, and the strike in thousandths padded to
// eight digits. "AAPL", 2025-01-17, call @ 150 -> AAPL20250117C00150000.
func occOptionSymbol(underlying string, leg *OptionLeg) string {
	expiry := strings.ReplaceAll(leg.Expiration, "-", "")
	cp := "C"
	if leg.Type == storage.OptionPut {
		cp = "P"
	}
	return fmt.Sprintf("%s%s%s%08d", underlying, expiry, cp, int64(leg.Strike*1000))
}
