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

// Schwab speaks the Schwab trading REST API. Unlike Tastytrade the order
// payload is flat, with option details nested under optionDetails.
type Schwab struct {
	baseURL string
	client  *http.Client
	logger  *logger.Logger
}

func NewSchwab(cfg config.BrokerEndpointConfig, log *logger.Logger) *Schwab {
	return &Schwab{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger:  log,
	}
}

type schwabOptionDetails struct {
	ExpirationDate string  `json:"expirationDate"`
	StrikePrice    float64 `json:"strikePrice"`
	OptionType     string  `json:"optionType"`
}

type schwabOrder struct {
	AccountID     string               `json:"accountId"`
	ClientOrderID string               `json:"clientOrderId"`
	Symbol        string               `json:"symbol"`
	Quantity      int64                `json:"quantity"`
	Side          string               `json:"side"`
	OrderType     string               `json:"orderType"`
	LimitPrice    float64              `json:"limitPrice,omitempty"`
	TimeInForce   string               `json:"timeInForce"`
	SecurityType  string               `json:"securityType"`
	OptionDetails *schwabOptionDetails `json:"optionDetails,omitempty"`
}

func (s *Schwab) SubmitOrder(ctx context.Context, cred *storage.BrokerCredential, accountRef string, spec OrderSpec) SubmitResult {
	if cred.SessionToken == "" {
		return SubmitResult{OK: false, Message: "no access token available"}
	}

	order := schwabOrder{
		AccountID:     accountRef,
		ClientOrderID: uuid.NewString(),
		Symbol:        spec.Symbol,
		Quantity:      spec.Quantity,
		Side:          strings.ToUpper(string(spec.Side)),
		OrderType:     strings.ToUpper(string(spec.OrderType)),
		TimeInForce:   "DAY",
		SecurityType:  "EQUITY",
	}
	if spec.OrderType == storage.OrderLimit && spec.LimitPrice > 0 {
		order.LimitPrice = spec.LimitPrice
	}
	if spec.IsOption && spec.Option != nil {
		order.SecurityType = "OPTION"
		order.OptionDetails = &schwabOptionDetails{
			ExpirationDate: spec.Option.Expiration,
			StrikePrice:    spec.Option.Strike,
			OptionType:     strings.ToUpper(string(spec.Option.Type)),
		}
	}

	url := fmt.Sprintf("%s/v1/accounts/%s/orders", s.baseURL, accountRef)
	status, body, err := postJSON(ctx, s.client, url, cred.SessionToken, order)
	if err != nil {
		s.logger.Error("schwab submit transport failure", "account", accountRef, "error", err)
		return SubmitResult{OK: false, Message: err.Error()}
	}
	if status < 200 || status >= 300 {
		return SubmitResult{OK: false, Message: errorMessage(body, "failed to execute trade"), Raw: body}
	}

	var resp struct {
		OrderID json.Number `json:"orderId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.OrderID.String() == "" {
		return SubmitResult{OK: false, Message: "failed to execute trade", Raw: body}
	}

	return SubmitResult{OK: true, BrokerOrderID: resp.OrderID.String(), Raw: body}
}

func (s *Schwab) CheckHealth(ctx context.Context, cred *storage.BrokerCredential) HealthStatus {
	now := time.Now()

	if cred.SessionToken == "" {
		return HealthStatus{State: storage.StatusDisconnected, Message: "no access token available", Timestamp: now}
	}
	if cred.Expiry != nil && cred.Expiry.Before(now) {
		// Token refresh lives in the external credential service; a stale
		// token here is simply a disconnected broker.
		return HealthStatus{State: storage.StatusDisconnected, Message: "access token expired", Timestamp: now}
	}

	status, body, err := getJSON(ctx, s.client, s.baseURL+"/v1/userinfo", cred.SessionToken)
	if err != nil {
		return HealthStatus{State: storage.StatusError, Message: err.Error(), Timestamp: now}
	}
	if status != http.StatusOK {
		return HealthStatus{State: storage.StatusError, Message: errorMessage(body, "failed to validate access token"), Timestamp: now}
	}

	return HealthStatus{State: storage.StatusConnected, Timestamp: now}
}

func (s *Schwab) FetchBalance(ctx context.Context, cred *storage.BrokerCredential, accountRef string) (*AccountBalance, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s/balances", s.baseURL, accountRef)
	status, body, err := getJSON(ctx, s.client, url, cred.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("fetch balance: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch balance: %s", errorMessage(body, fmt.Sprintf("status %d", status)))
	}

	var resp struct {
		CashBalance json.Number `json:"cashBalance"`
		BuyingPower json.Number `json:"buyingPower"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}

	balance, _ := resp.CashBalance.Float64()
	buyingPower, _ := resp.BuyingPower.Float64()
	return &AccountBalance{Balance: balance, BuyingPower: buyingPower}, nil
}

func (s *Schwab) FetchPositions(ctx context.Context, cred *storage.BrokerCredential, accountRef string) ([]Position, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s/positions", s.baseURL, accountRef)
	status, body, err := getJSON(ctx, s.client, url, cred.SessionToken)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("fetch positions: %s", errorMessage(body, fmt.Sprintf("status %d", status)))
	}

	var resp struct {
		Positions []struct {
			Symbol       string      `json:"symbol"`
			Quantity     json.Number `json:"quantity"`
			AveragePrice json.Number `json:"averagePrice"`
		} `json:"positions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}

	positions := make([]Position, 0, len(resp.Positions))
	for _, item := range resp.Positions {
		qty, _ := item.Quantity.Float64()
		avg, _ := item.AveragePrice.Float64()
		positions = append(positions, Position{
			Symbol:       item.Symbol,
			Quantity:     qty,
			AveragePrice: avg,
		})
	}
	return positions, nil
}
