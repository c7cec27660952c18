package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vdcapital/copytrader/internal/storage"
)

// OptionLeg describes the option contract when an order is for an option.
type OptionLeg struct {
	Expiration string             `json:"expiration"` // YYYY-MM-DD
	Strike     float64            `json:"strike"`
	Type       storage.OptionType `json:"type"`
}

// OrderSpec is the broker-neutral order shape. Each adapter translates it
// into its broker's wire format.
type OrderSpec struct {
	Symbol     string
	Quantity   int64
	Side       storage.TradeSide
	OrderType  storage.OrderType
	LimitPrice float64
	IsOption   bool
	Option     *OptionLeg
}

// SubmitResult normalizes all submit outcomes. Broker rejections (bad symbol,
// insufficient buying power, closed market) and transport faults both land
// here as OK=false; adapters do not surface errors any other way.
type SubmitResult struct {
	OK            bool
	BrokerOrderID string
	Raw           json.RawMessage
	Message       string
}

// AccountBalance is the dashboard-facing balance shape shared by adapters.
type AccountBalance struct {
	Balance     float64
	BuyingPower float64
}

// Position is one open position on a broker account.
type Position struct {
	Symbol       string
	Quantity     float64
	AveragePrice float64
}

type HealthStatus struct {
	State     storage.ConnectionStatus
	Message   string
	Timestamp time.Time
}

// Adapter is implemented once per broker type. SubmitOrder must be safe to
// call regardless of the last reported health: a stale "connected" status is
// not a precondition for submitting.
type Adapter interface {
	SubmitOrder(ctx context.Context, cred *storage.BrokerCredential, accountRef string, spec OrderSpec) SubmitResult
	CheckHealth(ctx context.Context, cred *storage.BrokerCredential) HealthStatus
}

// BalanceFetcher is the optional capability of adapters that can read
// account balances. Follower balances drive percentage allocation and the
// max-percentage risk limit, so they are refreshed through this rather
// than entered by hand.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context, cred *storage.BrokerCredential, accountRef string) (*AccountBalance, error)
}

// Registry maps broker types to adapters. Adding a broker means adding an
// adapter and registering it; callers never branch on broker type themselves.
type Registry struct {
	adapters map[storage.BrokerType]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[storage.BrokerType]Adapter)}
}

func (r *Registry) Register(t storage.BrokerType, a Adapter) {
	r.adapters[t] = a
}

func (r *Registry) Lookup(t storage.BrokerType) (Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("unsupported broker type: %s", t)
	}
	return a, nil
}
