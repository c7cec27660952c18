package copytrade

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vdcapital/copytrader/internal/storage"
)

// ErrInvalidInput marks allocation inputs that cannot be sized, such as a
// non-positive source price.
var ErrInvalidInput = errors.New("invalid input")

// ComputeQuantity sizes the copied order for one follower account. The
// result is floored to whole units and never negative. Pure and
// deterministic: no I/O, no clock, no randomness.
func ComputeQuantity(policy storage.AllocationPolicy, source *storage.Trade, follower *storage.BrokerAccount) (int64, error) {
	if source.Price <= 0 {
		return 0, fmt.Errorf("%w: source trade price must be positive, got %v", ErrInvalidInput, source.Price)
	}

	if policy.Mode == storage.AllocMirror {
		if source.Quantity < 0 {
			return 0, nil
		}
		return source.Quantity, nil
	}

	price := decimal.NewFromFloat(source.Price)

	var tradeValue decimal.Decimal
	switch policy.Mode {
	case storage.AllocFixed:
		tradeValue = decimal.NewFromFloat(policy.FixedAmount)
	case storage.AllocPercentage:
		tradeValue = decimal.NewFromFloat(policy.Percentage).
			Div(decimal.NewFromInt(100)).
			Mul(decimal.NewFromFloat(follower.Balance))
	default:
		return 0, fmt.Errorf("%w: unknown allocation mode %q", ErrInvalidInput, policy.Mode)
	}

	qty := tradeValue.Div(price).Floor().IntPart()
	if qty < 0 {
		return 0, nil
	}
	return qty, nil
}
