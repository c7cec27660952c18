package copytrade

import (
	"github.com/shopspring/decimal"

	"github.com/vdcapital/copytrader/internal/storage"
)

// Adjustment records one risk clamp for the audit trail.
type Adjustment struct {
	Reason string `json:"reason"`
	From   int64  `json:"from"`
	To     int64  `json:"to"`
}

const (
	ReasonMaxTradeSize   = "max_trade_size"
	ReasonMaxPctPerTrade = "max_percentage_per_trade"
)

// ApplyRiskLimits clamps the proposed quantity to the configured ceilings.
// Clamps only ever reduce quantity; a zero result is the caller's rejection
// signal. The size limit runs before the percentage limit; reversing the
// order can change the outcome when both bind, so it must stay fixed.
func ApplyRiskLimits(limits storage.RiskLimits, quantity int64, price, accountBalance float64) (int64, []Adjustment) {
	if !limits.Enabled || price <= 0 {
		return quantity, nil
	}

	var adjustments []Adjustment
	priceDec := decimal.NewFromFloat(price)
	hundred := decimal.NewFromInt(100)

	// Pass 1: absolute trade value ceiling.
	tradeValue := decimal.NewFromInt(quantity).Mul(priceDec)
	if limits.MaxTradeSize > 0 && tradeValue.GreaterThan(decimal.NewFromFloat(limits.MaxTradeSize)) {
		adjusted := decimal.NewFromFloat(limits.MaxTradeSize).Div(priceDec).Floor().IntPart()
		adjustments = append(adjustments, Adjustment{Reason: ReasonMaxTradeSize, From: quantity, To: adjusted})
		quantity = adjusted
	}

	// Pass 2: percentage-of-balance ceiling, recomputed with the possibly
	// clamped quantity.
	if quantity > 0 {
		if accountBalance <= 0 {
			// Any positive trade value exceeds any percentage of a zero
			// balance.
			adjustments = append(adjustments, Adjustment{Reason: ReasonMaxPctPerTrade, From: quantity, To: 0})
			return 0, adjustments
		}

		balanceDec := decimal.NewFromFloat(accountBalance)
		tradeValue = decimal.NewFromInt(quantity).Mul(priceDec)
		pctOfBalance := tradeValue.Div(balanceDec).Mul(hundred)
		if pctOfBalance.GreaterThan(decimal.NewFromFloat(limits.MaxPercentagePerTrade)) {
			adjusted := decimal.NewFromFloat(limits.MaxPercentagePerTrade).
				Div(hundred).
				Mul(balanceDec).
				Div(priceDec).
				Floor().
				IntPart()
			adjustments = append(adjustments, Adjustment{Reason: ReasonMaxPctPerTrade, From: quantity, To: adjusted})
			quantity = adjusted
		}
	}

	if quantity < 0 {
		quantity = 0
	}
	return quantity, adjustments
}
