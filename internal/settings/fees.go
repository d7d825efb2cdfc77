// Package settings provides runtime settings consumed by the ledger service.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	"github.com/shopspring/decimal"
)

// ErrInvalidFeePercent is returned for percentages outside [0, 100].
var ErrInvalidFeePercent = errors.New("invalid cashout fee percent")

var (
	zeroPercent    = decimal.Zero
	hundredPercent = decimal.NewFromInt(100)
)

// CashoutFees quotes a flat percentage fee on every cashout.
// Fees are rounded down to whole points.
type CashoutFees struct {
	percent decimal.Decimal
}

// NewCashoutFees parses percent such as "2.5". An empty value means no fee.
func NewCashoutFees(percent string) (*CashoutFees, error) {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(percent), "%"))
	if trimmed == "" {
		return &CashoutFees{percent: zeroPercent}, nil
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFeePercent, percent)
	}
	if parsed.LessThan(zeroPercent) || parsed.GreaterThan(hundredPercent) {
		return nil, fmt.Errorf("%w: %s must be between 0 and 100", ErrInvalidFeePercent, parsed.String())
	}
	return &CashoutFees{percent: parsed}, nil
}

// Percent returns the configured percentage in canonical form.
func (fees *CashoutFees) Percent() string {
	return fees.percent.String()
}

// CashoutFee implements ledger.FeeSchedule.
func (fees *CashoutFees) CashoutFee(_ context.Context, amount ledger.Points) (ledger.CashoutFee, error) {
	if amount < 0 {
		return ledger.CashoutFee{}, fmt.Errorf("%w: cashout amount must not be negative", ledger.ErrInvalidAmount)
	}
	fee := decimal.NewFromInt(amount.Int64()).Mul(fees.percent).Div(hundredPercent).Floor()
	return ledger.CashoutFee{
		Percent: fees.percent.String(),
		Amount:  ledger.Points(fee.IntPart()),
	}, nil
}
