package proration

import (
	"testing"
	"time"

	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCalculatePlanChange_UpgradeExample(t *testing.T) {
	periodStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	changeDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	res := CalculatePlanChange(periodStart, periodEnd, changeDate,
		decimal.RequireFromString("29.99"), decimal.RequireFromString("49.99"), "USD")

	require.Equal(t, 31, res.TotalDaysInPeriod)
	require.Equal(t, 17, res.DaysRemaining)
	require.True(t, res.UnusedAmount.Equal(decimal.RequireFromString("16.44")), "unused=%s", res.UnusedAmount)
	require.True(t, res.ProratedAmount.Equal(decimal.RequireFromString("27.41")), "prorated=%s", res.ProratedAmount)
	require.True(t, res.NetAmount.Equal(decimal.RequireFromString("10.97")), "net=%s", res.NetAmount)
	require.Equal(t, ports.ProrationCharge, res.Type)
}

func TestCalculatePlanChange_NoOpOutsideWindow(t *testing.T) {
	periodStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	changeDate := periodEnd

	res := CalculatePlanChange(periodStart, periodEnd, changeDate,
		decimal.RequireFromString("29.99"), decimal.RequireFromString("49.99"), "USD")

	require.Equal(t, ports.ProrationNone, res.Type)
	require.False(t, res.Applies)
}

func TestCalculatePlanChange_SameAmountIsNone(t *testing.T) {
	periodStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	changeDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	res := CalculatePlanChange(periodStart, periodEnd, changeDate,
		decimal.RequireFromString("29.99"), decimal.RequireFromString("29.99"), "USD")

	require.Equal(t, ports.ProrationNone, res.Type)
}

func TestCalculateCancellationRefund(t *testing.T) {
	periodStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	changeDate := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	res := CalculateCancellationRefund(periodStart, periodEnd, changeDate, decimal.RequireFromString("29.99"), "USD")

	require.True(t, res.NetAmount.IsNegative())
	require.Equal(t, ports.ProrationCredit, res.Type)
}

func TestCalculateCancellationRefund_AfterPeriodEndIsZero(t *testing.T) {
	periodStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	res := CalculateCancellationRefund(periodStart, periodEnd, periodEnd, decimal.RequireFromString("29.99"), "USD")

	require.False(t, res.Applies)
	require.Equal(t, ports.ProrationNone, res.Type)
}
