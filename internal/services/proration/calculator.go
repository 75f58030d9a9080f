// Package proration implements day-based prorated credit/charge arithmetic
// for mid-period subscription plan changes and cancellations, using
// shopspring/decimal for HALF_UP fixed-point arithmetic throughout.
package proration

import (
	"time"

	"github.com/meridianpay/gatewaycore/internal/domain/ports"
	"github.com/shopspring/decimal"
)

const (
	dailyRateScale = 4
	amountScale    = 2
	maxAbsNet      = 10000
	maxTotalDays   = 400
)

// Result carries the full arithmetic breakdown of a proration so callers
// can surface the explanation alongside the net amount.
type Result struct {
	OriginalAmount   decimal.Decimal
	NewAmount        decimal.Decimal
	PeriodStart      time.Time
	PeriodEnd        time.Time
	ChangeDate       time.Time
	TotalDaysInPeriod int
	DaysUsed         int
	DaysRemaining    int
	UnusedAmount     decimal.Decimal
	ProratedAmount   decimal.Decimal
	NetAmount        decimal.Decimal
	Type             ports.ProrationType
	Currency         string
	Applies          bool
	Reason           string
	Explanation      string
}

// CalculatePlanChange computes the mid-period charge or credit for a plan
// change:
//
//	total_days = days(period_end - period_start)
//	days_used = max(0, days(change_date - period_start))
//	days_remaining = total_days - days_used
//	daily_old = round_half_up(original / total_days, 4dp)
//	daily_new = round_half_up(new / total_days, 4dp)
//	unused = daily_old * days_remaining
//	prorated = daily_new * days_remaining
//	net = round_half_up(prorated - unused, 2dp)
//
// The reported UnusedAmount and ProratedAmount are unused and prorated
// rounded half-up to 2dp; net is computed from the unrounded products.
func CalculatePlanChange(periodStart, periodEnd, changeDate time.Time, original, newAmount decimal.Decimal, currency string) Result {
	totalDays := daysBetween(periodStart, periodEnd)
	daysUsed := daysBetween(periodStart, changeDate)
	if daysUsed < 0 {
		daysUsed = 0
	}
	daysRemaining := totalDays - daysUsed
	if daysRemaining < 0 {
		daysRemaining = 0
	}

	res := Result{
		OriginalAmount:    original,
		NewAmount:         newAmount,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		ChangeDate:        changeDate,
		TotalDaysInPeriod: totalDays,
		DaysUsed:          daysUsed,
		DaysRemaining:     daysRemaining,
		Currency:          currency,
	}

	inWindow := changeDate.After(periodStart) && changeDate.Before(periodEnd)
	if !inWindow || original.Equal(newAmount) || totalDays <= 0 {
		res.Type = ports.ProrationNone
		res.Applies = false
		res.Reason = "change date outside period or amount unchanged"
		return res
	}

	dailyOld := roundHalfUp(divideSafe(original, totalDays), dailyRateScale)
	dailyNew := roundHalfUp(divideSafe(newAmount, totalDays), dailyRateScale)

	unusedRaw := dailyOld.Mul(decimal.NewFromInt(int64(daysRemaining)))
	proratedRaw := dailyNew.Mul(decimal.NewFromInt(int64(daysRemaining)))
	// unused/prorated are reported at money scale; net is rounded once, from
	// the unrounded products.
	unused := roundHalfUp(unusedRaw, amountScale)
	prorated := roundHalfUp(proratedRaw, amountScale)
	net := roundHalfUp(proratedRaw.Sub(unusedRaw), amountScale)

	res.UnusedAmount = unused
	res.ProratedAmount = prorated
	res.NetAmount = net
	res.Applies = true

	switch {
	case net.GreaterThan(decimal.Zero):
		res.Type = ports.ProrationCharge
		res.Explanation = "plan upgrade: charge the prorated difference for the remainder of the period"
	case net.LessThan(decimal.Zero):
		res.Type = ports.ProrationCredit
		res.Explanation = "plan downgrade: credit the unused portion of the higher plan"
	default:
		res.Type = ports.ProrationNone
		res.Explanation = "net proration is zero"
	}

	return clampSanity(res)
}

// CalculateCancellationRefund computes the refund proration for a
// cancellation: net = -daily_old * days_remaining, capped at zero once
// change_date >= period_end.
func CalculateCancellationRefund(periodStart, periodEnd, changeDate time.Time, original decimal.Decimal, currency string) Result {
	totalDays := daysBetween(periodStart, periodEnd)
	daysUsed := daysBetween(periodStart, changeDate)
	if daysUsed < 0 {
		daysUsed = 0
	}
	daysRemaining := totalDays - daysUsed
	if daysRemaining < 0 || !changeDate.Before(periodEnd) {
		daysRemaining = 0
	}

	res := Result{
		OriginalAmount:    original,
		NewAmount:         decimal.Zero,
		PeriodStart:       periodStart,
		PeriodEnd:         periodEnd,
		ChangeDate:        changeDate,
		TotalDaysInPeriod: totalDays,
		DaysUsed:          daysUsed,
		DaysRemaining:     daysRemaining,
		Currency:          currency,
	}

	if totalDays <= 0 || daysRemaining <= 0 {
		res.Type = ports.ProrationNone
		res.Applies = false
		res.Reason = "no remaining days in period"
		return res
	}

	dailyOld := roundHalfUp(divideSafe(original, totalDays), dailyRateScale)
	unused := roundHalfUp(dailyOld.Mul(decimal.NewFromInt(int64(daysRemaining))), amountScale)
	net := roundHalfUp(unused.Neg(), amountScale)

	res.UnusedAmount = unused
	res.ProratedAmount = decimal.Zero
	res.NetAmount = net
	res.Applies = true
	res.Type = ports.ProrationCredit
	res.Explanation = "cancellation: credit the unused portion of the current period"

	return clampSanity(res)
}

func clampSanity(res Result) Result {
	if res.NetAmount.Abs().GreaterThan(decimal.NewFromInt(maxAbsNet)) {
		if res.NetAmount.IsPositive() {
			res.NetAmount = decimal.NewFromInt(maxAbsNet)
		} else {
			res.NetAmount = decimal.NewFromInt(-maxAbsNet)
		}
	}
	if res.TotalDaysInPeriod > maxTotalDays {
		res.TotalDaysInPeriod = maxTotalDays
	}
	if res.DaysRemaining < 0 {
		res.DaysRemaining = 0
	}
	return res
}

func daysBetween(from, to time.Time) int {
	d := to.Sub(from)
	return int(d.Hours() / 24)
}

func divideSafe(amount decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return amount.Div(decimal.NewFromInt(int64(days)))
}

// roundHalfUp rounds to the given number of decimal places using HALF_UP
// semantics (ties round away from zero).
// decimal.Decimal.Round already implements round-half-away-from-zero.
func roundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}
