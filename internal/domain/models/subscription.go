package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// IntervalUnit is the billing cadence unit for a SubscriptionPlan.
type IntervalUnit string

const (
	IntervalDay   IntervalUnit = "DAY"
	IntervalWeek  IntervalUnit = "WEEK"
	IntervalMonth IntervalUnit = "MONTH"
	IntervalYear  IntervalUnit = "YEAR"
)

// SubscriptionPlan is immutable in its interval once any Subscription
// references it (only amount/name/active may change post-creation).
type SubscriptionPlan struct {
	Code         string
	Name         string
	Amount       decimal.Decimal
	Currency     string
	IntervalUnit IntervalUnit
	IntervalCount int
	TrialDays    int
	SetupFee     decimal.Decimal
	Active       bool
}

// SubscriptionStatus is the Subscription state machine. Edges:
//
//	PENDING  -> ACTIVE, CANCELLED
//	ACTIVE   -> PAST_DUE, PAUSED, CANCELLED
//	PAST_DUE -> ACTIVE, CANCELLED
//	PAUSED   -> ACTIVE, CANCELLED
//
// CANCELLED is terminal.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "PENDING"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue   SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusPaused    SubscriptionStatus = "PAUSED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
)

var subscriptionEdges = map[SubscriptionStatus]map[SubscriptionStatus]bool{
	SubscriptionStatusPending: {SubscriptionStatusActive: true, SubscriptionStatusCancelled: true},
	SubscriptionStatusActive:  {SubscriptionStatusPastDue: true, SubscriptionStatusPaused: true, SubscriptionStatusCancelled: true},
	SubscriptionStatusPastDue: {SubscriptionStatusActive: true, SubscriptionStatusCancelled: true},
	SubscriptionStatusPaused:  {SubscriptionStatusActive: true, SubscriptionStatusCancelled: true},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	return subscriptionEdges[s][next]
}

// IsTerminal reports whether s admits no further transitions.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled
}

// Subscription tracks a customer's recurring commitment to a plan. Scheduled
// mutations (cancel-at-period-end, plan changes) use dedicated typed fields;
// Metadata carries client annotations only.
type Subscription struct {
	ID                string
	CustomerID        string
	PlanCode          string
	PaymentMethodID   string
	Status            SubscriptionStatus

	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	BillingCycleAnchor time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
	NextBillingDate    *time.Time

	CancelledAt        *time.Time
	CancellationReason string

	ScheduledCancelAt      *time.Time
	ScheduledPlanCode      string
	ScheduledPlanChangeAt  *time.Time

	FailureRetryCount int

	IdempotencyKey string
	Metadata       map[string]string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanBeBilled reports whether s is eligible for a billing attempt.
func (s *Subscription) CanBeBilled() bool {
	return s.Status == SubscriptionStatusActive
}

// IsActive reports whether s is in the ACTIVE state.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// IsCancelled reports whether s is in the terminal CANCELLED state.
func (s *Subscription) IsCancelled() bool {
	return s.Status == SubscriptionStatusCancelled
}

// Advance computes the next period boundary from start for the given
// interval, calendar-correct: MONTH/YEAR additions clamp the resulting
// day-of-month to the target month's maximum instead of overflowing into
// the following month the way a naive time.AddDate does (e.g. Jan 31 + 1
// month lands on Feb 28/29, not Mar 3).
func Advance(start time.Time, unit IntervalUnit, count int) time.Time {
	switch unit {
	case IntervalDay:
		return start.AddDate(0, 0, count)
	case IntervalWeek:
		return start.AddDate(0, 0, 7*count)
	case IntervalMonth:
		return addClampedMonths(start, count)
	case IntervalYear:
		return addClampedMonths(start, 12*count)
	default:
		return start.AddDate(0, 0, count)
	}
}

func addClampedMonths(start time.Time, months int) time.Time {
	y, m, d := start.Date()
	totalMonths := int(m) - 1 + months
	targetYear := y + totalMonths/12
	targetMonthIdx := totalMonths % 12
	if targetMonthIdx < 0 {
		targetMonthIdx += 12
		targetYear--
	}
	targetMonth := time.Month(targetMonthIdx + 1)

	lastDay := daysInMonth(targetYear, targetMonth)
	day := d
	if day > lastDay {
		day = lastDay
	}
	return time.Date(targetYear, targetMonth, day, start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), start.Location())
}

func daysInMonth(year int, month time.Month) int {
	firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
	lastOfThis := firstOfNext.AddDate(0, 0, -1)
	return lastOfThis.Day()
}
