package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscriptionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    SubscriptionStatus
		to      SubscriptionStatus
		allowed bool
	}{
		{"pending to active", SubscriptionStatusPending, SubscriptionStatusActive, true},
		{"pending to cancelled", SubscriptionStatusPending, SubscriptionStatusCancelled, true},
		{"pending to past due", SubscriptionStatusPending, SubscriptionStatusPastDue, false},
		{"active to past due", SubscriptionStatusActive, SubscriptionStatusPastDue, true},
		{"active to paused", SubscriptionStatusActive, SubscriptionStatusPaused, true},
		{"active to cancelled", SubscriptionStatusActive, SubscriptionStatusCancelled, true},
		{"past due to active", SubscriptionStatusPastDue, SubscriptionStatusActive, true},
		{"past due to paused", SubscriptionStatusPastDue, SubscriptionStatusPaused, false},
		{"paused to active", SubscriptionStatusPaused, SubscriptionStatusActive, true},
		{"cancelled is terminal", SubscriptionStatusCancelled, SubscriptionStatusActive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestAdvance_DayAndWeek(t *testing.T) {
	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2024, 3, 13, 12, 0, 0, 0, time.UTC), Advance(start, IntervalDay, 3))
	require.Equal(t, time.Date(2024, 3, 24, 12, 0, 0, 0, time.UTC), Advance(start, IntervalWeek, 2))
}

func TestAdvance_MonthClampsDayOfMonth(t *testing.T) {
	jan31 := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

	// 2024 is a leap year: Jan 31 + 1 month is Feb 29, not Mar 2.
	require.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), Advance(jan31, IntervalMonth, 1))

	// Non-leap February clamps to the 28th.
	jan31NonLeap := time.Date(2023, 1, 31, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2023, 2, 28, 0, 0, 0, 0, time.UTC), Advance(jan31NonLeap, IntervalMonth, 1))

	// Clamping does not stick: Jan 31 + 2 months is Mar 31.
	require.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), Advance(jan31, IntervalMonth, 2))
}

func TestAdvance_MonthAcrossYearBoundary(t *testing.T) {
	nov30 := time.Date(2024, 11, 30, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), Advance(nov30, IntervalMonth, 3))
}

func TestAdvance_YearClampsLeapDay(t *testing.T) {
	feb29 := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), Advance(feb29, IntervalYear, 1))
}

func TestSubscription_CanBeBilled(t *testing.T) {
	s := &Subscription{Status: SubscriptionStatusActive}
	require.True(t, s.CanBeBilled())

	for _, st := range []SubscriptionStatus{
		SubscriptionStatusPending, SubscriptionStatusPastDue,
		SubscriptionStatusPaused, SubscriptionStatusCancelled,
	} {
		s.Status = st
		require.False(t, s.CanBeBilled(), "status %s", st)
	}
}
