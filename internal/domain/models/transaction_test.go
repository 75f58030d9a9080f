package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{"pending to authorized", PaymentStatusPending, PaymentStatusAuthorized, true},
		{"pending to failed", PaymentStatusPending, PaymentStatusFailed, true},
		{"pending to settled (purchase)", PaymentStatusPending, PaymentStatusSettled, true},
		{"pending to captured skips authorize", PaymentStatusPending, PaymentStatusCaptured, false},
		{"authorized to captured", PaymentStatusAuthorized, PaymentStatusCaptured, true},
		{"authorized to voided", PaymentStatusAuthorized, PaymentStatusVoided, true},
		{"authorized to refunded", PaymentStatusAuthorized, PaymentStatusRefunded, false},
		{"captured to settled", PaymentStatusCaptured, PaymentStatusSettled, true},
		{"captured to partially refunded", PaymentStatusCaptured, PaymentStatusPartiallyRefunded, true},
		{"settled to refunded", PaymentStatusSettled, PaymentStatusRefunded, true},
		{"settled to voided", PaymentStatusSettled, PaymentStatusVoided, false},
		{"pending review to settled", PaymentStatusPendingReview, PaymentStatusSettled, true},
		{"pending review to failed", PaymentStatusPendingReview, PaymentStatusFailed, true},
		{"failed is terminal", PaymentStatusFailed, PaymentStatusPending, false},
		{"voided is terminal", PaymentStatusVoided, PaymentStatusAuthorized, false},
		{"refunded is terminal", PaymentStatusRefunded, PaymentStatusSettled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPaymentStatus_TerminalStatesHaveNoEdges(t *testing.T) {
	all := []PaymentStatus{
		PaymentStatusPending, PaymentStatusAuthorized, PaymentStatusCaptured,
		PaymentStatusSettled, PaymentStatusPartiallyRefunded, PaymentStatusRefunded,
		PaymentStatusVoided, PaymentStatusFailed, PaymentStatusPendingReview,
	}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			require.False(t, from.CanTransitionTo(to), "%s -> %s must be illegal", from, to)
		}
	}
}

func TestTransaction_CanRefund(t *testing.T) {
	tx := &Transaction{Status: PaymentStatusSettled}
	require.True(t, tx.CanRefund())

	tx.Status = PaymentStatusPartiallyRefunded
	require.True(t, tx.CanRefund())

	tx.Status = PaymentStatusRefunded
	require.False(t, tx.CanRefund())

	tx.Status = PaymentStatusAuthorized
	require.False(t, tx.CanRefund())
}

func TestTransaction_CanCaptureAndVoid(t *testing.T) {
	tx := &Transaction{Status: PaymentStatusAuthorized}
	require.True(t, tx.CanCapture())
	require.True(t, tx.CanVoid())

	tx.Status = PaymentStatusCaptured
	require.False(t, tx.CanCapture())
	require.False(t, tx.CanVoid())
}
