package models

import "github.com/shopspring/decimal"

// Order aggregates the line-item amounts of a purchase; its paid/refunded/
// outstanding figures are derived read-side from linked Transactions rather
// than stored, since Order never itself changes state.
type Order struct {
	ID         string
	CustomerID string
	Subtotal   decimal.Decimal
	Tax        decimal.Decimal
	Shipping   decimal.Decimal
	Discount   decimal.Decimal
}

// Total returns subtotal + tax + shipping - discount.
func (o *Order) Total() decimal.Decimal {
	return o.Subtotal.Add(o.Tax).Add(o.Shipping).Sub(o.Discount)
}

// OrderSummary is the derived view computed from an Order and its
// Transactions.
type OrderSummary struct {
	Order       Order
	Total       decimal.Decimal
	Paid        decimal.Decimal
	Refunded    decimal.Decimal
	Outstanding decimal.Decimal
}

// SummarizeOrder computes the derived paid/refunded/outstanding amounts for
// an Order from its settled/refunded Transactions. Transactions not linked
// to this order or not in a money-moved status are ignored.
func SummarizeOrder(order Order, txs []*Transaction) OrderSummary {
	total := order.Total()
	paid := decimal.Zero
	refunded := decimal.Zero
	for _, t := range txs {
		if t.OrderID != order.ID {
			continue
		}
		switch t.Status {
		case PaymentStatusCaptured, PaymentStatusSettled, PaymentStatusPartiallyRefunded:
			if t.Type == TransactionTypeCapture || t.Type == TransactionTypePurchase {
				paid = paid.Add(t.Amount)
			}
		case PaymentStatusRefunded:
			if t.Type == TransactionTypeRefund || t.Type == TransactionTypePartialRefund {
				refunded = refunded.Add(t.Amount)
			}
		}
		if t.Status == PaymentStatusPartiallyRefunded && (t.Type == TransactionTypeRefund || t.Type == TransactionTypePartialRefund) {
			refunded = refunded.Add(t.Amount)
		}
	}
	return OrderSummary{
		Order:       order,
		Total:       total,
		Paid:        paid,
		Refunded:    refunded,
		Outstanding: total.Sub(paid).Add(refunded),
	}
}
