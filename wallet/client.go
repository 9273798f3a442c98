package wallet

import (
	"context"

	"github.com/lightningnetwork/lnd/lntypes"
)

// Notification types pushed by the wallet service.
const (
	// NotificationTypePaymentReceived signals that an invoice was paid.
	NotificationTypePaymentReceived = "payment_received"

	// NotificationTypeHoldInvoiceAccepted signals that the htlcs paying a
	// hold invoice have been accepted but not yet settled.
	NotificationTypeHoldInvoiceAccepted = "hold_invoice_accepted"
)

// Transaction is the wallet service's representation of an invoice or
// payment.
type Transaction struct {
	Invoice     string `json:"invoice"`
	PaymentHash string `json:"payment_hash"`
	Preimage    string `json:"preimage,omitempty"`
	AmountMsat  int64  `json:"amount,omitempty"`
	Description string `json:"description,omitempty"`
	SettledAt   int64  `json:"settled_at,omitempty"`
}

// Hash parses the transaction's payment hash.
func (t *Transaction) Hash() (lntypes.Hash, error) {
	return lntypes.MakeHashFromStr(t.PaymentHash)
}

// Notification is a payment event pushed by the wallet service.
type Notification struct {
	NotificationType string      `json:"notification_type"`
	Notification     Transaction `json:"notification"`
}

// NotificationHandler receives wallet service notifications.
type NotificationHandler func(Notification)

// Client is the wallet-connect service used to create and monitor
// invoices. Invoice encoding, signing and expiry are the service's
// responsibility.
type Client interface {
	// MakeInvoice creates a regular invoice for the given amount.
	MakeInvoice(ctx context.Context, amountMsat int64,
		description string) (*Transaction, error)

	// MakeHoldInvoice creates a hold invoice locked to the given payment
	// hash. The invoice only settles when the matching preimage is later
	// revealed via SettleHoldInvoice.
	MakeHoldInvoice(ctx context.Context, amountMsat int64,
		paymentHash lntypes.Hash) (*Transaction, error)

	// SettleHoldInvoice reveals a preimage to settle a previously
	// accepted hold invoice.
	SettleHoldInvoice(ctx context.Context,
		preimage lntypes.Preimage) error

	// SubscribeNotifications registers a handler for payment events. The
	// returned function cancels the subscription.
	SubscribeNotifications(handler NotificationHandler) (func(), error)
}
