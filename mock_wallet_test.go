package coingift

import (
	"context"
	"fmt"
	"sync"

	"github.com/antonio-ivanovski/coin-gift/wallet"
	"github.com/lightningnetwork/lnd/lntypes"
)

// mockWallet implements wallet.Client in memory. Notifications are
// injected by calling notify.
type mockWallet struct {
	mtx sync.Mutex

	// holdInvoiceErr fails MakeHoldInvoice when set.
	holdInvoiceErr error

	// invoiceErr fails MakeInvoice when set.
	invoiceErr error

	// holdInvoices records the hashes hold invoices were created for.
	holdInvoices []lntypes.Hash

	// settledPreimages records preimages revealed via SettleHoldInvoice.
	settledPreimages []lntypes.Preimage

	// invoiceHash is the payment hash returned for regular invoices.
	invoiceHash lntypes.Hash

	handlers       map[int]wallet.NotificationHandler
	nextHandlerID  int
	subscribeCount int
}

func newMockWallet() *mockWallet {
	return &mockWallet{
		handlers: make(map[int]wallet.NotificationHandler),
	}
}

func (m *mockWallet) MakeInvoice(ctx context.Context, amountMsat int64,
	description string) (*wallet.Transaction, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.invoiceErr != nil {
		return nil, m.invoiceErr
	}

	return &wallet.Transaction{
		Invoice:     fmt.Sprintf("lnbc-invoice-%d", amountMsat),
		PaymentHash: m.invoiceHash.String(),
		AmountMsat:  amountMsat,
		Description: description,
	}, nil
}

func (m *mockWallet) MakeHoldInvoice(ctx context.Context, amountMsat int64,
	paymentHash lntypes.Hash) (*wallet.Transaction, error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.holdInvoiceErr != nil {
		return nil, m.holdInvoiceErr
	}

	m.holdInvoices = append(m.holdInvoices, paymentHash)

	return &wallet.Transaction{
		Invoice:     fmt.Sprintf("lnbc-hold-%v", paymentHash),
		PaymentHash: paymentHash.String(),
		AmountMsat:  amountMsat,
	}, nil
}

func (m *mockWallet) SettleHoldInvoice(ctx context.Context,
	preimage lntypes.Preimage) error {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.settledPreimages = append(m.settledPreimages, preimage)

	return nil
}

func (m *mockWallet) SubscribeNotifications(
	handler wallet.NotificationHandler) (func(), error) {

	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.subscribeCount++
	m.nextHandlerID++
	id := m.nextHandlerID
	m.handlers[id] = handler

	return func() {
		m.mtx.Lock()
		defer m.mtx.Unlock()

		delete(m.handlers, id)
	}, nil
}

// notify pushes a notification to all subscribed handlers, mimicking the
// wallet service's push stream.
func (m *mockWallet) notify(notification wallet.Notification) {
	m.mtx.Lock()
	handlers := make([]wallet.NotificationHandler, 0, len(m.handlers))
	for _, handler := range m.handlers {
		handlers = append(handlers, handler)
	}
	m.mtx.Unlock()

	for _, handler := range handlers {
		handler(notification)
	}
}

// activeSubscriptions returns the number of live wallet subscriptions.
func (m *mockWallet) activeSubscriptions() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return len(m.handlers)
}

func paymentReceived(hash lntypes.Hash) wallet.Notification {
	return wallet.Notification{
		NotificationType: wallet.NotificationTypePaymentReceived,
		Notification: wallet.Transaction{
			PaymentHash: hash.String(),
		},
	}
}
