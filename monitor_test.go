package coingift

import (
	"context"
	"testing"
	"time"

	"github.com/antonio-ivanovski/coin-gift/test"
	"github.com/antonio-ivanovski/coin-gift/types"
	"github.com/antonio-ivanovski/coin-gift/wallet"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
)

type monitorTestContext struct {
	t       *testing.T
	wallet  *mockWallet
	store   *MockStore
	monitor *PaymentMonitor
}

func newMonitorTestContext(t *testing.T) *monitorTestContext {
	c := &monitorTestContext{
		t:      t,
		wallet: newMockWallet(),
		store:  NewMockStore(),
	}

	c.monitor = NewPaymentMonitor(&PaymentMonitorConfig{
		Wallet: c.wallet,
		Store:  c.store,
		Logger: testLogger(),
	})

	require.NoError(t, c.monitor.Start(context.Background()))

	t.Cleanup(c.monitor.Shutdown)

	return c
}

func TestMonitorStartIdempotent(t *testing.T) {
	defer test.Timeout()()

	c := newMonitorTestContext(t)

	// A second start must not open a second wallet subscription.
	require.NoError(t, c.monitor.Start(context.Background()))
	require.Equal(t, 1, c.wallet.subscribeCount)

	c.monitor.Shutdown()
	require.Equal(t, 0, c.wallet.activeSubscriptions())

	// Shutdown is idempotent too.
	c.monitor.Shutdown()

	_, err := c.monitor.Subscribe(lntypes.Hash{1}, nil)
	require.ErrorIs(t, err, ErrMonitorShuttingDown)
}

func TestMonitorFanout(t *testing.T) {
	defer test.Timeout()()

	c := newMonitorTestContext(t)

	preimage := lntypes.Preimage{1}
	hash := preimage.Hash()

	_, err := c.store.CreateDonation(
		context.Background(), 1000, hash, "",
	)
	require.NoError(t, err)

	var calls1, calls2 int
	cancel1, err := c.monitor.Subscribe(hash,
		func(status PaymentStatus, _ wallet.Notification) {
			require.Equal(t, PaymentStatusSettled, status)
			calls1++
		})
	require.NoError(t, err)

	cancel2, err := c.monitor.Subscribe(hash,
		func(status PaymentStatus, _ wallet.Notification) {
			calls2++
		})
	require.NoError(t, err)

	c.wallet.notify(paymentReceived(hash))

	// Both callbacks fire exactly once.
	require.Equal(t, 1, calls1)
	require.Equal(t, 1, calls2)

	// The donation is durably marked paid.
	require.Eventually(t, func() bool {
		c.store.Lock()
		defer c.store.Unlock()

		return c.store.Donations[hash].Status ==
			types.DonationStatusPaid
	}, time.Second, 10*time.Millisecond)

	// After unsubscribing, a replayed notification reaches no one.
	cancel1()
	cancel2()

	c.wallet.notify(paymentReceived(hash))
	require.Equal(t, 1, calls1)
	require.Equal(t, 1, calls2)
}

func TestMonitorDiscardsMalformedNotifications(t *testing.T) {
	defer test.Timeout()()

	c := newMonitorTestContext(t)

	var calls int
	cancel, err := c.monitor.Subscribe(lntypes.Hash{9},
		func(PaymentStatus, wallet.Notification) {
			calls++
		})
	require.NoError(t, err)
	defer cancel()

	// Missing payment hash.
	c.wallet.notify(wallet.Notification{
		NotificationType: wallet.NotificationTypePaymentReceived,
	})

	// Unparseable payment hash.
	c.wallet.notify(wallet.Notification{
		NotificationType: wallet.NotificationTypePaymentReceived,
		Notification:     wallet.Transaction{PaymentHash: "nothex"},
	})

	// Unhandled notification type.
	c.wallet.notify(wallet.Notification{
		NotificationType: wallet.NotificationTypeHoldInvoiceAccepted,
		Notification: wallet.Transaction{
			PaymentHash: lntypes.Hash{9}.String(),
		},
	})

	require.Zero(t, calls)

	c.monitor.Shutdown()
	require.Zero(t, c.store.SettleCalls)
}

func TestMonitorSubscriberPanicIsolation(t *testing.T) {
	defer test.Timeout()()

	c := newMonitorTestContext(t)

	hash := lntypes.Hash{2}

	cancelPanicking, err := c.monitor.Subscribe(hash,
		func(PaymentStatus, wallet.Notification) {
			panic("subscriber failure")
		})
	require.NoError(t, err)
	defer cancelPanicking()

	var calls int
	cancel, err := c.monitor.Subscribe(hash,
		func(PaymentStatus, wallet.Notification) {
			calls++
		})
	require.NoError(t, err)
	defer cancel()

	// The panicking subscriber must not prevent delivery to others.
	c.wallet.notify(paymentReceived(hash))
	require.Equal(t, 1, calls)
}
