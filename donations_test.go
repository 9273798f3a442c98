package coingift

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/antonio-ivanovski/coin-gift/test"
	"github.com/antonio-ivanovski/coin-gift/types"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
)

type waitlistTestContext struct {
	*monitorTestContext

	service *WaitlistService
}

func newWaitlistTestContext(t *testing.T) *waitlistTestContext {
	c := &waitlistTestContext{
		monitorTestContext: newMonitorTestContext(t),
	}

	c.service = NewWaitlistService(&WaitlistServiceConfig{
		Store:  c.store,
		Wallet: c.wallet,
		Logger: testLogger(),
	})

	return c
}

func TestCreateDonation(t *testing.T) {
	defer test.Timeout()()

	c := newWaitlistTestContext(t)
	c.wallet.invoiceHash = lntypes.Hash{1}

	donation, err := c.service.CreateDonation(
		context.Background(), DefaultDonationAmountSats, "",
	)
	require.NoError(t, err)
	require.Equal(t, types.DonationStatusPending, donation.Status)
	require.Equal(t, lntypes.Hash{1}, donation.PaymentHash)
	require.NotEmpty(t, donation.Invoice)

	// A second invoice with the same payment hash must be rejected.
	_, err = c.service.CreateDonation(
		context.Background(), DefaultDonationAmountSats, "",
	)
	require.ErrorIs(t, err, types.ErrDuplicatePaymentHash)
}

func TestDonationSettlement(t *testing.T) {
	defer test.Timeout()()

	c := newWaitlistTestContext(t)

	preimage := lntypes.Preimage{5}
	hash := preimage.Hash()
	c.wallet.invoiceHash = hash

	donation, err := c.service.CreateDonation(
		context.Background(), 2100, "",
	)
	require.NoError(t, err)

	c.wallet.notify(paymentReceived(hash))

	// The monitor marks the donation paid asynchronously.
	require.Eventually(t, func() bool {
		c.store.Lock()
		defer c.store.Unlock()

		return c.store.Donations[hash].Status ==
			types.DonationStatusPaid
	}, time.Second, 10*time.Millisecond)

	// Settlement is idempotent, a replay stays paid.
	c.wallet.notify(paymentReceived(hash))
	c.monitor.Shutdown()

	require.Equal(t, types.DonationStatusPaid,
		c.store.Donations[hash].Status)
	require.Equal(t, donation.ID, c.store.Donations[hash].ID)
}

func TestSignup(t *testing.T) {
	defer test.Timeout()()

	c := newWaitlistTestContext(t)

	result, err := c.service.Signup(
		context.Background(), "alice@example.com", 0,
	)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", result.Signup.Email)
	require.Nil(t, result.Donation)

	_, err = c.service.Signup(
		context.Background(), "alice@example.com", 0,
	)
	require.ErrorIs(t, err, types.ErrDuplicateEmail)
}

func TestSignupWithDonation(t *testing.T) {
	defer test.Timeout()()

	c := newWaitlistTestContext(t)
	c.wallet.invoiceHash = lntypes.Hash{8}

	result, err := c.service.Signup(
		context.Background(), "bob@example.com", 5000,
	)
	require.NoError(t, err)
	require.NotNil(t, result.Donation)
	require.Equal(t, result.Signup.ID, result.Donation.SignupID)
	require.EqualValues(t, 5000, result.Donation.AmountSats)
}

func TestSignupSurvivesDonationFailure(t *testing.T) {
	defer test.Timeout()()

	c := newWaitlistTestContext(t)
	c.wallet.invoiceErr = errors.New("wallet unavailable")

	// The signup is durable even when the donation invoice cannot be
	// created.
	result, err := c.service.Signup(
		context.Background(), "carol@example.com", 5000,
	)
	require.NoError(t, err)
	require.NotNil(t, result.Signup)
	require.Nil(t, result.Donation)
}
