package coingift

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.SugaredLogger {
	logger, _ := zap.NewDevelopment()

	return logger.Sugar()
}

func TestIssueGiftInvoices(t *testing.T) {
	wallet := newMockWallet()
	issuer := NewInvoiceIssuer(&InvoiceIssuerConfig{
		Wallet: wallet,
		Logger: testLogger(),
	})

	gifts, err := issuer.IssueGiftInvoices(context.Background(), 5, 250)
	require.NoError(t, err)
	require.Len(t, gifts, 5)

	seen := make(map[string]struct{})
	for _, gift := range gifts {
		// The invoice is locked to the hash of this gift's preimage.
		hash := gift.Preimage.Hash()
		require.Equal(t, hash.String(), gift.Invoice.PaymentHash)
		require.EqualValues(t, 250*1000, gift.Invoice.AmountMsat)

		seen[hash.String()] = struct{}{}
	}

	// Preimages are independent.
	require.Len(t, seen, 5)
}

func TestIssueGiftInvoicesInvalidCount(t *testing.T) {
	issuer := NewInvoiceIssuer(&InvoiceIssuerConfig{
		Wallet: newMockWallet(),
		Logger: testLogger(),
	})

	_, err := issuer.IssueGiftInvoices(context.Background(), 0, 250)
	require.Error(t, err)
}

func TestIssueGiftInvoicesUpstreamFailure(t *testing.T) {
	wallet := newMockWallet()
	wallet.holdInvoiceErr = errors.New("wallet unavailable")

	issuer := NewInvoiceIssuer(&InvoiceIssuerConfig{
		Wallet: wallet,
		Logger: testLogger(),
	})

	// Any request failing fails the whole batch.
	_, err := issuer.IssueGiftInvoices(context.Background(), 3, 250)
	require.ErrorContains(t, err, "wallet unavailable")
}
