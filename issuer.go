package coingift

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/antonio-ivanovski/coin-gift/wallet"
	"github.com/lightningnetwork/lnd/lntypes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// msatPerSat converts satoshi amounts to the millisatoshi amounts the
// wallet service expects.
const msatPerSat = 1000

// IssuedGift pairs a freshly generated preimage with the hold invoice
// that is locked to its hash.
type IssuedGift struct {
	Preimage lntypes.Preimage
	Invoice  wallet.Transaction
}

// InvoiceIssuerConfig contains the configuration for the invoice issuer.
type InvoiceIssuerConfig struct {
	Wallet wallet.Client
	Logger *zap.SugaredLogger
}

// InvoiceIssuer requests hold invoices from the wallet service for
// batches of gifts. A hold invoice only settles when its preimage is
// later revealed, which is what decouples redemption from payment.
type InvoiceIssuer struct {
	wallet wallet.Client
	logger *zap.SugaredLogger
}

// NewInvoiceIssuer creates a new invoice issuer.
func NewInvoiceIssuer(cfg *InvoiceIssuerConfig) *InvoiceIssuer {
	return &InvoiceIssuer{
		wallet: cfg.Wallet,
		logger: cfg.Logger,
	}
}

// IssueGiftInvoices generates count independent random preimages and
// requests a hold invoice for each preimage hash. All requests run
// concurrently; the returned slice preserves input order, so result i
// corresponds to preimage i. If any request fails, the whole batch
// fails and no result is returned.
func (i *InvoiceIssuer) IssueGiftInvoices(ctx context.Context, count int,
	satsPerGift int64) ([]IssuedGift, error) {

	if count < 1 {
		return nil, fmt.Errorf("invalid gift count %d", count)
	}

	gifts := make([]IssuedGift, count)
	for idx := range gifts {
		if _, err := rand.Read(gifts[idx].Preimage[:]); err != nil {
			return nil, err
		}
	}

	amtMsat := satsPerGift * msatPerSat

	group, ctx := errgroup.WithContext(ctx)
	for idx := range gifts {
		idx := idx
		hash := gifts[idx].Preimage.Hash()

		group.Go(func() error {
			i.logger.Debugw("Requesting hold invoice",
				"hash", hash, "amtMsat", amtMsat)

			invoice, err := i.wallet.MakeHoldInvoice(
				ctx, amtMsat, hash,
			)
			if err != nil {
				return fmt.Errorf("wallet service: %w", err)
			}

			gifts[idx].Invoice = *invoice

			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return gifts, nil
}
