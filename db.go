package coingift

import (
	"context"

	"github.com/antonio-ivanovski/coin-gift/types"
	"github.com/lightningnetwork/lnd/lntypes"
)

// Store persists gift batches, gifts, donations and waitlist signups.
// Implemented by persistence.PostgresPersister.
type Store interface {
	// StoreGiftBatch persists a batch and its child gifts atomically.
	// Every gift starts out in status initial.
	StoreGiftBatch(ctx context.Context, data types.GiftBatchData,
		gifts []types.GiftData) (*types.GiftBatch, error)

	// GetGiftBatch returns a batch with its child gifts, or
	// types.ErrBatchNotFound.
	GetGiftBatch(ctx context.Context, id string) (*types.GiftBatch,
		error)

	// GetGift returns a single gift, or types.ErrGiftNotFound.
	GetGift(ctx context.Context, id string) (*types.Gift, error)

	// SetGiftStatus transitions a gift to the given status. It returns
	// types.ErrGiftNotFound for unknown ids and
	// types.ErrGiftStatusFinal for illegal transitions.
	SetGiftStatus(ctx context.Context, id string,
		status types.GiftStatus) (*types.Gift, error)

	// CreateDonation stores a pending donation keyed by its unique
	// payment hash. A duplicate hash fails with
	// types.ErrDuplicatePaymentHash.
	CreateDonation(ctx context.Context, amountSats int64,
		paymentHash lntypes.Hash, signupID string) (*types.Donation,
		error)

	// MarkDonationSettled updates the pending donation matching the
	// payment hash. An unknown or already settled hash is a no-op,
	// mirroring idempotent event delivery.
	MarkDonationSettled(ctx context.Context, paymentHash lntypes.Hash,
		status types.DonationStatus) error

	// CreateWaitlistSignup stores a signup with a unique email. A
	// duplicate email fails with types.ErrDuplicateEmail.
	CreateWaitlistSignup(ctx context.Context, email string) (
		*types.Signup, error)
}
