package coingift

import (
	"context"
	"fmt"

	"github.com/antonio-ivanovski/coin-gift/types"
	"github.com/antonio-ivanovski/coin-gift/wallet"
	"go.uber.org/zap"
)

const (
	// MinDonationAmountSats is the smallest accepted donation.
	MinDonationAmountSats = 100

	// DefaultDonationAmountSats is the suggested donation.
	DefaultDonationAmountSats = 1000

	// MaxDonationAmountSats is the largest accepted donation.
	MaxDonationAmountSats = 100000

	// donationMemo is the invoice description used for donations.
	donationMemo = "Coin Gift 🎁"
)

// DonationInvoice is a stored donation together with the payment request
// the donor needs to pay it.
type DonationInvoice struct {
	*types.Donation

	Invoice string
}

// SignupResult is the outcome of a waitlist signup with an optional
// attached donation.
type SignupResult struct {
	Signup   *types.Signup
	Donation *DonationInvoice
}

// WaitlistServiceConfig contains the configuration for the waitlist
// service.
type WaitlistServiceConfig struct {
	Store  Store
	Wallet wallet.Client
	Logger *zap.SugaredLogger
}

// WaitlistService handles waitlist signups and donation invoices.
// Donations settle asynchronously through the payment monitor.
type WaitlistService struct {
	store  Store
	wallet wallet.Client
	logger *zap.SugaredLogger
}

// NewWaitlistService creates a new waitlist service.
func NewWaitlistService(cfg *WaitlistServiceConfig) *WaitlistService {
	return &WaitlistService{
		store:  cfg.Store,
		wallet: cfg.Wallet,
		logger: cfg.Logger,
	}
}

// CreateDonation requests a regular invoice from the wallet service and
// stores a pending donation keyed by the invoice's payment hash.
// signupID may be empty for standalone donations.
func (s *WaitlistService) CreateDonation(ctx context.Context,
	amountSats int64, signupID string) (*DonationInvoice, error) {

	txn, err := s.wallet.MakeInvoice(
		ctx, amountSats*msatPerSat, donationMemo,
	)
	if err != nil {
		return nil, fmt.Errorf("wallet service: %w", err)
	}

	hash, err := txn.Hash()
	if err != nil {
		return nil, fmt.Errorf("wallet service returned invalid "+
			"payment hash: %w", err)
	}

	donation, err := s.store.CreateDonation(
		ctx, amountSats, hash, signupID,
	)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Donation created",
		"id", donation.ID, "hash", hash, "amountSats", amountSats)

	return &DonationInvoice{
		Donation: donation,
		Invoice:  txn.Invoice,
	}, nil
}

// Signup registers a waitlist signup and, when donationAmountSats is
// non-zero, attaches a donation invoice linked to the new signup.
func (s *WaitlistService) Signup(ctx context.Context, email string,
	donationAmountSats int64) (*SignupResult, error) {

	signup, err := s.store.CreateWaitlistSignup(ctx, email)
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Waitlist signup created",
		"id", signup.ID, "email", email)

	result := &SignupResult{Signup: signup}

	if donationAmountSats == 0 {
		return result, nil
	}

	donation, err := s.CreateDonation(
		ctx, donationAmountSats, signup.ID,
	)
	if err != nil {
		// The signup itself succeeded. Surface that rather than
		// failing the whole request over a donation invoice.
		s.logger.Errorw("Cannot create signup donation",
			"signup", signup.ID, "err", err)

		return result, nil
	}

	result.Donation = donation

	return result, nil
}
