package coingift

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/antonio-ivanovski/coin-gift/types"
	"github.com/antonio-ivanovski/coin-gift/wallet"
	"github.com/lightningnetwork/lnd/lntypes"
	"go.uber.org/zap"
)

var (
	// ErrInvalidRedeemSecret is returned when a redeem secret is not a
	// well-formed key.
	ErrInvalidRedeemSecret = errors.New("invalid redeem secret")
)

// CreateGiftBatchRequest describes a new batch of gifts.
type CreateGiftBatchRequest struct {
	Count             int
	SatsPerGift       int64
	Title             string
	Message           string
	Emoji             string
	Expiry            time.Duration
	NotificationEmail string
}

// CreatedGift is the caller-facing result for a single gift: the stored
// id, the hold invoice to pay, and the redeem secret that decrypts the
// stored preimage. The secret exists only in this response.
type CreatedGift struct {
	ID           string
	Invoice      string
	RedeemSecret string
}

// CreatedGiftBatch is the result of creating a gift batch.
type CreatedGiftBatch struct {
	ID    string
	Gifts []CreatedGift
}

// GiftServiceConfig contains the configuration for the gift service.
type GiftServiceConfig struct {
	Store  Store
	Wallet wallet.Client
	Logger *zap.SugaredLogger
}

// GiftService orchestrates the gift lifecycle: invoice issuance,
// preimage encryption, persistence and redemption.
type GiftService struct {
	store  Store
	wallet wallet.Client
	issuer *InvoiceIssuer
	logger *zap.SugaredLogger
}

// NewGiftService creates a new gift service.
func NewGiftService(cfg *GiftServiceConfig) *GiftService {
	return &GiftService{
		store:  cfg.Store,
		wallet: cfg.Wallet,
		issuer: NewInvoiceIssuer(&InvoiceIssuerConfig{
			Wallet: cfg.Wallet,
			Logger: cfg.Logger,
		}),
		logger: cfg.Logger,
	}
}

// CreateGiftBatch issues hold invoices for a batch of gifts, encrypts
// the preimages and persists ciphertext-only gift records. The
// decryption keys are returned to the caller and never stored. If
// persistence fails after issuance, no partial batch is stored; the
// already issued hold invoices are left to expire at the wallet service
// and their hashes are logged for reconciliation.
func (s *GiftService) CreateGiftBatch(ctx context.Context,
	req CreateGiftBatchRequest) (*CreatedGiftBatch, error) {

	issued, err := s.issuer.IssueGiftInvoices(
		ctx, req.Count, req.SatsPerGift,
	)
	if err != nil {
		return nil, err
	}

	encryptions := make([]*PreimageEncryption, len(issued))
	giftsToStore := make([]types.GiftData, len(issued))
	for idx, gift := range issued {
		encryption, err := EncryptPreimage(gift.Preimage)
		if err != nil {
			return nil, err
		}

		encryptions[idx] = encryption
		giftsToStore[idx] = types.GiftData{
			EncryptedSecret: encryption.Encrypted,
		}
	}

	batch, err := s.store.StoreGiftBatch(ctx, types.GiftBatchData{
		Title:             req.Title,
		Message:           req.Message,
		Emoji:             req.Emoji,
		SatsPerGift:       req.SatsPerGift,
		ExpiresAt:         time.Now().Add(req.Expiry),
		NotificationEmail: req.NotificationEmail,
	}, giftsToStore)
	if err != nil {
		hashes := make([]lntypes.Hash, len(issued))
		for idx, gift := range issued {
			hashes[idx] = gift.Preimage.Hash()
		}

		s.logger.Errorw("Batch store failed, hold invoices orphaned",
			"hashes", hashes, "err", err)

		return nil, fmt.Errorf("cannot store gift batch: %w", err)
	}

	result := &CreatedGiftBatch{
		ID:    batch.ID,
		Gifts: make([]CreatedGift, len(issued)),
	}
	for idx, gift := range issued {
		result.Gifts[idx] = CreatedGift{
			ID:      batch.Gifts[idx].ID,
			Invoice: gift.Invoice.Invoice,
			RedeemSecret: base64.RawURLEncoding.EncodeToString(
				encryptions[idx].Key[:],
			),
		}
	}

	return result, nil
}

// GetGiftBatch returns a stored batch with its gifts.
func (s *GiftService) GetGiftBatch(ctx context.Context, id string) (
	*types.GiftBatch, error) {

	return s.store.GetGiftBatch(ctx, id)
}

// RedeemGift decrypts a gift's stored preimage with the caller-supplied
// redeem secret, reveals it to the wallet service to settle the hold
// invoice, and marks the gift redeemed.
func (s *GiftService) RedeemGift(ctx context.Context, giftID,
	redeemSecret string) (*types.Gift, error) {

	keyBytes, err := base64.RawURLEncoding.DecodeString(redeemSecret)
	if err != nil || len(keyBytes) != secretKeyLen {
		return nil, ErrInvalidRedeemSecret
	}

	var key [secretKeyLen]byte
	copy(key[:], keyBytes)

	gift, err := s.store.GetGift(ctx, giftID)
	if err != nil {
		return nil, err
	}

	preimage, err := DecryptPreimage(gift.EncryptedSecret, key)
	if err != nil {
		return nil, err
	}

	if err := s.wallet.SettleHoldInvoice(ctx, preimage); err != nil {
		return nil, fmt.Errorf("wallet service: %w", err)
	}

	s.logger.Infow("Gift redeemed",
		"gift", giftID, "hash", preimage.Hash())

	return s.store.SetGiftStatus(
		ctx, giftID, types.GiftStatusRedeemed,
	)
}
