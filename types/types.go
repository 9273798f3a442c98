package types

import (
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
)

var (
	// ErrBatchNotFound is returned when a targeted gift batch can't be
	// located.
	ErrBatchNotFound = errors.New("unable to locate gift batch")

	// ErrGiftNotFound is returned when a targeted gift can't be located.
	ErrGiftNotFound = errors.New("unable to locate gift")

	// ErrGiftStatusFinal is returned when a status change is requested
	// for a gift that has already reached a terminal status.
	ErrGiftStatusFinal = errors.New("gift status is final")

	// ErrDuplicatePaymentHash is returned when a donation is created with
	// a payment hash that is already known.
	ErrDuplicatePaymentHash = errors.New("duplicate payment hash")

	// ErrDuplicateEmail is returned when a waitlist signup is created
	// with an email address that is already registered.
	ErrDuplicateEmail = errors.New("duplicate email")
)

// GiftStatus describes the lifecycle state of a single gift. Expiry is a
// terminal status, gifts are never deleted.
type GiftStatus string

const (
	GiftStatusInitial  GiftStatus = "initial"
	GiftStatusPaid     GiftStatus = "paid"
	GiftStatusRedeemed GiftStatus = "redeemed"
	GiftStatusExpired  GiftStatus = "expired"
)

// giftTransitions is the set of legal gift status transitions. Redeemed
// and expired are terminal. A direct initial to redeemed transition is
// allowed because a hold-invoice settle implies payment even when the
// acceptance notification was missed.
var giftTransitions = map[GiftStatus][]GiftStatus{
	GiftStatusInitial: {GiftStatusPaid, GiftStatusRedeemed, GiftStatusExpired},
	GiftStatusPaid:    {GiftStatusRedeemed, GiftStatusExpired},
}

// CanTransition reports whether a gift may move from its current status
// to next.
func (s GiftStatus) CanTransition(next GiftStatus) bool {
	for _, allowed := range giftTransitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// DonationStatus describes the lifecycle state of a donation.
type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusPaid      DonationStatus = "paid"
	DonationStatusExpired   DonationStatus = "expired"
	DonationStatusCancelled DonationStatus = "cancelled"
)

// GiftBatchData holds the caller-supplied fields of a gift batch.
type GiftBatchData struct {
	Title             string
	Message           string
	Emoji             string
	SatsPerGift       int64
	ExpiresAt         time.Time
	NotificationEmail string
}

// GiftData holds the storable part of a single gift. The encrypted secret
// is ciphertext only; the decryption key is returned to the caller at
// creation time and never persisted.
type GiftData struct {
	EncryptedSecret []byte
}

// Gift is a stored gift record.
type Gift struct {
	ID              string
	BatchID         string
	EncryptedSecret []byte
	Status          GiftStatus
}

// GiftBatch is a stored gift batch with its child gifts.
type GiftBatch struct {
	GiftBatchData

	ID        string
	CreatedAt time.Time
	Gifts     []*Gift
}

// Donation is a stored donation record, keyed by its unique payment hash.
// SignupID is a weak reference to a waitlist signup and may be empty for
// standalone donations.
type Donation struct {
	ID          string
	SignupID    string
	AmountSats  int64
	Status      DonationStatus
	PaymentHash lntypes.Hash
	CreatedAt   time.Time
}

// Signup is a stored waitlist signup.
type Signup struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

func (g *Gift) String() string {
	return fmt.Sprintf("%v (%v)", g.ID, g.Status)
}
