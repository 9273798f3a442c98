package persistence

import (
	"context"
	"time"

	"github.com/antonio-ivanovski/coin-gift/types"
	"github.com/go-pg/pg/v10"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/lntypes"
	"go.uber.org/zap"
)

type dbGiftBatch struct {
	tableName struct{} `pg:"coingift.gift_batches,discard_unknown_columns"` // nolint

	ID                string    `pg:"id,pk"`
	Title             string    `pg:"title"`
	Message           string    `pg:"message"`
	Emoji             string    `pg:"emoji"`
	SatsPerGift       int64     `pg:"sats_per_gift,use_zero"`
	ExpiresAt         time.Time `pg:"expires_at"`
	NotificationEmail string    `pg:"notification_email"`
	CreatedAt         time.Time `pg:"created_at"`
}

type dbGift struct {
	tableName struct{} `pg:"coingift.gifts,discard_unknown_columns"` // nolint

	ID              string `pg:"id,pk"`
	BatchID         string `pg:"batch_id"`
	EncryptedSecret []byte `pg:"encrypted_secret"`
	Status          string `pg:"status"`
}

type dbDonation struct {
	tableName struct{} `pg:"coingift.donations,discard_unknown_columns"` // nolint

	ID          string       `pg:"id,pk"`
	SignupID    string       `pg:"signup_id"`
	AmountSats  int64        `pg:"amount_sats,use_zero"`
	Status      string       `pg:"status"`
	PaymentHash lntypes.Hash `pg:"payment_hash"`
	CreatedAt   time.Time    `pg:"created_at"`
}

type dbSignup struct {
	tableName struct{} `pg:"coingift.waitlist_signups,discard_unknown_columns"` // nolint

	ID        string    `pg:"id,pk"`
	Email     string    `pg:"email"`
	CreatedAt time.Time `pg:"created_at"`
}

// PostgresPersister persists gift batches, donations and waitlist
// signups to Postgres.
type PostgresPersister struct {
	conn *pg.DB

	logger *zap.SugaredLogger
}

// PostgresPersisterConfig is for instantiating PostgresPersister.
type PostgresPersisterConfig struct {
	Logger *zap.SugaredLogger
}

// NewPostgresPersisterFromOptions creates a new PostgresPersister using
// the options provided.
func NewPostgresPersisterFromOptions(options *pg.Options,
	cfg *PostgresPersisterConfig) *PostgresPersister {

	return &PostgresPersister{
		conn:   pg.Connect(options),
		logger: cfg.Logger,
	}
}

// NewPostgresPersisterFromDSN creates a new PostgresPersister using the
// dsn provided.
func NewPostgresPersisterFromDSN(dsn string,
	cfg *PostgresPersisterConfig) (*PostgresPersister, error) {

	options, err := pg.ParseURL(dsn)
	if err != nil {
		return nil, err
	}

	return NewPostgresPersisterFromOptions(options, cfg), nil
}

// Ping pings the database connection to ensure it is available.
func (p *PostgresPersister) Ping(ctx context.Context) error {
	if p.conn != nil {
		if _, err := p.conn.ExecOneContext(ctx, "SELECT 1"); err != nil {
			return err
		}
	}

	return nil
}

func (p *PostgresPersister) Close() error {
	return p.conn.Close()
}

func unmarshallDbGift(gift *dbGift) *types.Gift {
	return &types.Gift{
		ID:              gift.ID,
		BatchID:         gift.BatchID,
		EncryptedSecret: gift.EncryptedSecret,
		Status:          types.GiftStatus(gift.Status),
	}
}

// StoreGiftBatch persists a batch and its child gifts in a single
// transaction. Every gift is created in status initial with a fresh
// unique id.
func (p *PostgresPersister) StoreGiftBatch(ctx context.Context,
	data types.GiftBatchData, gifts []types.GiftData) (*types.GiftBatch,
	error) {

	now := time.Now().UTC()

	dbBatch := &dbGiftBatch{
		ID:                uuid.New().String(),
		Title:             data.Title,
		Message:           data.Message,
		Emoji:             data.Emoji,
		SatsPerGift:       data.SatsPerGift,
		ExpiresAt:         data.ExpiresAt,
		NotificationEmail: data.NotificationEmail,
		CreatedAt:         now,
	}

	batch := &types.GiftBatch{
		GiftBatchData: data,
		ID:            dbBatch.ID,
		CreatedAt:     now,
	}

	err := p.conn.RunInTransaction(ctx, func(tx *pg.Tx) error {
		_, err := tx.ModelContext(ctx, dbBatch).Insert()
		if err != nil {
			return err
		}

		for _, gift := range gifts {
			dbGift := &dbGift{
				ID:              uuid.New().String(),
				BatchID:         dbBatch.ID,
				EncryptedSecret: gift.EncryptedSecret,
				Status:          string(types.GiftStatusInitial),
			}

			_, err := tx.ModelContext(ctx, dbGift).Insert()
			if err != nil {
				return err
			}

			batch.Gifts = append(
				batch.Gifts, unmarshallDbGift(dbGift),
			)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return batch, nil
}

// GetGiftBatch returns a batch with its child gifts.
func (p *PostgresPersister) GetGiftBatch(ctx context.Context, id string) (
	*types.GiftBatch, error) {

	var batch *types.GiftBatch

	err := p.conn.RunInTransaction(ctx, func(tx *pg.Tx) error {
		var dbBatch dbGiftBatch
		err := tx.ModelContext(ctx, &dbBatch).
			Where("id = ?", id).Select()
		switch {
		case err == pg.ErrNoRows:
			return types.ErrBatchNotFound

		case err != nil:
			return err
		}

		var dbGifts []*dbGift
		err = tx.ModelContext(ctx, &dbGifts).
			Where("batch_id = ?", id).
			Order("id").Select()
		if err != nil {
			return err
		}

		batch = &types.GiftBatch{
			GiftBatchData: types.GiftBatchData{
				Title:             dbBatch.Title,
				Message:           dbBatch.Message,
				Emoji:             dbBatch.Emoji,
				SatsPerGift:       dbBatch.SatsPerGift,
				ExpiresAt:         dbBatch.ExpiresAt,
				NotificationEmail: dbBatch.NotificationEmail,
			},
			ID:        dbBatch.ID,
			CreatedAt: dbBatch.CreatedAt,
		}

		for _, gift := range dbGifts {
			batch.Gifts = append(
				batch.Gifts, unmarshallDbGift(gift),
			)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return batch, nil
}

// GetGift returns a single gift by its primary key.
func (p *PostgresPersister) GetGift(ctx context.Context, id string) (
	*types.Gift, error) {

	var dbGift dbGift
	err := p.conn.ModelContext(ctx, &dbGift).
		Where("id = ?", id).Select()
	switch {
	case err == pg.ErrNoRows:
		return nil, types.ErrGiftNotFound

	case err != nil:
		return nil, err
	}

	return unmarshallDbGift(&dbGift), nil
}

// SetGiftStatus transitions a gift to the given status, enforcing the
// status transition table.
func (p *PostgresPersister) SetGiftStatus(ctx context.Context, id string,
	status types.GiftStatus) (*types.Gift, error) {

	var gift *types.Gift

	err := p.conn.RunInTransaction(ctx, func(tx *pg.Tx) error {
		var dbGift dbGift
		err := tx.ModelContext(ctx, &dbGift).
			Where("id = ?", id).
			For("UPDATE").Select()
		switch {
		case err == pg.ErrNoRows:
			return types.ErrGiftNotFound

		case err != nil:
			return err
		}

		current := types.GiftStatus(dbGift.Status)
		if !current.CanTransition(status) {
			return types.ErrGiftStatusFinal
		}

		dbGift.Status = string(status)
		_, err = tx.ModelContext(ctx, &dbGift).
			WherePK().
			Set("status = ?", dbGift.Status).
			Update()
		if err != nil {
			return err
		}

		gift = unmarshallDbGift(&dbGift)

		return nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debugw("Gift status updated", "gift", id, "status", status)

	return gift, nil
}

// CreateDonation stores a pending donation. The payment hash is unique;
// inserting a duplicate fails with types.ErrDuplicatePaymentHash.
func (p *PostgresPersister) CreateDonation(ctx context.Context,
	amountSats int64, paymentHash lntypes.Hash, signupID string) (
	*types.Donation, error) {

	now := time.Now().UTC()

	dbDonation := &dbDonation{
		ID:          uuid.New().String(),
		SignupID:    signupID,
		AmountSats:  amountSats,
		Status:      string(types.DonationStatusPending),
		PaymentHash: paymentHash,
		CreatedAt:   now,
	}

	_, err := p.conn.ModelContext(ctx, dbDonation).Insert()
	if err != nil {
		if pgErr, ok := err.(pg.Error); ok &&
			pgErr.IntegrityViolation() {

			return nil, types.ErrDuplicatePaymentHash
		}

		return nil, err
	}

	return &types.Donation{
		ID:          dbDonation.ID,
		SignupID:    signupID,
		AmountSats:  amountSats,
		Status:      types.DonationStatusPending,
		PaymentHash: paymentHash,
		CreatedAt:   now,
	}, nil
}

// MarkDonationSettled updates the pending donation matching the payment
// hash. Zero matched rows is a no-op so that replayed settlement events
// stay idempotent.
func (p *PostgresPersister) MarkDonationSettled(ctx context.Context,
	paymentHash lntypes.Hash, status types.DonationStatus) error {

	result, err := p.conn.ModelContext(ctx, (*dbDonation)(nil)).
		Where("payment_hash = ?", paymentHash).
		Where("status = ?", string(types.DonationStatusPending)).
		Set("status = ?", string(status)).
		Update()
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		p.logger.Debugw("No pending donation for settlement",
			"hash", paymentHash)
	}

	return nil
}

// CreateWaitlistSignup stores a signup. The email is unique; inserting a
// duplicate fails with types.ErrDuplicateEmail.
func (p *PostgresPersister) CreateWaitlistSignup(ctx context.Context,
	email string) (*types.Signup, error) {

	now := time.Now().UTC()

	dbSignup := &dbSignup{
		ID:        uuid.New().String(),
		Email:     email,
		CreatedAt: now,
	}

	_, err := p.conn.ModelContext(ctx, dbSignup).Insert()
	if err != nil {
		if pgErr, ok := err.(pg.Error); ok &&
			pgErr.IntegrityViolation() {

			return nil, types.ErrDuplicateEmail
		}

		return nil, err
	}

	return &types.Signup{
		ID:        dbSignup.ID,
		Email:     email,
		CreatedAt: now,
	}, nil
}
