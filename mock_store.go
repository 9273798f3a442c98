package coingift

import (
	"context"
	"fmt"
	"sync"

	"github.com/antonio-ivanovski/coin-gift/types"
	"github.com/lightningnetwork/lnd/lntypes"
)

// MockStore is an in-memory Store used in tests.
type MockStore struct {
	sync.Mutex

	Batches   map[string]*types.GiftBatch
	Gifts     map[string]*types.Gift
	Donations map[lntypes.Hash]*types.Donation
	Signups   map[string]*types.Signup

	// StoreBatchErr fails StoreGiftBatch when set.
	StoreBatchErr error

	// SettleCalls counts MarkDonationSettled invocations, matched or
	// not.
	SettleCalls int

	nextID int
}

func NewMockStore() *MockStore {
	return &MockStore{
		Batches:   make(map[string]*types.GiftBatch),
		Gifts:     make(map[string]*types.Gift),
		Donations: make(map[lntypes.Hash]*types.Donation),
		Signups:   make(map[string]*types.Signup),
	}
}

func (m *MockStore) generateID() string {
	m.nextID++

	return fmt.Sprintf("id-%d", m.nextID)
}

func (m *MockStore) StoreGiftBatch(ctx context.Context,
	data types.GiftBatchData, gifts []types.GiftData) (*types.GiftBatch,
	error) {

	m.Lock()
	defer m.Unlock()

	if m.StoreBatchErr != nil {
		return nil, m.StoreBatchErr
	}

	batch := &types.GiftBatch{
		GiftBatchData: data,
		ID:            m.generateID(),
	}

	for _, gift := range gifts {
		stored := &types.Gift{
			ID:              m.generateID(),
			BatchID:         batch.ID,
			EncryptedSecret: gift.EncryptedSecret,
			Status:          types.GiftStatusInitial,
		}

		batch.Gifts = append(batch.Gifts, stored)
		m.Gifts[stored.ID] = stored
	}

	m.Batches[batch.ID] = batch

	return batch, nil
}

func (m *MockStore) GetGiftBatch(ctx context.Context, id string) (
	*types.GiftBatch, error) {

	m.Lock()
	defer m.Unlock()

	batch, ok := m.Batches[id]
	if !ok {
		return nil, types.ErrBatchNotFound
	}

	return batch, nil
}

func (m *MockStore) GetGift(ctx context.Context, id string) (*types.Gift,
	error) {

	m.Lock()
	defer m.Unlock()

	gift, ok := m.Gifts[id]
	if !ok {
		return nil, types.ErrGiftNotFound
	}

	return gift, nil
}

func (m *MockStore) SetGiftStatus(ctx context.Context, id string,
	status types.GiftStatus) (*types.Gift, error) {

	m.Lock()
	defer m.Unlock()

	gift, ok := m.Gifts[id]
	if !ok {
		return nil, types.ErrGiftNotFound
	}

	if !gift.Status.CanTransition(status) {
		return nil, types.ErrGiftStatusFinal
	}

	gift.Status = status

	return gift, nil
}

func (m *MockStore) CreateDonation(ctx context.Context, amountSats int64,
	paymentHash lntypes.Hash, signupID string) (*types.Donation, error) {

	m.Lock()
	defer m.Unlock()

	if _, ok := m.Donations[paymentHash]; ok {
		return nil, types.ErrDuplicatePaymentHash
	}

	donation := &types.Donation{
		ID:          m.generateID(),
		SignupID:    signupID,
		AmountSats:  amountSats,
		Status:      types.DonationStatusPending,
		PaymentHash: paymentHash,
	}

	m.Donations[paymentHash] = donation

	return donation, nil
}

func (m *MockStore) MarkDonationSettled(ctx context.Context,
	paymentHash lntypes.Hash, status types.DonationStatus) error {

	m.Lock()
	defer m.Unlock()

	m.SettleCalls++

	donation, ok := m.Donations[paymentHash]
	if !ok || donation.Status != types.DonationStatusPending {
		return nil
	}

	donation.Status = status

	return nil
}

func (m *MockStore) CreateWaitlistSignup(ctx context.Context,
	email string) (*types.Signup, error) {

	m.Lock()
	defer m.Unlock()

	for _, signup := range m.Signups {
		if signup.Email == email {
			return nil, types.ErrDuplicateEmail
		}
	}

	signup := &types.Signup{
		ID:    m.generateID(),
		Email: email,
	}

	m.Signups[signup.ID] = signup

	return signup, nil
}
