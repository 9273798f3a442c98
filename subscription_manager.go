package coingift

import (
	"sync/atomic"

	"github.com/lightningnetwork/lnd/lntypes"
	"go.uber.org/zap"
)

// subscriptionManager keeps the per-payment-hash listener sets for the
// payment monitor. It is not safe for concurrent use by itself; the
// monitor serializes access with its own mutex.
type subscriptionManager struct {
	subscriptions    map[lntypes.Hash]map[int]PaymentCallback
	subscriptionHash map[int]lntypes.Hash
	logger           *zap.SugaredLogger

	nextSubscriberId uint64
}

func newSubscriptionManager(logger *zap.SugaredLogger) *subscriptionManager {
	return &subscriptionManager{
		subscriptions:    make(map[lntypes.Hash]map[int]PaymentCallback),
		subscriptionHash: make(map[int]lntypes.Hash),
		logger:           logger,
	}
}

func (s *subscriptionManager) addSubscription(hash lntypes.Hash, id int,
	callback PaymentCallback) {

	subs := s.subscriptions
	if subs[hash] == nil {
		subs[hash] = make(map[int]PaymentCallback)
	}
	subs[hash][id] = callback

	s.subscriptionHash[id] = hash
}

func (s *subscriptionManager) deleteSubscription(id int) {
	hash, ok := s.subscriptionHash[id]
	if !ok {
		s.logger.Debugw("No subscription", "id", id)

		return
	}

	subs, ok := s.subscriptions[hash]
	if !ok {
		panic("inconsistent subscription")
	}

	if _, ok := subs[id]; !ok {
		panic("inconsistent subscription")
	}

	delete(subs, id)
	if len(subs) == 0 {
		delete(s.subscriptions, hash)
	}

	delete(s.subscriptionHash, id)
}

func (s *subscriptionManager) getSubscribers(hash lntypes.Hash) []PaymentCallback {
	subs := s.subscriptions[hash]
	if len(subs) == 0 {
		return nil
	}

	callbacks := make([]PaymentCallback, 0, len(subs))
	for _, callback := range subs {
		callbacks = append(callbacks, callback)
	}

	return callbacks
}

func (s *subscriptionManager) clear() {
	s.subscriptions = make(map[lntypes.Hash]map[int]PaymentCallback)
	s.subscriptionHash = make(map[int]lntypes.Hash)
}

func (s *subscriptionManager) generateSubscriptionId() int {
	return int(atomic.AddUint64(&s.nextSubscriberId, 1))
}
