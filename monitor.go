package coingift

import (
	"context"
	"errors"
	"sync"

	"github.com/antonio-ivanovski/coin-gift/types"
	"github.com/antonio-ivanovski/coin-gift/wallet"
	"github.com/lightningnetwork/lnd/lntypes"
	"go.uber.org/zap"
)

var (
	// ErrMonitorShuttingDown is returned when an operation failed because
	// the payment monitor is shutting down or was never started.
	ErrMonitorShuttingDown = errors.New("payment monitor shutting down")
)

// PaymentStatus is the settlement outcome delivered to subscribers.
type PaymentStatus string

const (
	PaymentStatusSettled PaymentStatus = "settled"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentCallback receives the settlement outcome for a subscribed
// payment hash together with the raw wallet notification.
type PaymentCallback func(PaymentStatus, wallet.Notification)

// monitorState is the lifecycle state of the payment monitor.
type monitorState int

const (
	monitorUninitialized monitorState = iota
	monitorActive
	monitorShuttingDown
)

// PaymentMonitorConfig contains the configuration for the payment
// monitor.
type PaymentMonitorConfig struct {
	Wallet wallet.Client
	Store  Store
	Logger *zap.SugaredLogger
}

// PaymentMonitor holds the single process-wide subscription to the
// wallet service's notification stream. Incoming settlement events are
// demultiplexed by payment hash to transient listeners and durably
// recorded in the donation store. The monitor is constructed explicitly
// and injected wherever needed; it keeps no package-level state.
type PaymentMonitor struct {
	sync.Mutex

	wallet wallet.Client
	store  Store
	logger *zap.SugaredLogger

	state         monitorState
	unsubscribe   func()
	subscriptions *subscriptionManager

	// wg tracks in-flight store updates so that Shutdown can wait for
	// them.
	wg sync.WaitGroup
}

// NewPaymentMonitor creates a new payment monitor.
func NewPaymentMonitor(cfg *PaymentMonitorConfig) *PaymentMonitor {
	return &PaymentMonitor{
		wallet:        cfg.Wallet,
		store:         cfg.Store,
		logger:        cfg.Logger,
		subscriptions: newSubscriptionManager(cfg.Logger),
	}
}

// Start opens the wallet notification subscription and activates the
// monitor. Calling Start on an active monitor is a no-op; there is never
// more than one wallet subscription.
func (p *PaymentMonitor) Start(ctx context.Context) error {
	p.Lock()
	defer p.Unlock()

	if p.state == monitorActive {
		p.logger.Debugw("Payment monitor already active")

		return nil
	}

	unsubscribe, err := p.wallet.SubscribeNotifications(
		func(notification wallet.Notification) {
			p.handleNotification(ctx, notification)
		},
	)
	if err != nil {
		return err
	}

	p.unsubscribe = unsubscribe
	p.state = monitorActive

	p.logger.Infow("Payment monitor started")

	return nil
}

// Shutdown closes the wallet subscription, clears all listener sets and
// waits for in-flight store updates. Safe to call multiple times.
func (p *PaymentMonitor) Shutdown() {
	p.Lock()
	if p.state != monitorActive {
		p.Unlock()

		return
	}
	p.state = monitorShuttingDown

	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}

	p.subscriptions.clear()
	p.state = monitorUninitialized
	p.Unlock()

	p.wg.Wait()

	p.logger.Infow("Payment monitor shut down")
}

// Subscribe registers a callback for settlement events of the given
// payment hash. Multiple subscribers per hash are supported. The
// returned function removes exactly this callback and cleans up the
// per-hash set when it becomes empty.
func (p *PaymentMonitor) Subscribe(hash lntypes.Hash,
	callback PaymentCallback) (func(), error) {

	p.Lock()
	defer p.Unlock()

	if p.state != monitorActive {
		return nil, ErrMonitorShuttingDown
	}

	id := p.subscriptions.generateSubscriptionId()
	p.subscriptions.addSubscription(hash, id, callback)

	p.logger.Debugw("Payment subscriber added", "hash", hash, "id", id)

	return func() {
		p.Lock()
		defer p.Unlock()

		p.logger.Debugw("Payment subscriber removed",
			"hash", hash, "id", id)

		p.subscriptions.deleteSubscription(id)
	}, nil
}

// handleNotification processes one inbound wallet notification.
func (p *PaymentMonitor) handleNotification(ctx context.Context,
	notification wallet.Notification) {

	if notification.Notification.PaymentHash == "" {
		p.logger.Warnw("Notification missing payment hash",
			"type", notification.NotificationType)

		return
	}

	hash, err := notification.Notification.Hash()
	if err != nil {
		p.logger.Warnw("Notification carries invalid payment hash",
			"type", notification.NotificationType,
			"paymentHash", notification.Notification.PaymentHash,
			"err", err)

		return
	}

	// Only payment_received currently maps to an outcome. Failure and
	// expiry events from the wallet service are logged so the gap is
	// observable, but deliberately not acted upon.
	if notification.NotificationType != wallet.NotificationTypePaymentReceived {
		p.logger.Infow("Ignoring notification type",
			"type", notification.NotificationType, "hash", hash)

		return
	}

	status := PaymentStatusSettled

	p.logger.Infow("Payment notification received",
		"hash", hash, "status", status)

	// Record the settlement in the store without holding up listener
	// delivery. The update is idempotent by payment hash, so a replayed
	// notification cannot corrupt state.
	p.Lock()
	if p.state == monitorActive {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()

			err := p.store.MarkDonationSettled(
				ctx, hash, types.DonationStatusPaid,
			)
			if err != nil {
				p.logger.Errorw("Cannot mark donation settled",
					"hash", hash, "err", err)
			}
		}()
	}

	callbacks := p.subscriptions.getSubscribers(hash)
	p.Unlock()

	p.logger.Debugw("Notifying payment subscribers",
		"hash", hash, "subscribers", len(callbacks))

	for _, callback := range callbacks {
		p.invoke(callback, status, notification)
	}
}

// invoke runs a single subscriber callback, isolating the other
// subscribers from its panics.
func (p *PaymentMonitor) invoke(callback PaymentCallback,
	status PaymentStatus, notification wallet.Notification) {

	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("Payment subscriber panic", "err", r)
		}
	}()

	callback(status, notification)
}
