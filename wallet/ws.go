package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lightningnetwork/lnd/lntypes"
	"go.uber.org/zap"
)

var (
	// ErrClientClosed is returned when a request is made on a closed
	// client.
	ErrClientClosed = errors.New("wallet client closed")
)

// DefaultRequestTimeout bounds a single wallet service request.
const DefaultRequestTimeout = 30 * time.Second

// Config holds the connection parameters for the websocket wallet client.
type Config struct {
	// URL is the wallet-connect websocket endpoint.
	URL string

	// RequestTimeout bounds a single request. Defaults to
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	Logger *zap.SugaredLogger
}

// request is a single wallet service call.
type request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// response carries either a call result or a pushed notification. Frames
// without an id are notifications.
type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *responseError  `json:"error"`

	NotificationType string          `json:"notification_type"`
	Notification     json.RawMessage `json:"notification"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *responseError) Error() string {
	return fmt.Sprintf("wallet service error %v: %v", e.Code, e.Message)
}

// WsClient talks to the wallet service over a websocket connection,
// correlating request/response pairs by id and demultiplexing pushed
// notifications to subscribed handlers.
type WsClient struct {
	cfg    *Config
	logger *zap.SugaredLogger
	conn   *websocket.Conn

	mtx       sync.Mutex
	nextID    uint64
	pending   map[uint64]chan *response
	handlers  map[uint64]NotificationHandler
	nextSubID uint64
	closed    bool

	writeMtx sync.Mutex

	quit chan struct{}
}

// NewWsClient dials the wallet service and starts the read loop.
func NewWsClient(ctx context.Context, cfg *Config) (*WsClient, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet service dial: %w", err)
	}

	c := &WsClient{
		cfg:      cfg,
		logger:   cfg.Logger,
		conn:     conn,
		pending:  make(map[uint64]chan *response),
		handlers: make(map[uint64]NotificationHandler),
		quit:     make(chan struct{}),
	}

	go c.readLoop()

	return c, nil
}

// Close tears down the connection and fails all in-flight requests.
func (c *WsClient) Close() error {
	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()

		return nil
	}
	c.closed = true
	close(c.quit)
	c.mtx.Unlock()

	return c.conn.Close()
}

func (c *WsClient) readLoop() {
	for {
		var resp response
		if err := c.conn.ReadJSON(&resp); err != nil {
			select {
			case <-c.quit:
			default:
				c.logger.Errorw("Wallet connection read error",
					"err", err)
			}

			c.failPending()

			return
		}

		// Frames without an id are pushed notifications.
		if resp.ID == 0 {
			c.dispatchNotification(&resp)

			continue
		}

		c.mtx.Lock()
		respChan, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mtx.Unlock()

		if !ok {
			c.logger.Debugw("Unmatched wallet response",
				"id", resp.ID)

			continue
		}

		respChan <- &resp
	}
}

func (c *WsClient) dispatchNotification(resp *response) {
	var txn Transaction
	if err := json.Unmarshal(resp.Notification, &txn); err != nil {
		c.logger.Warnw("Invalid wallet notification payload",
			"err", err)

		return
	}

	notification := Notification{
		NotificationType: resp.NotificationType,
		Notification:     txn,
	}

	c.mtx.Lock()
	handlers := make([]NotificationHandler, 0, len(c.handlers))
	for _, handler := range c.handlers {
		handlers = append(handlers, handler)
	}
	c.mtx.Unlock()

	for _, handler := range handlers {
		handler(notification)
	}
}

func (c *WsClient) failPending() {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	for id, respChan := range c.pending {
		delete(c.pending, id)
		close(respChan)
	}
}

func (c *WsClient) call(ctx context.Context, method string, params,
	result interface{}) error {

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return err
	}

	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()

		return ErrClientClosed
	}
	c.nextID++
	id := c.nextID
	respChan := make(chan *response, 1)
	c.pending[id] = respChan
	c.mtx.Unlock()

	timeout := c.cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.writeMtx.Lock()
	err = c.conn.WriteJSON(&request{
		ID:     id,
		Method: method,
		Params: paramsJSON,
	})
	c.writeMtx.Unlock()
	if err != nil {
		c.mtx.Lock()
		delete(c.pending, id)
		c.mtx.Unlock()

		return fmt.Errorf("wallet service write: %w", err)
	}

	select {
	case resp, ok := <-respChan:
		if !ok {
			return ErrClientClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if result == nil {
			return nil
		}

		return json.Unmarshal(resp.Result, result)

	case <-ctx.Done():
		c.mtx.Lock()
		delete(c.pending, id)
		c.mtx.Unlock()

		return ctx.Err()

	case <-c.quit:
		return ErrClientClosed
	}
}

// MakeInvoice creates a regular invoice for the given amount.
func (c *WsClient) MakeInvoice(ctx context.Context, amountMsat int64,
	description string) (*Transaction, error) {

	params := struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}{
		Amount:      amountMsat,
		Description: description,
	}

	var txn Transaction
	if err := c.call(ctx, "make_invoice", &params, &txn); err != nil {
		return nil, err
	}

	return &txn, nil
}

// MakeHoldInvoice creates a hold invoice locked to the given payment hash.
func (c *WsClient) MakeHoldInvoice(ctx context.Context, amountMsat int64,
	paymentHash lntypes.Hash) (*Transaction, error) {

	params := struct {
		Amount      int64  `json:"amount"`
		PaymentHash string `json:"payment_hash"`
	}{
		Amount:      amountMsat,
		PaymentHash: paymentHash.String(),
	}

	var txn Transaction
	if err := c.call(ctx, "make_hold_invoice", &params, &txn); err != nil {
		return nil, err
	}

	return &txn, nil
}

// SettleHoldInvoice reveals a preimage to settle an accepted hold invoice.
func (c *WsClient) SettleHoldInvoice(ctx context.Context,
	preimage lntypes.Preimage) error {

	params := struct {
		Preimage string `json:"preimage"`
	}{
		Preimage: preimage.String(),
	}

	return c.call(ctx, "settle_hold_invoice", &params, nil)
}

// SubscribeNotifications registers a handler for pushed payment events.
func (c *WsClient) SubscribeNotifications(handler NotificationHandler) (
	func(), error) {

	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}

	c.nextSubID++
	id := c.nextSubID
	c.handlers[id] = handler

	return func() {
		c.mtx.Lock()
		defer c.mtx.Unlock()

		delete(c.handlers, id)
	}, nil
}
