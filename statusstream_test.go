package coingift

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/antonio-ivanovski/coin-gift/test"
	"github.com/go-chi/chi/v5"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/stretchr/testify/require"
)

type streamTestContext struct {
	*monitorTestContext

	server *httptest.Server
}

func newStreamTestContext(t *testing.T, limit int) *streamTestContext {
	c := &streamTestContext{
		monitorTestContext: newMonitorTestContext(t),
	}

	router := chi.NewRouter()
	router.Get("/payments/{paymentHash}/status",
		NewPaymentStatusHandler(&PaymentStreamConfig{
			Monitor:           c.monitor,
			HeartbeatInterval: 10 * time.Millisecond,
			HeartbeatLimit:    limit,
			Logger:            testLogger(),
		}))

	c.server = httptest.NewServer(router)
	t.Cleanup(c.server.Close)

	return c
}

// sseEvent is one parsed server-sent event.
type sseEvent struct {
	event string
	data  string
}

// readEvents parses server-sent events from the stream until it closes.
func readEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()

	var (
		events  []sseEvent
		current sseEvent
	)

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.event = strings.TrimPrefix(line, "event: ")

		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")

		case line == "":
			events = append(events, current)
			current = sseEvent{}
		}
	}

	return events
}

func (c *streamTestContext) open(t *testing.T,
	hash lntypes.Hash) *http.Response {

	resp, err := c.server.Client().Get(fmt.Sprintf(
		"%s/payments/%v/status", c.server.URL, hash,
	))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func TestPaymentStatusStreamHeartbeatCap(t *testing.T) {
	defer test.Timeout()()

	c := newStreamTestContext(t, 3)

	hash := lntypes.Hash{1}
	resp := c.open(t, hash)
	require.Equal(t, "text/event-stream",
		resp.Header.Get("Content-Type"))

	// Without payment activity the stream emits the connected event and
	// heartbeats, then closes without a terminal event.
	events := readEvents(t, resp)
	require.Equal(t, []sseEvent{
		{event: "connected", data: "connected"},
		{event: "heartbeat", data: "heartbeat-1"},
		{event: "heartbeat", data: "heartbeat-2"},
		{event: "heartbeat", data: "heartbeat-3"},
	}, events)
}

func TestPaymentStatusStreamSettlement(t *testing.T) {
	defer test.Timeout()()

	c := newStreamTestContext(t, 1000)

	preimage := lntypes.Preimage{7}
	hash := preimage.Hash()

	resp := c.open(t, hash)

	reader := bufio.NewReader(resp.Body)

	// Wait for the connected event before firing the notification, so
	// the stream is guaranteed to be registered with the monitor.
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "event: connected\n", line)

	c.wallet.notify(paymentReceived(hash))

	var sawStatus bool
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}

		if line == "data: settled\n" {
			sawStatus = true
		}
	}

	// Exactly one terminal event, then the stream closes and the
	// listener is removed from the monitor.
	require.True(t, sawStatus)
	require.Eventually(t, func() bool {
		c.monitor.Lock()
		defer c.monitor.Unlock()

		return len(c.monitor.subscriptions.subscriptions) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestPaymentStatusStreamInvalidHash(t *testing.T) {
	defer test.Timeout()()

	c := newStreamTestContext(t, 3)

	resp, err := c.server.Client().Get(
		c.server.URL + "/payments/nothex/status",
	)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPaymentStatusStreamClientDisconnect(t *testing.T) {
	defer test.Timeout()()

	c := newStreamTestContext(t, 1000)

	hash := lntypes.Hash{3}

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/payments/%v/status", c.server.URL, hash), nil)
	require.NoError(t, err)

	resp, err := c.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// Disconnecting must remove the listener to prevent leaks.
	cancel()

	require.Eventually(t, func() bool {
		c.monitor.Lock()
		defer c.monitor.Unlock()

		return len(c.monitor.subscriptions.subscriptions) == 0
	}, time.Second, 10*time.Millisecond)
}
