package standalone

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"restaurant-orders/internal/config"
	"restaurant-orders/internal/domain"
	settleservice "restaurant-orders/internal/microservices/settlement/service"
)

const sodaBody = `{"restaurantID":"r1","menuID":"m1","orderItems":[{"productID":"p1","name":"Soda","quantity":2,"unitValue":1.50}],"total":3.00}`

func testConfig() *config.Config {
	return &config.Config{
		Orders: config.OrdersConfig{MaxReceiveCount: 5},
		Settlement: config.SettlementConfig{
			Wait:        10 * time.Millisecond,
			Timeout:     2 * time.Second,
			Concurrency: 4,
			LockTTL:     5 * time.Second,
		},
		Notifications: config.NotificationsConfig{
			WriteTimeout: time.Second,
			PingInterval: time.Minute,
			Concurrency:  4,
		},
	}
}

func start(t *testing.T, outcomes settleservice.OutcomeSource, settle bool) (*System, *httptest.Server) {
	t.Helper()
	sys := Build(testConfig(), outcomes, zap.NewNop())
	srv := httptest.NewServer(sys.Handler)
	t.Cleanup(srv.Close)
	t.Cleanup(sys.Close)

	if settle {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- sys.Settle(ctx) }()
		t.Cleanup(func() {
			cancel()
			<-done
		})
	}
	return sys, srv
}

func do(t *testing.T, method, url, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func subscribe(t *testing.T, sys *System, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	before := registered(t, sys)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return len(registered(t, sys)) == len(before)+1 }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func registered(t *testing.T, sys *System) []string {
	t.Helper()
	ids, err := sys.Notificator.Registry.ListAll(context.Background())
	require.NoError(t, err)
	return ids
}

// readUntil collects streamed statuses for orderID until want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, orderID string, want domain.Status) []domain.Status {
	t.Helper()
	var seen []domain.Status
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)

		var msg domain.StreamMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		require.Equal(t, domain.ActionStream, msg.Action)
		for _, o := range msg.Payload {
			if o.OrderID != orderID {
				continue
			}
			seen = append(seen, o.Status)
			if o.Status == want {
				return seen
			}
		}
	}
}

func historyStatuses(t *testing.T, srv *httptest.Server, orderID string) []string {
	t.Helper()
	code, body := do(t, http.MethodGet, srv.URL+"/restaurants/r1/orders/"+orderID+"/history", "")
	require.Equal(t, http.StatusOK, code)
	var out []string
	for _, row := range body["history"].([]any) {
		out = append(out, row.(map[string]any)["status"].(string))
	}
	return out
}

func count[T comparable](xs []T, x T) int {
	n := 0
	for _, v := range xs {
		if v == x {
			n++
		}
	}
	return n
}

func TestAdmissionNumbersPerRestaurant(t *testing.T) {
	_, srv := start(t, nil, false)

	code, first := do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(1), first["orderNumber"])
	assert.Equal(t, "pending", first["status"])

	code, second := do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(2), second["orderNumber"])
	assert.NotEqual(t, first["orderID"], second["orderID"])

	other := strings.ReplaceAll(sodaBody, `"r1"`, `"r2"`)
	code, body := do(t, http.MethodPost, srv.URL+"/restaurants/r2/orders", other)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, float64(1), body["orderNumber"])
}

func TestDeclinedSettlement(t *testing.T) {
	sys, srv := start(t, settleservice.NewScriptedOutcomes(settleservice.OutcomeDeclined), true)
	conn := subscribe(t, sys, srv)

	code, body := do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	require.Equal(t, http.StatusCreated, code)
	id := body["orderID"].(string)

	seen := readUntil(t, conn, id, domain.StatusPaymentDeclined)
	assert.Equal(t, 1, count(seen, domain.StatusPaymentDeclined))

	// no second declined notification follows
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	if _, data, err := conn.ReadMessage(); err == nil {
		assert.NotContains(t, string(data), string(domain.StatusPaymentDeclined))
	}

	_, got := do(t, http.MethodGet, srv.URL+"/restaurants/r1/orders/"+id, "")
	assert.Equal(t, "payment_declined", got["status"])

	hist := historyStatuses(t, srv, id)
	assert.Equal(t, []string{"pending", "processing", "payment_declined"}, hist)
	assert.Len(t, sys.Audit.Records(), 1)
}

func TestTransientRetriesThenSuccess(t *testing.T) {
	sys, srv := start(t, settleservice.NewScriptedOutcomes(
		settleservice.OutcomeTransient,
		settleservice.OutcomeTransient,
		settleservice.OutcomeSuccess,
	), true)

	code, body := do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	require.Equal(t, http.StatusCreated, code)
	id := body["orderID"].(string)

	require.Eventually(t, func() bool {
		_, got := do(t, http.MethodGet, srv.URL+"/restaurants/r1/orders/"+id, "")
		return got["status"] == "waiting"
	}, 3*time.Second, 10*time.Millisecond)

	hist := historyStatuses(t, srv, id)
	assert.Equal(t, 2, count(hist, "payment_failure"))
	assert.Equal(t, "waiting", hist[len(hist)-1])
	assert.Len(t, sys.Audit.Records(), 1)
}

func TestRedeliveryDoesNotSettleTwice(t *testing.T) {
	sys, srv := start(t, settleservice.NewScriptedOutcomes(settleservice.OutcomeSuccess), true)

	code, body := do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	require.Equal(t, http.StatusCreated, code)
	id := body["orderID"].(string)

	require.Eventually(t, func() bool {
		_, got := do(t, http.MethodGet, srv.URL+"/restaurants/r1/orders/"+id, "")
		return got["status"] == "waiting"
	}, 3*time.Second, 10*time.Millisecond)

	o, err := sys.Repo.OrderRepo.Get(context.Background(), "r1", id)
	require.NoError(t, err)
	require.NoError(t, sys.Queue.Enqueue(context.Background(), o))

	require.Eventually(t, func() bool { return sys.Queue.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	hist := historyStatuses(t, srv, id)
	assert.Equal(t, 1, count(hist, "processing"))
	assert.Len(t, sys.Audit.Records(), 1)
	assert.Empty(t, sys.Queue.DeadLetters())
}

func TestSameStatusUpdateConflicts(t *testing.T) {
	_, srv := start(t, nil, false)

	code, body := do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	require.Equal(t, http.StatusCreated, code)
	id := body["orderID"].(string)

	code, _ = do(t, http.MethodPatch, srv.URL+"/restaurants/r1/orders/"+id+"/status",
		`{"restaurantID":"r1","menuID":"m1","orderID":"`+id+`","status":"pending"}`)
	assert.Equal(t, http.StatusConflict, code)

	assert.Equal(t, []string{"pending"}, historyStatuses(t, srv, id))
	_, got := do(t, http.MethodGet, srv.URL+"/restaurants/r1/orders/"+id, "")
	assert.Equal(t, body["updatedAt"], got["updatedAt"])
}

func TestGoneSubscriberIsPruned(t *testing.T) {
	sys, srv := start(t, nil, false)
	conn := subscribe(t, sys, srv)
	require.NoError(t, sys.Notificator.Registry.Register(context.Background(), "gone"))
	require.Len(t, registered(t, sys), 2)

	code, body := do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	require.Equal(t, http.StatusCreated, code)
	readUntil(t, conn, body["orderID"].(string), domain.StatusPending)

	assert.Eventually(t, func() bool {
		return count(registered(t, sys), "gone") == 0
	}, 2*time.Second, 5*time.Millisecond)

	code, body = do(t, http.MethodPost, srv.URL+"/restaurants/r1/orders", sodaBody)
	require.Equal(t, http.StatusCreated, code)
	readUntil(t, conn, body["orderID"].(string), domain.StatusPending)
	assert.Len(t, registered(t, sys), 1)
}
