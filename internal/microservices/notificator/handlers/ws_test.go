package handlers

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

	"restaurant-orders/internal/domain"
	"restaurant-orders/internal/microservices/notificator/repository"
	"restaurant-orders/internal/microservices/notificator/service"
)

func startHub(t *testing.T) (*Hub, *repository.MemoryRegistry, string) {
	t.Helper()
	reg := repository.NewMemoryRegistry()
	hub := NewHub(reg, time.Second, time.Minute, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, reg, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func registered(reg *repository.MemoryRegistry) int {
	ids, _ := reg.ListAll(context.Background())
	return len(ids)
}

func TestHub_SubscribeReceiveDisconnect(t *testing.T) {
	hub, reg, url := startHub(t)

	conn := dial(t, url)
	require.Eventually(t, func() bool { return registered(reg) == 1 }, time.Second, 5*time.Millisecond)

	f := service.NewFanout(reg, hub, 4, nil)
	require.NoError(t, f.Publish(context.Background(), domain.Order{OrderID: "o1", Status: domain.StatusWaiting}))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg domain.StreamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "stream", msg.Action)
	assert.Equal(t, "o1", msg.Payload[0].OrderID)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = conn.Close()
	assert.Eventually(t, func() bool { return registered(reg) == 0 && hub.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_SendToUnknownIsStale(t *testing.T) {
	hub, _, _ := startHub(t)
	err := hub.Send(context.Background(), "nobody", []byte("{}"))
	assert.ErrorIs(t, err, domain.ErrStaleSubscriber)
}

func TestHub_GoneSubscriberIsPrunedByFanout(t *testing.T) {
	hub, _, url := startHub(t)

	// Registry entry whose socket was lost without the hub noticing, e.g. after a restart.
	reg := repository.NewMemoryRegistry()
	require.NoError(t, reg.Register(context.Background(), "ghost"))

	conn := dial(t, url)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	hub.mu.RLock()
	for id := range hub.conns {
		require.NoError(t, reg.Register(context.Background(), id))
	}
	hub.mu.RUnlock()

	f := service.NewFanout(reg, hub, 4, nil)
	require.NoError(t, f.Publish(context.Background(), domain.Order{OrderID: "o1"}))

	ids, _ := reg.ListAll(context.Background())
	assert.Len(t, ids, 1)
	assert.NotContains(t, ids, "ghost")

	require.NoError(t, f.Publish(context.Background(), domain.Order{OrderID: "o2"}))
	for _, want := range []string{"o1", "o2"} {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		assert.Contains(t, string(data), want)
	}
}

func TestHub_RepeatedWriteTimeoutIsStale(t *testing.T) {
	hub, reg, url := startHub(t)
	conn := dial(t, url)
	defer conn.Close()
	require.Eventually(t, func() bool { return registered(reg) == 1 }, time.Second, 5*time.Millisecond)

	ids, err := reg.ListAll(context.Background())
	require.NoError(t, err)
	id := ids[0]

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	err = hub.Send(expired, id, []byte(`{}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrStaleSubscriber)
	assert.Equal(t, 1, hub.Len())

	err = hub.Send(context.Background(), id, []byte(`{}`))
	assert.ErrorIs(t, err, domain.ErrStaleSubscriber)
	assert.Zero(t, hub.Len())
}
