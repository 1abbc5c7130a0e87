// ABOUTME: Tests for the live-sync websocket channel
// ABOUTME: Covers start/stop lifecycle, message fan-out, and force-sync requests
package livesync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// testServer accepts one connection, pushes an initial leads payload, and
// answers each sync request with a clients payload.
func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()

		var hello Message
		if err := wsjson.Read(ctx, conn, &hello); err != nil {
			return
		}

		push := Message{Type: "data", DataType: "leads", Data: []map[string]any{
			{"id": "L-1", "name": "Foo", "type": "lead"},
		}}
		if err := wsjson.Write(ctx, conn, push); err != nil {
			return
		}

		for {
			var req Message
			if err := wsjson.Read(ctx, conn, &req); err != nil {
				return
			}
			if req.Type != "sync" {
				continue
			}
			resp := Message{Type: "data", DataType: "clients", Data: []map[string]any{
				{"id": "C-1", "name": "Acme"},
			}}
			if err := wsjson.Write(ctx, conn, resp); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestChannelReceivesPushes(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	c := New(wsURL(srv))
	require.NotEmpty(t, c.DeviceID())

	var mu sync.Mutex
	var received []Message
	c.Subscribe("test", func(msg Message) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	assert.True(t, c.IsRunning())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) >= 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	first := received[0]
	mu.Unlock()
	assert.Equal(t, "data", first.Type)
	assert.Equal(t, "leads", first.DataType)
	require.Len(t, first.Data, 1)
	assert.Equal(t, "L-1", first.Data[0]["id"])
}

func TestForceSyncRequestsRepush(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	c := New(wsURL(srv))
	var mu sync.Mutex
	var dataTypes []string
	c.Subscribe("test", func(msg Message) {
		mu.Lock()
		dataTypes = append(dataTypes, msg.DataType)
		mu.Unlock()
	})

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	require.NoError(t, c.ForceSync(context.Background()))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, dt := range dataTypes {
			if dt == "clients" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStopTearsDown(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	c := New(wsURL(srv))
	require.NoError(t, c.Start(context.Background()))
	require.True(t, c.IsRunning())

	c.Stop()
	assert.False(t, c.IsRunning())
	assert.Error(t, c.ForceSync(context.Background()))
}

func TestStartWhileRunningIsNoop(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	c := New(wsURL(srv))
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()
	require.NoError(t, c.Start(context.Background()))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	srv := testServer(t)
	defer srv.Close()

	c := New(wsURL(srv))
	var mu sync.Mutex
	count := 0
	c.Subscribe("test", func(Message) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	c.Unsubscribe("test")

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}
