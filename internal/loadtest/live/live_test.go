package live

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/loadtest/engine"
	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

// testReport selects no p(95) stat; the feed still carries p95.
func testReport() *metrics.Report {
	stats, _ := metrics.ParseTrendStats([]string{"avg", "max"})
	agg := metrics.NewAggregator(stats...)
	for i := 1; i <= 4; i++ {
		outcome := metrics.Pass
		if i == 4 {
			outcome = metrics.Fail
		}
		agg.Record(metrics.Sample{Metric: metrics.HTTPReqDuration, Duration: time.Duration(i) * time.Millisecond, Outcome: outcome})
	}
	return agg.Snapshot()
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_StreamsProgress(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(server.URL, "http"))
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.Publish(engine.Progress{RunID: "run-1", Elapsed: 1500 * time.Millisecond, Target: 10, Active: 8, Report: testReport()})

	var m Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "progress", m.Type)
	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, int64(1500), m.ElapsedMS)
	assert.Equal(t, 10, m.TargetVUs)
	assert.Equal(t, 8, m.ActiveVUs)
	assert.Equal(t, int64(4), m.HTTPReqs)
	assert.Equal(t, 0.25, m.HTTPReqFailed)
	assert.InDelta(t, 4.0, m.P95MS, 0.01)
	assert.Nil(t, m.Passed)

	hub.Finish(&engine.Result{RunID: "run-1", Report: testReport(), Passed: true, MaxVUs: 10})
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "summary", m.Type)
	require.NotNil(t, m.Passed)
	assert.True(t, *m.Passed)
}

func TestHub_LateClientGetsLatest(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	hub.Publish(engine.Progress{RunID: "run-2", Target: 3, Active: 3})

	conn := dial(t, "ws"+strings.TrimPrefix(server.URL, "http"))

	var m Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "run-2", m.RunID)
	assert.Equal(t, 3, m.ActiveVUs)
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)

	// Publishing without clients must not block.
	hub.Publish(engine.Progress{RunID: "run-3"})
}

func TestServer_ListenAndShutdown(t *testing.T) {
	hub := NewHub(nil)
	srv, err := Listen("127.0.0.1:0", hub)
	require.NoError(t, err)

	conn := dial(t, "ws://"+srv.Addr().String()+"/ws")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	hub.Publish(engine.Progress{RunID: "run-4"})
	var m Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "run-4", m.RunID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}

func TestServer_ShutdownDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	srv, err := Listen("127.0.0.1:0", hub)
	require.NoError(t, err)

	conn := dial(t, "ws://"+srv.Addr().String()+"/ws")
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
