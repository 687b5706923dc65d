package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioHazard786/pairlink/backend/internal/signaling"
	"github.com/BioHazard786/pairlink/internal/logging"
	"github.com/BioHazard786/pairlink/internal/protocol"
)

func newTestServer(t *testing.T, withMetrics bool) *httptest.Server {
	t.Helper()
	log := logging.Discard()

	var reg *prometheus.Registry
	opts := []signaling.Option{signaling.WithLogger(log)}
	if withMetrics {
		reg = prometheus.NewRegistry()
		opts = append(opts, signaling.WithPrometheus(reg))
	}
	hub := signaling.NewHub(opts...)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(NewMux(hub, reg, log))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, false)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsCountJoins(t *testing.T) {
	srv := newTestServer(t, true)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(protocol.Envelope{Type: protocol.EventCreateOrJoin, Room: "m1"}))
	for {
		var env protocol.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Type == protocol.EventCreated {
			break
		}
	}

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `pairlink_signaling_joins_total{result="created"} 1`)
	assert.Contains(t, text, "pairlink_signaling_rooms 1")
	assert.Contains(t, text, "pairlink_signaling_clients 1")
}
