package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/launchwatch/monitor/internal/chain/rpcpool"
	"github.com/launchwatch/monitor/internal/config"
	"github.com/launchwatch/monitor/internal/model"
)

type fakeHealthSource struct{ health rpcpool.Health }

func (f fakeHealthSource) HealthSnapshot(ctx context.Context) rpcpool.Health { return f.health }

type fakeLaunchesSource struct {
	launches []model.ProjectDescriptor
	err      error
}

func (f fakeLaunchesSource) UpcomingLaunches(ctx context.Context) ([]model.ProjectDescriptor, error) {
	return f.launches, f.err
}

func newTestServer(t *testing.T) (*Surface, *httptest.Server) {
	t.Helper()
	surface := New(zerolog.Nop())
	srv := NewServer(
		surface,
		fakeHealthSource{health: rpcpool.Health{CurrentHTTPEndpoint: "http://node", Healthy: true}},
		fakeLaunchesSource{launches: []model.ProjectDescriptor{{ID: 1, Name: "Foo"}}},
		config.PublicView{Chain: "evm"},
		zerolog.Nop(),
	)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return surface, ts
}

func TestHandleStateReturnsCurrentSnapshot(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var body StateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "DISCOVER", body.State)
}

func TestHandleHealthReflectsPool(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Healthy)
	assert.Equal(t, "http://node", body.CurrentHTTPEndpoint)
}

func TestHandleUpcomingLaunchesReturnsCatalogResult(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/upcoming-launches")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body []model.ProjectDescriptor
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body, 1)
	assert.Equal(t, "Foo", body[0].Name)
}

func TestWebsocketSendsStateChangeOnConnect(t *testing.T) {
	_, ts := newTestServer(t)
	wsURL := "ws" + ts.URL[len("http"):] + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame EventView
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "state_change", string(frame.Kind))
}

func TestWebsocketStreamsBroadcasts(t *testing.T) {
	surface, ts := newTestServer(t)
	wsURL := "ws" + ts.URL[len("http"):] + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first EventView
	require.NoError(t, conn.ReadJSON(&first))

	surface.RecordTrade(sampleTrade("0xcafe"))

	var second EventView
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "whale_trade", string(second.Kind))
}
