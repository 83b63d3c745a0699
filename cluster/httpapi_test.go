package cluster

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPAPI(t *testing.T) (*HTTPAPI, *ControlLoop) {
	t.Helper()
	proxy := newFakeProxy(map[string]Status{"a": StatusOnline, "b": StatusOffline}, "a")
	probe := newFakeProbe()
	notifier := &fakeNotifier{}
	loop := NewControlLoop(testLoopConfig(), proxy, probe, notifier)
	loop.Topology.RebuildFromProxy(map[string]Status{"a": StatusOnline, "b": StatusOffline}, "a")

	api, err := NewHTTPAPI(loop)
	require.NoError(t, err)
	return api, loop
}

func TestHTTPAPI_StatusHandler(t *testing.T) {
	api, _ := newTestHTTPAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a", resp.Primary)
	assert.Equal(t, string(StatusOnline), resp.Nodes["a"].Status)
	assert.Equal(t, string(StatusOffline), resp.Nodes["b"].Status)
}

func TestHTTPAPI_HeartbeatHandler(t *testing.T) {
	api, _ := newTestHTTPAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/heartbeat", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp heartbeatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a", resp.Primary)
	assert.Contains(t, resp.Failed, "b")
	assert.NotContains(t, resp.Failed, "a")
}

func TestHTTPAPI_ConfirmStart_RequiresValidToken(t *testing.T) {
	api, _ := newTestHTTPAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/confirm-start", nil)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a missing bearer token must be rejected")
}

func TestHTTPAPI_ConfirmStart_ValidTokenUnblocksConfirmer(t *testing.T) {
	api, _ := newTestHTTPAPI(t)

	token, err := api.IssueToken()
	require.NoError(t, err)

	confirmer := api.Confirmer()
	done := make(chan bool, 1)
	go func() { done <- confirmer.Confirm("dangerous restart") }()

	req := httptest.NewRequest(http.MethodPost, "/api/confirm-start", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	select {
	case approved := <-done:
		assert.True(t, approved, "a valid confirm-start POST must unblock Confirm with true")
	case <-time.After(time.Second):
		t.Fatal("Confirm did not unblock after a valid confirm-start POST")
	}
}
