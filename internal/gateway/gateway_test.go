package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peergate/internal/panel"
)

func testGateway(t *testing.T, handler http.Handler) (*Gateway, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := panel.NewClient(srv.URL, "test-key", 2*time.Second)
	g := New(client, RetryConfig{MaxTries: 3, InitialInterval: time.Millisecond}, zerolog.Nop())
	return g, srv
}

func writePeer(w http.ResponseWriter, uuid, userID, key string) {
	_ = json.NewEncoder(w).Encode(panel.APIResponse{Response: panel.PeerResponse{
		UUID:           uuid,
		UserID:         userID,
		IdempotencyKey: key,
	}})
}

func TestAddPeerSuccess(t *testing.T) {
	g, _ := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/peers", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
		writePeer(w, "remote-1", "7", "key-1")
	}))

	h, err := g.AddPeer(context.Background(), 7, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "remote-1", h.RemoteID)
	assert.Equal(t, uint(7), h.UserID)
}

func TestAddPeerRetriesTransientFailure(t *testing.T) {
	var posts atomic.Int32
	g, _ := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if posts.Add(1) == 1 {
			http.Error(w, "upstream down", http.StatusBadGateway)
			return
		}
		writePeer(w, "remote-1", "7", "key-1")
	}))

	h, err := g.AddPeer(context.Background(), 7, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "remote-1", h.RemoteID)
	assert.Equal(t, int32(2), posts.Load())
}

func TestAddPeerDoesNotRetryPermanentFailure(t *testing.T) {
	var posts atomic.Int32
	g, _ := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))

	_, err := g.AddPeer(context.Background(), 7, "key-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(1), posts.Load())
}

func TestAddPeerVerifiesUnknownOutcomeBeforeRetry(t *testing.T) {
	// First create lands on the panel but the connection dies before the
	// response reaches the client. The retry must find the peer via the list
	// endpoint instead of creating a second one.
	var posts, lists atomic.Int32
	g, _ := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == "POST" && r.URL.Path == "/peers":
			posts.Add(1)
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
		case r.Method == "GET" && r.URL.Path == "/users/7/peers":
			lists.Add(1)
			_ = json.NewEncoder(w).Encode(panel.APIListResponse{Response: []panel.PeerResponse{
				{UUID: "remote-1", UserID: "7", IdempotencyKey: "key-1"},
			}})
		default:
			http.NotFound(w, r)
		}
	}))

	h, err := g.AddPeer(context.Background(), 7, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "remote-1", h.RemoteID)
	assert.Equal(t, int32(1), posts.Load(), "a duplicate peer was created")
	assert.Equal(t, int32(1), lists.Load())
}

func TestAddPeerExhaustsRetries(t *testing.T) {
	var posts atomic.Int32
	g, _ := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))

	_, err := g.AddPeer(context.Background(), 7, "key-1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), posts.Load())
}

func TestRemovePeerAbsentIsSuccess(t *testing.T) {
	g, _ := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "DELETE", r.Method)
		http.Error(w, "no such peer", http.StatusNotFound)
	}))

	assert.NoError(t, g.RemovePeer(context.Background(), "remote-1"))
}

func TestRemovePeerTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	g, _ := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))

	err := g.RemovePeer(context.Background(), "remote-1")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestListPeers(t *testing.T) {
	g, _ := testGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/7/peers", r.URL.Path)
		peers := make([]panel.PeerResponse, 0, 2)
		for i := 1; i <= 2; i++ {
			peers = append(peers, panel.PeerResponse{
				UUID:   fmt.Sprintf("remote-%d", i),
				UserID: "7",
			})
		}
		_ = json.NewEncoder(w).Encode(panel.APIListResponse{Response: peers})
	}))

	handles, err := g.ListPeers(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, handles, 2)
	assert.Equal(t, "remote-1", handles[0].RemoteID)
	assert.Equal(t, "remote-2", handles[1].RemoteID)
}
