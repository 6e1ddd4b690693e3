package reconciler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tablekeep/tablekeep/internal/model"
	appErr "github.com/tablekeep/tablekeep/internal/pkg/errors"
)

func TestClientFetchAndUpdateRow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/rows/r1":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": model.Row{ID: "r1", Version: 5, Fields: model.FieldMap{"amount": "10.00"}},
			})
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/rows/r1":
			var body struct {
				ExpectedVersion int64  `json:"expected_version"`
				Holder          string `json:"holder"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "alice", body.Holder)
			require.Equal(t, int64(5), body.ExpectedVersion)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"version": 6},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": map[string]interface{}{"name": "not_found"}})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL+"/api/v1", "tok", "alice", server.Client())

	row, err := client.FetchRow(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, int64(5), row.Version)

	updated, err := client.UpdateRow(context.Background(), "r1", row.Fields, model.ReviewFlags{Reviewed: true}, row.Version)
	require.NoError(t, err)
	require.Equal(t, int64(6), updated.Version)

	_, err = client.FetchRow(context.Background(), "absent")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestClientDecodesLockPrecondition(t *testing.T) {
	// a field edit rejected by a foreign lock travels as 404 with the
	// lock_held payload; the client must still surface the typed error,
	// never a retryable conflict
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{
				"name":   "lock_held",
				"detail": map[string]interface{}{"locked_by": "carol", "expires_at": 1700000200},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok", "alice", server.Client())
	_, err := client.UpdateRow(context.Background(), "r1", model.FieldMap{"amount": "11.00"}, model.ReviewFlags{}, 3)
	held, ok := appErr.AsLockHeld(err)
	require.True(t, ok)
	require.Equal(t, "carol", held.Holder)
	_, isConflict := appErr.AsVersionConflict(err)
	require.False(t, isConflict)
}

func TestClientDecodesConflictPayloads(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{
					"name": "version_conflict",
					"detail": map[string]interface{}{
						"current_row": model.Row{ID: "r1", Version: 7, ReviewFlags: model.ReviewFlags{Reviewed: true}},
					},
				},
			})
		case http.MethodPost:
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{
					"name":   "lock_held",
					"detail": map[string]interface{}{"locked_by": "bob", "expires_at": 1700000100},
				},
			})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok", "alice", server.Client())

	_, err := client.UpdateRow(context.Background(), "r1", model.FieldMap{}, model.ReviewFlags{}, 5)
	conflict, ok := appErr.AsVersionConflict(err)
	require.True(t, ok)
	require.Equal(t, int64(7), conflict.Current.Version)
	require.True(t, conflict.Current.ReviewFlags.Reviewed)

	err = client.AcquireLock(context.Background(), "r1")
	held, ok := appErr.AsLockHeld(err)
	require.True(t, ok)
	require.Equal(t, "bob", held.Holder)
	require.Equal(t, int64(1700000100), held.ExpiresAt)
}

func TestClientSubscribeReclaimedOnServerClose(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "p1", r.URL.Query().Get("page_id"))
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		payload, err := model.EncodeEvent(model.LockGranted{RowID: "r1", Holder: "bob", ExpiresAt: 1700000100})
		require.NoError(t, err)
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
		_ = conn.Close()
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok", "alice", server.Client())
	baseline := runtime.NumGoroutine()

	// long-lived context: the stream dropping server-side must still wind
	// down both client goroutines
	events, err := client.Subscribe(context.Background(), "d1", "p1")
	require.NoError(t, err)

	ev, ok := <-events
	require.True(t, ok)
	granted, ok := ev.(model.LockGranted)
	require.True(t, ok)
	require.Equal(t, "bob", granted.Holder)

	_, ok = <-events
	require.False(t, ok)
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 2*time.Second, 20*time.Millisecond)
}

func TestClientTogglerEndToEnd(t *testing.T) {
	// a tiny stateful server with real CAS semantics, so the toggler is
	// exercised over the actual wire format
	var row = model.Row{ID: "r1", Version: 5, Fields: model.FieldMap{"amount": "10.00"}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": row})
		case http.MethodPut:
			var body struct {
				Fields          model.FieldMap    `json:"fields"`
				ReviewFlags     model.ReviewFlags `json:"review_flags"`
				ExpectedVersion int64             `json:"expected_version"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body.ExpectedVersion != row.Version {
				w.WriteHeader(http.StatusConflict)
				_ = json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]interface{}{
						"name":   "version_conflict",
						"detail": map[string]interface{}{"current_row": row},
					},
				})
				return
			}
			row.Fields = body.Fields
			row.ReviewFlags = body.ReviewFlags
			row.Version++
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": map[string]interface{}{"version": row.Version},
			})
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, "tok", "alice", server.Client())
	session := NewSession(0)
	toggler := NewFlagToggler(client, session)
	cache := map[string]model.Row{"r1": row}

	require.NoError(t, toggler.Toggle(context.Background(), cache, "r1", model.FlagApproved, true))
	require.True(t, cache["r1"].ReviewFlags.Approved)
	require.Equal(t, int64(6), cache["r1"].Version)
	require.True(t, row.ReviewFlags.Approved)
}
