package handler_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLockRoutesMutualExclusion(t *testing.T) {
	env := setupEnv(t)
	defer env.cleanup()

	page := env.seedPage(t)
	row := env.seedRow(t, page, 1)
	tokenA := holderToken(t, "alice")
	tokenB := holderToken(t, "bob")

	resp := env.request(t, http.MethodPost, "/api/v1/locks/"+row.ID, tokenA, map[string]string{"holder": "alice"})
	require.Equal(t, http.StatusOK, resp.Code)
	data := decodeData(t, resp)
	require.Equal(t, true, data["granted"])

	resp = env.request(t, http.MethodPost, "/api/v1/locks/"+row.ID, tokenB, map[string]string{"holder": "bob"})
	require.Equal(t, http.StatusConflict, resp.Code)
	var conflict struct {
		Error struct {
			Name   string `json:"name"`
			Detail struct {
				LockedBy  string `json:"locked_by"`
				ExpiresAt int64  `json:"expires_at"`
			} `json:"detail"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &conflict))
	require.Equal(t, "lock_held", conflict.Error.Name)
	require.Equal(t, "alice", conflict.Error.Detail.LockedBy)
	require.NotZero(t, conflict.Error.Detail.ExpiresAt)

	resp = env.request(t, http.MethodDelete, "/api/v1/locks/"+row.ID, tokenA, map[string]string{"holder": "alice"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.request(t, http.MethodPost, "/api/v1/locks/"+row.ID, tokenB, map[string]string{"holder": "bob"})
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestLockRoutesIdempotentRelease(t *testing.T) {
	env := setupEnv(t)
	defer env.cleanup()

	page := env.seedPage(t)
	row := env.seedRow(t, page, 1)
	tokenA := holderToken(t, "alice")

	// releasing a lock that was never acquired still succeeds
	resp := env.request(t, http.MethodDelete, "/api/v1/locks/"+row.ID, tokenA, map[string]string{"holder": "alice"})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, true, decodeData(t, resp)["released"])
}

func TestLockRoutesReleaseAll(t *testing.T) {
	env := setupEnv(t)
	defer env.cleanup()

	page := env.seedPage(t)
	tokenA := holderToken(t, "alice")
	tokenB := holderToken(t, "bob")

	var rowIDs []string
	for i := 1; i <= 3; i++ {
		row := env.seedRow(t, page, i)
		rowIDs = append(rowIDs, row.ID)
		resp := env.request(t, http.MethodPost, "/api/v1/locks/"+row.ID, tokenA, map[string]string{"holder": "alice"})
		require.Equal(t, http.StatusOK, resp.Code)
	}
	other := env.seedRow(t, page, 4)
	resp := env.request(t, http.MethodPost, "/api/v1/locks/"+other.ID, tokenB, map[string]string{"holder": "bob"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = env.request(t, http.MethodDelete, "/api/v1/locks", tokenA, map[string]string{"holder": "alice"})
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, float64(3), decodeData(t, resp)["released_count"])

	// bob's lock is untouched
	resp = env.request(t, http.MethodPost, "/api/v1/locks/"+other.ID, tokenA, map[string]string{"holder": "alice"})
	require.Equal(t, http.StatusConflict, resp.Code)

	// and a later single release is still a success
	resp = env.request(t, http.MethodDelete, "/api/v1/locks/"+rowIDs[0], tokenA, map[string]string{"holder": "alice"})
	require.Equal(t, http.StatusOK, resp.Code)
}

func TestLockRouteRejectsMismatchedHolder(t *testing.T) {
	env := setupEnv(t)
	defer env.cleanup()

	page := env.seedPage(t)
	row := env.seedRow(t, page, 1)
	tokenA := holderToken(t, "alice")

	resp := env.request(t, http.MethodPost, "/api/v1/locks/"+row.ID, tokenA, map[string]string{"holder": "mallory"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestLockRouteMissingRow(t *testing.T) {
	env := setupEnv(t)
	defer env.cleanup()

	tokenA := holderToken(t, "alice")
	resp := env.request(t, http.MethodPost, "/api/v1/locks/absent-row", tokenA, map[string]string{"holder": "alice"})
	require.Equal(t, http.StatusNotFound, resp.Code)
}
