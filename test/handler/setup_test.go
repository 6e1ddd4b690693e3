package handler_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/tablekeep/tablekeep/internal/handler"
	"github.com/tablekeep/tablekeep/internal/hub"
	"github.com/tablekeep/tablekeep/internal/lockmgr"
	"github.com/tablekeep/tablekeep/internal/middleware"
	"github.com/tablekeep/tablekeep/internal/model"
	"github.com/tablekeep/tablekeep/internal/pkg/jwt"
	"github.com/tablekeep/tablekeep/internal/pkg/timeutil"
	"github.com/tablekeep/tablekeep/internal/repo"
	"github.com/tablekeep/tablekeep/internal/service"
	"github.com/tablekeep/tablekeep/test/testutil"
)

var testJWTSecret = []byte("test-secret")

func newTestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

type testEnv struct {
	router  http.Handler
	rows    *repo.RowRepo
	pages   *repo.PageRepo
	hub     *hub.Hub
	cleanup func()
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, cleanup := testutil.OpenTestDB(t)
	rowRepo := repo.NewRowRepo(conn)
	pageRepo := repo.NewPageRepo(conn)
	coordinator := lockmgr.New(time.Minute)
	eventHub := hub.NewHub(16)

	lockService := service.NewLockService(rowRepo, coordinator, eventHub)
	rowService := service.NewRowService(rowRepo, pageRepo, coordinator, eventHub)

	deps := handler.RouterDeps{
		Locks:     handler.NewLockHandler(lockService),
		Rows:      handler.NewRowHandler(rowService),
		Subscribe: handler.NewSubscribeHandler(eventHub, lockService),
		JWTSecret: testJWTSecret,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)

	return &testEnv{router: engine, rows: rowRepo, pages: pageRepo, hub: eventHub, cleanup: cleanup}
}

func holderToken(t *testing.T, holder string) string {
	t.Helper()
	token, err := jwt.GenerateToken(holder, holder, testJWTSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func (e *testEnv) seedPage(t *testing.T) *model.Page {
	t.Helper()
	now := timeutil.NowUnix()
	page := &model.Page{
		ID:         "page-" + newTestID(),
		DocumentID: "doc-" + newTestID(),
		PageNo:     1,
		FormType:   "invoice",
		State:      repo.PageStateNormal,
		Ctime:      now,
		Mtime:      now,
	}
	require.NoError(t, e.pages.Create(context.Background(), page))
	return page
}

func (e *testEnv) seedRow(t *testing.T, page *model.Page, orderIndex int) *model.Row {
	t.Helper()
	now := timeutil.NowUnix()
	row := &model.Row{
		ID:         "row-" + newTestID(),
		PageID:     page.ID,
		DocumentID: page.DocumentID,
		OrderIndex: orderIndex,
		Fields:     model.FieldMap{"description": "ACME widget", "amount": "10.00"},
		Version:    1,
		State:      repo.RowStateNormal,
		Ctime:      now,
		Mtime:      now,
	}
	require.NoError(t, e.rows.Create(context.Background(), row))
	return row
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result struct {
		Data map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	return result.Data
}
