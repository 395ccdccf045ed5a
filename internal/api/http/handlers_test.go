package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptgate/internal/broker"
	"github.com/GriffinCanCode/scriptgate/internal/domain/policy"
	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptgate/internal/providers/notify"
	"github.com/GriffinCanCode/scriptgate/internal/providers/storage"
)

const demoScript = `// ==UserScript==
// @name        Demo
// @namespace   test
// @version     1.0
// @match       https://example.com/*
// @grant       GM_xmlhttpRequest
// ==/UserScript==
console.log("demo");
`

type fakeSessions []string

func (f fakeSessions) List() []string { return f }

func (f fakeSessions) Has(id string) bool {
	for _, s := range f {
		if s == id {
			return true
		}
	}
	return false
}

type testAPI struct {
	router   *gin.Engine
	store    *storage.Memory
	notifier *notify.Notifier
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := storage.NewMemory()
	manager := scripts.NewManager(store, nil, zap.NewNop())
	engine, err := policy.NewEngine()
	require.NoError(t, err)
	b := broker.New(engine, manager, store, broker.DefaultConfig(), zap.NewNop())
	notifier := notify.NewNotifier(zap.NewNop(), 10)

	h := NewHandlers(manager, b, store, zap.NewNop()).
		WithSessions(fakeSessions{"ch-1"}).
		WithNotifications(notifier).
		WithMetrics(monitoring.NewMetrics())

	router := gin.New()
	h.Register(router)
	return &testAPI{router: router, store: store, notifier: notifier}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var decoded map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func (a *testAPI) install(t *testing.T) string {
	t.Helper()
	w, body := a.do(t, http.MethodPost, "/scripts", ScriptRequest{Code: demoScript})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	script := body["script"].(map[string]any)
	return script["id"].(string)
}

func TestInstallAndGetScript(t *testing.T) {
	api := newTestAPI(t)
	id := api.install(t)

	w, body := api.do(t, http.MethodGet, "/scripts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Demo", body["metadata"].(map[string]any)["name"])

	w, body = api.do(t, http.MethodGet, "/scripts", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["count"])

	w, _ = api.do(t, http.MethodGet, "/scripts/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInstallErrors(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodPost, "/scripts", ScriptRequest{Code: "console.log(1)"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.NotEmpty(t, body["error"])

	w, _ = api.do(t, http.MethodPost, "/scripts", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateEnableAndMatch(t *testing.T) {
	api := newTestAPI(t)
	id := api.install(t)

	w, body := api.do(t, http.MethodPost, "/match", MatchRequest{URL: "https://example.com/page"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["scripts"], 1)

	w, body = api.do(t, http.MethodPut, "/scripts/"+id, ScriptRequest{Code: demoScript})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["changed"])

	w, _ = api.do(t, http.MethodPut, "/scripts/missing", ScriptRequest{Code: demoScript})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = api.do(t, http.MethodPost, "/scripts/"+id+"/enabled", map[string]any{"enabled": false})
	require.Equal(t, http.StatusOK, w.Code)

	_, body = api.do(t, http.MethodPost, "/match", MatchRequest{URL: "https://example.com/page"})
	assert.Empty(t, body["scripts"])

	w, _ = api.do(t, http.MethodPost, "/scripts/"+id+"/enabled", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPermissions(t *testing.T) {
	api := newTestAPI(t)
	id := api.install(t)

	w, body := api.do(t, http.MethodPut, "/scripts/"+id+"/permissions/API.Other.org", PermissionRequest{Allow: boolPtr(true)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "api.other.org", body["domain"])

	allow, found := api.store.GetPermission(id, "api.other.org")
	assert.True(t, found)
	assert.True(t, allow)

	w, body = api.do(t, http.MethodGet, "/scripts/"+id+"/permissions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["permissions"], 1)

	w, _ = api.do(t, http.MethodDelete, "/scripts/"+id+"/permissions/api.other.org", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, found = api.store.GetPermission(id, "api.other.org")
	assert.False(t, found)

	w, _ = api.do(t, http.MethodPut, "/scripts/missing/permissions/other.org", PermissionRequest{Allow: boolPtr(true)})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = api.do(t, http.MethodPut, "/scripts/"+id+"/permissions/other.org", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPermissionsForIPLiterals(t *testing.T) {
	api := newTestAPI(t)
	id := api.install(t)

	w, body := api.do(t, http.MethodPut, "/scripts/"+id+"/permissions/::1", PermissionRequest{Allow: boolPtr(true)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "::1", body["domain"])
	allow, found := api.store.GetPermission(id, "::1")
	assert.True(t, found)
	assert.True(t, allow)

	w, body = api.do(t, http.MethodPut, "/scripts/"+id+"/permissions/[FD00::7]", PermissionRequest{Allow: boolPtr(true)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "fd00::7", body["domain"])

	w, body = api.do(t, http.MethodPut, "/scripts/"+id+"/permissions/2130706433", PermissionRequest{Allow: boolPtr(true)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "127.0.0.1", body["domain"])

	for _, bad := range []string{"other.org:8080", "user@other.org", "%20"} {
		w, _ = api.do(t, http.MethodPut, "/scripts/"+id+"/permissions/"+bad, PermissionRequest{Allow: boolPtr(true)})
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}

	w, _ = api.do(t, http.MethodDelete, "/scripts/"+id+"/permissions/::1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, found = api.store.GetPermission(id, "::1")
	assert.False(t, found)
}

func TestDeleteScriptRemovesPermissions(t *testing.T) {
	api := newTestAPI(t)
	id := api.install(t)
	_, err := api.store.PutPermission(id, "other.org", true)
	require.NoError(t, err)

	w, _ := api.do(t, http.MethodDelete, "/scripts/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, found := api.store.GetPermission(id, "other.org")
	assert.False(t, found)

	w, _ = api.do(t, http.MethodDelete, "/scripts/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionsAndMenus(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"ch-1"}, body["sessions"])

	w, body = api.do(t, http.MethodGet, "/sessions/ch-1/menu", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["commands"])

	w, _ = api.do(t, http.MethodGet, "/sessions/ch-9/menu", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = api.do(t, http.MethodPost, "/sessions/ch-1/menu/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotifications(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["notifications"])

	n := api.notifier.Notify(notify.Notification{Title: "t", Text: "x"})
	w, body = api.do(t, http.MethodGet, "/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["notifications"], 1)

	w, _ = api.do(t, http.MethodDelete, "/notifications/"+n.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodDelete, "/notifications/"+n.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServiceEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, body = api.do(t, http.MethodGet, "/schema/invocation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	schemas := body["schemas"].(map[string]any)
	assert.Contains(t, schemas, policy.CapabilityFetch)
	assert.Contains(t, schemas, "invocation")

	w, _ = api.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = api.do(t, http.MethodPost, "/scripts/updates", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func boolPtr(b bool) *bool { return &b }
