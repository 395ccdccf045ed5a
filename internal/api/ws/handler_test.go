package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/scriptgate/internal/broker"
	"github.com/GriffinCanCode/scriptgate/internal/domain/metadata"
	"github.com/GriffinCanCode/scriptgate/internal/domain/policy"
	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scriptgate/internal/shared/types"
)

type staticSource map[string]*scripts.UserScript

func (s staticSource) Get(id string) (*scripts.UserScript, bool) {
	script, ok := s[id]
	return script, ok
}

// frame is an Event as a client decodes it.
type frame struct {
	Type          types.EventType `json:"type"`
	CorrelationID string          `json:"correlationId"`
	Data          json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*httptest.Server, *Handler, *broker.Broker) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine, err := policy.NewEngine()
	require.NoError(t, err)
	source := staticSource{"s1": {
		ID:       "s1",
		Enabled:  true,
		Metadata: metadata.ScriptMetadata{Name: "Socket", Grants: []string{policy.CapabilityRegisterMenu}},
	}}
	b := broker.New(engine, source, nil, broker.DefaultConfig(), zap.NewNop())

	tracer := tracing.New("test", zap.NewNop())
	t.Cleanup(tracer.Close)
	h := NewHandler(b, zap.NewNop()).WithMetrics(monitoring.NewMetrics()).WithTracer(tracer)
	router := gin.New()
	router.Use(tracing.HTTPMiddleware(tracer))
	router.GET("/stream", h.HandleConnection)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, h, b
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestSessionFrameComesFirst(t *testing.T) {
	srv, h, _ := newTestServer(t)
	conn := dial(t, srv)

	f := read(t, conn)
	require.Equal(t, types.EventSession, f.Type)

	var session types.SessionData
	require.NoError(t, json.Unmarshal(f.Data, &session))
	assert.NotEmpty(t, session.ChannelID)
	assert.True(t, h.Sessions().Has(session.ChannelID))
}

func TestInvokeOverSocket(t *testing.T) {
	srv, _, _ := newTestServer(t)
	conn := dial(t, srv)
	read(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":          "invoke",
		"capability":    "GM_info",
		"scriptId":      "s1",
		"correlationId": "c-1",
	}))

	f := read(t, conn)
	assert.Equal(t, types.EventCompleted, f.Type)
	assert.Equal(t, "c-1", f.CorrelationID)

	var info broker.InfoResult
	require.NoError(t, json.Unmarshal(f.Data, &info))
	assert.Equal(t, "Socket", info.Script.Name)
}

func TestMalformedAndUnknownFrames(t *testing.T) {
	srv, _, _ := newTestServer(t)
	conn := dial(t, srv)
	read(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f := read(t, conn)
	assert.Equal(t, types.EventError, f.Type)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "teleport", "correlationId": "x"}))
	f = read(t, conn)
	assert.Equal(t, types.EventError, f.Type)
	assert.Equal(t, "x", f.CorrelationID)

	var data types.ErrorData
	require.NoError(t, json.Unmarshal(f.Data, &data))
	assert.Equal(t, types.ErrorInvalid, data.Kind)
}

func TestCloseDisconnectsChannel(t *testing.T) {
	srv, h, b := newTestServer(t)
	conn := dial(t, srv)

	var session types.SessionData
	require.NoError(t, json.Unmarshal(read(t, conn).Data, &session))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":          "invoke",
		"capability":    policy.CapabilityRegisterMenu,
		"scriptId":      "s1",
		"correlationId": "m-1",
		"params":        map[string]any{"caption": "Hello"},
	}))
	require.Equal(t, types.EventCompleted, read(t, conn).Type)
	require.Len(t, b.Menus(session.ChannelID), 1)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return !h.Sessions().Has(session.ChannelID) && len(b.Menus(session.ChannelID)) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCheckOrigin(t *testing.T) {
	req := httptest.NewRequest("GET", "http://127.0.0.1:8000/stream", nil)

	def := NewHandler(nil, nil)
	assert.True(t, def.upgrader.CheckOrigin(req))
	req.Header.Set("Origin", "http://127.0.0.1:8000")
	assert.True(t, def.upgrader.CheckOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, def.upgrader.CheckOrigin(req))

	h := NewHandler(nil, nil).WithOrigins([]string{"https://app.example"})
	assert.False(t, h.upgrader.CheckOrigin(req))
	req.Header.Set("Origin", "https://app.example")
	assert.True(t, h.upgrader.CheckOrigin(req))

	wildcard := NewHandler(nil, nil).WithOrigins([]string{"*"})
	assert.False(t, wildcard.upgrader.CheckOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, wildcard.upgrader.CheckOrigin(req))
}
