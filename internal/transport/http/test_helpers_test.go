package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/pulsechat/pulse-server/internal/auth"
	"github.com/pulsechat/pulse-server/internal/config"
	"github.com/pulsechat/pulse-server/internal/core"
	"github.com/pulsechat/pulse-server/internal/proto"
	"github.com/pulsechat/pulse-server/internal/store/mem"
	"github.com/pulsechat/pulse-server/internal/store/sqlite"
)

var testSecret = []byte("test-secret")

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = string(testSecret)
	cfg.PresenceGrace = 50 * time.Millisecond
	cfg.StoreTimeout = time.Second
	return cfg
}

func startTestServer(t *testing.T) (*httptest.Server, *sqlite.RoomStore, config.Config) {
	t.Helper()

	cfg := testConfig()
	logger := zerolog.Nop()

	roomStore, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("init room store: %v", err)
	}
	t.Cleanup(func() { roomStore.Close() })

	registry := core.NewRegistry()
	cache := core.NewMembershipCache()
	pipeline := core.NewPipeline(roomStore, cache, registry, &logger, cfg.MaxMessageLen, cfg.StoreTimeout)
	tracker := core.NewTracker(mem.NewPresenceStore(), cache, registry, &logger, cfg.PresenceGrace)
	registry.SetNotifier(tracker)
	router := core.NewRouter(registry, cache, pipeline, tracker, roomStore, &logger, cfg.StoreTimeout)

	verifier := auth.NewVerifier([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience)
	server := NewServer(router, tracker, roomStore, verifier, cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts, roomStore, cfg
}

func testToken(t *testing.T, cfg config.Config, userID string) string {
	t.Helper()
	token, err := auth.Sign([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience, core.Identity{ID: userID}, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// outboundMsg mirrors proto.Outbound with raw data for test decoding.
type outboundMsg struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	ReqID string          `json:"req_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *proto.Error    `json:"error,omitempty"`
}

func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType, reqID string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal inbound: %v", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, ID: reqID, Data: payload}); err != nil {
		t.Fatalf("write inbound: %v", err)
	}
}

// readUntil reads outbound frames until pred matches, skipping others
// (presence and history events interleave freely).
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, pred func(outboundMsg) bool) outboundMsg {
	t.Helper()
	for {
		var msg outboundMsg
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read outbound: %v", err)
		}
		if pred(msg) {
			return msg
		}
	}
}
