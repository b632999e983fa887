package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const testReadTimeout = 3 * time.Second

type relayEnv struct {
	broker  *memBroker
	history *memHistory
	limits  *memLimitStore
	relay   *Relay
	server  *httptest.Server
}

// Identity comes from request headers so each dialed connection can pick
// its own; production wires the JWT cookie here instead.
func newRelayEnv(t *testing.T) *relayEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &relayEnv{
		broker:  newMemBroker(),
		history: newMemHistory(),
		limits:  newMemLimitStore(),
	}
	env.relay = &Relay{
		Broker:  env.broker,
		History: env.history,
		Limiter: NewLimiter(env.limits),
		Identify: func(r *http.Request) (Identity, bool) {
			name := r.Header.Get("X-Test-User")
			if name == "" {
				return Identity{}, false
			}
			return Identity{UserID: 1, Name: name}, true
		},
		AvatarURL: func(userID int) string { return "" },
		Verify: func(ctx context.Context, token, remoteIP string) bool {
			return token == "valid-token"
		},
	}

	r := gin.New()
	r.GET("/ws/chat", env.relay.HandleSocket)
	env.server = httptest.NewServer(r)
	t.Cleanup(env.server.Close)
	return env
}

func (env *relayEnv) dial(t *testing.T, username string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/chat"
	header := http.Header{}
	if username != "" {
		header.Set("X-Test-User", username)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(testReadTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame %q: %v", raw, err)
	}
	return frame
}

func expectNoFrame(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected silence, got frame %q", raw)
	}
}

func sendPayload(t *testing.T, conn *websocket.Conn, payload interface{}) {
	t.Helper()
	encoded, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, encoded); err != nil {
		t.Fatalf("write payload: %v", err)
	}
}

// readHistory consumes the connect-time history event every session gets.
func readHistory(t *testing.T, conn *websocket.Conn) []interface{} {
	t.Helper()
	frame := readFrame(t, conn)
	if frame["type"] != "history" {
		t.Fatalf("expected history frame first, got %v", frame)
	}
	items, _ := frame["items"].([]interface{})
	return items
}

func TestHistoryReplayOnConnect(t *testing.T) {
	env := newRelayEnv(t)
	ctx := context.Background()
	// Stored newest-first, as the log keeps them.
	for i := 1; i <= 3; i++ {
		msg := ChannelMessage{ID: fmt.Sprintf("m%d", i), User: "alice", Text: fmt.Sprintf("msg %d", i), Ts: int64(i)}
		encoded, _ := json.Marshal(msg)
		if err := env.history.Append(ctx, HistoryKey, string(encoded)); err != nil {
			t.Fatalf("seed history: %v", err)
		}
	}

	conn := env.dial(t, "")
	items := readHistory(t, conn)
	if len(items) != 3 {
		t.Fatalf("expected 3 history items, got %d", len(items))
	}
	// Replay is oldest-first for display.
	for i, raw := range items {
		item := raw.(map[string]interface{})
		if item["text"] != fmt.Sprintf("msg %d", i+1) {
			t.Fatalf("history item %d out of order: %v", i, item)
		}
	}
}

func TestMessageRoundTrip(t *testing.T) {
	env := newRelayEnv(t)
	conn := env.dial(t, "alice")
	readHistory(t, conn)

	sendPayload(t, conn, map[string]interface{}{"text": "hello there", "ts": 1234, "id": "client-7"})

	frame := readFrame(t, conn)
	if frame["text"] != "hello there" {
		t.Fatalf("broadcast text mismatch: %v", frame)
	}
	if frame["user"] != "alice" {
		t.Fatalf("broadcast user mismatch: %v", frame)
	}
	if frame["ts"] != float64(1234) {
		t.Fatalf("client timestamp should be kept: %v", frame)
	}
	if frame["client_id"] != "client-7" {
		t.Fatalf("client correlation id should be echoed: %v", frame)
	}
	if id, _ := frame["id"].(string); id == "" {
		t.Fatalf("server must assign a message id: %v", frame)
	}

	// The published form also landed in history.
	entries, err := env.history.Read(context.Background(), HistoryKey)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d err %v", len(entries), err)
	}
}

func TestBroadcastReachesOtherConnections(t *testing.T) {
	env := newRelayEnv(t)
	sender := env.dial(t, "alice")
	readHistory(t, sender)
	receiver := env.dial(t, "")
	readHistory(t, receiver)

	sendPayload(t, sender, map[string]interface{}{"text": "fan out"})

	for _, conn := range []*websocket.Conn{sender, receiver} {
		frame := readFrame(t, conn)
		if frame["text"] != "fan out" {
			t.Fatalf("expected broadcast on every subscriber, got %v", frame)
		}
	}
}

func TestAnonymousCannotSend(t *testing.T) {
	env := newRelayEnv(t)
	conn := env.dial(t, "")
	readHistory(t, conn)

	sendPayload(t, conn, map[string]interface{}{"text": "hello"})

	// Silently dropped: no error frame, no broadcast, nothing logged.
	expectNoFrame(t, conn)
	entries, _ := env.history.Read(context.Background(), HistoryKey)
	if len(entries) != 0 {
		t.Fatalf("anonymous message must not be published, history has %d", len(entries))
	}
}

func TestRawTextFallback(t *testing.T) {
	env := newRelayEnv(t)
	conn := env.dial(t, "alice")
	readHistory(t, conn)

	// Not JSON at all: the whole frame becomes the message text.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("just plain words")); err != nil {
		t.Fatalf("write: %v", err)
	}
	frame := readFrame(t, conn)
	if frame["text"] != "just plain words" {
		t.Fatalf("raw frame should publish as text: %v", frame)
	}
	if ts, _ := frame["ts"].(float64); ts == 0 {
		t.Fatalf("fallback message should get a server timestamp: %v", frame)
	}
	if _, hasClientID := frame["client_id"]; hasClientID {
		t.Fatalf("fallback message has no client id: %v", frame)
	}
}

func TestOversizedMessageRejected(t *testing.T) {
	env := newRelayEnv(t)
	conn := env.dial(t, "alice")
	readHistory(t, conn)

	sendPayload(t, conn, map[string]interface{}{"text": strings.Repeat("a", 2001), "id": "big-1"})

	frame := readFrame(t, conn)
	if frame["type"] != "error" || frame["code"] != "too_long" {
		t.Fatalf("expected too_long error, got %v", frame)
	}
	if frame["client_id"] != "big-1" {
		t.Fatalf("error should echo the client id: %v", frame)
	}
	entries, _ := env.history.Read(context.Background(), HistoryKey)
	if len(entries) != 0 {
		t.Fatalf("oversized message must never be logged")
	}
}

func TestSixthMessageGetsChallenge(t *testing.T) {
	env := newRelayEnv(t)
	conn := env.dial(t, "alice")
	readHistory(t, conn)

	for i := 0; i < 5; i++ {
		sendPayload(t, conn, map[string]interface{}{"text": "hi"})
		frame := readFrame(t, conn)
		if frame["text"] != "hi" {
			t.Fatalf("message %d should broadcast, got %v", i+1, frame)
		}
	}

	sendPayload(t, conn, map[string]interface{}{"text": "hi", "id": "burst-6"})
	frame := readFrame(t, conn)
	if frame["type"] != "error" || frame["code"] != "challenge_required" {
		t.Fatalf("sixth message should demand a challenge, got %v", frame)
	}

	pending, err := env.limits.Exists(context.Background(), challengeKey("user:1"))
	if err != nil || !pending {
		t.Fatalf("challenge flag should be pending for the sender")
	}
}

func TestBlockedSenderGetsRetryAfter(t *testing.T) {
	env := newRelayEnv(t)
	if err := env.limits.SetFlag(context.Background(), blockKey("user:1"), 30*time.Second); err != nil {
		t.Fatalf("seed block: %v", err)
	}

	conn := env.dial(t, "alice")
	readHistory(t, conn)
	sendPayload(t, conn, map[string]interface{}{"text": "hello", "id": "b-1"})

	frame := readFrame(t, conn)
	if frame["type"] != "error" || frame["code"] != "blocked" {
		t.Fatalf("expected blocked error, got %v", frame)
	}
	retry, _ := frame["retry_after"].(float64)
	if retry <= 0 || retry > 30 {
		t.Fatalf("retry_after should be within the block ttl, got %v", retry)
	}
	if frame["client_id"] != "b-1" {
		t.Fatalf("error should echo the client id: %v", frame)
	}
}

func TestChallengePassThenPublish(t *testing.T) {
	env := newRelayEnv(t)
	ctx := context.Background()
	if err := env.limits.SetFlag(ctx, challengeKey("user:1"), 120*time.Second); err != nil {
		t.Fatalf("seed challenge: %v", err)
	}

	conn := env.dial(t, "alice")
	readHistory(t, conn)

	// No token: rejected, flag stays pending.
	sendPayload(t, conn, map[string]interface{}{"text": "first try"})
	frame := readFrame(t, conn)
	if frame["type"] != "error" || frame["code"] != "challenge_required" {
		t.Fatalf("expected challenge_required, got %v", frame)
	}

	// Bad token: still rejected.
	sendPayload(t, conn, map[string]interface{}{"text": "second try", "cf": "wrong"})
	frame = readFrame(t, conn)
	if frame["code"] != "challenge_required" {
		t.Fatalf("bad token should fail the challenge, got %v", frame)
	}

	// Valid token: publishes and clears the flag.
	sendPayload(t, conn, map[string]interface{}{"text": "third try", "cf": "valid-token"})
	frame = readFrame(t, conn)
	if frame["text"] != "third try" {
		t.Fatalf("passing verification should publish, got %v", frame)
	}
	pending, err := env.limits.Exists(ctx, challengeKey("user:1"))
	if err != nil || pending {
		t.Fatalf("challenge flag should be cleared after verification")
	}

	// The very next message needs no challenge.
	sendPayload(t, conn, map[string]interface{}{"text": "fourth"})
	frame = readFrame(t, conn)
	if frame["text"] != "fourth" {
		t.Fatalf("no further challenge expected, got %v", frame)
	}
}

func TestLimiterOutageFailsOpen(t *testing.T) {
	env := newRelayEnv(t)
	env.limits.failing = true

	conn := env.dial(t, "alice")
	readHistory(t, conn)
	sendPayload(t, conn, map[string]interface{}{"text": "still works"})

	frame := readFrame(t, conn)
	if frame["text"] != "still works" {
		t.Fatalf("limiter outage must not stop chat, got %v", frame)
	}
}

func TestDisplayNameTruncated(t *testing.T) {
	env := newRelayEnv(t)
	longName := strings.Repeat("n", 50)
	conn := env.dial(t, longName)
	readHistory(t, conn)

	sendPayload(t, conn, map[string]interface{}{"text": "hi"})
	frame := readFrame(t, conn)
	user, _ := frame["user"].(string)
	if len(user) != 32 {
		t.Fatalf("display name should be truncated to 32 chars, got %d", len(user))
	}
}

func TestHistoryTrimmedToFifty(t *testing.T) {
	env := newRelayEnv(t)
	limits := env.limits
	sess := &session{relay: env.relay, displayName: "alice", userID: 1}
	ctx := context.Background()

	// Keep each send in its own burst window so throttling never kicks in.
	for i := 1; i <= 60; i++ {
		sess.handleFrame(ctx, fmt.Sprintf(`{"text":"msg %d"}`, i))
		limits.advance(11 * time.Second)
	}

	entries, err := env.history.Read(ctx, HistoryKey)
	if err != nil {
		t.Fatalf("history read: %v", err)
	}
	if len(entries) != 50 {
		t.Fatalf("history must hold at most 50 entries, got %d", len(entries))
	}
	// Newest-first: the head is message 60, the tail message 11.
	var head, tail ChannelMessage
	if err := json.Unmarshal([]byte(entries[0]), &head); err != nil {
		t.Fatalf("unmarshal head: %v", err)
	}
	if err := json.Unmarshal([]byte(entries[len(entries)-1]), &tail); err != nil {
		t.Fatalf("unmarshal tail: %v", err)
	}
	if head.Text != "msg 60" || tail.Text != "msg 11" {
		t.Fatalf("history order wrong: head %q tail %q", head.Text, tail.Text)
	}
}
