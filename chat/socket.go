package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxMessageChars = 2000

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Identity is a resolved sender. Anonymous connections get the zero value:
// they receive broadcasts and history but cannot send.
type Identity struct {
	UserID int
	Name   string
}

// Relay bridges each websocket connection onto the global broadcast
// channel. Identify and Verify are soft collaborators: Identify failing to
// find an identity only disables sending, Verify is the external
// human-verification check.
type Relay struct {
	Broker  Broker
	History History
	Limiter *Limiter

	Identify  func(r *http.Request) (Identity, bool)
	AvatarURL func(userID int) string
	Verify    func(ctx context.Context, token, remoteIP string) bool
}

// HandleSocket runs one connection session until the client disconnects or
// either relay direction fails.
func (relay *Relay) HandleSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("chat: websocket upgrade failed:", err)
		return
	}
	conn.SetReadLimit(64 * 1024)

	sess := &session{
		relay:    relay,
		conn:     conn,
		remoteIP: c.ClientIP(),
	}
	if relay.Identify != nil {
		if ident, ok := relay.Identify(c.Request); ok {
			sess.userID = ident.UserID
			sess.displayName = truncateRunes(ident.Name, 32)
		}
	}

	sess.run(c.Request.Context())
}

type session struct {
	relay *Relay
	conn  *websocket.Conn

	// gorilla allows a single concurrent writer; both relay directions and
	// error replies go through writeMu.
	writeMu sync.Mutex

	remoteIP    string
	userID      int
	displayName string
}

// senderKey identifies the sender for rate limiting: the durable user id
// when authenticated, the network origin otherwise.
func (s *session) senderKey() string {
	if s.userID != 0 {
		return fmt.Sprintf("user:%d", s.userID)
	}
	ip := s.remoteIP
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Subscribe before reading history so a message published in the gap is
	// never lost; it may show up in both the live feed and a later history
	// read, which is the accepted tradeoff.
	sub, err := s.relay.Broker.Subscribe(ctx, ChannelName)
	if err != nil {
		log.Println("chat: subscribe failed:", err)
		s.conn.Close()
		return
	}

	s.sendHistory(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// First direction to finish cancels the other; closing the socket
		// unblocks the inbound read loop.
		defer cancel()
		defer s.conn.Close()
		s.outbound(ctx, sub)
	}()

	s.inbound(ctx)

	// Teardown steps are each attempted regardless of earlier failures.
	cancel()
	if err := sub.Close(); err != nil {
		log.Println("chat: subscription close:", err)
	}
	s.conn.Close()
	wg.Wait()
}

// sendHistory replays the stored log oldest-first as a single event.
// Best-effort: a failed read or send only costs this client its backlog.
func (s *session) sendHistory(ctx context.Context) {
	raw, err := s.relay.History.Read(ctx, HistoryKey)
	if err != nil {
		log.Println("chat: history read:", err)
		return
	}
	items := make([]ChannelMessage, 0, len(raw))
	// Stored newest-first; reverse for display.
	for i := len(raw) - 1; i >= 0; i-- {
		var msg ChannelMessage
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			continue
		}
		items = append(items, msg)
	}
	if err := s.send(historyEvent{Type: "history", Items: items}); err != nil {
		log.Println("chat: history send:", err)
	}
}

// outbound forwards every broadcast payload verbatim to the socket.
func (s *session) outbound(ctx context.Context, sub Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.Messages():
			if !ok {
				return
			}
			if err := s.sendRaw(payload); err != nil {
				return
			}
		}
	}
}

// inbound drains client frames until the socket errors or closes.
func (s *session) inbound(ctx context.Context) {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleFrame(ctx, string(raw))
	}
}

func (s *session) handleFrame(ctx context.Context, raw string) {
	var payload inboundPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		// Permissive fallback: treat the whole frame as text.
		payload = inboundPayload{Text: raw}
	}

	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return
	}
	// Anonymous connections receive but cannot send.
	if s.displayName == "" {
		return
	}
	clientID := payload.ID

	if utf8.RuneCountInString(text) > maxMessageChars {
		s.sendError("Message exceeds 2000 characters.", codeTooLong, 0, clientID)
		return
	}

	verdict, err := s.relay.Limiter.Check(ctx, s.senderKey())
	if err != nil {
		// Redis unavailable: fail open, no throttling for this message.
		log.Println("chat: rate limiter unavailable:", err)
		verdict = Verdict{}
	}
	if verdict.Blocked {
		if verdict.Escalated {
			s.sendError("Temporarily blocked for excessive messaging. Please wait a minute.", codeBlocked, verdict.RetryAfter, clientID)
		} else {
			msg := fmt.Sprintf("You're sending messages too fast. Temporarily blocked. Try again in %d seconds.", verdict.RetryAfter)
			s.sendError(msg, codeBlocked, verdict.RetryAfter, clientID)
		}
		return
	}
	if verdict.Challenge {
		ok := false
		if payload.CF != "" && s.relay.Verify != nil {
			ok = s.relay.Verify(ctx, payload.CF, s.remoteIP)
		}
		if !ok {
			s.sendError("Additional verification required. Please complete the challenge.", codeChallengeRequired, 0, clientID)
			return
		}
		if err := s.relay.Limiter.ClearChallenge(ctx, s.senderKey()); err != nil {
			log.Println("chat: clear challenge:", err)
		}
	}

	ts := payload.Ts
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	msg := ChannelMessage{
		ID:       uuid.NewString(),
		User:     s.displayName,
		Text:     text,
		Ts:       ts,
		ClientID: clientID,
	}
	if s.relay.AvatarURL != nil && s.userID != 0 {
		msg.Avatar = s.relay.AvatarURL(s.userID)
	}
	encoded, err := json.Marshal(msg)
	if err != nil {
		log.Println("chat: marshal message:", err)
		return
	}

	if err := s.relay.Broker.Publish(ctx, ChannelName, string(encoded)); err != nil {
		log.Println("chat: publish:", err)
		return
	}
	// History is best-effort; the message already went out on the channel.
	if err := s.relay.History.Append(ctx, HistoryKey, string(encoded)); err != nil {
		log.Println("chat: history append:", err)
	}
}

func (s *session) send(v interface{}) error {
	encoded, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.sendRaw(string(encoded))
}

func (s *session) sendRaw(payload string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}

func (s *session) sendError(message, code string, retryAfter int, clientID string) {
	event := errorEvent{
		Type:       "error",
		Error:      message,
		Code:       code,
		RetryAfter: retryAfter,
		ClientID:   clientID,
	}
	if err := s.send(event); err != nil {
		log.Println("chat: error reply send:", err)
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
