package chat

// Wire protocol with browser clients. Broadcast frames are raw
// ChannelMessage JSON; everything else carries a "type" discriminator.

type ChannelMessage struct {
	ID       string `json:"id"`
	User     string `json:"user,omitempty"`
	Text     string `json:"text"`
	Ts       int64  `json:"ts"`
	Avatar   string `json:"avatar,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// inboundPayload is what clients send. The "id" is an opaque correlation
// token echoed back in errors and the published message; "cf" carries a
// Turnstile token when a challenge is pending.
type inboundPayload struct {
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
	ID   string `json:"id"`
	CF   string `json:"cf"`
}

type historyEvent struct {
	Type  string           `json:"type"`
	Items []ChannelMessage `json:"items"`
}

type errorEvent struct {
	Type       string `json:"type"`
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
}

const (
	codeTooLong           = "too_long"
	codeBlocked           = "blocked"
	codeChallengeRequired = "challenge_required"
)
