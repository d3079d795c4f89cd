package graphql_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/graphql"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

type wsMsg struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/graphql"
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: []string{graphql.Subprotocol}})
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	require.Equal(t, graphql.Subprotocol, conn.Subprotocol())
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ, id string, payload any) {
	t.Helper()
	msg := wsMsg{ID: id, Type: typ}
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		msg.Payload = b
	}
	b, err := json.Marshal(msg)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, b))
}

// recv returns the next message, skipping the server's keep-alive pongs.
func recv(t *testing.T, conn *websocket.Conn) wsMsg {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var msg wsMsg
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type != "pong" {
			return msg
		}
	}
}

// drain reads until the server closes the connection and returns the types
// of the messages seen on the way.
func drain(t *testing.T, conn *websocket.Conn) ([]string, websocket.StatusCode) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	var seen []string
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return seen, websocket.CloseStatus(err)
		}
		var msg wsMsg
		if json.Unmarshal(data, &msg) == nil {
			seen = append(seen, msg.Type)
		}
	}
}

func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestWS_InitAckAndQuery(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@x.com", domain.RoleUser)
	access, _ := h.login(t, "alice@x.com")

	conn := h.dial(t)
	send(t, conn, "connection_init", "", map[string]any{"authorization": "Bearer " + access})

	ack := recv(t, conn)
	require.Equal(t, "connection_ack", ack.Type)
	require.Equal(t, map[string]any{"authenticated": true}, decode(t, ack.Payload))

	send(t, conn, "subscribe", "q1", map[string]any{"query": `{ me { email } }`})
	next := recv(t, conn)
	require.Equal(t, "next", next.Type)
	require.Equal(t, "q1", next.ID)
	require.Equal(t, "alice@x.com", path(decode(t, next.Payload), "data", "me", "email"))

	done := recv(t, conn)
	require.Equal(t, "complete", done.Type)
	require.Equal(t, "q1", done.ID)
}

func TestWS_RenewsExpiredInitCredentials(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "alice@x.com", domain.RoleUser)
	access, refresh := h.login(t, "alice@x.com")

	h.clock.Advance(16 * time.Minute)

	conn := h.dial(t)
	send(t, conn, "connection_init", "", map[string]any{"authToken": access, "refreshToken": refresh})

	ack := recv(t, conn)
	require.Equal(t, "connection_ack", ack.Type)
	payload := decode(t, ack.Payload)
	require.Equal(t, true, payload["authenticated"])
	require.Equal(t, true, payload["tokenRefreshed"])

	tokens, ok := payload["renewedTokens"].(map[string]any)
	require.True(t, ok, "the renewed pair rides on connection_ack")
	require.NotEmpty(t, tokens["accessToken"])
	require.NotEqual(t, access, tokens["accessToken"])
	require.NotEmpty(t, tokens["refreshToken"])

	// The renewed identity serves operations on this connection.
	send(t, conn, "subscribe", "q1", map[string]any{"query": `{ me { email } }`})
	require.Equal(t, "alice@x.com", path(decode(t, recv(t, conn).Payload), "data", "me", "email"))
}

func TestWS_UserEventsSubscription(t *testing.T) {
	h := newHarness(t)
	alice := h.seed(t, "alice@x.com", domain.RoleUser)
	bob := h.seed(t, "bob@x.com", domain.RoleUser)
	access, _ := h.login(t, "alice@x.com")

	conn := h.dial(t)
	send(t, conn, "connection_init", "", map[string]any{"authorization": access})
	require.Equal(t, "connection_ack", recv(t, conn).Type)

	send(t, conn, "subscribe", "s1", map[string]any{
		"query": `subscription { ev: userEvents(types: ["user.updated"]) { type userId } }`,
	})
	require.Eventually(t, func() bool { return h.hub.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)

	// Filtered out: another user's event, and a type not asked for.
	require.NoError(t, h.hub.Publish(t.Context(), domain.Event{Type: domain.EventUserUpdated, UserID: bob.ID}))
	require.NoError(t, h.hub.Publish(t.Context(), domain.Event{Type: domain.EventUserLogin, UserID: alice.ID}))
	require.NoError(t, h.hub.Publish(t.Context(), domain.Event{Type: domain.EventUserUpdated, UserID: alice.ID}))

	next := recv(t, conn)
	require.Equal(t, "next", next.Type)
	require.Equal(t, "s1", next.ID)
	require.Equal(t, map[string]any{"type": "user.updated", "userId": alice.ID}, path(decode(t, next.Payload), "data", "ev"))

	send(t, conn, "complete", "s1", nil)
	require.Eventually(t, func() bool { return h.hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWS_AnonymousSubscriptionIsRejected(t *testing.T) {
	h := newHarness(t)

	conn := h.dial(t)
	send(t, conn, "connection_init", "", nil)
	ack := recv(t, conn)
	require.Equal(t, "connection_ack", ack.Type)
	require.Equal(t, map[string]any{"authenticated": false}, decode(t, ack.Payload))

	send(t, conn, "subscribe", "s1", map[string]any{"query": `subscription { userEvents { id } }`})
	msg := recv(t, conn)
	require.Equal(t, "error", msg.Type)
	require.Equal(t, "s1", msg.ID)

	var errs []gqlError
	require.NoError(t, json.Unmarshal(msg.Payload, &errs))
	require.Len(t, errs, 1)
	require.Equal(t, graphql.CodeUnauthenticated, errs[0].Extensions["code"])
	require.Zero(t, h.hub.Subscribers())

	// An errored operation is finished, so its id may be reused.
	send(t, conn, "subscribe", "s1", map[string]any{"query": `{ __typename }`})
	require.Equal(t, "next", recv(t, conn).Type)
	require.Equal(t, "complete", recv(t, conn).Type)
}

func TestWS_RejectedInitClosesWithoutAck(t *testing.T) {
	cases := []struct {
		name    string
		payload any
	}{
		{name: "non-bearer scheme", payload: map[string]any{"authorization": "Basic dXNlcjpwYXNz"}},
		{name: "non-string token", payload: map[string]any{"authToken": 42}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			conn := h.dial(t)
			send(t, conn, "connection_init", "", tc.payload)

			seen, status := drain(t, conn)
			require.NotContains(t, seen, "connection_ack")
			require.NotEqual(t, websocket.StatusCode(-1), status, "the server sends a close frame")
		})
	}
}

func TestWS_ProtocolViolationsClose(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T, conn *websocket.Conn)
	}{
		{
			name: "subscribe before init",
			run: func(t *testing.T, conn *websocket.Conn) {
				send(t, conn, "subscribe", "s1", map[string]any{"query": `{ me { id } }`})
			},
		},
		{
			name: "init timeout",
			run:  func(t *testing.T, conn *websocket.Conn) {},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			conn := h.dial(t)
			tc.run(t, conn)
			_, status := drain(t, conn)
			require.Equal(t, websocket.StatusProtocolError, status)
		})
	}
}

func TestWS_RequiresSubprotocol(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/graphql"
	_, resp, err := websocket.Dial(ctx, url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, h.conns.open.Load())
}

func TestWS_ObserverTracksConnections(t *testing.T) {
	h := newHarness(t)
	conn := h.dial(t)
	send(t, conn, "connection_init", "", nil)
	require.Equal(t, "connection_ack", recv(t, conn).Type)
	require.EqualValues(t, 1, h.conns.open.Load())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool { return h.conns.open.Load() == 0 }, 2*time.Second, 10*time.Millisecond)
}
