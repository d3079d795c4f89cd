package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/99designs/gqlgen/graphql/handler"
	gqltransport "github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/internal/keystone/transport"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
	"github.com/gorilla/websocket"
)

// Subprotocol is the only WebSocket subprotocol served.
const Subprotocol = "graphql-transport-ws"

// CloseInternal closes a connection whose session could not be persisted.
const CloseInternal = 4500

// ConnObserver is told when connections open and close.
type ConnObserver interface {
	WebSocketOpened()
	WebSocketClosed()
}

// WSOptions tunes the WebSocket transport. Zero values take defaults.
type WSOptions struct {
	// OriginPatterns authorises cross-origin upgrades (path.Match host patterns).
	OriginPatterns     []string
	InsecureSkipVerify bool

	InitTimeout       time.Duration
	KeepAliveInterval time.Duration
}

func (o WSOptions) withDefaults() WSOptions {
	if o.InitTimeout <= 0 {
		o.InitTimeout = 10 * time.Second
	}
	if o.KeepAliveInterval <= 0 {
		o.KeepAliveInterval = 30 * time.Second
	}
	return o
}

// checkOrigin allows same-origin upgrades, requests without an Origin, and
// origins whose host matches one of the patterns.
func (o WSOptions) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || o.InsecureSkipVerify {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, p := range o.OriginPatterns {
		if ok, _ := path.Match(strings.ToLower(p), strings.ToLower(u.Host)); ok {
			return true
		}
	}
	return false
}

// WSHandler serves subscriptions, queries and mutations on GET /graphql with
// gqlgen's WebSocket transport. Connections authenticate once, from the
// connection_init payload; the verdict holds until the socket closes.
type WSHandler struct {
	srv *handler.Server
	obs ConnObserver
}

// NewWSHandler serves s over graphql-transport-ws, authenticating each
// connection through adapter. obs may be nil.
func NewWSHandler(s *Schema, adapter *transport.WSAdapter, obs ConnObserver, opts WSOptions) *WSHandler {
	opts = opts.withDefaults()

	srv := newServer(s)
	srv.AddTransport(gqltransport.Websocket{
		Upgrader: websocket.Upgrader{
			Subprotocols: []string{Subprotocol},
			CheckOrigin:  opts.checkOrigin,
		},
		InitFunc:              initFunc(adapter),
		InitTimeout:           opts.InitTimeout,
		KeepAlivePingInterval: opts.KeepAliveInterval,
	})
	return &WSHandler{srv: srv, obs: obs}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !slices.Contains(websocket.Subprotocols(r), Subprotocol) {
		slogx.FromContext(r.Context()).Info("websocket subprotocol rejected",
			slog.Any("offered", websocket.Subprotocols(r)))
		http.Error(w, "the "+Subprotocol+" subprotocol is required", http.StatusBadRequest)
		return
	}

	if h.obs != nil {
		h.obs.WebSocketOpened()
		defer h.obs.WebSocketClosed()
	}
	h.srv.ServeHTTP(w, r)
}

// initFunc authenticates connection_init. The returned context carries the
// AuthContext into every operation on the connection, and the ack payload
// reports the verdict along with any renewed pair.
func initFunc(adapter *transport.WSAdapter) gqltransport.WebsocketInitFunc {
	return func(ctx context.Context, payload gqltransport.InitPayload) (context.Context, *gqltransport.InitPayload, error) {
		raw, err := json.Marshal(payload)
		if err != nil {
			return ctx, nil, &websocket.CloseError{Code: transport.CloseMalformedInit, Text: "Malformed connection_init payload"}
		}

		ac, err := adapter.Authenticate(ctx, raw)
		if errors.Is(err, session.ErrMalformedCredentials) {
			return ctx, nil, &websocket.CloseError{Code: transport.CloseMalformedInit, Text: "Malformed connection_init payload"}
		}
		if err != nil {
			slogx.FromContext(ctx).Error("websocket authentication failed", slog.Any("error", err))
			return ctx, nil, &websocket.CloseError{Code: CloseInternal, Text: "Session could not be persisted"}
		}

		ack := gqltransport.InitPayload(transport.AckPayload(ac))
		return transport.Attach(ctx, ac), &ack, nil
	}
}
