// Package transport is the sync layer between clients of one session: a
// thin pub/sub adapter that broadcasts whole documents and presence events
// on a per-session channel. Delivery is not globally ordered; a single
// origin's broadcasts arrive at a given subscriber in send order, and the
// merge reconciler deals with the rest.
package transport

import (
	"context"
	"errors"

	"retroboard/internal/retro"
)

var (
	// ErrConnectionFailed reports an unreachable sync backend. Callers log
	// it and continue in degraded local-only mode.
	ErrConnectionFailed = errors.New("sync transport unreachable")
	// ErrNotJoined reports an operation that needs a joined session.
	ErrNotJoined = errors.New("no session joined")
)

// Member identifies a connected participant on the wire.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Envelope kinds.
const (
	kindDocument = "document"
	kindJoined   = "member_joined"
	kindLeft     = "member_left"
	kindRoster   = "roster"
)

// envelope is the single wire message; Kind selects which payload field is
// meaningful.
type envelope struct {
	Kind      string          `json:"kind"`
	SessionID string          `json:"sessionId"`
	Origin    string          `json:"origin"`
	Document  *retro.Document `json:"document,omitempty"`
	Member    *Member         `json:"member,omitempty"`
	Members   []Member        `json:"members,omitempty"`
}

// Handlers receives decoded events. Any handler may be nil.
type Handlers struct {
	OnDocument     func(retro.Document)
	OnMemberJoined func(Member)
	OnMemberLeft   func(Member)
	OnRoster       func([]Member)
}

// Transport is one client's connection to the sync layer.
type Transport interface {
	// Connect establishes the connection; idempotent.
	Connect(ctx context.Context) error
	// Join subscribes to a session's channel and announces the member.
	Join(ctx context.Context, sessionID, userID, userName string) error
	// Leave unsubscribes and announces the departure.
	Leave(ctx context.Context) error
	// BroadcastDocument publishes a full document to the joined session.
	BroadcastDocument(ctx context.Context, doc retro.Document) error
	// SetHandlers installs the event callbacks. Events for any session
	// other than the currently joined one are dropped before dispatch.
	SetHandlers(h Handlers)
	Close() error
}
