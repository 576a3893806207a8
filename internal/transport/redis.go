package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"retroboard/internal/retro"
)

const memberTTL = 24 * time.Hour

// RedisTransport implements Transport over Redis pub/sub. Each session has
// one channel carrying document and presence envelopes, plus a set holding
// the currently joined members so every join can be answered with a full
// roster announcement. All publishes go through a single client, which
// gives per-origin FIFO delivery.
type RedisTransport struct {
	client *redis.Client
	origin string

	mu        sync.Mutex
	handlers  Handlers
	sessionID string
	userID    string
	userName  string
	pubsub    *redis.PubSub
	connected bool
}

// NewRedisTransport builds a transport from a Redis URL. The connection is
// not established until Connect.
func NewRedisTransport(redisURL string) (*RedisTransport, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisTransport{
		client: redis.NewClient(opts),
		origin: uuid.New().String(),
	}, nil
}

// NewRedisTransportWithClient wraps an existing client, for tests.
func NewRedisTransportWithClient(client *redis.Client) *RedisTransport {
	return &RedisTransport{client: client, origin: uuid.New().String()}
}

func channelKey(sessionID string) string { return "retro:session:" + sessionID }
func membersKey(sessionID string) string { return "retro:session:" + sessionID + ":members" }

// Connect verifies the backend is reachable. Idempotent.
func (t *RedisTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}
	if err := t.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	t.connected = true
	return nil
}

// SetHandlers installs the event callbacks.
func (t *RedisTransport) SetHandlers(h Handlers) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = h
}

// Join subscribes to the session channel, records membership and announces
// the join plus a fresh roster. A prior joined session is left first.
func (t *RedisTransport) Join(ctx context.Context, sessionID, userID, userName string) error {
	if err := t.Connect(ctx); err != nil {
		return err
	}
	if err := t.Leave(ctx); err != nil {
		return err
	}

	pubsub := t.client.Subscribe(ctx, channelKey(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	t.mu.Lock()
	t.sessionID = sessionID
	t.userID = userID
	t.userName = userName
	t.pubsub = pubsub
	t.mu.Unlock()

	go t.consume(pubsub)

	member := Member{ID: userID, Name: userName}
	raw, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("encode member: %w", err)
	}
	if err := t.client.SAdd(ctx, membersKey(sessionID), raw).Err(); err != nil {
		return fmt.Errorf("record member: %w", err)
	}
	_ = t.client.Expire(ctx, membersKey(sessionID), memberTTL).Err()

	if err := t.publish(ctx, envelope{Kind: kindJoined, SessionID: sessionID, Member: &member}); err != nil {
		return err
	}
	return t.announceRoster(ctx, sessionID)
}

// Leave announces the departure, removes the membership record and tears
// down the subscription. Safe to call when nothing is joined.
func (t *RedisTransport) Leave(ctx context.Context) error {
	t.mu.Lock()
	sessionID, userID, userName := t.sessionID, t.userID, t.userName
	pubsub := t.pubsub
	t.sessionID = ""
	t.pubsub = nil
	t.mu.Unlock()

	if sessionID == "" {
		return nil
	}

	member := Member{ID: userID, Name: userName}
	raw, err := json.Marshal(member)
	if err == nil {
		_ = t.client.SRem(ctx, membersKey(sessionID), raw).Err()
	}
	_ = t.publish(ctx, envelope{Kind: kindLeft, SessionID: sessionID, Member: &member})
	_ = t.announceRoster(ctx, sessionID)

	if pubsub != nil {
		return pubsub.Close()
	}
	return nil
}

// BroadcastDocument publishes the full document to the joined session.
func (t *RedisTransport) BroadcastDocument(ctx context.Context, doc retro.Document) error {
	t.mu.Lock()
	sessionID := t.sessionID
	t.mu.Unlock()
	if sessionID == "" {
		return ErrNotJoined
	}
	d := doc
	return t.publish(ctx, envelope{Kind: kindDocument, SessionID: sessionID, Document: &d})
}

// PublishDocument publishes a document to the channel of the session named
// by the document itself, independent of any joined session. This is the
// store-side broadcast hook: every persisted update fans out through here.
func (t *RedisTransport) PublishDocument(ctx context.Context, doc retro.Document) error {
	d := doc
	return t.publish(ctx, envelope{Kind: kindDocument, SessionID: doc.ID, Document: &d})
}

func (t *RedisTransport) announceRoster(ctx context.Context, sessionID string) error {
	raws, err := t.client.SMembers(ctx, membersKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("read members: %w", err)
	}
	members := make([]Member, 0, len(raws))
	for _, raw := range raws {
		var m Member
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			continue
		}
		members = append(members, m)
	}
	return t.publish(ctx, envelope{Kind: kindRoster, SessionID: sessionID, Members: members})
}

func (t *RedisTransport) publish(ctx context.Context, env envelope) error {
	env.Origin = t.origin
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := t.client.Publish(ctx, channelKey(env.SessionID), raw).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// consume decodes envelopes off the subscription and dispatches them. Every
// handler call is guarded by the session id: a client may remain briefly
// subscribed while switching sessions, and those stragglers are dropped.
func (t *RedisTransport) consume(pubsub *redis.PubSub) {
	for msg := range pubsub.Channel() {
		var env envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			log.Printf("transport: dropping undecodable envelope: %v", err)
			continue
		}

		t.mu.Lock()
		current := t.sessionID
		handlers := t.handlers
		origin := t.origin
		t.mu.Unlock()

		if env.SessionID != current {
			continue
		}

		switch env.Kind {
		case kindDocument:
			// Own broadcasts come back around on the channel; the local
			// state already reflects them.
			if env.Origin == origin {
				continue
			}
			if handlers.OnDocument != nil && env.Document != nil {
				handlers.OnDocument(*env.Document)
			}
		case kindJoined:
			if handlers.OnMemberJoined != nil && env.Member != nil {
				handlers.OnMemberJoined(*env.Member)
			}
		case kindLeft:
			if handlers.OnMemberLeft != nil && env.Member != nil {
				handlers.OnMemberLeft(*env.Member)
			}
		case kindRoster:
			if handlers.OnRoster != nil {
				handlers.OnRoster(env.Members)
			}
		}
	}
}

// Close tears down the subscription and the underlying client.
func (t *RedisTransport) Close() error {
	_ = t.Leave(context.Background())
	return t.client.Close()
}
