// Package store holds the session document store: the atomic
// read-modify-write pipeline every mutation goes through, backed by a
// persistence collaborator and coupled to the sync broadcast.
package store

import (
	"context"
	"errors"

	"retroboard/internal/retro"
)

// ErrNotFound reports an absent session document. Callers in the mutation
// path treat it as a silent no-op: nothing can act on a session that does
// not exist.
var ErrNotFound = errors.New("session document not found")

// Persistence is the storage collaborator. The whole document is the unit
// of storage; there is no per-entity persistence.
type Persistence interface {
	GetDocument(ctx context.Context, teamID, sessionID string) (retro.Document, bool, error)
	SaveDocument(ctx context.Context, teamID, sessionID string, doc retro.Document) error
	ListGlobalActions(ctx context.Context, teamID string) ([]retro.Action, error)
	AppendOrUpdateGlobalAction(ctx context.Context, teamID string, action retro.Action) error
	DeleteGlobalAction(ctx context.Context, teamID, actionID string) error
	Ping(ctx context.Context) error
}

// Broadcaster pushes a freshly persisted document to the sync layer.
// Persistence and sync are not separable: every successful update
// broadcasts.
type Broadcaster interface {
	PublishDocument(ctx context.Context, doc retro.Document) error
}
