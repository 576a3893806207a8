// Package roster derives the canonical participant list for a session from
// the stored roster plus whoever is currently connected.
package roster

import (
	"fmt"
	"hash/fnv"

	"retroboard/internal/retro"
)

// Identity is the connecting user as supplied by the identity collaborator.
type Identity struct {
	ID    string
	Name  string
	Color string
	Role  string
}

// Role values gate facilitator-only operations.
const (
	RoleFacilitator = "facilitator"
	RoleParticipant = "participant"
)

// Facilitator reports whether the identity may drive phase transitions and
// other gated actions.
func (id Identity) Facilitator() bool {
	return id.Role == RoleFacilitator
}

// palette is the deterministic color cycle assigned to participants that
// arrive without a color of their own.
var palette = []string{
	"#e63946", "#f4a261", "#2a9d8f", "#264653",
	"#e9c46a", "#8338ec", "#219ebc", "#ff006e",
}

// Resolver computes de-duplicated participant lists and stable display
// attributes.
type Resolver struct{}

// New returns a Resolver.
func New() *Resolver {
	return &Resolver{}
}

// Resolve merges the stored roster with the current user and any extra
// connected-but-unlisted members, de-duplicated by id in first-seen order.
// Every returned participant has a color.
func (r *Resolver) Resolve(known []retro.Participant, current Identity, connected []retro.Participant) []retro.Participant {
	seen := make(map[string]struct{}, len(known)+1+len(connected))
	out := make([]retro.Participant, 0, len(known)+1+len(connected))

	add := func(p retro.Participant) {
		if p.ID == "" {
			return
		}
		if _, dup := seen[p.ID]; dup {
			return
		}
		seen[p.ID] = struct{}{}
		if p.Color == "" {
			p.Color = ColorFor(p.ID)
		}
		out = append(out, p)
	}

	for _, p := range known {
		add(p)
	}
	add(retro.Participant{ID: current.ID, Name: current.Name, Color: current.Color})
	for _, p := range connected {
		add(p)
	}
	return out
}

// ColorFor maps a user id onto the palette deterministically, so every
// client colors the same participant the same way without coordination.
func ColorFor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return palette[h.Sum32()%uint32(len(palette))]
}

// AnonymousLabel is the display name used for the participant at the given
// roster position when the session runs in anonymous mode.
func AnonymousLabel(index int) string {
	return fmt.Sprintf("Participant %d", index+1)
}

// DisplayName resolves what a viewer should call a participant, honoring
// anonymous mode for everyone but the participant themselves.
func DisplayName(participants []retro.Participant, p retro.Participant, viewerID string, anonymous bool) string {
	if !anonymous || p.ID == viewerID {
		return p.Name
	}
	for i, known := range participants {
		if known.ID == p.ID {
			return AnonymousLabel(i)
		}
	}
	return AnonymousLabel(len(participants))
}
