// Package reconcile merges a freshly received remote session document
// against the edits this client holds locally, so a user's own in-flight
// interaction is never clobbered by a stale remote snapshot.
//
// This is a last-writer-wins merge per field with per-user carve-outs, not
// a CRDT. Concurrent edits by two different users to the same shared scalar
// (two facilitators both typing the icebreaker question, say) resolve to
// whichever write reached the store last. That is a known, accepted
// limitation of the document-oriented sync model.
package reconcile

import "retroboard/internal/retro"

// EditState is the client-local record of what the user is in the middle
// of. Scheduling (debounce windows, blur events) is the caller's concern;
// this package only reads the flags.
type EditState struct {
	// IcebreakerEditing is true while the facilitator's typing debounce
	// window is open.
	IcebreakerEditing bool
	// EditingTicketID is set on focus of a ticket's text, cleared on
	// blur or commit.
	EditingTicketID string
	// EditingGroupID is the same flag for a group title.
	EditingGroupID string
}

// Merge combines previous (the locally held document, possibly carrying
// unsaved edits) with incoming (the remote broadcast) for the given user.
// All fields come from incoming except the carve-outs:
//
//   - the icebreaker question while the local debounce window is open
//   - the text/title of the ticket or group currently being edited
//   - the user's own happiness and roti ballots, once cast
//   - the user's own votes on every ticket and group
//
// The vote rule is: incoming votes with the user's occurrences removed,
// concatenated with the user's occurrences from previous. A just-cast or
// just-retracted own vote survives a remote snapshot taken before it
// reached the server, while everyone else's votes track the broadcast.
func Merge(previous, incoming retro.Document, st EditState, userID string) retro.Document {
	merged := incoming.Clone()

	if st.IcebreakerEditing {
		merged.IcebreakerQuestion = previous.IcebreakerQuestion
	}
	if st.EditingTicketID != "" {
		if local := previous.TicketByID(st.EditingTicketID); local != nil {
			if remote := merged.TicketByID(st.EditingTicketID); remote != nil {
				remote.Text = local.Text
			}
		}
	}
	if st.EditingGroupID != "" {
		if local := previous.GroupByID(st.EditingGroupID); local != nil {
			if remote := merged.GroupByID(st.EditingGroupID); remote != nil {
				remote.Title = local.Title
			}
		}
	}

	if v, cast := previous.Happiness[userID]; cast {
		if merged.Happiness == nil {
			merged.Happiness = map[string]int{}
		}
		merged.Happiness[userID] = v
	}
	if v, cast := previous.Roti[userID]; cast {
		if merged.Roti == nil {
			merged.Roti = map[string]int{}
		}
		merged.Roti[userID] = v
	}

	for i := range merged.Tickets {
		if local := previous.TicketByID(merged.Tickets[i].ID); local != nil {
			merged.Tickets[i].Votes = mergeVotes(local.Votes, merged.Tickets[i].Votes, userID)
		}
	}
	for i := range merged.Groups {
		if local := previous.GroupByID(merged.Groups[i].ID); local != nil {
			merged.Groups[i].Votes = mergeVotes(local.Votes, merged.Groups[i].Votes, userID)
		}
	}

	return merged
}

// mergeVotes keeps everyone else's votes from the incoming list and the
// current user's votes from the previous one, preserving multiplicity.
func mergeVotes(previous, incoming []string, userID string) []string {
	out := make([]string, 0, len(incoming))
	for _, v := range incoming {
		if v != userID {
			out = append(out, v)
		}
	}
	for _, v := range previous {
		if v == userID {
			out = append(out, v)
		}
	}
	return out
}
