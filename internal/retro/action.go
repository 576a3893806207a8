package retro

import (
	"sort"
	"strings"
	"time"
)

// AddAction creates an action item during DISCUSS. Participants create
// proposals; the facilitator may add a committed "new" action directly,
// bypassing proposal voting.
func (d *Document) AddAction(id, text, assigneeID, actionType, linkedID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	if d.Phase != PhaseDiscuss {
		return ErrWrongPhase
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if actionType != ActionTypeProposal && actionType != ActionTypeNew {
		actionType = ActionTypeProposal
	}
	action := Action{
		ID:         id,
		Text:       strings.TrimSpace(text),
		AssigneeID: assigneeID,
		Type:       actionType,
		LinkedID:   linkedID,
		SessionID:  d.ID,
		CreatedAt:  time.Now().UTC(),
	}
	if actionType == ActionTypeProposal {
		action.ProposalVotes = map[string]string{}
	}
	d.Actions = append(d.Actions, action)
	return nil
}

// VoteProposal records a user's up/down/neutral stance on a proposal.
// Re-voting the same value retracts it: toggle, not overwrite.
func (d *Document) VoteProposal(actionID, userID, direction string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	switch direction {
	case ProposalVoteUp, ProposalVoteDown, ProposalVoteNeutral:
	default:
		return ErrInvalidDirection
	}
	action := d.ActionByID(actionID)
	if action == nil {
		return ErrActionNotFound
	}
	if action.Type != ActionTypeProposal {
		return ErrNotProposal
	}
	if action.ProposalVotes == nil {
		action.ProposalVotes = map[string]string{}
	}
	if action.ProposalVotes[userID] == direction {
		delete(action.ProposalVotes, userID)
		return nil
	}
	action.ProposalVotes[userID] = direction
	return nil
}

// AcceptProposal promotes a proposal to a committed action.
func (d *Document) AcceptProposal(actionID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	action := d.ActionByID(actionID)
	if action == nil {
		return ErrActionNotFound
	}
	if action.Type != ActionTypeProposal {
		return ErrNotProposal
	}
	action.Type = ActionTypeNew
	return nil
}

// UpdateAction edits an action's done flag and assignee. Works on both the
// session's own actions and the curated phase snapshots; callers are
// responsible for writing snapshot edits through to the global backlog.
func (d *Document) UpdateAction(actionID string, done bool, assigneeID string) (*Action, error) {
	if action := d.ActionByID(actionID); action != nil {
		action.Done = done
		action.AssigneeID = assigneeID
		return action, nil
	}
	if action := findAction(d.OpenActionsSnapshot, actionID); action != nil {
		action.Done = done
		action.AssigneeID = assigneeID
		return action, nil
	}
	if action := findAction(d.HistoryActionsSnapshot, actionID); action != nil {
		action.Done = done
		action.AssigneeID = assigneeID
		return action, nil
	}
	return nil, ErrActionNotFound
}

// DeleteAction removes an action from the session.
func (d *Document) DeleteAction(actionID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	for i := range d.Actions {
		if d.Actions[i].ID == actionID {
			d.Actions = append(d.Actions[:i], d.Actions[i+1:]...)
			return nil
		}
	}
	return ErrActionNotFound
}

// SetDiscussionFocus points every client at one discussion item.
func (d *Document) SetDiscussionFocus(itemID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	if d.Phase != PhaseDiscuss {
		return ErrWrongPhase
	}
	d.DiscussionFocusID = itemID
	return nil
}

// DiscussionItem is an ungrouped ticket or a group, ordered for discussion.
type DiscussionItem struct {
	ID      string  `json:"id"`
	Votes   int     `json:"votes"`
	Ticket  *Ticket `json:"ticket,omitempty"`
	Group   *Group  `json:"group,omitempty"`
	IsGroup bool    `json:"isGroup"`
}

// DiscussionOrder returns ungrouped tickets and groups sorted by descending
// vote count. Ties keep document order so the list is stable across clients.
func (d *Document) DiscussionOrder() []DiscussionItem {
	var items []DiscussionItem
	for i := range d.Groups {
		g := d.Groups[i]
		items = append(items, DiscussionItem{ID: g.ID, Votes: len(g.Votes), Group: &g, IsGroup: true})
	}
	for i := range d.Tickets {
		if d.Tickets[i].GroupID != "" {
			continue
		}
		t := d.Tickets[i]
		items = append(items, DiscussionItem{ID: t.ID, Votes: len(t.Votes), Ticket: &t})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Votes > items[j].Votes
	})
	return items
}

// CommittedActions returns the actions that outlive the session.
func (d *Document) CommittedActions() []Action {
	var out []Action
	for _, a := range d.Actions {
		if a.Type == ActionTypeNew {
			out = append(out, a)
		}
	}
	return out
}

func findAction(actions []Action, id string) *Action {
	for i := range actions {
		if actions[i].ID == id {
			return &actions[i]
		}
	}
	return nil
}
