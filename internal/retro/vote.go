package retro

import "sort"

// VoteCount returns how many votes the given user has cast across all
// tickets and groups. Vote lists are multisets, so the same user counts
// once per occurrence.
func (d *Document) VoteCount(userID string) int {
	total := 0
	for _, t := range d.Tickets {
		total += occurrences(t.Votes, userID)
	}
	for _, g := range d.Groups {
		total += occurrences(g.Votes, userID)
	}
	return total
}

// VotesLeft returns the user's remaining vote budget.
func (d *Document) VotesLeft(userID string) int {
	left := d.Settings.MaxVotes - d.VoteCount(userID)
	if left < 0 {
		return 0
	}
	return left
}

// CastTicketVote adds one of the user's votes to a ticket.
func (d *Document) CastTicketVote(ticketID, userID string) error {
	if err := d.voteAllowed(userID); err != nil {
		return err
	}
	ticket := d.TicketByID(ticketID)
	if ticket == nil {
		return ErrTicketNotFound
	}
	if d.Settings.OneVotePerTicket && contains(ticket.Votes, userID) {
		return ErrDuplicateVote
	}
	ticket.Votes = append(ticket.Votes, userID)
	return nil
}

// RetractTicketVote removes one occurrence of the user's vote from a ticket.
func (d *Document) RetractTicketVote(ticketID, userID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	ticket := d.TicketByID(ticketID)
	if ticket == nil {
		return ErrTicketNotFound
	}
	ticket.Votes = removeOne(ticket.Votes, userID)
	return nil
}

// CastGroupVote adds one of the user's votes to a group.
func (d *Document) CastGroupVote(groupID, userID string) error {
	if err := d.voteAllowed(userID); err != nil {
		return err
	}
	group := d.GroupByID(groupID)
	if group == nil {
		return ErrGroupNotFound
	}
	if d.Settings.OneVotePerTicket && contains(group.Votes, userID) {
		return ErrDuplicateVote
	}
	group.Votes = append(group.Votes, userID)
	return nil
}

// RetractGroupVote removes one occurrence of the user's vote from a group.
func (d *Document) RetractGroupVote(groupID, userID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	group := d.GroupByID(groupID)
	if group == nil {
		return ErrGroupNotFound
	}
	group.Votes = removeOne(group.Votes, userID)
	return nil
}

func (d *Document) voteAllowed(userID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	if d.Phase != PhaseVote {
		return ErrWrongPhase
	}
	if d.VotesLeft(userID) == 0 {
		return ErrVoteBudget
	}
	return nil
}

// ApplyVoteSettings installs a new vote budget and duplicate policy. A
// shrinking budget trims each over-budget user's votes, ticket votes before
// group votes. Turning oneVotePerTicket on collapses existing duplicates.
func (d *Document) ApplyVoteSettings(maxVotes int, oneVotePerTicket bool) {
	if maxVotes > 0 {
		d.Settings.MaxVotes = maxVotes
	}
	if oneVotePerTicket && !d.Settings.OneVotePerTicket {
		for i := range d.Tickets {
			d.Tickets[i].Votes = dedupe(d.Tickets[i].Votes)
		}
		for i := range d.Groups {
			d.Groups[i].Votes = dedupe(d.Groups[i].Votes)
		}
	}
	d.Settings.OneVotePerTicket = oneVotePerTicket
	for _, userID := range d.voters() {
		d.trimToBudget(userID)
	}
}

// trimToBudget drops the user's excess votes until the budget holds.
func (d *Document) trimToBudget(userID string) {
	excess := d.VoteCount(userID) - d.Settings.MaxVotes
	for i := range d.Tickets {
		for excess > 0 && contains(d.Tickets[i].Votes, userID) {
			d.Tickets[i].Votes = removeOne(d.Tickets[i].Votes, userID)
			excess--
		}
	}
	for i := range d.Groups {
		for excess > 0 && contains(d.Groups[i].Votes, userID) {
			d.Groups[i].Votes = removeOne(d.Groups[i].Votes, userID)
			excess--
		}
	}
}

// voters returns the distinct set of users with at least one vote cast.
func (d *Document) voters() []string {
	seen := map[string]struct{}{}
	for _, t := range d.Tickets {
		for _, userID := range t.Votes {
			seen[userID] = struct{}{}
		}
	}
	for _, g := range d.Groups {
		for _, userID := range g.Votes {
			seen[userID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for userID := range seen {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out
}

// SetFinished toggles a user's manual finished mark. A manual mark clears
// any auto-finished record so budget changes will not un-finish them.
func (d *Document) SetFinished(userID string, finished bool) {
	d.FinishedUsers = remove(d.FinishedUsers, userID)
	d.AutoFinishedUsers = remove(d.AutoFinishedUsers, userID)
	if finished {
		d.FinishedUsers = append(d.FinishedUsers, userID)
	}
}

// MarkAutoFinished records a user as finished because their budget reached
// zero. No-op when the budget has reopened since the mark was scheduled.
func (d *Document) MarkAutoFinished(userID string) {
	if d.VotesLeft(userID) > 0 {
		return
	}
	if !contains(d.FinishedUsers, userID) {
		d.FinishedUsers = append(d.FinishedUsers, userID)
	}
	if !contains(d.AutoFinishedUsers, userID) {
		d.AutoFinishedUsers = append(d.AutoFinishedUsers, userID)
	}
}

// UnfinishIfAuto clears the finished mark when the user's budget is
// positive again, but only if the mark was automatic. A deliberate manual
// finish stays.
func (d *Document) UnfinishIfAuto(userID string) {
	if d.VotesLeft(userID) == 0 {
		return
	}
	if !contains(d.AutoFinishedUsers, userID) {
		return
	}
	d.FinishedUsers = remove(d.FinishedUsers, userID)
	d.AutoFinishedUsers = remove(d.AutoFinishedUsers, userID)
}

func occurrences(list []string, value string) int {
	n := 0
	for _, v := range list {
		if v == value {
			n++
		}
	}
	return n
}

func removeOne(list []string, value string) []string {
	for i, v := range list {
		if v == value {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func dedupe(list []string) []string {
	seen := map[string]struct{}{}
	out := list[:0]
	for _, v := range list {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
