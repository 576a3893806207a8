package retro

import "strings"

// MergeTickets merges two ungrouped tickets from the same column into a new
// group. Both tickets lose their votes: voting happens on the post-grouping
// structure, so votes cast against the pre-merge layout are meaningless.
func (d *Document) MergeTickets(groupID, targetID, draggedID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	if d.Phase != PhaseGroup {
		return ErrWrongPhase
	}
	target := d.TicketByID(targetID)
	dragged := d.TicketByID(draggedID)
	if target == nil || dragged == nil || target.ID == dragged.ID {
		return ErrTicketNotFound
	}
	if target.GroupID != "" {
		// Dropping onto an already grouped ticket joins its group instead.
		return d.AddTicketToGroup(target.GroupID, draggedID)
	}
	d.Groups = append(d.Groups, Group{
		ID:       groupID,
		ColumnID: target.ColumnID,
		Votes:    []string{},
	})
	target.GroupID = groupID
	target.Votes = []string{}
	d.moveIntoGroup(dragged, groupID, target.ColumnID)
	return nil
}

// AddTicketToGroup moves a ticket into an existing group.
func (d *Document) AddTicketToGroup(groupID, ticketID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	if d.Phase != PhaseGroup {
		return ErrWrongPhase
	}
	group := d.GroupByID(groupID)
	if group == nil {
		return ErrGroupNotFound
	}
	ticket := d.TicketByID(ticketID)
	if ticket == nil {
		return ErrTicketNotFound
	}
	if ticket.GroupID == groupID {
		return nil
	}
	previous := ticket.GroupID
	d.moveIntoGroup(ticket, groupID, group.ColumnID)
	if previous != "" {
		d.dissolveIfUnderpopulated(previous)
	}
	return nil
}

// RemoveTicketFromGroup detaches a ticket from its group and runs the
// dissolution check on what remains.
func (d *Document) RemoveTicketFromGroup(ticketID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	if d.Phase != PhaseGroup {
		return ErrWrongPhase
	}
	ticket := d.TicketByID(ticketID)
	if ticket == nil {
		return ErrTicketNotFound
	}
	groupID := ticket.GroupID
	if groupID == "" {
		return nil
	}
	ticket.GroupID = ""
	ticket.Votes = []string{}
	d.dissolveIfUnderpopulated(groupID)
	return nil
}

// SetGroupTitle names a group.
func (d *Document) SetGroupTitle(groupID, title string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	group := d.GroupByID(groupID)
	if group == nil {
		return ErrGroupNotFound
	}
	group.Title = strings.TrimSpace(title)
	return nil
}

// GroupTickets returns the tickets currently in a group.
func (d *Document) GroupTickets(groupID string) []Ticket {
	var out []Ticket
	for _, t := range d.Tickets {
		if t.GroupID == groupID {
			out = append(out, t)
		}
	}
	return out
}

// moveIntoGroup attaches the ticket to the group, relocating it to the
// group's column and clearing its votes.
func (d *Document) moveIntoGroup(ticket *Ticket, groupID, columnID string) {
	ticket.GroupID = groupID
	ticket.ColumnID = columnID
	ticket.Votes = []string{}
}

// dissolveIfUnderpopulated removes the group once its membership drops to
// one or zero tickets and clears the survivor's membership and votes.
func (d *Document) dissolveIfUnderpopulated(groupID string) {
	members := 0
	for i := range d.Tickets {
		if d.Tickets[i].GroupID == groupID {
			members++
		}
	}
	if members > 1 {
		return
	}
	for i := range d.Tickets {
		if d.Tickets[i].GroupID == groupID {
			d.Tickets[i].GroupID = ""
			d.Tickets[i].Votes = []string{}
		}
	}
	for i := range d.Groups {
		if d.Groups[i].ID == groupID {
			d.Groups = append(d.Groups[:i], d.Groups[i+1:]...)
			return
		}
	}
}
