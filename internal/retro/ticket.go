package retro

import "strings"

// AddTicket creates a ticket in the given column during BRAINSTORM.
func (d *Document) AddTicket(id, columnID, text, authorID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	if d.Phase != PhaseBrainstorm {
		return ErrWrongPhase
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if d.ColumnByID(columnID) == nil {
		return ErrColumnNotFound
	}
	d.Tickets = append(d.Tickets, Ticket{
		ID:       id,
		ColumnID: columnID,
		Text:     strings.TrimSpace(text),
		AuthorID: authorID,
		Votes:    []string{},
	})
	return nil
}

// UpdateTicketText rewrites a ticket's text. The author may always edit
// their own ticket; the facilitator may edit any.
func (d *Document) UpdateTicketText(ticketID, text, actorID string, facilitator bool) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	ticket := d.TicketByID(ticketID)
	if ticket == nil {
		return ErrTicketNotFound
	}
	if ticket.AuthorID != actorID && !facilitator {
		return ErrNotAuthor
	}
	ticket.Text = strings.TrimSpace(text)
	return nil
}

// DeleteTicket removes a ticket. Only the author may delete, and only
// during BRAINSTORM. Leaving a group this way triggers the dissolution
// check like any other departure.
func (d *Document) DeleteTicket(ticketID, actorID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	if d.Phase != PhaseBrainstorm {
		return ErrWrongPhase
	}
	for i := range d.Tickets {
		if d.Tickets[i].ID != ticketID {
			continue
		}
		if d.Tickets[i].AuthorID != actorID {
			return ErrNotAuthor
		}
		groupID := d.Tickets[i].GroupID
		d.Tickets = append(d.Tickets[:i], d.Tickets[i+1:]...)
		if groupID != "" {
			d.dissolveIfUnderpopulated(groupID)
		}
		return nil
	}
	return ErrTicketNotFound
}

// ToggleReaction flips one user's instance of an emoji reaction on a
// ticket. A user holds at most one instance per emoji.
func (d *Document) ToggleReaction(ticketID, emoji, userID string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	ticket := d.TicketByID(ticketID)
	if ticket == nil {
		return ErrTicketNotFound
	}
	if emoji == "" {
		return ErrEmptyText
	}
	if ticket.Reactions == nil {
		ticket.Reactions = map[string][]string{}
	}
	users := ticket.Reactions[emoji]
	if contains(users, userID) {
		users = remove(users, userID)
	} else {
		users = append(users, userID)
	}
	if len(users) == 0 {
		delete(ticket.Reactions, emoji)
	} else {
		ticket.Reactions[emoji] = users
	}
	return nil
}

// UpdateColumn edits a column's presentation. Facilitator-gated at the
// service layer; the document additionally restricts it to BRAINSTORM.
func (d *Document) UpdateColumn(columnID, title, icon, color string) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	if d.Phase != PhaseBrainstorm {
		return ErrWrongPhase
	}
	column := d.ColumnByID(columnID)
	if column == nil {
		return ErrColumnNotFound
	}
	if strings.TrimSpace(title) != "" {
		column.Title = strings.TrimSpace(title)
	}
	if icon != "" {
		column.Icon = icon
	}
	if color != "" {
		column.Color = color
	}
	return nil
}
