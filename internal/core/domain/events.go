package domain

// ChangeType tags a row-level change on the tickets resource.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is the payload delivered over the change feed. New carries the
// row snapshot for inserts and updates; Old carries it for deletes.
type ChangeEvent struct {
	Type ChangeType `json:"type"`
	New  *Ticket    `json:"new,omitempty"`
	Old  *Ticket    `json:"old,omitempty"`
}

// TicketID returns the id the event refers to, regardless of change type.
func (e ChangeEvent) TicketID() string {
	switch {
	case e.New != nil:
		return e.New.ID.String()
	case e.Old != nil:
		return e.Old.ID.String()
	}
	return ""
}

// InsertEvent builds an insert event for a ticket.
func InsertEvent(t *Ticket) ChangeEvent {
	return ChangeEvent{Type: ChangeInsert, New: t}
}

// UpdateEvent builds an update event for a ticket.
func UpdateEvent(t *Ticket) ChangeEvent {
	return ChangeEvent{Type: ChangeUpdate, New: t}
}

// DeleteEvent builds a delete event carrying the removed row.
func DeleteEvent(t *Ticket) ChangeEvent {
	return ChangeEvent{Type: ChangeDelete, Old: t}
}
