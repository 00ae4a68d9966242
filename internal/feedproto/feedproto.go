// Package feedproto defines the wire frames exchanged on the ticket change
// feed. Both the serving side (the websocket hub) and the consuming side
// (the dashboard's feed adapter) speak this protocol.
package feedproto

import (
	"github.com/soporte-labs/ticket-dashboard/internal/core/domain"
)

// Frame types. Change frames reuse the domain change-type tags so a frame
// carrying a row event is directly convertible to a domain.ChangeEvent.
const (
	TypeSubscribe  = "SUBSCRIBE"
	TypeSubscribed = "SUBSCRIBED"
	TypePing       = "PING"
	TypePong       = "PONG"

	TypeInsert = string(domain.ChangeInsert)
	TypeUpdate = string(domain.ChangeUpdate)
	TypeDelete = string(domain.ChangeDelete)
)

// Frame is a single message on the feed connection.
type Frame struct {
	Type string         `json:"type"`
	New  *domain.Ticket `json:"new,omitempty"`
	Old  *domain.Ticket `json:"old,omitempty"`
}

// FromEvent wraps a change event into a frame.
func FromEvent(event domain.ChangeEvent) Frame {
	return Frame{
		Type: string(event.Type),
		New:  event.New,
		Old:  event.Old,
	}
}

// Event converts a change frame back to a domain event. ok is false for
// control frames.
func (f Frame) Event() (domain.ChangeEvent, bool) {
	switch f.Type {
	case TypeInsert, TypeUpdate, TypeDelete:
		return domain.ChangeEvent{
			Type: domain.ChangeType(f.Type),
			New:  f.New,
			Old:  f.Old,
		}, true
	}
	return domain.ChangeEvent{}, false
}
