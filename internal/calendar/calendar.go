// Package calendar implements the built-in calendar tools and the stores
// they run against.
package calendar

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrEventNotFound is returned for an unknown event id.
	ErrEventNotFound = errors.New("event not found")
	// ErrInvalidRange is returned when an event would end before it starts.
	ErrInvalidRange = errors.New("event ends before it starts")
	// ErrUnavailable is returned when the calendar service cannot be reached.
	ErrUnavailable = errors.New("calendar unavailable")
)

// Event is a stored calendar entry.
type Event struct {
	ID          string    `json:"event_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start_time"`
	End         time.Time `json:"end_time"`
}

// Overlaps reports whether the event intersects [start, end).
func (e Event) Overlaps(start, end time.Time) bool {
	return e.Start.Before(end) && start.Before(e.End)
}

// EventInput describes a new event.
type EventInput struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
}

// EventPatch holds the fields to change on an existing event. Nil fields are
// left as they are.
type EventPatch struct {
	Title       *string
	Description *string
	Start       *time.Time
	End         *time.Time
}

// Apply returns e with the patch applied. It fails with ErrInvalidRange when
// the result would end before it starts.
func (p EventPatch) Apply(e Event) (Event, error) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Start != nil {
		e.Start = *p.Start
	}
	if p.End != nil {
		e.End = *p.End
	}
	if e.End.Before(e.Start) {
		return e, ErrInvalidRange
	}
	return e, nil
}

// Availability answers whether a time range is free.
type Availability struct {
	Available bool      `json:"available"`
	Start     time.Time `json:"start_time"`
	End       time.Time `json:"end_time"`
	Conflicts []Event   `json:"conflicts"`
}

func availabilityOf(start, end time.Time, conflicts []Event) Availability {
	if conflicts == nil {
		conflicts = []Event{}
	}
	return Availability{
		Available: len(conflicts) == 0,
		Start:     start.UTC(),
		End:       end.UTC(),
		Conflicts: conflicts,
	}
}

// Backend is a calendar the tools operate on.
type Backend interface {
	CheckAvailability(ctx context.Context, start, end time.Time) (Availability, error)
	CreateEvent(ctx context.Context, in EventInput) (Event, error)
	UpdateEvent(ctx context.Context, id string, patch EventPatch) (Event, error)
	DeleteEvent(ctx context.Context, id string) error
}
