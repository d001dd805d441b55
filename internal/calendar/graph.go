package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calendar-mcp/internal/graph"
)

// GraphStore is a Backend over a Microsoft 365 mailbox calendar.
type GraphStore struct {
	client *graph.Client
}

// NewGraphStore returns a store backed by client.
func NewGraphStore(client *graph.Client) *GraphStore {
	return &GraphStore{client: client}
}

func (s *GraphStore) CheckAvailability(ctx context.Context, start, end time.Time) (Availability, error) {
	items, err := s.client.CalendarView(ctx, start, end)
	if err != nil {
		return Availability{}, graphErr(err, "")
	}
	var conflicts []Event
	for _, it := range items {
		e := fromGraph(it)
		// calendarView is inclusive at the edges; keep back-to-back meetings free.
		if e.Overlaps(start, end) {
			conflicts = append(conflicts, e)
		}
	}
	return availabilityOf(start, end, conflicts), nil
}

func (s *GraphStore) CreateEvent(ctx context.Context, in EventInput) (Event, error) {
	if in.End.Before(in.Start) {
		return Event{}, ErrInvalidRange
	}
	created, err := s.client.CreateEvent(ctx, graph.Event{
		Subject: &in.Title,
		Body:    &graph.ItemBody{ContentType: "text", Content: in.Description},
		Start:   graph.At(in.Start),
		End:     graph.At(in.End),
	})
	if err != nil {
		return Event{}, graphErr(err, "")
	}
	e := fromGraph(created)
	if e.ID == "" {
		return Event{}, fmt.Errorf("%w: created event has no id", ErrUnavailable)
	}
	// Echo the request when Graph omits fields from its answer.
	e.Title, e.Description = in.Title, in.Description
	e.Start, e.End = in.Start.UTC(), in.End.UTC()
	return e, nil
}

func (s *GraphStore) UpdateEvent(ctx context.Context, id string, patch EventPatch) (Event, error) {
	current, err := s.client.GetEvent(ctx, id)
	if err != nil {
		return Event{}, graphErr(err, id)
	}
	updated, err := patch.Apply(fromGraph(current))
	if err != nil {
		return Event{}, err
	}

	var body graph.Event
	if patch.Title != nil {
		body.Subject = patch.Title
	}
	if patch.Description != nil {
		body.Body = &graph.ItemBody{ContentType: "text", Content: *patch.Description}
	}
	if patch.Start != nil {
		body.Start = graph.At(*patch.Start)
	}
	if patch.End != nil {
		body.End = graph.At(*patch.End)
	}
	if _, err := s.client.UpdateEvent(ctx, id, body); err != nil {
		return Event{}, graphErr(err, id)
	}
	updated.ID = id
	updated.Start, updated.End = updated.Start.UTC(), updated.End.UTC()
	return updated, nil
}

func (s *GraphStore) DeleteEvent(ctx context.Context, id string) error {
	if err := s.client.DeleteEvent(ctx, id); err != nil {
		return graphErr(err, id)
	}
	return nil
}

func fromGraph(g graph.Event) Event {
	e := Event{ID: g.ID, Start: g.Start.Time(), End: g.End.Time()}
	if g.Subject != nil {
		e.Title = *g.Subject
	}
	if g.Body != nil {
		e.Description = g.Body.Content
	}
	return e
}

func graphErr(err error, id string) error {
	switch {
	case errors.Is(err, graph.ErrNotFound) && id != "":
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
}
