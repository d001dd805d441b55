package calendar

import (
	"context"
	"errors"

	"calendar-mcp/internal/registry"
	"calendar-mcp/internal/schema"
)

// Tool names.
const (
	ToolCheckAvailability = "check_availability"
	ToolCreateMeeting     = "create_meeting"
	ToolUpdateMeeting     = "update_meeting"
	ToolDeleteMeeting     = "delete_meeting"
)

// Domain error codes reported to callers.
const (
	CodeEventNotFound       = "event_not_found"
	CodeInvalidTimeRange    = "invalid_time_range"
	CodeCalendarUnavailable = "calendar_unavailable"
)

// Status values of EventResult.
const (
	StatusCreated = "created"
	StatusUpdated = "updated"
	StatusDeleted = "deleted"
)

// EventResult is the output of the mutating tools.
type EventResult struct {
	EventID string `json:"event_id"`
	Status  string `json:"status"`
}

func startField(desc, example string) schema.Field {
	return schema.Field{Name: "start_time", Type: schema.TypeString, Format: schema.FormatDateTime,
		Required: true, Description: desc, Example: example}
}

func endField(desc, example string) schema.Field {
	return schema.Field{Name: "end_time", Type: schema.TypeString, Format: schema.FormatDateTime,
		Required: true, Description: desc, Example: example}
}

func eventIDField(desc string) schema.Field {
	return schema.Field{Name: "event_id", Type: schema.TypeString, Required: true,
		Description: desc, Example: "event_123"}
}

var availabilityShape = schema.Shape{
	Fields: []schema.Field{
		startField("Start time in ISO format (e.g., 2025-05-10T14:00:00Z)", "2025-05-10T14:00:00Z"),
		endField("End time in ISO format (e.g., 2025-05-10T15:00:00Z)", "2025-05-10T15:00:00Z"),
	},
	Checks: []schema.Check{schema.TimeOrder("start_time", "end_time")},
}

var createShape = schema.Shape{
	Fields: []schema.Field{
		{Name: "title", Type: schema.TypeString, Required: true,
			Description: "Title of the meeting", Example: "Team Sync Meeting"},
		startField("Start time in ISO format (e.g., 2025-05-10T14:00:00Z)", "2025-05-10T14:00:00Z"),
		endField("End time in ISO format (e.g., 2025-05-10T15:00:00Z)", "2025-05-10T15:00:00Z"),
		{Name: "description", Type: schema.TypeString, Default: "",
			Description: "Optional description of the meeting", Example: "Weekly team sync to discuss project progress"},
	},
	Checks: []schema.Check{schema.TimeOrder("start_time", "end_time")},
}

var updateShape = schema.Shape{
	Fields: []schema.Field{
		eventIDField("ID of the event to update"),
		{Name: "title", Type: schema.TypeString,
			Description: "New title of the meeting", Example: "Updated Team Sync"},
		{Name: "start_time", Type: schema.TypeString, Format: schema.FormatDateTime,
			Description: "New start time in ISO format", Example: "2025-05-10T15:00:00Z"},
		{Name: "end_time", Type: schema.TypeString, Format: schema.FormatDateTime,
			Description: "New end time in ISO format", Example: "2025-05-10T16:00:00Z"},
		{Name: "description", Type: schema.TypeString,
			Description: "New description of the meeting", Example: "Updated weekly team sync with new agenda"},
	},
	Checks: []schema.Check{
		schema.TimeOrder("start_time", "end_time"),
		requireAnyOf("title", "start_time", "end_time", "description"),
	},
}

var deleteShape = schema.Shape{
	Fields: []schema.Field{eventIDField("ID of the event to delete")},
}

func requireAnyOf(names ...string) schema.Check {
	return func(p schema.Params) error {
		for _, n := range names {
			if p.Has(n) {
				return nil
			}
		}
		return schema.Invalid(names[0], "at least one of title, start_time, end_time or description must be given")
	}
}

// Register adds the calendar tools, bound to backend, to reg.
func Register(reg *registry.Registry, backend Backend) error {
	t := &tools{backend: backend}
	for _, d := range []struct {
		name, description string
		shape             schema.Shape
		handler           registry.HandlerFunc
	}{
		{ToolCheckAvailability,
			"Checks if the calendar has availability in a specified time range. Returns any conflicting events.",
			availabilityShape, t.checkAvailability},
		{ToolCreateMeeting,
			"Creates a new meeting in the calendar. Requires title, start time, end time, and optional description.",
			createShape, t.createMeeting},
		{ToolUpdateMeeting,
			"Updates an existing meeting in the calendar. Requires event ID and the meeting details to change.",
			updateShape, t.updateMeeting},
		{ToolDeleteMeeting,
			"Deletes a meeting from the calendar. Requires the event ID.",
			deleteShape, t.deleteMeeting},
	} {
		if err := reg.Register(d.name, d.description, d.shape, d.handler); err != nil {
			return err
		}
	}
	return nil
}

type tools struct {
	backend Backend
}

func (t *tools) checkAvailability(ctx context.Context, p schema.Params) (any, error) {
	a, err := t.backend.CheckAvailability(ctx, p.Time("start_time"), p.Time("end_time"))
	if err != nil {
		return nil, domainErr(err)
	}
	return a, nil
}

func (t *tools) createMeeting(ctx context.Context, p schema.Params) (any, error) {
	e, err := t.backend.CreateEvent(ctx, EventInput{
		Title:       p.String("title"),
		Description: p.String("description"),
		Start:       p.Time("start_time"),
		End:         p.Time("end_time"),
	})
	if err != nil {
		return nil, domainErr(err)
	}
	return EventResult{EventID: e.ID, Status: StatusCreated}, nil
}

func (t *tools) updateMeeting(ctx context.Context, p schema.Params) (any, error) {
	id := p.String("event_id")
	e, err := t.backend.UpdateEvent(ctx, id, EventPatch{
		Title:       p.OptionalString("title"),
		Description: p.OptionalString("description"),
		Start:       p.OptionalTime("start_time"),
		End:         p.OptionalTime("end_time"),
	})
	if err != nil {
		return nil, domainErr(err)
	}
	return EventResult{EventID: e.ID, Status: StatusUpdated}, nil
}

func (t *tools) deleteMeeting(ctx context.Context, p schema.Params) (any, error) {
	id := p.String("event_id")
	if err := t.backend.DeleteEvent(ctx, id); err != nil {
		return nil, domainErr(err)
	}
	return EventResult{EventID: id, Status: StatusDeleted}, nil
}

// domainErr translates backend failures into errors callers may see. Anything
// unrecognised is passed through and reported generically.
func domainErr(err error) error {
	switch {
	case errors.Is(err, ErrEventNotFound):
		return registry.NewDomainError(CodeEventNotFound, err.Error(), err)
	case errors.Is(err, ErrInvalidRange):
		return registry.NewDomainError(CodeInvalidTimeRange, "end_time must not be earlier than start_time", err)
	case errors.Is(err, ErrUnavailable):
		return registry.NewDomainError(CodeCalendarUnavailable, "calendar service is unavailable", err)
	default:
		return err
	}
}
