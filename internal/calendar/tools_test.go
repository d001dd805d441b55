package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendar-mcp/internal/registry"
	"calendar-mcp/internal/schema"
)

func invoke(t *testing.T, reg *registry.Registry, name string, raw map[string]any) (any, error) {
	t.Helper()
	d, err := reg.Get(name)
	require.NoError(t, err)
	p, err := d.Shape.Validate(raw)
	if err != nil {
		return nil, err
	}
	return d.Handler.Handle(context.Background(), p)
}

func newTools(t *testing.T, b Backend) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, Register(reg, b))
	return reg
}

func TestRegisterDeclaresTools(t *testing.T) {
	reg := newTools(t, NewMemoryStore())
	assert.Equal(t, []string{ToolCheckAvailability, ToolCreateMeeting, ToolUpdateMeeting, ToolDeleteMeeting}, reg.Names())

	for d := range reg.All() {
		require.NoError(t, d.Shape.Lint(), d.Name)
		assert.NotEmpty(t, d.Shape.Examples(), d.Name)
	}

	d, err := reg.Get(ToolCreateMeeting)
	require.NoError(t, err)
	assert.Equal(t, []string{"title", "start_time", "end_time"}, d.Shape.Required())

	assert.Error(t, Register(reg, NewMemoryStore()), "second registration must collide")
}

func TestMeetingLifecycle(t *testing.T) {
	reg := newTools(t, NewMemoryStore())

	out, err := invoke(t, reg, ToolCreateMeeting, map[string]any{
		"title":      "Team Sync Meeting",
		"start_time": "2025-05-10T14:00:00Z",
		"end_time":   "2025-05-10T15:00:00Z",
	})
	require.NoError(t, err)
	created := out.(EventResult)
	assert.Equal(t, StatusCreated, created.Status)
	require.NotEmpty(t, created.EventID)

	out, err = invoke(t, reg, ToolCheckAvailability, map[string]any{
		"start_time": "2025-05-10T14:30:00Z",
		"end_time":   "2025-05-10T14:45:00Z",
	})
	require.NoError(t, err)
	a := out.(Availability)
	assert.False(t, a.Available)
	require.Len(t, a.Conflicts, 1)
	assert.Equal(t, "Team Sync Meeting", a.Conflicts[0].Title)

	out, err = invoke(t, reg, ToolUpdateMeeting, map[string]any{
		"event_id":   created.EventID,
		"start_time": "2025-05-10T16:00:00Z",
		"end_time":   "2025-05-10T17:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, EventResult{EventID: created.EventID, Status: StatusUpdated}, out)

	out, err = invoke(t, reg, ToolCheckAvailability, map[string]any{
		"start_time": "2025-05-10T14:00:00Z",
		"end_time":   "2025-05-10T15:00:00Z",
	})
	require.NoError(t, err)
	assert.True(t, out.(Availability).Available)

	out, err = invoke(t, reg, ToolDeleteMeeting, map[string]any{"event_id": created.EventID})
	require.NoError(t, err)
	assert.Equal(t, EventResult{EventID: created.EventID, Status: StatusDeleted}, out)
}

func TestToolValidation(t *testing.T) {
	reg := newTools(t, NewMemoryStore())

	_, err := invoke(t, reg, ToolCheckAvailability, map[string]any{
		"start_time": "2025-05-10T15:00:00Z",
		"end_time":   "2025-05-10T14:00:00Z",
	})
	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end_time", verr.Fields[0].Field)

	_, err = invoke(t, reg, ToolCreateMeeting, map[string]any{"title": "x", "start_time": "tomorrow", "end_time": "2025-05-10T14:00:00Z"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "start_time", verr.Fields[0].Field)

	_, err = invoke(t, reg, ToolUpdateMeeting, map[string]any{"event_id": "event_1"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields[0].Message, "at least one of")
}

func TestToolDomainErrors(t *testing.T) {
	store := NewMemoryStore()
	reg := newTools(t, store)

	_, err := invoke(t, reg, ToolDeleteMeeting, map[string]any{"event_id": "event_missing"})
	var derr *registry.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, CodeEventNotFound, derr.Code)
	assert.Contains(t, derr.Message, "event_missing")

	e, err := store.CreateEvent(context.Background(), EventInput{Title: "Sync", Start: at("2025-05-10T14:00:00Z"), End: at("2025-05-10T15:00:00Z")})
	require.NoError(t, err)
	_, err = invoke(t, reg, ToolUpdateMeeting, map[string]any{"event_id": e.ID, "end_time": "2025-05-10T13:00:00Z"})
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, CodeInvalidTimeRange, derr.Code)
}

type downBackend struct{ MemoryStore }

func (*downBackend) CheckAvailability(context.Context, time.Time, time.Time) (Availability, error) {
	return Availability{}, errors.Join(ErrUnavailable, errors.New("dial tcp: refused"))
}

func TestToolUnavailable(t *testing.T) {
	reg := newTools(t, &downBackend{})
	_, err := invoke(t, reg, ToolCheckAvailability, map[string]any{
		"start_time": "2025-05-10T14:00:00Z",
		"end_time":   "2025-05-10T15:00:00Z",
	})
	var derr *registry.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, CodeCalendarUnavailable, derr.Code)
	assert.NotContains(t, derr.Message, "dial tcp")
}
