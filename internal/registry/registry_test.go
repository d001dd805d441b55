package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calendar-mcp/internal/schema"
)

type echoHandler struct{ id int }

func (h *echoHandler) Handle(_ context.Context, p schema.Params) (any, error) {
	return map[string]any(p), nil
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	h := &echoHandler{id: 1}
	shape := schema.Shape{Fields: []schema.Field{{Name: "event_id", Type: schema.TypeString, Required: true}}}

	require.NoError(t, r.Register("delete_meeting", "Deletes a meeting", shape, h))

	d, err := r.Get("delete_meeting")
	require.NoError(t, err)
	assert.Equal(t, "delete_meeting", d.Name)
	assert.Equal(t, "Deletes a meeting", d.Description)
	assert.Equal(t, shape.Fields, d.Shape.Fields)
	assert.Same(t, h, d.Handler)

	again, err := r.Get("delete_meeting")
	require.NoError(t, err)
	assert.Same(t, d, again)
}

func TestGetMissing(t *testing.T) {
	_, err := New().Get("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := New()
	first := &echoHandler{id: 1}
	require.NoError(t, r.Register("t", "first", schema.Shape{}, first))

	err := r.Register("t", "second", schema.Shape{}, &echoHandler{id: 2})
	assert.ErrorIs(t, err, ErrDuplicateTool)

	d, err := r.Get("t")
	require.NoError(t, err)
	assert.Equal(t, "first", d.Description)
	assert.Same(t, first, d.Handler)
}

func TestRegisterRejectsInvalid(t *testing.T) {
	r := New()
	assert.ErrorIs(t, r.Register("  ", "d", schema.Shape{}, &echoHandler{}), ErrInvalidTool)
	assert.ErrorIs(t, r.Register("x", "d", schema.Shape{}, nil), ErrInvalidTool)
	assert.Equal(t, 0, r.Len())
}

func TestListKeepsRegistrationOrder(t *testing.T) {
	r := New()
	names := []string{"check_availability", "create_meeting", "update_meeting", "delete_meeting"}
	for _, n := range names {
		require.NoError(t, r.Register(n, n, schema.Shape{}, &echoHandler{}))
	}

	assert.Equal(t, names, r.Names())

	var seen []string
	for d := range r.All() {
		seen = append(seen, d.Name)
	}
	assert.Equal(t, names, seen)

	listed := r.List()
	require.Len(t, listed, 4)
	listed[0] = nil
	assert.NotNil(t, r.List()[0])
}

func TestAllStopsEarly(t *testing.T) {
	r := New()
	for i := range 5 {
		require.NoError(t, r.Register(fmt.Sprintf("t%d", i), "", schema.Shape{}, &echoHandler{}))
	}
	count := 0
	for range r.All() {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestConcurrentReadsDuringRegister(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = r.Register(fmt.Sprintf("tool_%d", i), "", schema.Shape{}, &echoHandler{id: i})
		}(i)
		go func() {
			defer wg.Done()
			for d := range r.All() {
				_, err := r.Get(d.Name)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, r.Len())
}

func TestHandlerFunc(t *testing.T) {
	var h Handler = HandlerFunc(func(_ context.Context, p schema.Params) (any, error) {
		return p.String("x"), nil
	})
	out, err := h.Handle(context.Background(), schema.Params{"x": "y"})
	require.NoError(t, err)
	assert.Equal(t, "y", out)
}

func TestDomainError(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", NewDomainError("event_not_found", "event e1 not found", cause))

	var de *DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "event_not_found", de.Code)
	assert.ErrorIs(t, err, cause)
}
