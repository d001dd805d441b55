package dispatch

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"calendar-mcp/internal/registry"
	"calendar-mcp/internal/schema"
)

var rangeShape = schema.Shape{
	Fields: []schema.Field{
		{Name: "start_time", Type: schema.TypeString, Format: schema.FormatDateTime, Required: true},
		{Name: "end_time", Type: schema.TypeString, Format: schema.FormatDateTime, Required: true},
	},
	Checks: []schema.Check{schema.TimeOrder("start_time", "end_time")},
}

type availability struct {
	Available bool      `json:"available"`
	Start     time.Time `json:"start_time"`
	Slots     []string  `json:"slots"`
}

func newTestDispatcher(t *testing.T, h registry.Handler) (*Dispatcher, *tracetest.InMemoryExporter) {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.Register("check_availability", "Checks availability", rangeShape, h))

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	return New(reg, Options{Tracer: tp.Tracer("test"), HandlerTimeout: time.Second}), exporter
}

func okHandler() registry.Handler {
	return registry.HandlerFunc(func(_ context.Context, p schema.Params) (any, error) {
		return availability{Available: true, Start: p.Time("start_time")}, nil
	})
}

func validParams() map[string]any {
	return map[string]any{"start_time": "2025-05-10T14:00:00Z", "end_time": "2025-05-10T15:00:00Z"}
}

func kindOf(t *testing.T, err error) *Error {
	t.Helper()
	var derr *Error
	require.ErrorAs(t, err, &derr)
	return derr
}

func TestDispatchSuccessNormalizesOutput(t *testing.T) {
	d, exporter := newTestDispatcher(t, okHandler())

	resp, err := d.Dispatch(context.Background(), Request{ToolName: "check_availability", Parameters: validParams()})
	require.NoError(t, err)
	assert.Equal(t, "check_availability", resp.ToolName)
	assert.Equal(t, map[string]any{
		"available":  true,
		"start_time": "2025-05-10T14:00:00Z",
		"slots":      nil,
	}, resp.Output)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "dispatch", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.String("dispatch.outcome", "ok"))
}

func TestDispatchMissingToolName(t *testing.T) {
	d, _ := newTestDispatcher(t, okHandler())
	_, err := d.Dispatch(context.Background(), Request{Parameters: validParams()})
	derr := kindOf(t, err)
	assert.Equal(t, KindMalformedRequest, derr.Kind)
	assert.Equal(t, http.StatusBadRequest, derr.Kind.Status())
}

func TestDispatchUnknownToolIsNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t, okHandler())
	_, err := d.Dispatch(context.Background(), Request{ToolName: "book_flight"})
	derr := kindOf(t, err)
	assert.Equal(t, KindToolNotFound, derr.Kind)
	assert.Equal(t, http.StatusNotFound, derr.Kind.Status())
	assert.ErrorIs(t, err, registry.ErrToolNotFound)
}

func TestDispatchRejectsEndBeforeStart(t *testing.T) {
	called := false
	d, exporter := newTestDispatcher(t, registry.HandlerFunc(func(context.Context, schema.Params) (any, error) {
		called = true
		return nil, nil
	}))

	_, err := d.Dispatch(context.Background(), Request{
		ToolName: "check_availability",
		Parameters: map[string]any{
			"start_time": "2025-05-10T14:00:00Z",
			"end_time":   "2025-05-10T13:00:00Z",
		},
	})
	derr := kindOf(t, err)
	assert.Equal(t, KindValidation, derr.Kind)
	assert.Equal(t, http.StatusBadRequest, derr.Kind.Status())
	require.Len(t, derr.Fields, 1)
	assert.Equal(t, "end_time", derr.Fields[0].Field)
	assert.False(t, called)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Contains(t, spans[0].Attributes, attribute.String("dispatch.outcome", string(KindValidation)))
}

func TestDispatchMissingParametersIsValidationError(t *testing.T) {
	d, _ := newTestDispatcher(t, okHandler())
	_, err := d.Dispatch(context.Background(), Request{ToolName: "check_availability"})
	derr := kindOf(t, err)
	assert.Equal(t, KindValidation, derr.Kind)
	assert.Len(t, derr.Fields, 2)
}

func TestDispatchDomainErrorIsHandlerFailure(t *testing.T) {
	d, _ := newTestDispatcher(t, registry.HandlerFunc(func(context.Context, schema.Params) (any, error) {
		return nil, registry.NewDomainError("calendar_unavailable", "calendar service unreachable", errors.New("dial tcp: refused"))
	}))

	_, err := d.Dispatch(context.Background(), Request{ToolName: "check_availability", Parameters: validParams()})
	derr := kindOf(t, err)
	assert.Equal(t, KindHandler, derr.Kind)
	assert.Equal(t, http.StatusInternalServerError, derr.Kind.Status())
	assert.Equal(t, "check_availability", derr.ToolName)
	assert.Equal(t, "calendar_unavailable", derr.Code)
	assert.Equal(t, "calendar service unreachable", derr.Message)
}

func TestDispatchGenericErrorHidesDetail(t *testing.T) {
	d, _ := newTestDispatcher(t, registry.HandlerFunc(func(context.Context, schema.Params) (any, error) {
		return nil, errors.New("secret connection string leaked")
	}))

	_, err := d.Dispatch(context.Background(), Request{ToolName: "check_availability", Parameters: validParams()})
	derr := kindOf(t, err)
	assert.Equal(t, KindHandler, derr.Kind)
	assert.NotContains(t, derr.Message, "secret")
	assert.Contains(t, derr.Message, "check_availability")
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	d, _ := newTestDispatcher(t, registry.HandlerFunc(func(context.Context, schema.Params) (any, error) {
		panic("nil map")
	}))

	_, err := d.Dispatch(context.Background(), Request{ToolName: "check_availability", Parameters: validParams()})
	assert.Equal(t, KindHandler, kindOf(t, err).Kind)
}

func TestDispatchUnserializableResult(t *testing.T) {
	d, _ := newTestDispatcher(t, registry.HandlerFunc(func(context.Context, schema.Params) (any, error) {
		return map[string]any{"ch": make(chan int)}, nil
	}))

	_, err := d.Dispatch(context.Background(), Request{ToolName: "check_availability", Parameters: validParams()})
	assert.Equal(t, KindHandler, kindOf(t, err).Kind)
}

func TestDispatchHandlerOutlivesCallerCancellation(t *testing.T) {
	seen := make(chan error, 1)
	d, _ := newTestDispatcher(t, registry.HandlerFunc(func(ctx context.Context, _ schema.Params) (any, error) {
		seen <- ctx.Err()
		return "done", nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := d.Dispatch(ctx, Request{ToolName: "check_availability", Parameters: validParams()})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Output)
	assert.NoError(t, <-seen)
}

func TestDispatchHandlerTimeout(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register("slow", "", schema.Shape{}, registry.HandlerFunc(func(ctx context.Context, _ schema.Params) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))
	d := New(reg, Options{HandlerTimeout: 20 * time.Millisecond})

	_, err := d.Dispatch(context.Background(), Request{ToolName: "slow"})
	derr := kindOf(t, err)
	assert.Equal(t, KindHandler, derr.Kind)
	assert.Contains(t, derr.Message, "timed out")
}
