// Package dispatch resolves, validates and invokes tools on behalf of callers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"calendar-mcp/internal/metrics"
	"calendar-mcp/internal/registry"
	"calendar-mcp/internal/schema"
)

// DefaultHandlerTimeout bounds a single handler invocation.
const DefaultHandlerTimeout = 30 * time.Second

// Request names one tool and carries its raw parameters.
type Request struct {
	ToolName   string
	Parameters map[string]any
}

// Response is a successful invocation.
type Response struct {
	ToolName string `json:"toolName"`
	Output   any    `json:"output"`
}

// Options configures a Dispatcher.
type Options struct {
	HandlerTimeout time.Duration
	Logger         *zap.Logger
	Tracer         trace.Tracer
}

// Dispatcher turns requests into handler invocations. It keeps no state
// between requests.
type Dispatcher struct {
	registry *registry.Registry
	timeout  time.Duration
	log      *zap.Logger
	tracer   trace.Tracer
}

// New returns a Dispatcher over reg.
func New(reg *registry.Registry, opts Options) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		timeout:  opts.HandlerTimeout,
		log:      opts.Logger,
		tracer:   opts.Tracer,
	}
	if d.timeout <= 0 {
		d.timeout = DefaultHandlerTimeout
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("calendar-mcp/dispatch")
	}
	return d
}

// Dispatch runs one invocation. Every failure is a *Error.
//
// The handler runs on a context detached from ctx's cancellation so that a
// caller hanging up does not abort a calendar mutation halfway; it is still
// bounded by the handler timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Response, error) {
	name := strings.TrimSpace(req.ToolName)
	ctx, span := d.tracer.Start(ctx, "dispatch",
		trace.WithAttributes(attribute.String("tool.name", name)),
	)
	defer span.End()

	resp, err := d.dispatch(ctx, name, req.Parameters)

	outcome := "ok"
	if err != nil {
		var derr *Error
		if errors.As(err, &derr) {
			outcome = string(derr.Kind)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(attribute.String("dispatch.outcome", outcome))
	metricTool := name
	if outcome == string(KindToolNotFound) || outcome == string(KindMalformedRequest) {
		// Unknown names would explode label cardinality.
		metricTool = "unknown"
	}
	metrics.InvocationsTotal.WithLabelValues(metricTool, outcome).Inc()
	return resp, err
}

func (d *Dispatcher) dispatch(ctx context.Context, name string, raw map[string]any) (*Response, error) {
	if name == "" {
		return nil, NewError(KindMalformedRequest, "", "toolName is required", nil)
	}

	tool, err := d.registry.Get(name)
	if err != nil {
		return nil, NewError(KindToolNotFound, name, fmt.Sprintf("tool %q not found", name), err)
	}

	if raw == nil {
		raw = map[string]any{}
	}
	params, err := tool.Shape.Validate(raw)
	if err != nil {
		e := NewError(KindValidation, name, err.Error(), err)
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			e.Fields = verr.Fields
		}
		return nil, e
	}

	output, err := d.invoke(ctx, tool, params)
	if err != nil {
		return nil, d.handlerFailure(name, err)
	}

	normalized, err := Normalize(output)
	if err != nil {
		d.log.Error("tool result is not serializable", zap.String("tool", name), zap.Error(err))
		return nil, NewError(KindHandler, name, "tool returned a result that cannot be serialized", err)
	}
	return &Response{ToolName: name, Output: normalized}, nil
}

func (d *Dispatcher) invoke(ctx context.Context, tool *registry.Descriptor, params schema.Params) (out any, err error) {
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	start := time.Now()
	out, err = tool.Handler.Handle(hctx, params)
	metrics.InvocationDuration.WithLabelValues(tool.Name).Observe(time.Since(start).Seconds())
	return out, err
}

func (d *Dispatcher) handlerFailure(name string, err error) *Error {
	var de *registry.DomainError
	if errors.As(err, &de) {
		d.log.Warn("tool failed", zap.String("tool", name), zap.String("code", de.Code), zap.Error(err))
		e := NewError(KindHandler, name, de.Message, err)
		e.Code = de.Code
		return e
	}
	d.log.Error("tool failed", zap.String("tool", name), zap.Error(err))
	msg := fmt.Sprintf("tool %q failed", name)
	if errors.Is(err, context.DeadlineExceeded) {
		msg = fmt.Sprintf("tool %q timed out", name)
	}
	return NewError(KindHandler, name, msg, err)
}
