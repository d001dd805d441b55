package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

var errWrongType = errors.New("wrong type")

// FieldError describes why a single field was rejected.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned when parameters do not satisfy a shape.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "invalid parameters"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "invalid parameters: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Invalid builds a single-field ValidationError. Checks use it to report failures.
func Invalid(field, format string, args ...any) *ValidationError {
	e := &ValidationError{}
	e.add(field, format, args...)
	return e
}

// Validate coerces raw into a Params record matching the shape. Unknown keys
// are dropped and omitted optional fields receive their defaults. Any failure
// is a *ValidationError.
func (s Shape) Validate(raw map[string]any) (Params, error) {
	verr := &ValidationError{}
	out := make(Params, len(s.Fields))

	for _, f := range s.Fields {
		v, present := raw[f.Name]
		if !present || v == nil {
			switch {
			case f.Required:
				verr.add(f.Name, "is required")
			case f.Default != nil:
				d, err := coerce(f, f.Default)
				if err != nil {
					verr.add(f.Name, "invalid default: %v", err)
					continue
				}
				out[f.Name] = d
			}
			continue
		}

		cv, err := coerce(f, v)
		if err != nil {
			if errors.Is(err, errWrongType) {
				verr.add(f.Name, "must be of type %s", f.Type)
			} else {
				verr.add(f.Name, "%v", err)
			}
			continue
		}
		if len(f.Enum) > 0 && !inEnum(f, cv) {
			verr.add(f.Name, "must be one of %v", f.Enum)
			continue
		}
		out[f.Name] = cv
	}

	if len(verr.Fields) > 0 {
		return nil, verr
	}

	for _, check := range s.Checks {
		if err := check(out); err != nil {
			var cerr *ValidationError
			if errors.As(err, &cerr) {
				return nil, cerr
			}
			return nil, Invalid("", "%v", err)
		}
	}
	return out, nil
}

func inEnum(f Field, v any) bool {
	for _, allowed := range f.Enum {
		av, err := coerce(f, allowed)
		if err != nil {
			continue
		}
		if reflect.DeepEqual(av, v) {
			return true
		}
	}
	return false
}

func coerce(f Field, v any) (any, error) {
	switch f.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, errWrongType
		}
		if f.Format == FormatDateTime {
			return ParseTime(s)
		}
		return s, nil
	case TypeInteger:
		return toInt(v)
	case TypeNumber:
		return toFloat(v)
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, errWrongType
	case TypeArray:
		if a, ok := v.([]any); ok {
			return a, nil
		}
		return nil, errWrongType
	case TypeObject:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
		return nil, errWrongType
	}
	return nil, fmt.Errorf("unsupported type %q", f.Type)
}

func toInt(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows integer", n)
		}
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows integer", n)
		}
		return int64(n), nil
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, errWrongType
		}
		return floatToInt(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, errWrongType
		}
		return i, nil
	}
	return 0, errWrongType
}

func floatToInt(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
		return 0, errWrongType
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f >= 1<<63 || f < -1<<63 {
		return 0, fmt.Errorf("value %v overflows integer", f)
	}
	return int64(f), nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, errWrongType
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, errWrongType
		}
		return f, nil
	}
	if i, err := toInt(v); err == nil {
		return float64(i), nil
	}
	return 0, errWrongType
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 calendar timestamp. Values without an offset
// are taken as UTC. Fractional seconds are accepted by every layout.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid datetime format %q, expected ISO-8601 such as 2025-05-10T14:00:00Z", s)
}

// TimeOrder rejects parameters whose end field is strictly earlier than the
// start field. It only applies when both fields are present.
func TimeOrder(startField, endField string) Check {
	return func(p Params) error {
		if !p.Has(startField) || !p.Has(endField) {
			return nil
		}
		start, end := p.Time(startField), p.Time(endField)
		if end.Before(start) {
			return Invalid(endField, "must not be earlier than %s", startField)
		}
		return nil
	}
}
