package schema

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func meetingShape() Shape {
	return Shape{
		Fields: []Field{
			{Name: "title", Type: TypeString, Required: true},
			{Name: "start_time", Type: TypeString, Format: FormatDateTime, Required: true},
			{Name: "end_time", Type: TypeString, Format: FormatDateTime, Required: true},
			{Name: "description", Type: TypeString, Default: ""},
			{Name: "attendees", Type: TypeInteger, Default: 1},
			{Name: "priority", Type: TypeString, Enum: []any{"low", "high"}},
		},
		Checks: []Check{TimeOrder("start_time", "end_time")},
	}
}

func TestValidateAppliesDefaultsAndKeepsRequired(t *testing.T) {
	p, err := meetingShape().Validate(map[string]any{
		"title":      "Team Sync",
		"start_time": "2025-05-10T14:00:00Z",
		"end_time":   "2025-05-10T15:00:00Z",
		"unknown":    true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Team Sync", p.String("title"))
	assert.Equal(t, time.Date(2025, 5, 10, 14, 0, 0, 0, time.UTC), p.Time("start_time"))
	assert.Equal(t, "", p.String("description"))
	assert.True(t, p.Has("description"))
	assert.Equal(t, int64(1), p.Int("attendees"))
	assert.False(t, p.Has("priority"))
	assert.False(t, p.Has("unknown"))
}

func TestValidateMissingRequired(t *testing.T) {
	_, err := meetingShape().Validate(map[string]any{"title": "x", "end_time": nil})
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, "start_time", verr.Fields[0].Field)
	assert.Equal(t, "end_time", verr.Fields[1].Field)
	assert.Equal(t, "is required", verr.Fields[0].Message)
}

func TestValidateCoercion(t *testing.T) {
	shape := Shape{Fields: []Field{
		{Name: "n", Type: TypeInteger},
		{Name: "f", Type: TypeNumber},
		{Name: "b", Type: TypeBoolean},
		{Name: "tags", Type: TypeArray},
	}}

	p, err := shape.Validate(map[string]any{"n": float64(3), "f": "2.5", "b": "TRUE", "tags": []any{"a"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.Int("n"))
	assert.Equal(t, 2.5, p.Float("f"))
	assert.True(t, p.Bool("b"))

	p, err = shape.Validate(map[string]any{"n": json.Number("42"), "f": 7})
	require.NoError(t, err)
	assert.Equal(t, int64(42), p.Int("n"))
	assert.Equal(t, 7.0, p.Float("f"))

	for name, raw := range map[string]map[string]any{
		"fractional integer": {"n": 1.5},
		"string integer":     {"n": "abc"},
		"bool from number":   {"b": 1},
		"array from string":  {"tags": "a,b"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := shape.Validate(raw)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields[0].Message, "must be of type")
		})
	}
}

func TestValidateIntegerOverflow(t *testing.T) {
	shape := Shape{Fields: []Field{{Name: "n", Type: TypeInteger}}}

	for name, raw := range map[string]any{
		"2^63 float":       float64(1 << 63),
		"large float":      1e19,
		"below min float":  -1e19,
		"huge json number": json.Number("9223372036854775808"),
		"max uint64":       uint64(math.MaxUint64),
	} {
		t.Run(name, func(t *testing.T) {
			p, err := shape.Validate(map[string]any{"n": raw})
			var verr *ValidationError
			require.ErrorAs(t, err, &verr, "got %v", p)
			assert.Contains(t, verr.Fields[0].Message, "overflows integer")
		})
	}

	p, err := shape.Validate(map[string]any{"n": float64(-1 << 63)})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MinInt64), p.Int("n"))
}

func TestValidateStringRejectsNumbers(t *testing.T) {
	_, err := meetingShape().Validate(map[string]any{
		"title":      12,
		"start_time": "2025-05-10T14:00:00Z",
		"end_time":   "2025-05-10T15:00:00Z",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []FieldError{{Field: "title", Message: "must be of type string"}}, verr.Fields)
}

func TestValidateEnum(t *testing.T) {
	base := map[string]any{
		"title":      "x",
		"start_time": "2025-05-10T14:00:00Z",
		"end_time":   "2025-05-10T15:00:00Z",
	}
	base["priority"] = "high"
	_, err := meetingShape().Validate(base)
	require.NoError(t, err)

	base["priority"] = "urgent"
	_, err = meetingShape().Validate(base)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "priority", verr.Fields[0].Field)
}

func TestTimeOrderRejectsEndBeforeStart(t *testing.T) {
	_, err := meetingShape().Validate(map[string]any{
		"title":      "x",
		"start_time": "2025-05-10T14:00:00Z",
		"end_time":   "2025-05-10T13:00:00Z",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end_time", verr.Fields[0].Field)

	_, err = meetingShape().Validate(map[string]any{
		"title":      "x",
		"start_time": "2025-05-10T14:00:00Z",
		"end_time":   "2025-05-10T14:00:00Z",
	})
	assert.NoError(t, err)
}

func TestTimeOrderSkipsWhenFieldAbsent(t *testing.T) {
	shape := Shape{
		Fields: []Field{
			{Name: "start_time", Type: TypeString, Format: FormatDateTime},
			{Name: "end_time", Type: TypeString, Format: FormatDateTime},
		},
		Checks: []Check{TimeOrder("start_time", "end_time")},
	}
	_, err := shape.Validate(map[string]any{"end_time": "2025-05-10T13:00:00Z"})
	assert.NoError(t, err)
}

func TestParseTime(t *testing.T) {
	for _, in := range []string{
		"2025-05-10T14:00:00Z",
		"2025-05-10T14:00:00+00:00",
		"2025-05-10T16:00:00.000+02:00",
		"2025-05-10T14:00:00",
		"2025-05-10 14:00:00",
	} {
		got, err := ParseTime(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(time.Date(2025, 5, 10, 14, 0, 0, 0, time.UTC)), in)
	}

	_, err := ParseTime("10/05/2025 2pm")
	assert.Error(t, err)
}

func TestDateTimeFieldRejectsGarbage(t *testing.T) {
	_, err := meetingShape().Validate(map[string]any{
		"title":      "x",
		"start_time": "tomorrow",
		"end_time":   "2025-05-10T15:00:00Z",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "start_time", verr.Fields[0].Field)
	assert.Contains(t, verr.Fields[0].Message, "invalid datetime format")
}

func TestJSONSchema(t *testing.T) {
	js, err := meetingShape().JSONSchema()
	require.NoError(t, err)

	assert.Equal(t, "object", js["type"])
	assert.Equal(t, []string{"title", "start_time", "end_time"}, js["required"])
	props := js["properties"].(map[string]any)
	assert.Len(t, props, 6)
	assert.Equal(t, map[string]any{"type": "string", "format": "date-time"}, props["start_time"])
}

func TestLintRejectsMalformedShapes(t *testing.T) {
	cases := map[string]Shape{
		"unknown type":    {Fields: []Field{{Name: "a", Type: "datetime"}}},
		"empty name":      {Fields: []Field{{Name: " ", Type: TypeString}}},
		"duplicate":       {Fields: []Field{{Name: "a", Type: TypeString}, {Name: "a", Type: TypeString}}},
		"format on int":   {Fields: []Field{{Name: "a", Type: TypeInteger, Format: FormatDateTime}}},
		"bad default":     {Fields: []Field{{Name: "a", Type: TypeInteger, Default: "x"}}},
		"bad enum member": {Fields: []Field{{Name: "a", Type: TypeBoolean, Enum: []any{true, 3}}}},
	}
	for name, shape := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, shape.Lint())
			_, err := shape.JSONSchema()
			assert.Error(t, err)
		})
	}
}

func TestExamples(t *testing.T) {
	shape := Shape{Fields: []Field{
		{Name: "event_id", Type: TypeString, Example: "event_123"},
		{Name: "title", Type: TypeString},
	}}
	assert.Equal(t, map[string]any{"event_id": "event_123"}, shape.Examples())
}
