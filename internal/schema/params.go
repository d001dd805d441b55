package schema

import "time"

// Params is a validated parameter record. Values have the Go type matching
// their declared field type: string, int64, float64, bool, []any,
// map[string]any, or time.Time for date-time strings.
type Params map[string]any

// Has reports whether name is set.
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// String returns the string value of name or "".
func (p Params) String(name string) string {
	s, _ := p[name].(string)
	return s
}

// Int returns the integer value of name or 0.
func (p Params) Int(name string) int64 {
	i, _ := p[name].(int64)
	return i
}

// Float returns the number value of name or 0.
func (p Params) Float(name string) float64 {
	f, _ := p[name].(float64)
	return f
}

// Bool returns the boolean value of name or false.
func (p Params) Bool(name string) bool {
	b, _ := p[name].(bool)
	return b
}

// Time returns the timestamp value of name or the zero time.
func (p Params) Time(name string) time.Time {
	t, _ := p[name].(time.Time)
	return t
}

// OptionalString returns a pointer to the string value of name, or nil when unset.
func (p Params) OptionalString(name string) *string {
	s, ok := p[name].(string)
	if !ok {
		return nil
	}
	return &s
}

// OptionalTime returns a pointer to the timestamp value of name, or nil when unset.
func (p Params) OptionalTime(name string) *time.Time {
	t, ok := p[name].(time.Time)
	if !ok {
		return nil
	}
	return &t
}
