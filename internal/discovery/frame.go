package discovery

import (
	"encoding/json"

	"go.uber.org/zap"

	"calendar-mcp/internal/metrics"
	"calendar-mcp/internal/registry"
)

// ToolSummary is what a client learns about one tool.
type ToolSummary struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	Parameters  map[string]any `json:"parameters" yaml:"parameters"`
	Examples    map[string]any `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// Frame is the payload of a "tools" event.
type Frame struct {
	Tools []ToolSummary `json:"tools" yaml:"tools"`
}

// Names lists the tool names in the frame.
func (f Frame) Names() []string {
	out := make([]string, 0, len(f.Tools))
	for _, t := range f.Tools {
		out = append(out, t.Name)
	}
	return out
}

// BuildFrame renders the catalog in registration order. A tool whose shape
// cannot be rendered or encoded is logged and left out.
func BuildFrame(reg *registry.Registry, log *zap.Logger) Frame {
	if log == nil {
		log = zap.NewNop()
	}
	frame := Frame{Tools: make([]ToolSummary, 0, reg.Len())}
	for d := range reg.All() {
		params, err := d.Shape.JSONSchema()
		if err != nil {
			skip(log, d.Name, err)
			continue
		}
		summary := ToolSummary{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  params,
		}
		if ex := d.Shape.Examples(); len(ex) > 0 {
			summary.Examples = ex
		}
		if _, err := json.Marshal(summary); err != nil {
			skip(log, d.Name, err)
			continue
		}
		frame.Tools = append(frame.Tools, summary)
	}
	return frame
}

func skip(log *zap.Logger, name string, err error) {
	log.Warn("skipping tool in catalog", zap.String("tool", name), zap.Error(err))
	metrics.DiscoverySkippedTools.WithLabelValues(name).Inc()
}
