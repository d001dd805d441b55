package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"calendar-mcp/internal/calendar"
	"calendar-mcp/internal/discovery"
	"calendar-mcp/internal/registry"
)

func newToolsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Print the tool catalog clients discover",
		Args:  cobra.NoArgs,
		RunE:  runTools,
	}
	cmd.Flags().StringP("format", "f", "json", "Output format: json or yaml")
	return cmd
}

func runTools(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")

	// The catalog does not depend on where events are stored.
	reg := registry.New()
	if err := calendar.Register(reg, calendar.NewMemoryStore()); err != nil {
		return err
	}
	frame := discovery.BuildFrame(reg, nil)

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(frame)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(frame); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want json or yaml)", format)
	}
}
