package main

import (
	"github.com/spf13/cobra"

	"github.com/okian/scout/internal/domain/schema"
)

type schemaSummary struct {
	Path          string   `json:"path"`
	Version       int      `json:"version,omitempty"`
	TimelineWidth int      `json:"timeline_width,omitempty"`
	Collections   []string `json:"collections,omitempty"`
}

func newSchemaCmd() *cobra.Command {
	var pit bool
	cmd := &cobra.Command{
		Use:   "schema file",
		Short: "Validate a schema file",
		Long: "Loads and validates a match collection schema, or a pit schema\n" +
			"with --pit, and prints a short summary. Exits non-zero when the\n" +
			"file is invalid.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := schemaSummary{Path: args[0]}
			if pit {
				ps, err := schema.LoadPit(args[0])
				if err != nil {
					return err
				}
				out.Collections = ps.Collections()
				return printJSON(cmd, out)
			}
			sc, err := schema.Load(args[0])
			if err != nil {
				return err
			}
			out.Version = sc.Version
			out.TimelineWidth = sc.TimelineWidth()
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().BoolVar(&pit, "pit", false, "validate a pit collection schema")
	return cmd
}
