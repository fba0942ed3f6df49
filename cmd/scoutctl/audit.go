package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/okian/scout/internal/domain/audit"
	"github.com/okian/scout/internal/domain/model"
)

// ErrWarnings is returned by audit --strict when any warning was found.
var ErrWarnings = errors.New("audit found warnings")

type auditOutput struct {
	Records  int             `json:"records"`
	Warnings []audit.Warning `json:"warnings"`
}

func newAuditCmd() *cobra.Command {
	var (
		ignorePath string
		minID      int
		maxID      int
		strict     bool
	)
	cmd := &cobra.Command{
		Use:   "audit [file]",
		Short: "Check scout coverage of decoded objective records",
		Long: "Reads objective team-in-match records as a JSON array, or as an\n" +
			"object with a \"records\" or \"objective\" array (the output of\n" +
			"decode and of GET /tims/objective), and reports duplicate and\n" +
			"missing scout ids per match.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if minID > maxID {
				return fmt.Errorf("--min %d exceeds --max %d", minID, maxID)
			}
			var ignore *audit.IgnoreList
			if ignorePath != "" {
				var err error
				if ignore, err = audit.LoadIgnoreList(ignorePath); err != nil {
					return err
				}
			}

			in, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer func() { _ = in.Close() }()
			recs, err := readRecords(in)
			if err != nil {
				return err
			}

			warnings := audit.Audit(audit.ObservationsFrom(recs), audit.Range{Min: minID, Max: maxID}, ignore)
			if warnings == nil {
				warnings = []audit.Warning{}
			}
			if err := printJSON(cmd, auditOutput{Records: len(recs), Warnings: warnings}); err != nil {
				return err
			}
			if strict && len(warnings) > 0 {
				return fmt.Errorf("%w: %d", ErrWarnings, len(warnings))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ignorePath, "ignore", "", "YAML ignore list of matches and match/scout pairs")
	cmd.Flags().IntVar(&minID, "min", audit.DefaultRange.Min, "lowest expected scout id")
	cmd.Flags().IntVar(&maxID, "max", audit.DefaultRange.Max, "highest expected scout id")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when warnings are found")
	return cmd
}

// readRecords accepts a bare array or an object wrapping one.
func readRecords(r io.Reader) ([]model.Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var recs []model.Record
		if err := json.Unmarshal(data, &recs); err != nil {
			return nil, fmt.Errorf("parse records: %w", err)
		}
		return recs, nil
	}
	var wrapped struct {
		Records   []model.Record `json:"records"`
		Objective []model.Record `json:"objective"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}
	return append(wrapped.Records, wrapped.Objective...), nil
}
