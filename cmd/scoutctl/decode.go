package main

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/scout/internal/domain/decode"
	"github.com/okian/scout/internal/domain/decompress"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schema"
	"github.com/okian/scout/pkg/logger"
)

type decodeFailure struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
	Error  string `json:"error"`
}

type decodeOutput struct {
	Objective  []model.Record  `json:"objective"`
	Subjective []model.Record  `json:"subjective"`
	Failures   []decodeFailure `json:"failures,omitempty"`
}

func newDecodeCmd() *cobra.Command {
	var (
		schemaPath string
		workers    int
	)
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode QR payloads, one per line, into JSON records",
		Long: "Reads QR payloads one per line from a file or stdin, decodes them\n" +
			"against the schema, and prints objective and subjective records.\n" +
			"Blank lines are skipped. Undecodable lines are reported, not fatal.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := loadSchema(schemaPath)
			if err != nil {
				return err
			}
			in, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer func() { _ = in.Close() }()

			var qrs []model.RawQR
			lines := bufio.NewScanner(in)
			lines.Buffer(make([]byte, 0, 64<<10), 1<<20)
			for n := 1; lines.Scan(); n++ {
				line := strings.TrimSpace(lines.Text())
				if line == "" {
					continue
				}
				qrs = append(qrs, model.RawQR{ID: strconv.Itoa(n), Data: line})
			}
			if err := lines.Err(); err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			log := logger.Get().Named("decode")
			driver := decompress.NewDriver(decode.New(sc, decode.WithLogger(log)),
				decompress.WithWorkers(workers), decompress.WithLogger(log))
			res, err := driver.ProcessBatch(cmd.Context(), qrs)
			if err != nil {
				return err
			}

			out := decodeOutput{
				Objective:  nonNil(res.Objective),
				Subjective: nonNil(decompress.DedupeSubjective(res.Subjective)),
			}
			for _, f := range res.Failures {
				line, _ := strconv.Atoi(f.ID)
				out.Failures = append(out.Failures, decodeFailure{
					Line: line, Reason: decompress.Reason(f.Err), Error: f.Err.Error(),
				})
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "match collection schema file (default: embedded)")
	cmd.Flags().IntVar(&workers, "workers", 4, "parallel decode workers")
	return cmd
}

func loadSchema(path string) (*schema.Schema, error) {
	if path == "" {
		return schema.Default(), nil
	}
	return schema.Load(path)
}

func nonNil(recs []model.Record) []model.Record {
	if recs == nil {
		return []model.Record{}
	}
	return recs
}
