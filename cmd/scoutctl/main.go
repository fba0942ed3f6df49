// Command scoutctl works on scouting data offline: it decodes QR dumps,
// audits decoded records, and checks schema files without a running server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/okian/scout/pkg/logger"
)

func main() {
	if err := logger.Init(logger.WithWriter(os.Stderr)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var level string
	root := &cobra.Command{
		Use:          "scoutctl",
		Short:        "Offline tools for scouting QR data",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.SetLevelString(level); err != nil {
				return fmt.Errorf("log level: %w", err)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&level, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(newDecodeCmd(), newAuditCmd(), newSchemaCmd())
	return root
}
