package testqr

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/scout/pkg/logger"
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "test_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	if err := logger.Init(logger.WithWriter(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the QR test tool.
func ShowHelp() {
	os.Stdout.WriteString(`Scout QR Test Tool
==================

Generates synthetic match scouting QR codes from the schema, submits them to a
running scout service, runs a decompression pass, and verifies that every
match was stored in full.

Usage:
  go run ./cmd/test-qr [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -schema string
        Match schema file the codes follow (default: embedded schema)
  -matches int
        Number of matches to generate (default 20)
  -first-match int
        Match number of the first generated match (default 1)
  -scouts int
        Objective scouts per match; keep equal to the service's observer range (default 18)
  -batch int
        QR codes per POST /qrs request (default 50)
  -duplicates float
        Fraction of codes submitted twice (default 0.1)
  -seed uint
        Generator seed (default: time based)
  -workers int
        Number of concurrent submitters (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Output file for generated matches (default: none)
  -log string
        Log file for test output (default: test_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Test with default settings
  go run ./cmd/test-qr

  # A full qualification day against another port
  go run ./cmd/test-qr -matches 80 -workers 16 -url http://localhost:8080

  # Reproducible run, saving the codes
  go run ./cmd/test-qr -seed 42 -output qrs.json
`)
}
