package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/scout/internal/testqr"
)

// Default configuration constants.
const (
	defaultMatches     = 20
	defaultScouts      = 18
	defaultBatch       = 50
	defaultDuplicates  = 0.1
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		schemaPath = flag.String("schema", "", "Match schema file the codes follow (default: embedded schema)")
		matches    = flag.Int("matches", defaultMatches, "Number of matches to generate")
		firstMatch = flag.Int("first-match", 1, "Match number of the first generated match")
		scouts     = flag.Int("scouts", defaultScouts, "Objective scouts per match")
		batch      = flag.Int("batch", defaultBatch, "QR codes per POST /qrs request")
		duplicates = flag.Float64("duplicates", defaultDuplicates, "Fraction of codes submitted twice")
		seed       = flag.Uint64("seed", 0, "Generator seed (default: time based)")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		outputFile = flag.String("output", "", "Output file for generated matches")
		logFile    = flag.String("log", "", "Log file for test output (default: test_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		testqr.ShowHelp()
		return
	}

	// Setup logging
	closer, err := testqr.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		exitCode = 1
		return
	}
	defer func() { _ = closer.Close() }()

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	config := &testqr.Config{
		BaseURL:        *baseURL,
		SchemaPath:     *schemaPath,
		Matches:        *matches,
		FirstMatch:     *firstMatch,
		ScoutsPerMatch: *scouts,
		BatchSize:      *batch,
		Duplicates:     *duplicates,
		Seed:           *seed,
		Workers:        *workers,
		Timeout:        *timeout,
		OutputFile:     *outputFile,
		LogFile:        *logFile,
		Verbose:        *verbose,
	}

	if err := testqr.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Test failed: " + err.Error() + "\n")
		exitCode = 1
	}
}
