package testqr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/scout/internal/domain/schema"
	"github.com/okian/scout/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// ErrVerification reports that the service did not store what was sent.
var ErrVerification = errors.New("verification failed")

// Run executes the complete QR load test: generate, submit, run a pass,
// then verify stored record counts and the coverage audit.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}
	normalize(config)

	logger.Get().Info(ctx, "starting scout qr test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("matches", config.Matches),
		logger.Int("scouts", config.ScoutsPerMatch),
		logger.Int("workers", config.Workers),
		logger.String("timeout", config.Timeout.String()),
		logger.Any("seed", config.Seed))

	client := newHTTPClient(config.BaseURL, config.Timeout)

	// Step 1: Check service health
	if err := checkServiceHealth(ctx, client); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	// Step 2: Generate codes
	sc := schema.Default()
	if config.SchemaPath != "" {
		var err error
		if sc, err = schema.Load(config.SchemaPath); err != nil {
			return err
		}
	}
	matches := generateMatches(config, sc)
	qrs := submissionOrder(config, matches)
	stats.QRsGenerated = len(qrs)

	// Step 3: Submit codes concurrently
	if err := submitQRs(ctx, config, client, qrs, stats); err != nil {
		return fmt.Errorf("qr submission failed: %w", err)
	}

	// Step 4: Run a pass
	var pass PassResponse
	if _, err := client.Post(ctx, "/passes", nil, &pass); err != nil {
		return fmt.Errorf("pass failed: %w", err)
	}
	stats.PassProcessed = pass.Processed
	stats.PassFailures = len(pass.Failures)

	// Step 5: Verify results
	verifyErr := verifyResults(ctx, config, client, matches, stats)

	// Step 6: Save codes to file
	if config.OutputFile != "" {
		if err := saveMatchesToFile(ctx, config.OutputFile, matches); err != nil {
			logger.Get().Warn(ctx, "failed to save qrs to file", logger.Error(err))
		}
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)

	if verifyErr != nil {
		return verifyErr
	}
	logger.Get().Info(ctx, "test completed successfully")
	return nil
}

func normalize(config *Config) {
	if config.Matches <= 0 {
		config.Matches = 1
	}
	if config.FirstMatch <= 0 {
		config.FirstMatch = 1
	}
	if config.ScoutsPerMatch <= 0 {
		config.ScoutsPerMatch = 18
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Seed == 0 {
		config.Seed = uint64(time.Now().UnixNano())
	}
}

func generateMatches(config *Config, sc *schema.Schema) []Match {
	gen := NewGenerator(sc, config.Seed)
	matches := make([]Match, 0, config.Matches)
	for i := range config.Matches {
		matches = append(matches, gen.Match(config.FirstMatch+i, config.ScoutsPerMatch))
	}
	return matches
}

// submissionOrder flattens matches, repeats a fraction of the codes the way
// a re-scanned tablet would, and shuffles the result.
func submissionOrder(config *Config, matches []Match) []string {
	var qrs []string
	for _, m := range matches {
		qrs = append(qrs, m.QRs()...)
	}
	rnd := rand.New(rand.NewPCG(config.Seed, config.Seed>>1))
	repeats := int(float64(len(qrs)) * config.Duplicates)
	for i := range repeats {
		qrs = append(qrs, qrs[i%len(qrs)])
	}
	rnd.Shuffle(len(qrs), func(i, j int) { qrs[i], qrs[j] = qrs[j], qrs[i] })
	return qrs
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	logger.Get().Info(ctx, "checking service health")
	status, err := client.Get(ctx, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	// Accept any 200 response as healthy (the service returns Prometheus metrics)
	if status != StatusOK {
		return fmt.Errorf("service health check failed with status: %d", status)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

// saveMatchesToFile writes the generated matches as JSON.
func saveMatchesToFile(ctx context.Context, filename string, matches []Match) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(matches, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal matches: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("failed to write %s: %w", filename, err)
	}
	logger.Get().Info(ctx, "qrs saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats logs the final test statistics.
func displayFinalStats(stats *Stats) {
	var acceptRate, qrsPerSecond float64
	if stats.QRsSubmitted > 0 {
		acceptRate = float64(stats.QRsAccepted) / float64(stats.QRsSubmitted) * PercentageMultiplier
	}
	if stats.Duration > 0 {
		qrsPerSecond = float64(stats.QRsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("qrsGenerated", stats.QRsGenerated),
		logger.Int("qrsSubmitted", stats.QRsSubmitted),
		logger.Int("qrsAccepted", stats.QRsAccepted),
		logger.Int("qrsDuplicate", stats.QRsDuplicate),
		logger.Int("qrsInvalid", stats.QRsInvalid),
		logger.Int("requestsFailed", stats.RequestsFailed),
		logger.Int("passProcessed", stats.PassProcessed),
		logger.Int("passFailures", stats.PassFailures),
		logger.Int("objectiveStored", stats.ObjectiveStored),
		logger.Int("subjectiveStored", stats.SubjectiveStored),
		logger.Int("auditWarnings", stats.AuditWarnings),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("qrsPerSecond", qrsPerSecond))
}
