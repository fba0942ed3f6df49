package testqr

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/scout/pkg/logger"
)

type recordsResponse struct {
	Records []map[string]any `json:"records"`
}

type auditResponse struct {
	Warnings []struct {
		Kind        string `json:"kind"`
		MatchNumber int    `json:"match_number"`
		ScoutID     int    `json:"scout_id"`
	} `json:"warnings"`
}

// verifyResults checks that every generated match is stored in full and
// that the audit has nothing to say about the generated matches. A service
// that also polls may store records slightly later, so counts are retried
// until VerifyTimeout.
func verifyResults(ctx context.Context, config *Config, client *HTTPClient, matches []Match, stats *Stats) error {
	logger.Get().Info(ctx, "verifying results")

	if stats.QRsInvalid > 0 {
		return fmt.Errorf("%w: service rejected %d generated qrs", ErrVerification, stats.QRsInvalid)
	}
	if stats.PassFailures > 0 {
		return fmt.Errorf("%w: %d qrs failed to decode", ErrVerification, stats.PassFailures)
	}

	deadline := time.Now().Add(VerifyTimeout)
	for {
		short, err := countStored(ctx, client, matches, stats)
		if err != nil {
			return err
		}
		if short == "" {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s", ErrVerification, short)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(verifyPoll):
		}
	}
	logger.Get().Info(ctx, "record counts verified",
		logger.Int("objective", stats.ObjectiveStored),
		logger.Int("subjective", stats.SubjectiveStored))

	var audit auditResponse
	if _, err := client.Get(ctx, "/audit", &audit); err != nil {
		return fmt.Errorf("audit retrieval failed: %w", err)
	}
	first, last := matches[0].Number, matches[len(matches)-1].Number
	for _, w := range audit.Warnings {
		if w.MatchNumber < first || w.MatchNumber > last {
			continue
		}
		stats.AuditWarnings++
		if config.Verbose {
			logger.Get().Warn(ctx, "audit warning",
				logger.String("kind", w.Kind),
				logger.Int("match", w.MatchNumber),
				logger.Int("scout", w.ScoutID))
		}
	}
	if stats.AuditWarnings > 0 {
		logger.Get().Warn(ctx, "audit reported warnings for generated matches; is the observer range the same as -scouts?",
			logger.Int("warnings", stats.AuditWarnings))
	}

	logger.Get().Info(ctx, "result verification completed")
	return nil
}

// countStored fetches per-match record counts. It returns a description of
// the first match that is short, or "" when all are complete.
func countStored(ctx context.Context, client *HTTPClient, matches []Match, stats *Stats) (string, error) {
	stats.ObjectiveStored, stats.SubjectiveStored = 0, 0
	short := ""
	for _, m := range matches {
		var obj, subj recordsResponse
		if _, err := client.Get(ctx, timsPath("objective", m.Number), &obj); err != nil {
			return "", fmt.Errorf("objective records for match %d: %w", m.Number, err)
		}
		if _, err := client.Get(ctx, timsPath("subjective", m.Number), &subj); err != nil {
			return "", fmt.Errorf("subjective records for match %d: %w", m.Number, err)
		}
		stats.ObjectiveStored += len(obj.Records)
		stats.SubjectiveStored += len(subj.Records)

		wantSubj := len(m.Red) + len(m.Blue)
		if short == "" && (len(obj.Records) < len(m.Objective) || len(subj.Records) < wantSubj) {
			short = fmt.Sprintf("match %d has %d/%d objective and %d/%d subjective records",
				m.Number, len(obj.Records), len(m.Objective), len(subj.Records), wantSubj)
		}
	}
	return short, nil
}
