package testqr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/scout/pkg/logger"
)

// HTTPClient wraps http.Client with the service's base URL.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// newHTTPClient creates a new HTTP client with timeout.
func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Get performs a GET request and decodes a 200 JSON body into out when out
// is not nil.
func (c *HTTPClient) Get(ctx context.Context, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// Post performs a POST request with a JSON body.
func (c *HTTPClient) Post(ctx context.Context, path string, body, out any) (int, error) {
	var r io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal request body: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, r)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) (int, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// submitQRs posts qrs in batches from config.Workers concurrent submitters.
func submitQRs(ctx context.Context, config *Config, client *HTTPClient, qrs []string, stats *Stats) error {
	logger.Get().Info(ctx, "submitting qrs",
		logger.Int("count", len(qrs)),
		logger.Int("batchSize", config.BatchSize),
		logger.Int("workers", config.Workers))

	var (
		submitted, accepted, duplicate, invalid, failed atomic.Int64
		reportMu                                        sync.Mutex
		lastReport                                      time.Time
	)

	batches := make(chan []string, config.Workers*WorkerChannelMultiplier)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(batches)
		for start := 0; start < len(qrs); start += config.BatchSize {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case batches <- qrs[start:min(start+config.BatchSize, len(qrs))]:
			}
		}
		return nil
	})

	for range config.Workers {
		g.Go(func() error {
			for batch := range batches {
				var res SubmitResponse
				_, err := client.Post(gctx, "/qrs", map[string][]string{"qrs": batch}, &res)
				submitted.Add(int64(len(batch)))
				if err != nil {
					failed.Add(1)
					logger.Get().Warn(gctx, "batch submission failed", logger.Error(err))
					continue
				}
				accepted.Add(int64(len(res.Accepted)))
				duplicate.Add(int64(res.Duplicates))
				invalid.Add(int64(len(res.Invalid)))

				reportMu.Lock()
				if config.Verbose && time.Since(lastReport) >= time.Second {
					lastReport = time.Now()
					logger.Get().Info(gctx, "submission progress",
						logger.Int64("submitted", submitted.Load()),
						logger.Int("total", len(qrs)),
						logger.Int64("accepted", accepted.Load()),
						logger.Int64("duplicate", duplicate.Load()))
				}
				reportMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	stats.QRsSubmitted = int(submitted.Load())
	stats.QRsAccepted = int(accepted.Load())
	stats.QRsDuplicate = int(duplicate.Load())
	stats.QRsInvalid = int(invalid.Load())
	stats.RequestsFailed = int(failed.Load())

	logger.Get().Info(ctx, "qr submission completed",
		logger.Int("accepted", stats.QRsAccepted),
		logger.Int("duplicate", stats.QRsDuplicate),
		logger.Int("invalid", stats.QRsInvalid),
		logger.Int("failedRequests", stats.RequestsFailed))
	return nil
}

// timsPath builds the read path for one match's records of kind.
func timsPath(kind string, match int) string {
	q := url.Values{}
	q.Set("match", strconv.Itoa(match))
	return "/tims/" + kind + "?" + q.Encode()
}
