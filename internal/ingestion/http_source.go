package ingestion

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"fairrate/internal/logger"
	"fairrate/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// maxBodyBytes bounds the document size read from upstream.
	maxBodyBytes = 16 << 20
)

// HTTPSource downloads the document from a URL with retries.
type HTTPSource struct {
	url         string
	client      *http.Client
	userAgent   string
	encoding    string
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
	limiter     *rate.Limiter
	metrics     *observability.Metrics
	log         *logger.Entry
	clock       func() time.Time
}

// HTTPOption configures HTTPSource.
type HTTPOption func(*HTTPSource)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		s.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) HTTPOption {
	return func(s *HTTPSource) {
		s.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		s.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) HTTPOption {
	return func(s *HTTPSource) {
		s.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// WithUserAgent overrides the browser user agent sent upstream.
func WithUserAgent(ua string) HTTPOption {
	return func(s *HTTPSource) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithEncoding sets the document encoding (latin1 or utf-8).
func WithEncoding(encoding string) HTTPOption {
	return func(s *HTTPSource) {
		s.encoding = encoding
	}
}

// WithRateLimit allows at most rps requests per second, retries included.
// rps <= 0 disables limiting.
func WithRateLimit(rps float64) HTTPOption {
	return func(s *HTTPSource) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithMetrics records fetch latency and retries.
func WithMetrics(m *observability.Metrics) HTTPOption {
	return func(s *HTTPSource) {
		s.metrics = m
	}
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(log *logger.Log) HTTPOption {
	return func(s *HTTPSource) {
		s.log = log.WithComponent("ingestion")
	}
}

// NewHTTPSource creates a source for url.
func NewHTTPSource(url string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		url:         url,
		client:      &http.Client{Timeout: DefaultTimeout},
		userAgent:   DefaultUserAgent,
		encoding:    EncodingLatin1,
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
		log:         logger.Discard().WithComponent("ingestion"),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch downloads the document, retrying network errors, 429 and 5xx
// responses with exponential backoff. Other 4xx responses fail at once.
func (s *HTTPSource) Fetch(ctx context.Context) (*Document, error) {
	start := time.Now()
	body, err := s.download(ctx)
	if err != nil {
		s.metrics.RecordFetch("http", observability.StatusFailed, time.Since(start), 0)
		return nil, err
	}
	s.metrics.RecordFetch("http", observability.StatusSuccess, time.Since(start), len(body))

	if isBlank(body) {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, s.url)
	}
	decoded, err := decodeBody(body, s.encoding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return &Document{Body: decoded, Name: s.url, FetchedAt: s.clock().UTC()}, nil
}

func (s *HTTPSource) download(ctx context.Context) ([]byte, error) {
	delay := s.retryDelay
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.log.WithFields(logger.Fields{
				"attempt": attempt,
				"delay":   delay.String(),
			}).WithError(lastErr).Warn("retrying document download")

			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrFetch, ctx.Err())
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * s.backoffMult)
			if delay > s.maxDelay {
				delay = s.maxDelay
			}
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrFetch, err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: create request: %v", ErrFetch, err)
		}
		req.Header.Set("User-Agent", s.userAgent)

		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", ErrFetch, ctx.Err())
			}
			lastErr = fmt.Errorf("http request: %w", err)
			s.metrics.RecordFetchRetry("network")
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			s.metrics.RecordFetchRetry("read")
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("rate limited (429)")
			s.metrics.RecordFetchRetry("rate_limited")
			continue
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			s.metrics.RecordFetchRetry("server_error")
			continue
		case resp.StatusCode != http.StatusOK:
			// Client errors are not retried
			return nil, fmt.Errorf("%w: unexpected status %d from %s", ErrFetch, resp.StatusCode, s.url)
		}
		return body, nil
	}

	return nil, fmt.Errorf("%w: max retries exceeded: %v", ErrFetch, lastErr)
}
