// Package ocr reads the fare off a ride receipt using the OCR.space
// parse API.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ridesplit/ridesplit/internal/metrics"
)

const (
	// DefaultEndpoint is the OCR.space parse endpoint.
	DefaultEndpoint = "https://api.ocr.space/parse/image"

	// DefaultTimeout is the per-request timeout.
	DefaultTimeout = 30 * time.Second

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 1 << 20
)

// NewHTTPClient creates an HTTP client configured for OCR calls.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          10,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Config configures a Client.
type Config struct {
	Endpoint    string
	APIKey      string
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	RatePerSec  float64
	Burst       int
	HTTPClient  *http.Client
}

// Client calls the OCR service with outbound rate limiting and retries.
type Client struct {
	endpoint    string
	apiKey      string
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseDelay   time.Duration
	logger      *slog.Logger
	metrics     metrics.Recorder
}

// NewClient creates a new OCR client.
func NewClient(cfg Config, logger *slog.Logger, recorder metrics.Recorder) *Client {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(cfg.Timeout)
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		endpoint:    cfg.Endpoint,
		apiKey:      cfg.APIKey,
		http:        cfg.HTTPClient,
		limiter:     rate.NewLimiter(limit, burst),
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		logger:      logger.With("component", "ocr.client"),
		metrics:     recorder,
	}
}

// parseResponse is the subset of the OCR.space response that is used.
type parseResponse struct {
	ParsedResults []struct {
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

// ExtractFare sends a receipt image to the OCR service and returns the
// first dollar amount found in the parsed text.
func (c *Client) ExtractFare(ctx context.Context, image []byte, contentType string) (float64, error) {
	start := time.Now()
	text, err := c.ParseText(ctx, image, contentType)
	c.metrics.ObserveOCRDuration(time.Since(start))
	if err != nil {
		c.metrics.IncOCRRequest(metrics.OCRFailed)
		return 0, err
	}

	amount, err := ParseAmount(text)
	if err != nil {
		c.metrics.IncOCRRequest(metrics.OCRNoAmount)
		return 0, err
	}

	c.metrics.IncOCRRequest(metrics.OCRSuccess)
	return amount, nil
}

// ParseText returns the text of the first parsed result.
func (c *Client) ParseText(ctx context.Context, image []byte, contentType string) (string, error) {
	if len(image) == 0 {
		return "", ErrEmptyImage
	}
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}

	body, formType, err := encodeForm(image, contentType)
	if err != nil {
		return "", err
	}

	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := NextRetryDelay(c.baseDelay, attempt-1)
			c.logger.Warn("retrying ocr request",
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("ocr rate limit: %w", err)
		}

		text, err := c.do(ctx, body, formType)
		if err == nil {
			return text, nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("ocr failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) do(ctx context.Context, body []byte, formType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", formType)
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("User-Agent", "ridesplit-ocr/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", &StatusError{StatusCode: resp.StatusCode}
	}

	var parsed parseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrProcessing, err)
	}
	if parsed.IsErroredOnProcessing {
		return "", fmt.Errorf("%w: %s", ErrProcessing, string(parsed.ErrorMessage))
	}
	if len(parsed.ParsedResults) == 0 {
		return "", ErrNoAmount
	}
	return parsed.ParsedResults[0].ParsedText, nil
}

// encodeForm builds the multipart body for the parse endpoint.
func encodeForm(image []byte, contentType string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := []struct{ key, value string }{
		{"base64Image", "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)},
		{"language", "eng"},
		{"isOverlayRequired", "false"},
		{"scale", "true"},
		{"detectOrientation", "true"},
	}
	for _, f := range fields {
		if err := w.WriteField(f.key, f.value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", f.key, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// retryable reports whether err is worth another attempt: transport
// failures (including a single attempt timing out) and 5xx/429 answers
// are, everything else is not. The caller's own context is checked
// separately.
func retryable(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	if errors.Is(err, ErrProcessing) || errors.Is(err, ErrNoAmount) {
		return false
	}
	return true
}
