// Package remote fetches measurement records from the open-data HTTP API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"wastewater/internal/core"
	"wastewater/internal/source"
)

const maxBodyBytes = 64 << 20

// Config holds the outbound call settings.
type Config struct {
	URL string
	// Timeout bounds a single attempt (default: 30s)
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a failure (default: 0)
	MaxRetries int
	// UserAgent is sent with every request
	UserAgent string
}

type Client struct {
	cfg     Config
	http    *http.Client
	sleep   func(context.Context, time.Duration) error
	maxBody int64
}

var _ source.RecordFetcher = (*Client)(nil)

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "wastewater-sync"
	}
	return &Client{
		cfg:     cfg,
		http:    newHTTPClient(cfg.Timeout),
		sleep:   sleepContext,
		maxBody: maxBodyBytes,
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

type windowRequest struct {
	Start string `json:"extraction_date_start"`
	End   string `json:"extraction_date_end"`
}

type envelope struct {
	Body *[]json.RawMessage `json:"body"`
}

// FetchWindow implements source.RecordFetcher. Records that fail to decode
// or validate are dropped with a warning.
func (c *Client) FetchWindow(ctx context.Context, start, end core.Date) ([]core.Record, error) {
	payload, err := json.Marshal(windowRequest{Start: start.ISO(), End: end.ISO()})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var raw []json.RawMessage
	for attempt := 0; ; attempt++ {
		raw, err = c.do(ctx, payload)
		if err == nil {
			break
		}
		if attempt >= c.cfg.MaxRetries || !retryable(err) || ctx.Err() != nil {
			return nil, err
		}
		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "Fetch failed, retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"backoff", wait,
			"error", err)
		if err := c.sleep(ctx, wait); err != nil {
			return nil, &source.RemoteError{Kind: source.ErrTransport, URL: c.cfg.URL, Err: err}
		}
	}

	records := make([]core.Record, 0, len(raw))
	for i, item := range raw {
		var r core.Record
		if err := json.Unmarshal(item, &r); err != nil {
			slog.WarnContext(ctx, "Dropping undecodable record", "index", i, "error", err)
			continue
		}
		if err := r.Validate(); err != nil {
			slog.WarnContext(ctx, "Dropping invalid record",
				"index", i,
				"sample_number", r.SampleNumber,
				"error", err)
			continue
		}
		records = append(records, r)
	}

	slog.InfoContext(ctx, "Fetched window",
		"start", start.ISO(),
		"end", end.ISO(),
		"received", len(raw),
		"valid", len(records))

	return records, nil
}

func (c *Client) do(ctx context.Context, payload []byte) ([]json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, &source.RemoteError{Kind: source.ErrTransport, URL: c.cfg.URL, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &source.RemoteError{Kind: source.ErrTransport, URL: c.cfg.URL, Err: err}
	}
	defer resp.Body.Close()

	// one byte past the limit tells a full body from a cut one
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, &source.RemoteError{Kind: source.ErrTransport, URL: c.cfg.URL, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &source.RemoteError{
			Kind:       source.ErrStatus,
			URL:        c.cfg.URL,
			StatusCode: resp.StatusCode,
			Err:        errors.New(snippet(body)),
		}
	}
	if int64(len(body)) > c.maxBody {
		return nil, &source.RemoteError{
			Kind:       source.ErrTooLarge,
			URL:        c.cfg.URL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("body exceeds %d bytes", c.maxBody),
		}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &source.RemoteError{Kind: source.ErrEnvelope, URL: c.cfg.URL, StatusCode: resp.StatusCode, Err: err}
	}
	if env.Body == nil {
		return nil, &source.RemoteError{Kind: source.ErrEnvelope, URL: c.cfg.URL, StatusCode: resp.StatusCode}
	}
	return *env.Body, nil
}

// retryable reports whether another attempt could succeed: transport
// failures and 5xx/429 statuses.
func retryable(err error) bool {
	var rerr *source.RemoteError
	if !errors.As(err, &rerr) {
		return false
	}
	if errors.Is(rerr.Kind, source.ErrTransport) {
		return true
	}
	if errors.Is(rerr.Kind, source.ErrStatus) {
		return rerr.StatusCode >= 500 || rerr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// exponentialBackoff returns 1s, 2s, 4s, ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return 30 * time.Second
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func snippet(body []byte) string {
	const max = 200
	s := string(bytes.TrimSpace(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
