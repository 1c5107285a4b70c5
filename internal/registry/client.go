// Package registry talks to the package registry's HTTP surface:
// version listings and archive downloads.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/swiftos/birdy/internal/messages"
)

// DefaultTimeout and DefaultMaxDownloadBytes are used when no option overrides them.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultMaxDownloadBytes = int64(512 * 1024 * 1024) // 512 MiB

	defaultRetryBackoff = 250 * time.Millisecond
	maxVersionsBytes    = int64(4 * 1024 * 1024)
)

// StatusError reports a non-2xx registry response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf(messages.RegistryUnexpectedStatusFmt, e.URL, e.Status)
}

// IsNotFound reports whether err is a registry 404.
func IsNotFound(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound
}

// Client is a registry HTTP client. The zero value is not usable; call New.
type Client struct {
	baseURL          string
	httpClient       *http.Client
	userAgent        string
	retries          int
	retryBackoff     time.Duration
	maxDownloadBytes int64
	sleep            func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetries sets how many times a request is retried after a network error or 5xx.
// The default is zero.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithMaxDownloadBytes caps archive download size.
func WithMaxDownloadBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxDownloadBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New returns a client for the registry rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf(messages.RegistryInvalidURLFmt, baseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" || parsed.Host == "" {
		return nil, fmt.Errorf(messages.RegistryInvalidURLFmt, baseURL, errors.New(messages.RegistryURLSchemeRequired))
	}
	c := &Client{
		baseURL:          trimmed,
		httpClient:       &http.Client{Timeout: DefaultTimeout},
		userAgent:        "birdy",
		retryBackoff:     defaultRetryBackoff,
		maxDownloadBytes: DefaultMaxDownloadBytes,
		sleep:            time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized registry root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// VersionsURL returns the version listing endpoint for name.
func (c *Client) VersionsURL(name string) string {
	return c.baseURL + "/packages/" + url.PathEscape(name) + "/versions"
}

// ArchiveURL returns the archive endpoint for name at version.
func (c *Client) ArchiveURL(name string, version string) string {
	return c.baseURL + "/packages/" + url.PathEscape(name) + "/" + url.PathEscape(version)
}

// Versions returns every version the registry publishes for name, in registry order.
func (c *Client) Versions(ctx context.Context, name string) ([]string, error) {
	endpoint := c.VersionsURL(name)
	resp, _, err := c.get(ctx, endpoint, "application/json", 0)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var versions []string
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxVersionsBytes)).Decode(&versions); err != nil {
		return nil, fmt.Errorf(messages.RegistryDecodeVersionsFmt, endpoint, err)
	}
	return versions, nil
}

// Download streams the archive for name at version into dest and returns the byte count.
// dest is truncated before every attempt so a retried download never appends. Failed
// requests and interrupted bodies draw on the same retry budget.
func (c *Client) Download(ctx context.Context, name string, version string, dest *os.File) (int64, error) {
	endpoint := c.ArchiveURL(name, version)
	for attempt := 0; attempt <= c.retries; attempt++ {
		resp, used, err := c.get(ctx, endpoint, "application/octet-stream", attempt)
		if err != nil {
			return 0, err
		}
		attempt = used

		if err := dest.Truncate(0); err != nil {
			_ = resp.Body.Close()
			return 0, fmt.Errorf(messages.RegistryTruncateDestFmt, err)
		}
		if _, err := dest.Seek(0, io.SeekStart); err != nil {
			_ = resp.Body.Close()
			return 0, fmt.Errorf(messages.RegistryResetDestFmt, err)
		}

		n, copyErr := io.Copy(dest, io.LimitReader(resp.Body, c.maxDownloadBytes+1))
		_ = resp.Body.Close()
		if copyErr != nil {
			if c.shouldRetry(ctx, attempt, copyErr, 0) {
				c.sleep(c.retryBackoff)
				continue
			}
			return n, fmt.Errorf(messages.RegistryDownloadFailedFmt, endpoint, copyErr)
		}
		if n > c.maxDownloadBytes {
			return n, fmt.Errorf(messages.RegistryDownloadTooLargeFmt, endpoint, c.maxDownloadBytes)
		}
		return n, nil
	}
	return 0, fmt.Errorf(messages.RegistryDownloadFailedFmt, endpoint, errors.New(messages.RegistryRetryBudgetExhausted))
}

// get issues a GET and returns a 2xx response; the caller closes the body.
// Attempts are numbered from first, and the attempt that succeeded is returned so
// callers retrying the body can continue the same budget.
func (c *Client) get(ctx context.Context, endpoint string, accept string, first int) (*http.Response, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	for attempt := first; attempt <= c.retries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
		if err != nil {
			return nil, attempt, fmt.Errorf(messages.RegistryCreateRequestFmt, endpoint, err)
		}
		req.Header.Set("Accept", accept)
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if c.shouldRetry(ctx, attempt, err, 0) {
				c.sleep(c.retryBackoff)
				continue
			}
			if isTimeoutError(err) {
				return nil, attempt, fmt.Errorf(messages.RegistryTimeoutFmt, endpoint, err)
			}
			return nil, attempt, fmt.Errorf(messages.RegistryRequestFailedFmt, endpoint, err)
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return resp, attempt, nil
		}

		status := resp.StatusCode
		statusText := resp.Status
		_ = resp.Body.Close()
		if c.shouldRetry(ctx, attempt, nil, status) {
			c.sleep(c.retryBackoff)
			continue
		}
		return nil, attempt, &StatusError{URL: endpoint, StatusCode: status, Status: statusText}
	}
	return nil, c.retries, fmt.Errorf(messages.RegistryRequestFailedFmt, endpoint, errors.New(messages.RegistryRetryBudgetExhausted))
}

func (c *Client) shouldRetry(ctx context.Context, attempt int, err error, statusCode int) bool {
	if attempt >= c.retries {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return false
		}
		var netErr net.Error
		return errors.As(err, &netErr)
	}
	return statusCode >= 500 && statusCode <= 599
}

// isTimeoutError reports whether err is a network timeout.
func isTimeoutError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
