// Package catalog is the concurrency-bounded, retrying client for the
// remote cover-image catalog. All lookups run behind a permit gate, retry
// transient failures with exponential backoff, and download images only
// from the trusted catalog CDN over HTTPS with redirects disabled.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/g1mliii/compact-games-sub000/internal/cache"
	"github.com/g1mliii/compact-games-sub000/internal/logging"
)

const (
	defaultBaseURL = "https://www.steamgriddb.com/api/v2"
	trustedDomain  = "steamgriddb.com"

	// Maximum accepted image size; bodies beyond this are rejected before
	// anything is persisted.
	maxImageBytes = 8 * 1024 * 1024

	requestTimeout = 10 * time.Second

	// Retry policy for transient failures.
	maxRetryAttempts = 3
	retryBaseDelay   = 250 * time.Millisecond
	retryMaxDelay    = 2 * time.Second
	retryJitterMax   = 200 * time.Millisecond

	defaultLookupCacheCapacity = 1024
)

var (
	// ErrUntrustedURL means a download target failed the host checks.
	ErrUntrustedURL = errors.New("catalog: untrusted download URL")
	// ErrTooLarge means a response body exceeded the image size cap.
	ErrTooLarge = errors.New("catalog: response exceeds size cap")
	// ErrNotImage means a download response was not an image content type.
	ErrNotImage = errors.New("catalog: response is not an image")
	// ErrAuthRejected means the credential was refused in both formats.
	ErrAuthRejected = errors.New("catalog: credential rejected")
	// ErrNoMatch means the catalog has no image for the game.
	ErrNoMatch = errors.New("catalog: no matching image")
)

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL       string
	MaxConcurrent int
	MaxQueued     int
	PermitWait    time.Duration
	Timeout       time.Duration
	CacheCapacity int
}

// Client looks up and downloads cover images from the remote catalog.
// Name→id, id→image-URL and platform-id→image-URL lookups are each cached
// in their own bounded LRU.
type Client struct {
	httpClient *http.Client
	baseURL    string
	gate       *permitGate

	idByName          *cache.LRU[string, int]
	imageByID         *cache.LRU[int, string]
	imageByPlatformID *cache.LRU[string, string]

	// Test seams, following the retry helper shape used for all outbound
	// requests.
	sleep     func(ctx context.Context, d time.Duration) error
	randInt63 func(n int64) int64

	trustedHost string
	// validate guards download URLs; a test seam so httptest servers
	// (plain HTTP on a loopback IP) can stand in for the CDN.
	validate func(string) error
}

// New creates a catalog client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.MaxQueued <= 0 {
		opts.MaxQueued = 32
	}
	if opts.PermitWait <= 0 {
		opts.PermitWait = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = requestTimeout
	}
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = defaultLookupCacheCapacity
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			// A redirect is treated as a non-success response, never
			// followed: a compromised redirect target could otherwise
			// bypass the host allowlist.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL:           strings.TrimRight(opts.BaseURL, "/"),
		gate:              newPermitGate(opts.MaxConcurrent, opts.MaxQueued, opts.PermitWait),
		idByName:          cache.NewLRU[string, int](opts.CacheCapacity),
		imageByID:         cache.NewLRU[int, string](opts.CacheCapacity),
		imageByPlatformID: cache.NewLRU[string, string](opts.CacheCapacity),
		sleep:             waitForBackoff,
		randInt63:         rand.Int63n,
		trustedHost:       trustedDomain,
	}
	c.validate = c.validateImageURL
	return c
}

// Lookup finds and downloads the best cover for a game. platformAppID may
// be empty; when present the single-step per-platform endpoint is tried
// before the two-step name search. The whole lookup runs under one permit.
func (c *Client) Lookup(ctx context.Context, name, platformAppID, credential string) ([]byte, error) {
	release, err := c.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	imageURL, err := c.findImageURL(ctx, name, platformAppID, credential)
	if err != nil {
		return nil, err
	}

	return c.download(ctx, imageURL, credential)
}

// ClearCaches drops all remote-lookup caches, forcing fresh catalog
// lookups on the next call.
func (c *Client) ClearCaches() {
	c.idByName.Clear()
	c.imageByID.Clear()
	c.imageByPlatformID.Clear()
}

// Trim shrinks each lookup cache to at most max entries.
func (c *Client) Trim(max int) {
	c.idByName.TrimTo(max)
	c.imageByID.TrimTo(max)
	c.imageByPlatformID.TrimTo(max)
}

func (c *Client) findImageURL(ctx context.Context, name, platformAppID, credential string) (string, error) {
	log := logging.FromContext(ctx)

	if platformAppID != "" {
		if imageURL, ok := c.imageByPlatformID.Get(platformAppID); ok {
			return imageURL, nil
		}
		imageURL, err := c.imageForEndpoint(ctx, "/grids/steam/"+url.PathEscape(platformAppID), credential)
		if err == nil {
			c.imageByPlatformID.Set(platformAppID, imageURL)
			return imageURL, nil
		}
		log.Debug().Err(err).Str("app_id", platformAppID).Msg("platform-id lookup failed, trying name search")
	}

	id, err := c.gameID(ctx, name, credential)
	if err != nil {
		return "", err
	}

	if imageURL, ok := c.imageByID.Get(id); ok {
		return imageURL, nil
	}
	imageURL, err := c.imageForEndpoint(ctx, fmt.Sprintf("/grids/game/%d", id), credential)
	if err != nil {
		return "", err
	}
	c.imageByID.Set(id, imageURL)
	return imageURL, nil
}

type searchResponse struct {
	Success bool `json:"success"`
	Data    []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"data"`
}

type gridImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type gridsResponse struct {
	Success bool        `json:"success"`
	Data    []gridImage `json:"data"`
}

// gameID resolves a display name to a catalog id via the search endpoint.
// An exact case-insensitive name match wins; otherwise the first candidate
// is taken.
func (c *Client) gameID(ctx context.Context, name, credential string) (int, error) {
	key := strings.ToLower(name)
	if id, ok := c.idByName.Get(key); ok {
		return id, nil
	}

	var result searchResponse
	if err := c.getJSON(ctx, "/search/autocomplete/"+url.PathEscape(name), credential, &result); err != nil {
		return 0, err
	}
	if len(result.Data) == 0 {
		return 0, ErrNoMatch
	}

	id := result.Data[0].ID
	for _, candidate := range result.Data {
		if strings.EqualFold(candidate.Name, name) {
			id = candidate.ID
			break
		}
	}

	c.idByName.Set(key, id)
	return id, nil
}

// imageForEndpoint fetches an image list and picks the best candidate.
func (c *Client) imageForEndpoint(ctx context.Context, path, credential string) (string, error) {
	var result gridsResponse
	if err := c.getJSON(ctx, path, credential, &result); err != nil {
		return "", err
	}
	img, ok := selectImage(result.Data)
	if !ok {
		return "", ErrNoMatch
	}
	return img.URL, nil
}

// selectImage prefers the tallest portrait-oriented candidate; with no
// portrait candidate the first entry wins.
func selectImage(images []gridImage) (gridImage, bool) {
	if len(images) == 0 {
		return gridImage{}, false
	}

	best := -1
	for i, img := range images {
		if img.Height <= img.Width {
			continue
		}
		if best == -1 || img.Height > images[best].Height {
			best = i
		}
	}
	if best == -1 {
		best = 0
	}
	return images[best], true
}

// getJSON performs an authenticated API request with retries. A credential
// rejected as given is retried once reformatted as a bearer header.
func (c *Client) getJSON(ctx context.Context, path, credential string, out any) error {
	resp, err := c.doAuthed(ctx, c.baseURL+path, credential)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog: API status %d for %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxImageBytes)).Decode(out); err != nil {
		return fmt.Errorf("catalog: decode response: %w", err)
	}
	return nil
}

// doAuthed issues the request with the credential as given and, if that is
// rejected with an authorization error, once more as a bearer header. Both
// attempts share the retry budget of a single logical request.
func (c *Client) doAuthed(ctx context.Context, rawURL, credential string) (*http.Response, error) {
	resp, err := c.doRequestWithRetry(ctx, rawURL, credential)
	if err != nil {
		return nil, err
	}

	if credential != "" && isAuthStatus(resp.StatusCode) && !strings.HasPrefix(credential, "Bearer ") {
		_ = resp.Body.Close()
		resp, err = c.doRequestWithRetry(ctx, rawURL, "Bearer "+credential)
		if err != nil {
			return nil, err
		}
		if isAuthStatus(resp.StatusCode) {
			_ = resp.Body.Close()
			return nil, ErrAuthRejected
		}
	}
	return resp, nil
}

func isAuthStatus(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// download fetches image bytes from a validated catalog URL, enforcing the
// content-type and size caps before returning anything.
func (c *Client) download(ctx context.Context, rawURL, credential string) ([]byte, error) {
	if err := c.validate(rawURL); err != nil {
		return nil, err
	}

	resp, err := c.doRequestWithRetry(ctx, rawURL, credential)
	if err != nil {
		return nil, fmt.Errorf("catalog: download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog: download status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %q", ErrNotImage, contentType)
	}
	if resp.ContentLength > maxImageBytes {
		return nil, fmt.Errorf("%w: declared %d bytes", ErrTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("catalog: read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, ErrNoMatch
	}
	return data, nil
}

// validateImageURL enforces the download allowlist: HTTPS only, no IP
// literals, no localhost, and only the trusted domain or its subdomains.
func (c *Client) validateImageURL(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUntrustedURL, err)
	}

	if parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUntrustedURL, parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrUntrustedURL)
	}
	if net.ParseIP(host) != nil {
		return fmt.Errorf("%w: IP literal %q", ErrUntrustedURL, host)
	}
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("%w: localhost", ErrUntrustedURL)
	}
	if lower != c.trustedHost && !strings.HasSuffix(lower, "."+c.trustedHost) {
		return fmt.Errorf("%w: host %q", ErrUntrustedURL, host)
	}
	return nil
}

// doRequestWithRetry retries transient failures with exponential backoff
// and jitter. Non-retryable failures and non-retryable statuses return
// immediately.
func (c *Client) doRequestWithRetry(ctx context.Context, rawURL, credential string) (*http.Response, error) {
	for attempt := 1; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
		if err != nil {
			return nil, fmt.Errorf("catalog: create request: %w", err)
		}
		req.Header.Set("User-Agent", "compact-games-covers")
		if credential != "" {
			req.Header.Set("Authorization", credential)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if !isRetryableRequestError(err) || attempt == maxRetryAttempts {
				return nil, err
			}
			if waitErr := c.sleep(ctx, retryDelayForAttempt(attempt, c.randInt63)); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		if !isRetryableStatus(resp.StatusCode) || attempt == maxRetryAttempts {
			return resp, nil
		}

		_ = resp.Body.Close()
		if waitErr := c.sleep(ctx, retryDelayForAttempt(attempt, c.randInt63)); waitErr != nil {
			return nil, waitErr
		}
	}
}

func isRetryableStatus(status int) bool {
	if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return true
	}
	return status >= http.StatusInternalServerError
}

func isRetryableRequestError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if isTransientSyscallError(opErr.Err) {
			return true
		}
	}

	return false
}

func isTransientSyscallError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.ECONNRESET, syscall.ECONNREFUSED,
		syscall.EADDRNOTAVAIL, syscall.ENETUNREACH,
		syscall.EHOSTUNREACH:
		return true
	}
	return false
}

func waitForBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryDelayForAttempt doubles the base delay per attempt, capped, plus a
// little jitter so synchronized callers spread out.
func retryDelayForAttempt(attempt int, randInt63 func(n int64) int64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay >= retryMaxDelay {
			delay = retryMaxDelay
			break
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}

	if randInt63 != nil && retryJitterMax > 0 {
		delay += time.Duration(randInt63(int64(retryJitterMax)))
	}

	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}

	return delay
}
