// SPDX-License-Identifier: MPL-2.0

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/android-llm-paper/android-llm-paper/internal/retry"
	"github.com/android-llm-paper/android-llm-paper/internal/source"
)

const (
	// DefaultBaseURL is the public dump host.
	DefaultBaseURL = "https://dumps.tadiphone.dev"

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "romextract/dev"

	// DefaultMaxAttempts bounds the attempts per request.
	DefaultMaxAttempts = 3

	// DefaultBackoff is the delay before the first retry.
	DefaultBackoff = 500 * time.Millisecond

	// perPage is the tree API page size (GitLab's maximum).
	perPage = 100

	// maxPages bounds tree pagination to avoid runaway requests.
	maxPages = 50

	// maxJSONResponseBytes is the upper bound on a tree API response (10 MB).
	maxJSONResponseBytes = 10 << 20

	partSuffix = ".part"
)

// ErrInvalidCoordinates is returned when a dump coordinate is empty or not a
// single path segment.
var ErrInvalidCoordinates = errors.New("invalid dump coordinates")

type (
	// Coordinates locate one dump: vendor group, product repository and branch.
	Coordinates struct {
		OEM     string
		Product string
		Branch  string
	}

	// StatusError is returned for unexpected HTTP responses.
	StatusError struct {
		URL        string
		StatusCode int
	}

	// Client is a source.Backend over a remote dump.
	Client struct {
		coords      Coordinates
		httpClient  *http.Client
		baseURL     string
		userAgent   string
		cacheDir    string
		ownCache    bool
		maxAttempts int
		backoff     time.Duration
		logger      *log.Logger
	}

	// Option configures a Client during construction.
	Option func(*Client)

	// treeItem is the JSON wire format of one repository tree entry.
	treeItem struct {
		Name string `json:"name"`
		Type string `json:"type"`
		Path string `json:"path"`
	}
)

// Error formats the status failure.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.URL, e.StatusCode)
}

// Validate checks that every coordinate is a usable path segment.
func (c Coordinates) Validate() error {
	for field, v := range map[string]string{"oem": c.OEM, "product": c.Product, "branch": c.Branch} {
		if v == "" || strings.ContainsAny(v, "/\\") || v == "." || v == ".." {
			return fmt.Errorf("%w: %s %q", ErrInvalidCoordinates, field, v)
		}
	}
	return nil
}

// String returns oem/product@branch.
func (c Coordinates) String() string {
	return c.OEM + "/" + c.Product + "@" + c.Branch
}

// WithHTTPClient sets a custom HTTP client, useful for tests or proxy configurations.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL overrides the dump host, primarily for test servers.
func WithBaseURL(base string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithCacheDir stores downloads below dir, keyed by virtual path. Files
// already complete in the cache are not downloaded again.
func WithCacheDir(dir string) Option {
	return func(c *Client) {
		c.cacheDir = dir
	}
}

// WithRetry sets the attempts per request and the initial backoff.
func WithRetry(maxAttempts int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxAttempts = maxAttempts
		c.backoff = backoff
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client for the dump at coords. Without WithCacheDir a
// private temporary cache is created and removed by Close.
func New(coords Coordinates, opts ...Option) (*Client, error) {
	if err := coords.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		coords:      coords,
		httpClient:  http.DefaultClient,
		baseURL:     DefaultBaseURL,
		userAgent:   DefaultUserAgent,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheDir == "" {
		dir, err := os.MkdirTemp("", "romextract-cache-*")
		if err != nil {
			return nil, fmt.Errorf("creating download cache: %w", err)
		}
		c.cacheDir = dir
		c.ownCache = true
	}
	return c, nil
}

// Close removes the private cache, if one was created.
func (c *Client) Close() error {
	if c.ownCache {
		return os.RemoveAll(c.cacheDir)
	}
	return nil
}

// RawURL returns the download URL of a virtual path.
func (c *Client) RawURL(virtualPath string) string {
	return fmt.Sprintf("%s/dumps/%s/%s/-/raw/%s%s",
		c.baseURL, url.PathEscape(c.coords.OEM), url.PathEscape(c.coords.Product),
		url.PathEscape(c.coords.Branch), escapePath(source.Clean(virtualPath)))
}

// TreeURL returns the first tree API page for a virtual directory.
func (c *Client) TreeURL(virtualDir string) string {
	project := url.PathEscape("dumps/" + c.coords.OEM + "/" + c.coords.Product)
	q := url.Values{}
	q.Set("path", strings.TrimPrefix(source.Clean(virtualDir), "/"))
	q.Set("ref", c.coords.Branch)
	q.Set("per_page", strconv.Itoa(perPage))
	return fmt.Sprintf("%s/api/v4/projects/%s/repository/tree?%s", c.baseURL, project, q.Encode())
}

// CachePath returns where a virtual path is stored locally.
func (c *Client) CachePath(virtualPath string) string {
	return filepath.Join(c.cacheDir, filepath.FromSlash(strings.TrimPrefix(source.Clean(virtualPath), "/")))
}

// Fetch downloads the file at virtualPath, or returns it from the cache.
func (c *Client) Fetch(ctx context.Context, virtualPath string) ([]byte, error) {
	dest, err := c.Download(ctx, virtualPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(dest)
}

// Download makes sure virtualPath is complete in the cache and returns its
// local path.
func (c *Client) Download(ctx context.Context, virtualPath string) (string, error) {
	vp := source.Clean(virtualPath)
	if vp == "/" {
		return "", &source.NotFoundError{Path: vp}
	}
	dest := c.CachePath(vp)
	if fi, err := os.Stat(dest); err == nil && fi.Mode().IsRegular() {
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	rawURL := c.RawURL(vp)
	c.logger.Debug("downloading", "path", vp, "url", redactURL(rawURL))
	part := dest + partSuffix
	err := retry.Do(ctx, c.maxAttempts, c.backoff, func(attempt int) (bool, error) {
		again, err := c.downloadOnce(ctx, rawURL, part)
		if err != nil && again {
			c.logger.Warn("download attempt failed", "path", vp, "attempt", attempt+1, "err", err)
		}
		return again, err
	})
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			_ = os.Remove(part)
			return "", &source.NotFoundError{Path: vp}
		}
		return "", fmt.Errorf("downloading %s: %w", vp, err)
	}
	if err := os.Rename(part, dest); err != nil {
		return "", fmt.Errorf("finalizing %s: %w", vp, err)
	}
	return dest, nil
}

// downloadOnce performs one request into part, resuming from its current
// size. The bool reports whether a failure is worth retrying.
func (c *Client) downloadOnce(ctx context.Context, rawURL, part string) (_ bool, err error) {
	var offset int64
	if fi, statErr := os.Stat(part); statErr == nil {
		offset = fi.Size()
	}

	req, err := c.newRequest(ctx, rawURL)
	if err != nil {
		return false, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	flags := os.O_CREATE | os.O_WRONLY
	switch resp.StatusCode {
	case http.StatusOK:
		flags |= os.O_TRUNC
	case http.StatusPartialContent:
		if start, ok := contentRangeStart(resp.Header.Get("Content-Range")); !ok || start != offset {
			_ = os.Remove(part)
			return true, fmt.Errorf("%s: content range %q does not resume at %d", redactURL(rawURL), resp.Header.Get("Content-Range"), offset)
		}
		flags |= os.O_APPEND
	case http.StatusNotFound:
		return false, &source.NotFoundError{Path: redactURL(rawURL)}
	case http.StatusRequestedRangeNotSatisfiable:
		_ = os.Remove(part)
		return true, &StatusError{URL: redactURL(rawURL), StatusCode: resp.StatusCode}
	default:
		return retryable(resp.StatusCode), &StatusError{URL: redactURL(rawURL), StatusCode: resp.StatusCode}
	}

	f, err := os.OpenFile(part, flags, 0o644)
	if err != nil {
		return false, fmt.Errorf("opening %s: %w", part, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	if _, err := io.Copy(f, resp.Body); err != nil {
		// The partial file is kept so the next attempt resumes.
		return ctx.Err() == nil, fmt.Errorf("writing %s: %w", part, err)
	}
	return false, nil
}

// List returns the entries of a virtual directory in the order the tree API
// returns them, following Link pagination.
func (c *Client) List(ctx context.Context, virtualDir string) ([]source.Listing, error) {
	var all []source.Listing
	pageURL := c.TreeURL(virtualDir)
	for page := 0; page < maxPages && pageURL != ""; page++ {
		var (
			items []treeItem
			next  string
		)
		err := retry.Do(ctx, c.maxAttempts, c.backoff, func(int) (bool, error) {
			var again bool
			var err error
			items, next, again, err = c.listPage(ctx, pageURL)
			return again, err
		})
		if err != nil {
			if errors.Is(err, source.ErrNotFound) {
				return nil, &source.NotFoundError{Path: source.Clean(virtualDir)}
			}
			return nil, fmt.Errorf("listing %s: %w", source.Clean(virtualDir), err)
		}
		for _, it := range items {
			all = append(all, source.Listing{Path: "/" + strings.TrimPrefix(it.Path, "/"), IsDir: it.Type == "tree"})
		}
		pageURL = parseLinkHeader(next)
	}
	return all, nil
}

func (c *Client) listPage(ctx context.Context, pageURL string) (items []treeItem, link string, again bool, err error) {
	req, err := c.newRequest(ctx, pageURL)
	if err != nil {
		return nil, "", false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", ctx.Err() == nil, fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", false, &source.NotFoundError{Path: redactURL(pageURL)}
	case resp.StatusCode != http.StatusOK:
		return nil, "", retryable(resp.StatusCode), &StatusError{URL: redactURL(pageURL), StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&items); err != nil {
		return nil, "", false, fmt.Errorf("decoding tree: %w", err)
	}
	return items, resp.Header.Get("Link"), false, nil
}

func (c *Client) newRequest(ctx context.Context, reqURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

// escapePath escapes each segment of an absolute slash path.
func escapePath(p string) string {
	segs := strings.Split(p, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return path.Join("/", strings.Join(segs, "/"))
}

// contentRangeStart extracts the first byte position of a
// "bytes first-last/total" Content-Range header.
func contentRangeStart(header string) (int64, bool) {
	spec, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(spec, "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseLinkHeader extracts the URL for the "next" page from a Link header.
// Returns an empty string if no next page exists.
//
// Example header: <https://host/api/v4/...&page=2>; rel="next", <...>; rel="last"
func parseLinkHeader(header string) string {
	if header == "" {
		return ""
	}

	for part := range strings.SplitSeq(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}

		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}

	return ""
}

// redactURL strips query parameters and fragments from a URL for safe inclusion
// in error messages.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
