package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxListingBytes caps response body reads so a misbehaving server
	// cannot consume unbounded memory.
	maxListingBytes = 8 * 1024 * 1024
)

// HTTPClient implements Lister against the store's listing endpoint.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so credentials never leak to
// third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewHTTPClient creates a listing client for the given API base URL.
// If httpClient is nil, a client with a 30-second timeout and same-host
// redirect policy is used.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &HTTPClient{
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// Probe implements Lister using a depth-0 listing request.
func (c *HTTPClient) Probe(ctx context.Context, dir string) (string, error) {
	body, err := c.get(ctx, dir, 0)
	if err != nil {
		return "", err
	}

	etag := gjson.GetBytes(body, "etag").Str
	if etag == "" {
		return "", fmt.Errorf("listing response for %s has no etag", dir)
	}

	return etag, nil
}

// List implements Lister using a depth-1 listing request.
func (c *HTTPClient) List(ctx context.Context, dir string) (Listing, error) {
	body, err := c.get(ctx, dir, 1)
	if err != nil {
		return Listing{}, err
	}

	listing := Listing{
		Etag:          gjson.GetBytes(body, "etag").Str,
		RichWorkspace: gjson.GetBytes(body, "richWorkspace").Str,
	}

	if listing.Etag == "" {
		return Listing{}, fmt.Errorf("listing response for %s has no etag", dir)
	}

	for _, f := range gjson.GetBytes(body, "files").Array() {
		listing.Entries = append(listing.Entries, Entry{
			Name:        f.Get("name").Str,
			ID:          f.Get("id").Str,
			Etag:        f.Get("etag").Str,
			ContentType: f.Get("contentType").Str,
			Size:        f.Get("size").Int(),
			MTime:       f.Get("mtime").Int(),
			Directory:   f.Get("directory").Bool(),
			Favorite:    f.Get("favorite").Bool(),
		})
	}

	return listing, nil
}

// CreateFolder implements Lister. A 405 response means the folder
// already exists and is treated as success, matching MKCOL semantics.
func (c *HTTPClient) CreateFolder(ctx context.Context, path string) error {
	u := c.baseURL + "/mkcol?path=" + url.QueryEscape(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return fmt.Errorf("building mkcol request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("mkcol %s: %w", path, err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated, resp.StatusCode == http.StatusMethodNotAllowed:
		return nil
	case resp.StatusCode >= 500:
		return &TransientError{Err: fmt.Errorf("mkcol %s: server returned %d", path, resp.StatusCode)}
	default:
		return fmt.Errorf("mkcol %s: server returned %d", path, resp.StatusCode)
	}
}

func (c *HTTPClient) get(ctx context.Context, dir string, depth int) ([]byte, error) {
	u := fmt.Sprintf("%s/list?path=%s&depth=%d", c.baseURL, url.QueryEscape(dir), depth)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building listing request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("listing %s: %w", dir, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes))
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("reading listing response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("listing %s: server returned %d: %s", dir, resp.StatusCode, sanitizeBody(body))
		if resp.StatusCode >= 500 {
			return nil, &TransientError{Err: err}
		}

		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("listing %s: response is not valid JSON", dir)
	}

	return body, nil
}

// sanitizeBody truncates and sanitizes a response body for inclusion in
// error messages. Limits to 256 bytes and replaces non-printable
// characters to prevent log injection.
func sanitizeBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}
