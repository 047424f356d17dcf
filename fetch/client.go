// Package fetch is the HTTP adapter every platform facade goes through. It
// attaches browser-like headers, platform cookies and a referer, returns
// non-2xx responses to callers that ask for them, and follows at most one
// redirect by hand.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/corpix/uarand"
	"github.com/pevans/kimport/post"
)

const (
	// DesktopUserAgent is sent unless the client is configured otherwise.
	DesktopUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// RandomUserAgent selects a random browser user agent per request.
	RandomUserAgent = "random"

	defaultTimeout  = 30 * time.Second
	maxBodyBytes    = 32 << 20
	acceptLanguages = "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7"
)

// ErrRedirectLoop is returned when the single redirect hop is itself a
// redirect.
var ErrRedirectLoop = errors.New("redirected more than once")

// Request describes one call. Method defaults to GET.
type Request struct {
	URL     string
	Method  string
	Header  http.Header
	Body    io.Reader
	Referer string
	Cookie  string

	// AllowNonOK returns non-2xx responses instead of failing, so the
	// caller can branch on the status.
	AllowNonOK bool
}

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Body   []byte
	Header http.Header

	// URL is the URL that produced this response, after any redirect.
	URL string
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Client issues requests for the platform facades. It is safe for
// concurrent use.
type Client struct {
	http      *http.Client
	userAgent string
	cookies   map[string]string
	verbose   bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its CheckRedirect is
// overridden.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		copied := *hc
		c.http = &copied
	}
}

// WithUserAgent sets the user agent. RandomUserAgent picks a new one per
// request; empty keeps the default.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithCookie sets the cookie header sent to every host ending in domain,
// e.g. "naver.com".
func WithCookie(domain, cookie string) Option {
	return func(c *Client) {
		if cookie != "" {
			c.cookies[strings.TrimPrefix(domain, ".")] = cookie
		}
	}
}

// WithVerbose logs every request and its status.
func WithVerbose(v bool) Option {
	return func(c *Client) {
		c.verbose = v
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: DesktopUserAgent,
		cookies:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// Do performs req. A 3xx with a Location header is followed exactly once;
// a second redirect fails with ErrRedirectLoop. Without AllowNonOK a
// non-2xx final status becomes a *post.FetchError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}

	if isRedirect(resp.Status) {
		loc := resp.Header.Get("Location")
		if loc == "" {
			return c.finish(req, resp)
		}
		next, err := resolve(resp.URL, loc)
		if err != nil {
			return nil, &post.FetchError{URL: req.URL, Status: resp.Status, Err: err}
		}

		hop := req
		hop.URL = next
		if req.Method != "" && req.Method != http.MethodGet && req.Method != http.MethodHead {
			hop.Method = http.MethodGet
			hop.Body = nil
		}
		resp, err = c.do(ctx, hop)
		if err != nil {
			return nil, err
		}
		if isRedirect(resp.Status) {
			return nil, &post.FetchError{URL: next, Status: resp.Status, Err: ErrRedirectLoop}
		}
	}

	return c.finish(req, resp)
}

func (c *Client) finish(req Request, resp *Response) (*Response, error) {
	if !resp.OK() && !req.AllowNonOK {
		return nil, &post.FetchError{URL: resp.URL, Status: resp.Status}
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	// Create request
	hr, err := http.NewRequestWithContext(ctx, method, req.URL, req.Body)
	if err != nil {
		return nil, &post.FetchError{URL: req.URL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	c.setHeaders(hr, req)

	if c.verbose {
		log.Printf("INFO: %s %s", method, req.URL)
	}

	// Perform the request
	resp, err := c.http.Do(hr)
	if err != nil {
		return nil, &post.FetchError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &post.FetchError{URL: req.URL, Status: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	if c.verbose {
		log.Printf("INFO: %s %s -> %d (%d bytes)", method, req.URL, resp.StatusCode, len(body))
	}

	return &Response{
		Status: resp.StatusCode,
		Body:   body,
		Header: resp.Header,
		URL:    req.URL,
	}, nil
}

func (c *Client) setHeaders(hr *http.Request, req Request) {
	ua := c.userAgent
	if ua == RandomUserAgent {
		ua = uarand.GetRandom()
	}
	hr.Header.Set("User-Agent", ua)
	hr.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	hr.Header.Set("Accept-Language", acceptLanguages)

	if req.Referer != "" {
		hr.Header.Set("Referer", req.Referer)
	}

	cookie := req.Cookie
	if cookie == "" {
		cookie = c.cookieFor(hr.URL.Hostname())
	}
	if cookie != "" {
		hr.Header.Set("Cookie", cookie)
	}

	for k, vs := range req.Header {
		hr.Header.Del(k)
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
}

func (c *Client) cookieFor(host string) string {
	best := ""
	cookie := ""
	for domain, v := range c.cookies {
		if (host == domain || strings.HasSuffix(host, "."+domain)) && len(domain) > len(best) {
			best, cookie = domain, v
		}
	}
	return cookie
}

// Get fetches rawURL and returns its body, failing on non-2xx.
func (c *Client) Get(ctx context.Context, rawURL, referer string) ([]byte, error) {
	resp, err := c.Do(ctx, Request{URL: rawURL, Referer: referer})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetJSON fetches rawURL and decodes the JSON body into v.
func (c *Client) GetJSON(ctx context.Context, rawURL, referer string, v any) error {
	resp, err := c.Do(ctx, Request{
		URL:     rawURL,
		Referer: referer,
		Header:  http.Header{"Accept": {"application/json, text/plain, */*"}},
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return &post.FetchError{URL: rawURL, Status: resp.Status, Err: fmt.Errorf("failed to decode JSON: %w", err)}
	}
	return nil
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400 && status != http.StatusNotModified
}

func resolve(base, loc string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	l, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("invalid Location %q: %w", loc, err)
	}
	return b.ResolveReference(l).String(), nil
}
