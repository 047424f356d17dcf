// Package blog fetches posts and post lists from Naver Blog. Blogs have no
// comment support here; their comment system needs a logged-in session.
package blog

import (
	"strings"
	"time"

	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/media"
	"github.com/pevans/kimport/paginate"
	"github.com/pevans/kimport/post"
)

const (
	defaultPageDelay = 300 * time.Millisecond
	listPageSize     = 30
)

// Fetcher is the blog facade.
type Fetcher struct {
	client    *fetch.Client
	base      string
	rss       string
	normalize func(string) string
	pacer     *paginate.Pacer
	now       func() time.Time
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBaseURL points page and API requests somewhere other than
// blog.naver.com.
func WithBaseURL(u string) Option {
	return func(f *Fetcher) { f.base = strings.TrimRight(u, "/") }
}

// WithRSSBaseURL points feed requests somewhere other than
// rss.blog.naver.com.
func WithRSSBaseURL(u string) Option {
	return func(f *Fetcher) { f.rss = strings.TrimRight(u, "/") }
}

// WithImageMode selects how image URLs are rewritten.
func WithImageMode(mode media.ImageMode) Option {
	return func(f *Fetcher) { f.normalize = media.Normalizer(mode) }
}

// WithPageDelay sets the pause between list pages.
func WithPageDelay(d time.Duration) Option {
	return func(f *Fetcher) { f.pacer = paginate.NewPacer(d) }
}

// WithClock replaces time.Now, also used to resolve relative dates such as
// "3시간 전".
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// New creates a blog Fetcher.
func New(client *fetch.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    client,
		base:      DefaultBaseURL,
		rss:       DefaultRSSBaseURL,
		normalize: media.NormalizeImage,
		pacer:     paginate.NewPacer(defaultPageDelay),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Platform returns post.Blog.
func (f *Fetcher) Platform() post.Platform {
	return post.Blog
}

// Parse maps a blog URL to a target.
func (f *Fetcher) Parse(raw string) (post.Target, bool) {
	return Parse(raw)
}
