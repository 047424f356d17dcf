// Package brunch fetches posts, post lists and comments from brunch.co.kr,
// Kakao's personal publishing platform.
package brunch

import (
	"strings"
	"time"

	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/media"
	"github.com/pevans/kimport/paginate"
	"github.com/pevans/kimport/post"
)

const (
	defaultPageDelay   = 300 * time.Millisecond
	maxCommentPages    = 50
	minContentPageSize = 2000
)

// Fetcher is the brunch facade.
type Fetcher struct {
	client    *fetch.Client
	base      string
	api       string
	videos    *media.VideoResolver
	normalize func(string) string
	pacer     *paginate.Pacer
	now       func() time.Time
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBaseURL points page requests somewhere other than brunch.co.kr.
func WithBaseURL(u string) Option {
	return func(f *Fetcher) { f.base = strings.TrimRight(u, "/") }
}

// WithAPIBaseURL points API requests somewhere other than api.brunch.co.kr.
func WithAPIBaseURL(u string) Option {
	return func(f *Fetcher) { f.api = strings.TrimRight(u, "/") }
}

// WithVideoResolver replaces the Kakao TV resolver.
func WithVideoResolver(r *media.VideoResolver) Option {
	return func(f *Fetcher) { f.videos = r }
}

// WithImageMode selects how image URLs are rewritten.
func WithImageMode(mode media.ImageMode) Option {
	return func(f *Fetcher) { f.normalize = media.Normalizer(mode) }
}

// WithPageDelay sets the pause between list pages.
func WithPageDelay(d time.Duration) Option {
	return func(f *Fetcher) { f.pacer = paginate.NewPacer(d) }
}

// WithClock replaces time.Now, used when a post has no publish date.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// New creates a brunch Fetcher.
func New(client *fetch.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    client,
		base:      DefaultBaseURL,
		api:       DefaultAPIBaseURL,
		normalize: media.NormalizeImage,
		pacer:     paginate.NewPacer(defaultPageDelay),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.videos == nil {
		f.videos = &media.VideoResolver{Client: client}
	}
	return f
}

// Platform returns post.Brunch.
func (f *Fetcher) Platform() post.Platform {
	return post.Brunch
}

// Parse maps a brunch URL to a target.
func (f *Fetcher) Parse(raw string) (post.Target, bool) {
	return Parse(raw)
}
