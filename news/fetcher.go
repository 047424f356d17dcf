// Package news fetches articles, press office listings and reader comments
// from Naver News.
package news

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
	maxListPages       = 20
	commentPageSize    = 100
	maxCommentPages    = 20
	minContentPageSize = 2000
)

// Fetcher is the news facade.
type Fetcher struct {
	client    *fetch.Client
	article   string
	list      string
	api       string
	normalize func(string) string
	pacer     *paginate.Pacer
	now       func() time.Time
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithArticleBaseURL points article requests somewhere other than
// n.news.naver.com.
func WithArticleBaseURL(u string) Option {
	return func(f *Fetcher) { f.article = strings.TrimRight(u, "/") }
}

// WithListBaseURL points press listing requests somewhere other than
// news.naver.com.
func WithListBaseURL(u string) Option {
	return func(f *Fetcher) { f.list = strings.TrimRight(u, "/") }
}

// WithAPIBaseURL points comment requests somewhere other than
// apis.naver.com.
func WithAPIBaseURL(u string) Option {
	return func(f *Fetcher) { f.api = strings.TrimRight(u, "/") }
}

// WithImageMode selects how image URLs are rewritten.
func WithImageMode(mode media.ImageMode) Option {
	return func(f *Fetcher) { f.normalize = media.Normalizer(mode) }
}

// WithPageDelay sets the pause between listing and comment pages.
func WithPageDelay(d time.Duration) Option {
	return func(f *Fetcher) { f.pacer = paginate.NewPacer(d) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// New creates a news Fetcher.
func New(client *fetch.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    client,
		article:   DefaultArticleBaseURL,
		list:      DefaultListBaseURL,
		api:       DefaultAPIBaseURL,
		normalize: media.NormalizeImage,
		pacer:     paginate.NewPacer(defaultPageDelay),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Platform returns post.News.
func (f *Fetcher) Platform() post.Platform {
	return post.News
}

// Parse maps a news URL to a target.
func (f *Fetcher) Parse(raw string) (post.Target, bool) {
	return Parse(raw)
}
