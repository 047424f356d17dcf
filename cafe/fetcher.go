// Package cafe fetches articles, board lists and comments from Naver Cafe
// community boards.
package cafe

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/media"
	"github.com/pevans/kimport/paginate"
	"github.com/pevans/kimport/post"
)

const (
	defaultPageDelay = 500 * time.Millisecond
	listPageSize     = 50
	commentPageSize  = 100
	maxCommentPages  = 30
)

var clubIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`g_sClubId\s*=\s*["'](\d+)["']`),
	regexp.MustCompile(`["']?clubId["']?\s*[:=]\s*["']?(\d+)`),
	regexp.MustCompile(`[?&](?:search\.)?clubid=(\d+)`),
}

// Fetcher is the cafe facade.
type Fetcher struct {
	client    *fetch.Client
	base      string
	api       string
	normalize func(string) string
	pacer     *paginate.Pacer
	now       func() time.Time

	mu    sync.Mutex
	clubs map[string]string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithBaseURL points page requests somewhere other than cafe.naver.com.
func WithBaseURL(u string) Option {
	return func(f *Fetcher) { f.base = strings.TrimRight(u, "/") }
}

// WithAPIBaseURL points API requests somewhere other than apis.naver.com.
func WithAPIBaseURL(u string) Option {
	return func(f *Fetcher) { f.api = strings.TrimRight(u, "/") }
}

// WithImageMode selects how image URLs are rewritten.
func WithImageMode(mode media.ImageMode) Option {
	return func(f *Fetcher) { f.normalize = media.Normalizer(mode) }
}

// WithPageDelay sets the pause between list and comment pages.
func WithPageDelay(d time.Duration) Option {
	return func(f *Fetcher) { f.pacer = paginate.NewPacer(d) }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// New creates a cafe Fetcher. Members-only boards need a logged-in cookie
// registered on the client for naver.com.
func New(client *fetch.Client, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    client,
		base:      DefaultBaseURL,
		api:       DefaultAPIBaseURL,
		normalize: media.NormalizeImage,
		pacer:     paginate.NewPacer(defaultPageDelay),
		now:       time.Now,
		clubs:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Platform returns post.Cafe.
func (f *Fetcher) Platform() post.Platform {
	return post.Cafe
}

// Parse maps a cafe URL to a target.
func (f *Fetcher) Parse(raw string) (post.Target, bool) {
	return Parse(raw)
}

// clubID returns the numeric club id for a club id or cafe name. Names are
// resolved by scraping the cafe's home page once and cached.
func (f *Fetcher) clubID(ctx context.Context, club string) (string, error) {
	if numeric.MatchString(club) {
		return club, nil
	}

	f.mu.Lock()
	id, ok := f.clubs[club]
	f.mu.Unlock()
	if ok {
		return id, nil
	}

	home := f.base + "/" + club
	body, err := f.client.Get(ctx, home, f.base+"/")
	if err != nil {
		return "", fmt.Errorf("failed to resolve cafe %q: %w", club, err)
	}
	for _, re := range clubIDPatterns {
		if m := re.FindSubmatch(body); m != nil {
			id = string(m[1])
			break
		}
	}
	if id == "" {
		return "", &post.NoContentError{URL: home, Stage: "resolve club id"}
	}

	f.mu.Lock()
	f.clubs[club] = id
	f.mu.Unlock()
	return id, nil
}
