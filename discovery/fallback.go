package discovery

import (
	"context"
	"log"
	"regexp"
	"sort"

	"github.com/pevans/kimport/paginate"
)

// Getter fetches a URL body. *fetch.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL, referer string) ([]byte, error)
}

// Fallback is the best-effort listing used when a platform's list API
// fails: post anchors on the rendered page unioned with the items of any
// RSS feed. It runs once and never returns an error.
type Fallback struct {
	Client Getter

	// Pattern matches post URLs; see MatchLink.
	Pattern *regexp.Regexp

	// Feeds are feed URLs to read in addition to those the page advertises.
	Feeds []string
}

// Run collects post links from pageURL and its feeds, sorted newest-first
// by numeric id. limit of zero keeps everything. Failures are logged and
// yield fewer or no links.
func (f Fallback) Run(ctx context.Context, pageURL string, limit int) []Link {
	var links []Link
	seen := make(map[string]bool)
	add := func(l Link) {
		if !seen[l.Key] {
			seen[l.Key] = true
			links = append(links, l)
		}
	}

	feeds := append([]string(nil), f.Feeds...)

	if pageURL != "" {
		body, err := f.Client.Get(ctx, pageURL, "")
		if err != nil {
			log.Printf("WARN: fallback page %s: %v", pageURL, err)
		} else if doc, err := ParseHTML(body); err != nil {
			log.Printf("WARN: fallback page %s: %v", pageURL, err)
		} else {
			for _, l := range CollectLinks(doc, pageURL, f.Pattern) {
				add(l)
			}
			feeds = append(feeds, FeedLinks(doc, pageURL)...)
		}
	}

	read := make(map[string]bool)
	for _, feedURL := range feeds {
		if read[feedURL] || ctx.Err() != nil {
			continue
		}
		read[feedURL] = true

		body, err := f.Client.Get(ctx, feedURL, pageURL)
		if err != nil {
			log.Printf("WARN: fallback feed %s: %v", feedURL, err)
			continue
		}
		items, err := FeedItemLinks(body)
		if err != nil {
			log.Printf("WARN: fallback feed %s: %v", feedURL, err)
			continue
		}
		for _, item := range items {
			if l, ok := MatchLink(nil, item, f.Pattern); ok {
				add(l)
			}
		}
	}

	return sortLinks(links, limit)
}

func sortLinks(links []Link, limit int) []Link {
	sort.SliceStable(links, func(i, j int) bool { return paginate.IDNewer(links[i].ID, links[j].ID) })
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	return links
}
