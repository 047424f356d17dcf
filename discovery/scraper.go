// Package discovery finds post links on rendered listing pages and in RSS
// feeds. Platform facades use it as the fallback when their list APIs fail.
package discovery

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

// Link is a post link found on a page or in a feed.
type Link struct {
	URL string
	ID  string

	// Key identifies the post across pages and feeds: the pattern's named
	// submatches joined with "/", e.g. "alice/12" for a pattern with
	// author and id groups. Ids alone are not unique when they are only
	// numbered per author.
	Key string
}

// ParseHTML parses an HTML page.
func ParseHTML(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// MatchLink resolves href against base and matches it against pattern. The
// id is the submatch named "id", or the first submatch when none is named.
func MatchLink(base *url.URL, href string, pattern *regexp.Regexp) (Link, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return Link{}, false
	}

	abs := href
	if base != nil {
		u, err := url.Parse(href)
		if err != nil {
			return Link{}, false
		}
		abs = base.ResolveReference(u).String()
	}

	m := pattern.FindStringSubmatch(abs)
	if m == nil {
		return Link{}, false
	}
	id := ""
	if i := pattern.SubexpIndex("id"); i > 0 {
		id = m[i]
	} else if len(m) > 1 {
		id = m[1]
	}
	if id == "" {
		return Link{}, false
	}
	return Link{URL: abs, ID: id, Key: linkKey(pattern, m, id)}, true
}

func linkKey(pattern *regexp.Regexp, m []string, id string) string {
	var parts []string
	for i, name := range pattern.SubexpNames() {
		if name != "" && m[i] != "" {
			parts = append(parts, m[i])
		}
	}
	if len(parts) == 0 {
		return id
	}
	return strings.Join(parts, "/")
}

// CollectLinks returns every anchor on doc whose resolved href matches
// pattern, once per post, in document order.
func CollectLinks(doc *goquery.Document, pageURL string, pattern *regexp.Regexp) []Link {
	base, _ := url.Parse(pageURL)

	var links []Link
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		l, ok := MatchLink(base, href, pattern)
		if !ok || seen[l.Key] {
			return
		}
		seen[l.Key] = true
		links = append(links, l)
	})
	return links
}

// CollectIDs returns the ids of CollectLinks.
func CollectIDs(doc *goquery.Document, pageURL string, pattern *regexp.Regexp) []string {
	links := CollectLinks(doc, pageURL, pattern)
	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.ID
	}
	return ids
}

// FeedLinks returns the absolute URLs of the RSS and Atom feeds a page
// advertises through <link rel="alternate">.
func FeedLinks(doc *goquery.Document, pageURL string) []string {
	base, _ := url.Parse(pageURL)

	var feeds []string
	seen := make(map[string]bool)
	doc.Find(`link[rel="alternate"]`).Each(func(_ int, s *goquery.Selection) {
		typ := strings.ToLower(s.AttrOr("type", ""))
		if !strings.Contains(typ, "rss") && !strings.Contains(typ, "atom") {
			return
		}
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return
		}
		if base != nil {
			if u, err := url.Parse(href); err == nil {
				href = base.ResolveReference(u).String()
			}
		}
		if !seen[href] {
			seen[href] = true
			feeds = append(feeds, href)
		}
	})
	return feeds
}

// FeedItemLinks parses an RSS or Atom document and returns its item links
// in feed order. gofeed handles both formats.
func FeedItemLinks(body []byte) ([]string, error) {
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	links := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			link = strings.TrimSpace(item.GUID)
		}
		if link != "" {
			links = append(links, link)
		}
	}
	return links, nil
}
