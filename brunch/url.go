package brunch

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/pevans/kimport/post"
)

const (
	// DefaultBaseURL serves rendered pages.
	DefaultBaseURL = "https://brunch.co.kr"
	// DefaultAPIBaseURL serves the JSON APIs.
	DefaultAPIBaseURL = "https://api.brunch.co.kr"
)

var (
	postURL     = regexp.MustCompile(`^https?://(?:m\.)?brunch\.co\.kr/@(@?[\w.\-]+)/(\d+)/?(?:[?#].*)?$`)
	authorURL   = regexp.MustCompile(`^https?://(?:m\.)?brunch\.co\.kr/@(@?[\w.\-]+)/?(?:[?#].*)?$`)
	keywordURL  = regexp.MustCompile(`^https?://(?:m\.)?brunch\.co\.kr/keyword/([^/?#]+)`)
	bookURL     = regexp.MustCompile(`^https?://(?:m\.)?brunch\.co\.kr/brunchbook/([\w\-]+)`)
	magazineURL = regexp.MustCompile(`^https?://(?:m\.)?brunch\.co\.kr/magazine/([\w\-]+)`)
)

// Parse maps a brunch URL to a target. ok is false for URLs that are not
// brunch pages the importer understands.
func Parse(raw string) (t post.Target, ok bool) {
	raw = strings.TrimSpace(raw)

	if m := postURL.FindStringSubmatch(raw); m != nil {
		ref := post.Ref{Platform: post.Brunch, AuthorID: m[1], PostID: m[2], URL: PostURL(DefaultBaseURL, m[1], m[2])}
		return post.Target{Platform: post.Brunch, Kind: post.KindPost, ID: m[2], SubID: m[1], Ref: ref}, true
	}
	if m := authorURL.FindStringSubmatch(raw); m != nil {
		return post.Target{Platform: post.Brunch, Kind: post.KindAuthor, ID: m[1]}, true
	}
	if m := keywordURL.FindStringSubmatch(raw); m != nil {
		kw, err := url.PathUnescape(m[1])
		if err != nil {
			return post.Target{}, false
		}
		kw = strings.TrimSpace(strings.ReplaceAll(kw, "_", " "))
		if kw == "" {
			return post.Target{}, false
		}
		return post.Target{Platform: post.Brunch, Kind: post.KindKeyword, ID: kw}, true
	}
	if m := bookURL.FindStringSubmatch(raw); m != nil {
		return post.Target{Platform: post.Brunch, Kind: post.KindBook, ID: m[1]}, true
	}
	if m := magazineURL.FindStringSubmatch(raw); m != nil {
		return post.Target{Platform: post.Brunch, Kind: post.KindMagazine, ID: m[1]}, true
	}
	return post.Target{}, false
}

// PostURL is the page of post no by handle.
func PostURL(base, handle, no string) string {
	return strings.TrimRight(base, "/") + "/@" + handle + "/" + no
}

// AuthorURL is the profile page of handle.
func AuthorURL(base, handle string) string {
	return strings.TrimRight(base, "/") + "/@" + handle
}

// KeywordURL is the keyword group page for kw.
func KeywordURL(base, kw string) string {
	return strings.TrimRight(base, "/") + "/keyword/" + url.PathEscape(strings.ReplaceAll(kw, " ", "_"))
}

// postLinkPattern matches post links on pages served from base and on the
// public site, which feed items always point at.
func postLinkPattern(base string) *regexp.Regexp {
	return regexp.MustCompile(`^(?:` + regexp.QuoteMeta(strings.TrimRight(base, "/")) + `|https?://(?:m\.)?brunch\.co\.kr)/@(?P<author>@?[\w.\-]+)/(?P<id>\d+)/?(?:[?#].*)?$`)
}
