package cafe

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/pevans/kimport/post"
)

const (
	// DefaultBaseURL serves rendered cafe pages.
	DefaultBaseURL = "https://cafe.naver.com"
	// DefaultAPIBaseURL serves the article and list APIs.
	DefaultAPIBaseURL = "https://apis.naver.com"
)

var (
	cafeHost = regexp.MustCompile(`^(?:m\.)?cafe\.naver\.com$`)

	spaArticle = regexp.MustCompile(`^/ca-fe/(?:web/)?cafes/(\d+)/articles/(\d+)/?$`)
	spaMenu    = regexp.MustCompile(`^/ca-fe/(?:web/)?cafes/(\d+)/menus/(\d+)/?$`)
	namedPost  = regexp.MustCompile(`^/([A-Za-z0-9_\-]+)/(\d+)/?$`)
	numeric    = regexp.MustCompile(`^\d+$`)
)

// Parse maps a cafe URL to a target. Posts addressed by cafe name rather
// than club id carry the name in Ref.AuthorID; the fetcher resolves it.
func Parse(raw string) (post.Target, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !cafeHost.MatchString(u.Hostname()) {
		return post.Target{}, false
	}
	q := u.Query()

	// The desktop frame wraps the real page in iframe_url.
	if inner := q.Get("iframe_url") + q.Get("iframe_url_utf8"); inner != "" {
		if decoded, err := url.QueryUnescape(inner); err == nil {
			inner = decoded
		}
		return Parse(DefaultBaseURL + "/" + strings.TrimLeft(inner, "/"))
	}

	path := u.Path
	switch {
	case strings.EqualFold(path, "/ArticleRead.nhn"):
		club, id := first(q, "clubid", "search.clubid"), q.Get("articleid")
		if numeric.MatchString(club) && numeric.MatchString(id) {
			return postTarget(club, id), true
		}
	case strings.EqualFold(path, "/ArticleList.nhn"):
		club, menu := first(q, "search.clubid", "clubid"), first(q, "search.menuid", "menuid")
		if numeric.MatchString(club) && numeric.MatchString(menu) {
			return post.Target{Platform: post.Cafe, Kind: post.KindBoard, ID: club, SubID: menu}, true
		}
	}

	if m := spaArticle.FindStringSubmatch(path); m != nil {
		return postTarget(m[1], m[2]), true
	}
	if m := spaMenu.FindStringSubmatch(path); m != nil {
		return post.Target{Platform: post.Cafe, Kind: post.KindBoard, ID: m[1], SubID: m[2]}, true
	}
	if m := namedPost.FindStringSubmatch(path); m != nil && m[1] != "ca-fe" {
		return postTarget(m[1], m[2]), true
	}
	return post.Target{}, false
}

func postTarget(club, id string) post.Target {
	ref := post.Ref{Platform: post.Cafe, AuthorID: club, PostID: id, URL: ArticleURL(DefaultBaseURL, club, id)}
	return post.Target{Platform: post.Cafe, Kind: post.KindPost, ID: id, SubID: club, Ref: ref}
}

func first(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// ArticleURL is the page of an article. club may be a club id or a cafe
// name.
func ArticleURL(base, club, id string) string {
	base = strings.TrimRight(base, "/")
	if numeric.MatchString(club) {
		return base + "/ca-fe/cafes/" + club + "/articles/" + id
	}
	return base + "/" + club + "/" + id
}

// BoardURL is the server-rendered article list of a board.
func BoardURL(base, club, menu string) string {
	return strings.TrimRight(base, "/") + "/ArticleList.nhn?" + url.Values{
		"search.clubid": {club},
		"search.menuid": {menu},
	}.Encode()
}

// articleLinkPattern matches article links in board pages in both the old
// and the current URL shapes.
var articleLinkPattern = regexp.MustCompile(`(?:[?&]articleid=|/articles/)(?P<id>\d+)`)
