package news

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/pevans/kimport/post"
)

const (
	// DefaultArticleBaseURL serves article pages.
	DefaultArticleBaseURL = "https://n.news.naver.com"
	// DefaultListBaseURL serves press listing pages.
	DefaultListBaseURL = "https://news.naver.com"
	// DefaultAPIBaseURL serves the comment box API.
	DefaultAPIBaseURL = "https://apis.naver.com"
)

var (
	newsHost    = regexp.MustCompile(`^(?:n\.|m\.)?news\.naver\.com$`)
	mediaHost   = regexp.MustCompile(`^(?:m\.)?media\.naver\.com$`)
	articlePath = regexp.MustCompile(`^/(?:mnews/)?article/(?:comment/)?(\d{3,})/(\d{6,})/?$`)
	pressPath   = regexp.MustCompile(`^/press/(\d{3,})(?:/.*)?$`)
	digits      = regexp.MustCompile(`^\d+$`)
)

// Parse maps a news URL to a target: a single article (ID is the article
// id, SubID the press office id) or a press office listing.
func Parse(raw string) (post.Target, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return post.Target{}, false
	}
	host, q := u.Hostname(), u.Query()

	if mediaHost.MatchString(host) {
		if m := pressPath.FindStringSubmatch(u.Path); m != nil {
			return pressTarget(m[1]), true
		}
		return post.Target{}, false
	}
	if !newsHost.MatchString(host) {
		return post.Target{}, false
	}

	if m := articlePath.FindStringSubmatch(u.Path); m != nil {
		return articleTarget(m[1], m[2]), true
	}

	switch strings.TrimSuffix(strings.TrimSuffix(u.Path, ".naver"), ".nhn") {
	case "/main/read", "/main/ranking/read":
		oid, aid := q.Get("oid"), q.Get("aid")
		if digits.MatchString(oid) && digits.MatchString(aid) {
			return articleTarget(oid, aid), true
		}
	case "/main/list":
		if oid := q.Get("oid"); digits.MatchString(oid) {
			return pressTarget(oid), true
		}
	}
	return post.Target{}, false
}

func articleTarget(oid, aid string) post.Target {
	ref := post.Ref{Platform: post.News, AuthorID: oid, PostID: aid, URL: ArticleURL(DefaultArticleBaseURL, oid, aid)}
	return post.Target{Platform: post.News, Kind: post.KindPost, ID: aid, SubID: oid, Ref: ref}
}

func pressTarget(oid string) post.Target {
	return post.Target{Platform: post.News, Kind: post.KindPress, ID: oid}
}

// ArticleURL is the page of article aid by press office oid.
func ArticleURL(base, oid, aid string) string {
	return strings.TrimRight(base, "/") + "/mnews/article/" + oid + "/" + aid
}

// PressListURL is page n of a press office's article listing.
func PressListURL(base, oid string, page int) string {
	q := url.Values{
		"mode":     {"LPOD"},
		"mid":      {"sec"},
		"oid":      {oid},
		"listType": {"title"},
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	return strings.TrimRight(base, "/") + "/main/list.naver?" + q.Encode()
}

// articleLinkPattern matches article links of press office oid in both
// URL shapes.
func articleLinkPattern(oid string) *regexp.Regexp {
	o := regexp.QuoteMeta(oid)
	return regexp.MustCompile(`(?:/article/` + o + `/|[?&]oid=` + o + `&aid=)(?P<id>\d{6,})`)
}
