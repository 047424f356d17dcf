package blog

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/pevans/kimport/post"
)

const (
	// DefaultBaseURL serves post pages and the list and tag APIs.
	DefaultBaseURL = "https://blog.naver.com"
	// DefaultRSSBaseURL serves every blog's RSS feed.
	DefaultRSSBaseURL = "https://rss.blog.naver.com"
)

var (
	blogHost  = regexp.MustCompile(`^(?:m\.)?blog\.naver\.com$`)
	blogID    = regexp.MustCompile(`^[A-Za-z0-9_\-]{2,}$`)
	postPath  = regexp.MustCompile(`^/([A-Za-z0-9_\-]+)/(\d+)/?$`)
	homePath  = regexp.MustCompile(`^/([A-Za-z0-9_\-]+)/?$`)
	logNumber = regexp.MustCompile(`^\d+$`)

	// pages that look like a blog id but are not
	reservedPaths = map[string]bool{
		"PostView.naver": true, "PostView.nhn": true,
		"PostList.naver": true, "PostList.nhn": true,
		"prologue": true, "BlogHome.naver": true,
	}
)

// Parse maps a blog URL to a target: a post (ID is the log number, SubID
// the blog id) or a blog's post list (ID is the blog id, SubID an optional
// category number).
func Parse(raw string) (post.Target, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !blogHost.MatchString(u.Hostname()) {
		return post.Target{}, false
	}
	q := u.Query()
	id := q.Get("blogId")

	switch u.Path {
	case "/PostView.naver", "/PostView.nhn":
		if blogID.MatchString(id) && logNumber.MatchString(q.Get("logNo")) {
			return postTarget(id, q.Get("logNo")), true
		}
		return post.Target{}, false
	case "/PostList.naver", "/PostList.nhn":
		if !blogID.MatchString(id) {
			return post.Target{}, false
		}
		category := q.Get("categoryNo")
		if category == "0" || !logNumber.MatchString(category) {
			category = ""
		}
		return post.Target{Platform: post.Blog, Kind: post.KindAuthor, ID: id, SubID: category}, true
	}

	if m := postPath.FindStringSubmatch(u.Path); m != nil && !reservedPaths[m[1]] {
		return postTarget(m[1], m[2]), true
	}
	if m := homePath.FindStringSubmatch(u.Path); m != nil && !reservedPaths[m[1]] && blogID.MatchString(m[1]) {
		return post.Target{Platform: post.Blog, Kind: post.KindAuthor, ID: m[1]}, true
	}
	return post.Target{}, false
}

func postTarget(id, logNo string) post.Target {
	ref := post.Ref{Platform: post.Blog, AuthorID: id, PostID: logNo, URL: PostURL(DefaultBaseURL, id, logNo)}
	return post.Target{Platform: post.Blog, Kind: post.KindPost, ID: logNo, SubID: id, Ref: ref}
}

// PostURL is the canonical page of a post.
func PostURL(base, id, logNo string) string {
	return strings.TrimRight(base, "/") + "/" + id + "/" + logNo
}

// PostViewURL is the frame-less page holding the post body.
func PostViewURL(base, id, logNo string) string {
	return strings.TrimRight(base, "/") + "/PostView.naver?" + url.Values{"blogId": {id}, "logNo": {logNo}}.Encode()
}

// RSSURL is the feed of blog id.
func RSSURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/" + id + ".xml"
}

// postLinkPattern matches post links of blog id in both URL shapes.
func postLinkPattern(id string) *regexp.Regexp {
	b := regexp.QuoteMeta(id)
	return regexp.MustCompile(`(?:/` + b + `/|[?&]blogId=` + b + `&logNo=)(?P<id>\d{6,})`)
}
