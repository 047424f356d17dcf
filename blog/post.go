package blog

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/kimport/discovery"
	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/post"
	"github.com/pevans/kimport/smarteditor"
)

const minContentPageSize = 2000

var (
	relativeDate = regexp.MustCompile(`^(\d+)\s*(분|시간|일)\s*전$`)

	errorMarkers   = []string{`class="error_content`, "존재하지 않는 게시물", "삭제되었거나 존재하지 않는"}
	privateMarkers = []string{"이웃공개", "서로이웃", "비공개 포스트"}
)

type tagListResponse struct {
	TagList []struct {
		LogNo   string `json:"logno"`
		TagName string `json:"tagName"`
	} `json:"taglist"`
}

// FetchPost fetches a post's PostView page and assembles it. Tags come
// from the tag list API; failing to read them does not fail the post.
func (f *Fetcher) FetchPost(ctx context.Context, ref post.Ref) (*post.Post, error) {
	id, logNo := ref.AuthorID, ref.PostID
	pageURL := PostViewURL(f.base, id, logNo)
	publicURL := PostURL(DefaultBaseURL, id, logNo)

	resp, err := f.client.Do(ctx, fetch.Request{URL: pageURL, Referer: f.base + "/" + id, AllowNonOK: true})
	if err != nil {
		return nil, err
	}
	if err := checkSignatures(publicURL, resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &post.NoContentError{URL: publicURL, Stage: "parse page", Err: err}
	}

	res, err := smarteditor.Extract(doc.Selection, smarteditor.Options{Normalize: f.normalize, BaseURL: f.base})
	if err != nil {
		return nil, &post.NoContentError{URL: publicURL, Stage: "extract body", Err: err}
	}

	d := post.Draft{Post: post.Post{
		Platform:     post.Blog,
		BodyMarkdown: res.Markdown,
		BodyHTML:     res.HTML,
		SourcePostID: logNo,
		SourceURL:    publicURL,
		AuthorHandle: id,
		Videos:       res.Videos,
		ThumbnailURL: res.FirstImage,
	}}
	f.readMeta(doc, &d)
	d.RawTags = append(d.RawTags, f.tags(ctx, id, logNo)...)

	return post.Assemble(d, f.now()), nil
}

func checkSignatures(pageURL string, resp *fetch.Response) error {
	page := resp.Text()
	hasBody := strings.Contains(page, "se-main-container") || strings.Contains(page, "postViewArea")

	if !hasBody {
		for _, marker := range privateMarkers {
			if strings.Contains(page, marker) {
				return &post.BlockedError{URL: pageURL, Reason: post.ReasonMembersOnly}
			}
		}
		for _, marker := range errorMarkers {
			if strings.Contains(page, marker) {
				return &post.BlockedError{URL: pageURL, Reason: post.ReasonErrorPage}
			}
		}
	}
	switch {
	case resp.Status == http.StatusNotFound:
		return &post.BlockedError{URL: pageURL, Reason: post.ReasonErrorPage}
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		return &post.BlockedError{URL: pageURL, Reason: post.ReasonLoginRequired}
	case !resp.OK():
		return &post.FetchError{URL: pageURL, Status: resp.Status}
	case len(page) < minContentPageSize && !hasBody:
		return &post.BlockedError{URL: pageURL, Reason: post.ReasonEmptyShell}
	}
	return nil
}

// readMeta reads the SmartEditor header, falling back to the older
// editor's header and the meta tags.
func (f *Fetcher) readMeta(doc *goquery.Document, d *post.Draft) {
	p := &d.Post

	p.Title = discovery.FirstText(doc.Selection, ".se-title-text", ".se_title .se_textarea", ".pcol1", ".htitle")
	if p.Title == "" {
		p.Title = discovery.Meta(doc, "og:title")
	}

	p.AuthorDisplayName = discovery.FirstText(doc.Selection, ".nick", ".writer .link")
	if p.AuthorDisplayName == "" {
		p.AuthorDisplayName = discovery.Meta(doc, "naverblog:nickname", "og:article:author")
	}

	if t, ok := f.parseDate(discovery.FirstText(doc.Selection, ".se_publishDate", ".date", "._postAddDate")); ok {
		d.PublishedAt = t
	}

	if category := discovery.FirstText(doc.Selection, ".blog2_series", ".pcol2 a", ".cate"); category != "" {
		d.RawTags = append(d.RawTags, category)
	}

	if p.ThumbnailURL == "" {
		if img := discovery.Meta(doc, "og:image"); img != "" {
			p.ThumbnailURL = f.normalize(img)
		}
	}
	p.Excerpt = discovery.Meta(doc, "og:description")
}

// parseDate reads the post header date: an absolute "2024. 5. 1. 14:03"
// in KST, or a relative "3시간 전" for recent posts.
func (f *Fetcher) parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "방금 전" {
		return f.now(), true
	}
	if m := relativeDate.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		unit := map[string]time.Duration{"분": time.Minute, "시간": time.Hour, "일": 24 * time.Hour}[m[2]]
		return f.now().Add(-time.Duration(n) * unit), true
	}
	return discovery.ParseTime(s, post.KST)
}

// tags reads the post's tags from the tag list API. Tag names arrive
// URL-encoded and comma-joined.
func (f *Fetcher) tags(ctx context.Context, id, logNo string) []string {
	u := f.base + "/BlogTagListInfo.naver?" + url.Values{
		"blogId":    {id},
		"logNoList": {logNo},
		"logType":   {"mylog"},
	}.Encode()

	var resp tagListResponse
	if err := f.client.GetJSON(ctx, u, PostViewURL(f.base, id, logNo), &resp); err != nil {
		log.Printf("WARN: blog tags for %s/%s: %v", id, logNo, err)
		return nil
	}

	var tags []string
	for _, entry := range resp.TagList {
		name, err := url.QueryUnescape(entry.TagName)
		if err != nil {
			log.Printf("WARN: blog tags for %s/%s: %v", id, logNo, fmt.Errorf("failed to decode %q: %w", entry.TagName, err))
			name = entry.TagName
		}
		tags = append(tags, strings.Split(name, ",")...)
	}
	return tags
}
