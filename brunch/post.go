package brunch

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/kimport/discovery"
	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/media"
	"github.com/pevans/kimport/post"
)

var (
	internalUserID = regexp.MustCompile(`(?i)["']?user_?id["']?\s*[:=]\s*["'](@@[0-9A-Za-z]+)["']`)
	loginMarkers   = []string{"accounts.kakao.com/login", "/login?continue=", "class=\"wrap_login\""}
)

// FetchPost fetches one post page and assembles it. Error pages, login
// walls and near-empty shells fail with *post.BlockedError; a page with
// no extractable body fails with *post.NoContentError.
func (f *Fetcher) FetchPost(ctx context.Context, ref post.Ref) (*post.Post, error) {
	pageURL := PostURL(f.base, ref.AuthorID, ref.PostID)

	resp, err := f.client.Do(ctx, fetch.Request{URL: pageURL, Referer: f.base + "/", AllowNonOK: true})
	if err != nil {
		return nil, err
	}
	page := resp.Text()

	if err := checkSignatures(pageURL, resp, page); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &post.NoContentError{URL: pageURL, Stage: "parse page", Err: err}
	}

	b, err := f.extractBody(doc, page)
	if err != nil {
		return nil, &post.NoContentError{URL: pageURL, Stage: stageOf(err), Err: err}
	}

	var videos []post.VideoRef
	md := b.markdown
	if len(b.videoIDs) > 0 {
		videos = f.videos.ResolveAll(ctx, b.videoIDs, pageURL)
		md = media.Substitute(md, videos)
	}

	d := post.Draft{Post: post.Post{
		Platform:     post.Brunch,
		BodyMarkdown: md,
		BodyHTML:     b.html,
		SourcePostID: ref.PostID,
		SourceURL:    PostURL(DefaultBaseURL, ref.AuthorID, ref.PostID),
		AuthorHandle: ref.AuthorID,
		Videos:       videos,
	}}
	f.readMeta(doc, page, &d)

	return post.Assemble(d, f.now()), nil
}

// checkSignatures recognizes the responses brunch serves instead of a post.
func checkSignatures(pageURL string, resp *fetch.Response, page string) error {
	for _, marker := range loginMarkers {
		if strings.Contains(resp.URL, marker) || strings.Contains(page, marker) {
			return &post.BlockedError{URL: pageURL, Reason: post.ReasonLoginRequired}
		}
	}
	if strings.Contains(page, `class="wrap_error`) || strings.Contains(page, `class="error_page`) {
		return &post.BlockedError{URL: pageURL, Reason: post.ReasonErrorPage}
	}
	if !resp.OK() {
		if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden {
			return &post.BlockedError{URL: pageURL, Reason: post.ReasonLoginRequired}
		}
		return &post.FetchError{URL: pageURL, Status: resp.Status}
	}
	if len(page) < minContentPageSize && !strings.Contains(page, "wrap_body") && !strings.Contains(page, "data-props") {
		return &post.BlockedError{URL: pageURL, Reason: post.ReasonEmptyShell}
	}
	return nil
}

// extractBody prefers the server-rendered items and only decodes the JSON
// island when the page has none.
func (f *Fetcher) extractBody(doc *goquery.Document, page string) (body, error) {
	if items := legacyItems(doc); items.Length() > 0 {
		return extractLegacy(items, f.normalize), nil
	}
	island, err := decodeIsland(page)
	if err != nil {
		return body{}, err
	}
	return extractIsland(island, f.normalize), nil
}

func stageOf(err error) string {
	var ie *islandError
	if errors.As(err, &ie) {
		return ie.stage
	}
	return ""
}

// readMeta fills the draft's metadata from the page's meta tags and cover.
func (f *Fetcher) readMeta(doc *goquery.Document, page string, d *post.Draft) {
	p := &d.Post

	p.Title = discovery.FirstText(doc.Selection, ".cover_title", "h1.cover_title")
	if p.Title == "" {
		p.Title = discovery.Meta(doc, "og:title", "twitter:title")
	}
	p.Subtitle = discovery.FirstText(doc.Selection, ".cover_sub_title")

	if t, ok := discovery.ParseTime(discovery.Meta(doc, "article:published_time", "og:regDate"), post.KST); ok {
		d.PublishedAt = t
	}

	p.AuthorDisplayName = discovery.Meta(doc, "og:article:author", "article:author", "by")
	if p.AuthorDisplayName == "" {
		p.AuthorDisplayName = discovery.FirstText(doc.Selection, ".author_name", ".txt_name")
	}
	if m := internalUserID.FindStringSubmatch(page); m != nil {
		p.InternalAuthorID = m[1]
	}

	doc.Find(".list_keyword a, .wrap_keyword a").Each(func(_ int, a *goquery.Selection) {
		d.RawTags = append(d.RawTags, collapse(a.Text()))
	})

	if title := discovery.FirstText(doc.Selection, ".wrap_book .tit_book", ".link_magazine .tit_magazine"); title != "" {
		link := doc.Find(".wrap_book a[href], a.link_magazine[href]").First().AttrOr("href", "")
		if strings.HasPrefix(link, "/") {
			link = DefaultBaseURL + link
		}
		p.Series = &post.SeriesInfo{Title: title, URL: link}
	}

	if n, ok := discovery.Count(discovery.FirstText(doc.Selection, ".wrap_like .num_count", ".txt_like")); ok {
		p.LikeCount = &n
	}
	if n, ok := discovery.Count(discovery.FirstText(doc.Selection, ".wrap_comment .num_count", ".txt_comment")); ok {
		p.CommentCount = &n
	}

	if img := discovery.Meta(doc, "og:image"); img != "" {
		p.ThumbnailURL = f.normalize(img)
	}
	p.Excerpt = discovery.Meta(doc, "og:description", "description")
}
