package news

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/pevans/kimport/discovery"
	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/markdown"
	"github.com/pevans/kimport/post"
	"golang.org/x/net/html"
)

// Stages reported in post.NoContentError.Stage.
const (
	StageContainer   = "locate article body"
	StageReadability = "readability fallback"
)

var errorPageMarkers = []string{
	`class="error_msg`,
	`class="end_error`,
	"페이지를 찾을 수 없습니다",
	"기사가 삭제되었",
}

// FetchPost fetches one article page and assembles it. The body comes from
// the article container; pages in an unknown layout go through readability
// before the article is given up on.
func (f *Fetcher) FetchPost(ctx context.Context, ref post.Ref) (*post.Post, error) {
	pageURL := ArticleURL(f.article, ref.AuthorID, ref.PostID)
	publicURL := ArticleURL(DefaultArticleBaseURL, ref.AuthorID, ref.PostID)

	resp, err := f.client.Do(ctx, fetch.Request{URL: pageURL, Referer: f.list + "/", AllowNonOK: true})
	if err != nil {
		return nil, err
	}
	if err := checkSignatures(publicURL, resp); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &post.NoContentError{URL: publicURL, Stage: StageContainer, Err: err}
	}

	b, ok := extractBody(doc, f.normalize)
	if !ok || markdown.IsBlank(b.markdown) {
		b, err = f.readable(resp.Body, pageURL)
		if err != nil {
			return nil, &post.NoContentError{URL: publicURL, Stage: StageReadability, Err: err}
		}
	}

	d := post.Draft{Post: post.Post{
		Platform:     post.News,
		Subtitle:     b.summary,
		BodyMarkdown: b.markdown,
		BodyHTML:     b.html,
		SourcePostID: ref.PostID,
		SourceURL:    publicURL,
		AuthorHandle: ref.AuthorID,
		Videos:       b.videos,
		ThumbnailURL: b.firstImage,
	}}
	readMeta(doc, &d, f.normalize)

	return post.Assemble(d, f.now()), nil
}

func checkSignatures(pageURL string, resp *fetch.Response) error {
	page := resp.Text()
	for _, marker := range errorPageMarkers {
		if strings.Contains(page, marker) {
			return &post.BlockedError{URL: pageURL, Reason: post.ReasonErrorPage}
		}
	}
	switch {
	case resp.Status == http.StatusNotFound || resp.Status == http.StatusGone:
		return &post.BlockedError{URL: pageURL, Reason: post.ReasonErrorPage}
	case resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden:
		return &post.BlockedError{URL: pageURL, Reason: post.ReasonLoginRequired}
	case !resp.OK():
		return &post.FetchError{URL: pageURL, Status: resp.Status}
	case len(page) < minContentPageSize && !strings.Contains(page, "dic_area"):
		return &post.BlockedError{URL: pageURL, Reason: post.ReasonEmptyShell}
	}
	return nil
}

// readable runs readability over the whole page and converts what it
// finds. Pages are UTF-8, so the page is parsed directly rather than
// through readability's charset sniffing. readability rewrites the tree it
// is given, hence a fresh parse instead of the goquery document.
func (f *Fetcher) readable(page []byte, pageURL string) (body, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return body{}, err
	}
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return body{}, fmt.Errorf("failed to parse page: %w", err)
	}
	article, err := readability.FromDocument(root, u)
	if err != nil {
		return body{}, fmt.Errorf("failed to extract article: %w", err)
	}
	if strings.TrimSpace(article.TextContent) == "" {
		return body{}, fmt.Errorf("readability found no text")
	}

	md, err := markdown.Convert(article.Content, u.Scheme+"://"+u.Host)
	if err != nil {
		return body{}, err
	}
	if markdown.IsBlank(md) {
		return body{}, fmt.Errorf("readability content converted to nothing")
	}
	return body{markdown: md, html: article.Content, firstImage: f.normalize(article.Image)}, nil
}

// readMeta fills the draft from the article header and meta tags.
func readMeta(doc *goquery.Document, d *post.Draft, normalize func(string) string) {
	p := &d.Post

	p.Title = discovery.FirstText(doc.Selection, "#title_area", ".media_end_head_headline", "h2#articleTitle", ".end_tit")
	if p.Title == "" {
		p.Title = discovery.Meta(doc, "og:title")
	}

	stamp := doc.Find("._ARTICLE_DATE_TIME, .media_end_head_info_datestamp_time").First()
	if t, ok := discovery.ParseTime(stamp.AttrOr("data-date-time", ""), post.KST); ok {
		d.PublishedAt = t
	} else if t, ok := discovery.ParseTime(discovery.Meta(doc, "article:published_time", "og:article:published_time"), post.KST); ok {
		d.PublishedAt = t
	}

	press := doc.Find(".media_end_head_top_logo img").First().AttrOr("title", "")
	if press == "" {
		press = discovery.Meta(doc, "og:article:author", "twitter:creator")
	}
	reporter := discovery.FirstText(doc.Selection, ".media_end_head_journalist_name", ".byline_s", ".journalistcard_summary_name")
	reporter = strings.TrimSuffix(strings.TrimSpace(reporter), " 기자")
	switch {
	case reporter != "" && press != "":
		p.AuthorDisplayName = reporter + " (" + strings.SplitN(press, "|", 2)[0] + ")"
	case reporter != "":
		p.AuthorDisplayName = reporter
	default:
		p.AuthorDisplayName = strings.TrimSpace(strings.SplitN(press, "|", 2)[0])
	}

	doc.Find(".media_end_categorize_item").Each(func(_ int, s *goquery.Selection) {
		d.RawTags = append(d.RawTags, collapse(s.Text()))
	})

	if p.ThumbnailURL == "" {
		if img := discovery.Meta(doc, "og:image"); img != "" {
			p.ThumbnailURL = normalize(img)
		}
	}
	p.Excerpt = discovery.Meta(doc, "og:description", "description")
}
