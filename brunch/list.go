package brunch

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"github.com/pevans/kimport/discovery"
	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/paginate"
	"github.com/pevans/kimport/post"
)

// envelope is the wrapper around every brunch API response.
type envelope[T any] struct {
	Code int `json:"code"`
	Data T   `json:"data"`
}

type articleList struct {
	List []articleItem `json:"list"`
	More bool          `json:"more"`
}

type articleItem struct {
	No          int64  `json:"no"`
	PublishTime int64  `json:"publishTime"`
	UserID      string `json:"userId"`
	ProfileID   string `json:"profileId"`
	Title       string `json:"title"`
}

type bookData struct {
	Articles []articleItem `json:"articles"`
}

// ListPosts returns the posts of an author, keyword group, magazine or
// brunchbook, newest first. Author and keyword lists fall back to scraping
// the rendered page and its RSS feed when the API fails outright.
func (f *Fetcher) ListPosts(ctx context.Context, t post.Target, limit int) ([]post.Ref, error) {
	switch t.Kind {
	case post.KindPost:
		return []post.Ref{t.Ref}, nil
	case post.KindAuthor:
		endpoint := fmt.Sprintf("%s/v2/article/@%s", f.api, url.PathEscape(t.ID))
		return f.listWithFallback(ctx, endpoint, "publishTime", AuthorURL(f.base, t.ID), limit)
	case post.KindKeyword:
		endpoint := fmt.Sprintf("%s/v1/keyword/%s/article", f.api, url.PathEscape(t.ID))
		return f.listWithFallback(ctx, endpoint, "publishTime", KeywordURL(f.base, t.ID), limit)
	case post.KindMagazine:
		endpoint := fmt.Sprintf("%s/v1/magazine/%s/articles", f.api, url.PathEscape(t.ID))
		items, err := f.walkArticles(ctx, endpoint, "lastArticleNo", limit)
		if err != nil && len(items) == 0 {
			return nil, err
		}
		return f.refs(items), nil
	case post.KindBook:
		return f.listBook(ctx, t.ID, limit)
	default:
		return nil, fmt.Errorf("brunch cannot list %s targets: %w", t.Kind, post.ErrInvalidURL)
	}
}

func (f *Fetcher) listWithFallback(ctx context.Context, endpoint, cursorParam, pageURL string, limit int) ([]post.Ref, error) {
	items, err := f.walkArticles(ctx, endpoint, cursorParam, limit)
	if err == nil || len(items) > 0 {
		if err != nil {
			log.Printf("WARN: brunch list %s stopped early: %v", endpoint, err)
		}
		return f.refs(items), nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	log.Printf("WARN: brunch list %s failed, scraping %s: %v", endpoint, pageURL, err)
	fb := discovery.Fallback{Client: f.client, Pattern: postLinkPattern(f.base)}
	author := fb.Pattern.SubexpIndex("author")

	var refs []post.Ref
	for _, l := range fb.Run(ctx, pageURL, limit) {
		m := fb.Pattern.FindStringSubmatch(l.URL)
		if m == nil {
			continue
		}
		refs = append(refs, post.Ref{Platform: post.Brunch, AuthorID: m[author], PostID: l.ID, URL: PostURL(DefaultBaseURL, m[author], l.ID)})
	}
	return refs, nil
}

// walkArticles pages through a list endpoint whose cursor is the value of
// the last item's publish time (or number, for magazines).
func (f *Fetcher) walkArticles(ctx context.Context, endpoint, cursorParam string, limit int) ([]articleItem, error) {
	w := paginate.Walker[articleItem, string]{
		FetchPage: func(ctx context.Context, cursor string) (paginate.Page[articleItem, string], error) {
			var page paginate.Page[articleItem, string]

			u := endpoint
			if cursor != "" {
				u += "?" + url.Values{cursorParam: {cursor}}.Encode()
			}
			var env envelope[articleList]
			if err := f.getAPI(ctx, u, &env); err != nil {
				return page, err
			}

			page.Items = env.Data.List
			page.Last = !env.Data.More
			if n := len(page.Items); n > 0 {
				last := page.Items[n-1]
				if cursorParam == "publishTime" {
					page.Next = strconv.FormatInt(last.PublishTime, 10)
				} else {
					page.Next = strconv.FormatInt(last.No, 10)
				}
			}
			return page, nil
		},
		ID:       func(a articleItem) string { return a.ProfileID + "/" + strconv.FormatInt(a.No, 10) },
		MaxItems: limit,
		Pacer:    f.pacer,
	}
	return w.Walk(ctx, "")
}

func (f *Fetcher) listBook(ctx context.Context, id string, limit int) ([]post.Ref, error) {
	var env envelope[bookData]
	if err := f.getAPI(ctx, fmt.Sprintf("%s/v1/brunchbook/%s", f.api, url.PathEscape(id)), &env); err != nil {
		return nil, err
	}
	items := env.Data.Articles
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return f.refs(items), nil
}

// getAPI fetches a brunch API URL and checks the envelope code.
func (f *Fetcher) getAPI(ctx context.Context, u string, env interface{ code() int }) error {
	resp, err := f.client.Do(ctx, fetch.Request{URL: u, Referer: f.base + "/"})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, env); err != nil {
		return &post.FetchError{URL: u, Status: resp.Status, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if c := env.code(); c != 200 {
		return &post.FetchError{URL: u, Status: resp.Status, Err: fmt.Errorf("API code %d", c)}
	}
	return nil
}

func (e *envelope[T]) code() int { return e.Code }

func (f *Fetcher) refs(items []articleItem) []post.Ref {
	refs := make([]post.Ref, 0, len(items))
	for _, a := range items {
		no := strconv.FormatInt(a.No, 10)
		refs = append(refs, post.Ref{
			Platform: post.Brunch,
			AuthorID: a.ProfileID,
			PostID:   no,
			URL:      PostURL(DefaultBaseURL, a.ProfileID, no),
		})
	}
	return refs
}
