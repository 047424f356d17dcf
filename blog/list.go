package blog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/pevans/kimport/discovery"
	"github.com/pevans/kimport/paginate"
	"github.com/pevans/kimport/post"
)

// postListResponse is the PostTitleListAsync payload. Every number is
// sent as a string and titles are URL-encoded.
type postListResponse struct {
	ResultCode    string     `json:"resultCode"`
	ResultMessage string     `json:"resultMessage"`
	PostList      []postItem `json:"postList"`
	CountPerPage  string     `json:"countPerPage"`
	TotalCount    string     `json:"totalCount"`
}

type postItem struct {
	LogNo            string `json:"logNo"`
	Title            string `json:"title"`
	CategoryNo       string `json:"categoryNo"`
	ParentCategoryNo string `json:"parentCategoryNo"`
	CommentCount     string `json:"commentCount"`
	AddDate          string `json:"addDate"`
}

// ListPosts returns a blog's posts, or one category's, newest first. When
// the title list API fails before yielding anything the blog's RSS feed
// and home page are read instead.
func (f *Fetcher) ListPosts(ctx context.Context, t post.Target, limit int) ([]post.Ref, error) {
	switch t.Kind {
	case post.KindPost:
		return []post.Ref{t.Ref}, nil
	case post.KindAuthor:
	default:
		return nil, fmt.Errorf("blog cannot list %s targets: %w", t.Kind, post.ErrInvalidURL)
	}

	id, category := t.ID, t.SubID
	w := paginate.Walker[postItem, int]{
		FetchPage: func(ctx context.Context, page int) (paginate.Page[postItem, int], error) {
			return f.listPage(ctx, id, category, page)
		},
		ID:       func(p postItem) string { return p.LogNo },
		MaxItems: limit,
		Pacer:    f.pacer,
	}
	items, err := w.Walk(ctx, 1)

	var refs []post.Ref
	for _, it := range items {
		refs = append(refs, ref(id, it.LogNo))
	}
	if err == nil || len(refs) > 0 {
		if err != nil {
			log.Printf("WARN: blog %s list stopped early: %v", id, err)
		}
		return refs, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	log.Printf("WARN: blog %s list API failed, reading feed: %v", id, err)
	fb := discovery.Fallback{
		Client:  f.client,
		Pattern: postLinkPattern(id),
		Feeds:   []string{RSSURL(f.rss, id)},
	}
	for _, l := range fb.Run(ctx, f.base+"/"+id, limit) {
		refs = append(refs, ref(id, l.ID))
	}
	return refs, nil
}

func (f *Fetcher) listPage(ctx context.Context, id, category string, page int) (paginate.Page[postItem, int], error) {
	var out paginate.Page[postItem, int]

	if category == "" {
		category = "0"
	}
	u := f.base + "/PostTitleListAsync.naver?" + url.Values{
		"blogId":           {id},
		"viewdate":         {""},
		"currentPage":      {strconv.Itoa(page)},
		"categoryNo":       {category},
		"parentCategoryNo": {""},
		"countPerPage":     {strconv.Itoa(listPageSize)},
	}.Encode()

	body, err := f.client.Get(ctx, u, f.base+"/"+id)
	if err != nil {
		return out, err
	}
	var resp postListResponse
	if err := json.Unmarshal(fixEscapes(body), &resp); err != nil {
		return out, &post.FetchError{URL: u, Err: fmt.Errorf("failed to decode post list: %w", err)}
	}
	if resp.ResultCode != "S" {
		return out, &post.FetchError{URL: u, Err: fmt.Errorf("post list result %q: %s", resp.ResultCode, resp.ResultMessage)}
	}

	out.Items = resp.PostList
	out.Next = page + 1
	total, _ := strconv.Atoi(resp.TotalCount)
	out.Last = len(resp.PostList) < listPageSize || page*listPageSize >= total
	return out, nil
}

// fixEscapes drops the backslash the title list API puts before single
// quotes, which is not a valid JSON escape.
func fixEscapes(body []byte) []byte {
	return []byte(strings.ReplaceAll(string(body), `\'`, `'`))
}

func ref(id, logNo string) post.Ref {
	return post.Ref{Platform: post.Blog, AuthorID: id, PostID: logNo, URL: PostURL(DefaultBaseURL, id, logNo)}
}
