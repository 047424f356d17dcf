package cafe

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"

	"github.com/pevans/kimport/discovery"
	"github.com/pevans/kimport/paginate"
	"github.com/pevans/kimport/post"
)

type listResponse struct {
	Message struct {
		Status string `json:"status"`
		Error  struct {
			Code string `json:"code"`
			Msg  string `json:"msg"`
		} `json:"error"`
		Result struct {
			ArticleList []listArticle `json:"articleList"`
			HasNext     bool          `json:"hasNext"`
		} `json:"result"`
	} `json:"message"`
}

type listArticle struct {
	ArticleID          int64  `json:"articleId"`
	Subject            string `json:"subject"`
	WriterNickname     string `json:"writerNickname"`
	WriteDateTimestamp int64  `json:"writeDateTimestamp"`
}

// ListPosts returns the articles of a board, newest first. When the list
// API fails before yielding anything the rendered board page is scraped
// instead.
func (f *Fetcher) ListPosts(ctx context.Context, t post.Target, limit int) ([]post.Ref, error) {
	switch t.Kind {
	case post.KindPost:
		club, err := f.clubID(ctx, t.Ref.AuthorID)
		if err != nil {
			return nil, err
		}
		return []post.Ref{{Platform: post.Cafe, AuthorID: club, PostID: t.Ref.PostID, URL: ArticleURL(DefaultBaseURL, club, t.Ref.PostID)}}, nil
	case post.KindBoard:
	default:
		return nil, fmt.Errorf("cafe cannot list %s targets: %w", t.Kind, post.ErrInvalidURL)
	}

	club, menu := t.ID, t.SubID
	w := paginate.Walker[listArticle, int]{
		FetchPage: func(ctx context.Context, page int) (paginate.Page[listArticle, int], error) {
			return f.listPage(ctx, club, menu, page)
		},
		ID:       func(a listArticle) string { return strconv.FormatInt(a.ArticleID, 10) },
		MaxItems: limit,
		Pacer:    f.pacer,
	}
	items, err := w.Walk(ctx, 1)

	var refs []post.Ref
	for _, a := range items {
		refs = append(refs, f.ref(club, strconv.FormatInt(a.ArticleID, 10)))
	}
	if err == nil || len(refs) > 0 {
		if err != nil {
			log.Printf("WARN: cafe board %s/%s stopped early: %v", club, menu, err)
		}
		return refs, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	pageURL := BoardURL(f.base, club, menu)
	log.Printf("WARN: cafe board list API failed, scraping %s: %v", pageURL, err)
	fb := discovery.Fallback{Client: f.client, Pattern: articleLinkPattern}
	for _, l := range fb.Run(ctx, pageURL, limit) {
		refs = append(refs, f.ref(club, l.ID))
	}
	return refs, nil
}

func (f *Fetcher) listPage(ctx context.Context, club, menu string, page int) (paginate.Page[listArticle, int], error) {
	var out paginate.Page[listArticle, int]

	u := f.api + "/cafe-web/cafe2/ArticleListV2dot1.json?" + url.Values{
		"search.clubid":    {club},
		"search.menuid":    {menu},
		"search.page":      {strconv.Itoa(page)},
		"search.perPage":   {strconv.Itoa(listPageSize)},
		"search.queryType": {"lastArticle"},
	}.Encode()

	var resp listResponse
	if err := f.client.GetJSON(ctx, u, f.base+"/", &resp); err != nil {
		return out, err
	}
	if resp.Message.Status != "200" {
		return out, &post.FetchError{URL: u, Err: fmt.Errorf("list status %s: %s %s", resp.Message.Status, resp.Message.Error.Code, resp.Message.Error.Msg)}
	}

	out.Items = resp.Message.Result.ArticleList
	out.Next = page + 1
	out.Last = !resp.Message.Result.HasNext
	return out, nil
}

func (f *Fetcher) ref(club, id string) post.Ref {
	return post.Ref{Platform: post.Cafe, AuthorID: club, PostID: id, URL: ArticleURL(DefaultBaseURL, club, id)}
}
