package cafe

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/pevans/kimport/paginate"
	"github.com/pevans/kimport/post"
)

type commentsResponse struct {
	Result struct {
		Comments struct {
			Items []comment `json:"items"`
		} `json:"comments"`
	} `json:"result"`
}

type comment struct {
	ID         int64  `json:"id"`
	RefID      int64  `json:"refId"`
	IsRef      bool   `json:"isRef"`
	Writer     writer `json:"writer"`
	Content    string `json:"content"`
	UpdateDate int64  `json:"updateDate"`
	IsDeleted  bool   `json:"isDeleted"`
	Image      *struct {
		URL string `json:"url"`
	} `json:"image"`
	Sticker *struct {
		URL string `json:"url"`
	} `json:"sticker"`
}

// FetchComments returns the article's comment tree. The API serves a flat
// list in which replies name their parent through refId; it is folded with
// post.BuildCommentTree. Failures are logged and give what was collected.
func (f *Fetcher) FetchComments(ctx context.Context, p *post.Post) []post.CommentNode {
	club, id := p.AuthorHandle, p.SourcePostID
	endpoint := fmt.Sprintf("%s/cafe-web/cafe-articleapi/v2/cafes/%s/articles/%s/comments/pages/", f.api, url.PathEscape(club), url.PathEscape(id))

	w := paginate.Walker[comment, int]{
		FetchPage: func(ctx context.Context, page int) (paginate.Page[comment, int], error) {
			var out paginate.Page[comment, int]
			u := endpoint + strconv.Itoa(page) + "?" + url.Values{
				"requestFrom": {"A"},
				"orderBy":     {"asc"},
				"perPage":     {strconv.Itoa(commentPageSize)},
			}.Encode()

			var resp commentsResponse
			if err := f.client.GetJSON(ctx, u, ArticleURL(f.base, club, id), &resp); err != nil {
				return out, err
			}
			out.Items = resp.Result.Comments.Items
			out.Next = page + 1
			out.Last = len(out.Items) < commentPageSize
			return out, nil
		},
		ID:       func(c comment) string { return strconv.FormatInt(c.ID, 10) },
		MaxPages: maxCommentPages,
		Pacer:    f.pacer,
	}

	items, err := w.Walk(ctx, 1)
	if err != nil {
		log.Printf("WARN: cafe comments for %s: %v", p.SourceURL, err)
	}

	flat := make([]post.CommentNode, 0, len(items))
	for _, c := range items {
		if node, ok := commentNode(c); ok {
			flat = append(flat, node)
		}
	}
	return post.BuildCommentTree(flat)
}

// commentNode maps one API comment. Deleted comments and comments with
// neither text nor media are dropped; their replies are promoted.
func commentNode(c comment) (post.CommentNode, bool) {
	if c.IsDeleted {
		return post.CommentNode{}, false
	}
	content := strings.TrimSpace(c.Content)
	switch {
	case c.Image != nil && c.Image.URL != "":
		content = strings.TrimSpace(content + "\n![](" + c.Image.URL + ")")
	case c.Sticker != nil && c.Sticker.URL != "":
		content = strings.TrimSpace(content + "\n![sticker](" + c.Sticker.URL + ")")
	}
	if content == "" {
		return post.CommentNode{}, false
	}

	id := strconv.FormatInt(c.ID, 10)
	parent := ""
	if c.IsRef && c.RefID != 0 && c.RefID != c.ID {
		parent = strconv.FormatInt(c.RefID, 10)
	}
	return post.CommentNode{
		ID:                 id,
		AuthorID:           c.Writer.ID,
		AuthorName:         c.Writer.Nick,
		IsPrivilegedMember: c.Writer.Manager,
		Content:            content,
		Timestamp:          post.CommentTime(c.UpdateDate),
		ParentID:           parent,
	}, true
}
