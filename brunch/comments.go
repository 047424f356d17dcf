package brunch

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

type commentList struct {
	List []commentRecord `json:"list"`
	More bool            `json:"more"`
}

type commentRecord struct {
	No         int64           `json:"no"`
	Message    string          `json:"message"`
	CreateTime int64           `json:"createTime"`
	ParentNo   *int64          `json:"parentNo"`
	Membership bool            `json:"membership"`
	ImageURL   string          `json:"imageUrl"`
	Sticker    *struct{}       `json:"sticker"`
	Author     commentAuthor   `json:"author"`
	Replies    []commentRecord `json:"replies"`
}

type commentAuthor struct {
	UserID    string `json:"userId"`
	ProfileID string `json:"profileId"`
	Name      string `json:"name"`
}

// FetchComments returns the post's comment tree. It needs the internal
// author id found on the post page. Failures are logged and give whatever
// was collected, possibly nothing.
func (f *Fetcher) FetchComments(ctx context.Context, p *post.Post) []post.CommentNode {
	if p.InternalAuthorID == "" {
		log.Printf("WARN: brunch comments for %s: no internal author id", p.SourceURL)
		return nil
	}
	endpoint := fmt.Sprintf("%s/v1/comment/%s/%s", f.api, url.PathEscape(p.InternalAuthorID), url.PathEscape(p.SourcePostID))

	w := paginate.Walker[commentRecord, string]{
		FetchPage: func(ctx context.Context, cursor string) (paginate.Page[commentRecord, string], error) {
			var page paginate.Page[commentRecord, string]
			u := endpoint
			if cursor != "" {
				u += "?" + url.Values{"lastCommentNo": {cursor}}.Encode()
			}
			var env envelope[commentList]
			if err := f.getAPI(ctx, u, &env); err != nil {
				return page, err
			}
			page.Items = env.Data.List
			page.Last = !env.Data.More
			if n := len(page.Items); n > 0 {
				page.Next = strconv.FormatInt(page.Items[n-1].No, 10)
			}
			return page, nil
		},
		ID:       func(c commentRecord) string { return strconv.FormatInt(c.No, 10) },
		MaxPages: maxCommentPages,
		Pacer:    f.pacer,
	}

	records, err := w.Walk(ctx, "")
	if err != nil {
		log.Printf("WARN: brunch comments for %s: %v", p.SourceURL, err)
	}

	var nodes []post.CommentNode
	for _, rec := range records {
		if node, ok := parseComment(rec, ""); ok {
			nodes = append(nodes, node)
		}
	}
	// Some threads arrive flat with parentNo set instead of nested.
	return post.BuildCommentTree(post.FlattenComments(nodes))
}

// parseComment maps a record and its replies. Records with neither text
// nor media are dropped.
func parseComment(rec commentRecord, parentID string) (post.CommentNode, bool) {
	content := strings.TrimSpace(rec.Message)
	switch {
	case rec.ImageURL != "":
		content = strings.TrimSpace(content + "\n![](" + rec.ImageURL + ")")
	case content == "" && rec.Sticker != nil:
		content = "(sticker)"
	}
	if content == "" {
		return post.CommentNode{}, false
	}

	id := strconv.FormatInt(rec.No, 10)
	if rec.ParentNo != nil && *rec.ParentNo != 0 && parentID == "" {
		parentID = strconv.FormatInt(*rec.ParentNo, 10)
	}

	authorID := rec.Author.ProfileID
	if authorID == "" {
		authorID = rec.Author.UserID
	}
	node := post.CommentNode{
		ID:                 id,
		AuthorID:           authorID,
		AuthorName:         rec.Author.Name,
		IsPrivilegedMember: rec.Membership,
		Content:            content,
		Timestamp:          post.CommentTime(rec.CreateTime),
		ParentID:           parentID,
	}
	for _, r := range rec.Replies {
		if reply, ok := parseComment(r, id); ok {
			node.Replies = append(node.Replies, reply)
		}
	}
	return node, true
}
