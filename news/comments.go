package news

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"

	"github.com/pevans/kimport/discovery"
	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/paginate"
	"github.com/pevans/kimport/post"
)

const jsonpCallback = "jQuery_kimport"

type cboxResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Result  struct {
		CommentList []cboxComment `json:"commentList"`
		PageModel   struct {
			Page       int `json:"page"`
			TotalPages int `json:"totalPages"`
		} `json:"pageModel"`
	} `json:"result"`
}

type cboxComment struct {
	CommentNo       int64  `json:"commentNo"`
	ParentCommentNo int64  `json:"parentCommentNo"`
	ReplyLevel      int    `json:"replyLevel"`
	ReplyCount      int    `json:"replyCount"`
	Contents        string `json:"contents"`
	UserName        string `json:"userName"`
	MaskedUserID    string `json:"maskedUserId"`
	RegTime         string `json:"regTime"`
	Deleted         bool   `json:"deleted"`
	Expose          *bool  `json:"expose"`
}

// FetchComments returns the article's comments with their replies. The
// comment box answers in JSONP and only to requests that carry the
// article page as referer. Replies are fetched per parent. Failures are
// logged and give what was collected.
func (f *Fetcher) FetchComments(ctx context.Context, p *post.Post) []post.CommentNode {
	oid, aid := p.AuthorHandle, p.SourcePostID
	referer := ArticleURL(DefaultArticleBaseURL, oid, aid)

	w := paginate.Walker[cboxComment, int]{
		FetchPage: func(ctx context.Context, page int) (paginate.Page[cboxComment, int], error) {
			var out paginate.Page[cboxComment, int]
			res, err := f.cbox(ctx, oid, aid, referer, url.Values{"page": {strconv.Itoa(page)}})
			if err != nil {
				return out, err
			}
			out.Items = res.Result.CommentList
			out.Next = page + 1
			out.Last = page >= res.Result.PageModel.TotalPages
			return out, nil
		},
		ID:       func(c cboxComment) string { return strconv.FormatInt(c.CommentNo, 10) },
		MaxPages: maxCommentPages,
		Pacer:    f.pacer,
	}

	top, err := w.Walk(ctx, 1)
	if err != nil {
		log.Printf("WARN: news comments for %s: %v", p.SourceURL, err)
	}

	var nodes []post.CommentNode
	for _, c := range top {
		node, ok := commentNode(c, "")
		if !ok {
			continue
		}
		if c.ReplyCount > 0 && ctx.Err() == nil {
			node.Replies = f.replies(ctx, oid, aid, referer, node.ID)
		}
		nodes = append(nodes, node)
	}
	return nodes
}

// replies pages through the replies to parent. The parent itself comes
// back with each page and is dropped.
func (f *Fetcher) replies(ctx context.Context, oid, aid, referer, parent string) []post.CommentNode {
	w := paginate.Walker[cboxComment, int]{
		FetchPage: func(ctx context.Context, page int) (paginate.Page[cboxComment, int], error) {
			var out paginate.Page[cboxComment, int]
			res, err := f.cbox(ctx, oid, aid, referer, url.Values{"parentCommentNo": {parent}, "page": {strconv.Itoa(page)}})
			if err != nil {
				return out, err
			}
			out.Items = res.Result.CommentList
			out.Next = page + 1
			out.Last = page >= res.Result.PageModel.TotalPages
			return out, nil
		},
		ID:       func(c cboxComment) string { return strconv.FormatInt(c.CommentNo, 10) },
		MaxPages: maxCommentPages,
		Pacer:    f.pacer,
	}

	list, err := w.Walk(ctx, 1)
	if err != nil {
		log.Printf("WARN: news replies to comment %s: %v", parent, err)
	}

	var replies []post.CommentNode
	for _, c := range list {
		if strconv.FormatInt(c.CommentNo, 10) == parent {
			continue
		}
		if node, ok := commentNode(c, parent); ok {
			replies = append(replies, node)
		}
	}
	return replies
}

// cbox calls the comment list endpoint and unwraps the JSONP callback.
func (f *Fetcher) cbox(ctx context.Context, oid, aid, referer string, extra url.Values) (*cboxResponse, error) {
	q := url.Values{
		"ticket":     {"news"},
		"templateId": {"default_society"},
		"pool":       {"cbox5"},
		"lang":       {"ko"},
		"country":    {"KR"},
		"objectId":   {"news" + oid + "," + aid},
		"pageSize":   {strconv.Itoa(commentPageSize)},
		"indexSize":  {"10"},
		"sort":       {"NEW"},
		"_callback":  {jsonpCallback},
	}
	for k, v := range extra {
		q[k] = v
	}
	u := f.api + "/commentBox/cbox/web_naver_list_jsonp.json?" + q.Encode()

	resp, err := f.client.Do(ctx, fetch.Request{URL: u, Referer: referer})
	if err != nil {
		return nil, err
	}
	payload, err := unwrapJSONP(resp.Body)
	if err != nil {
		return nil, &post.FetchError{URL: u, Status: resp.Status, Err: err}
	}
	var res cboxResponse
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, &post.FetchError{URL: u, Status: resp.Status, Err: fmt.Errorf("failed to decode comments: %w", err)}
	}
	if !res.Success {
		return nil, &post.FetchError{URL: u, Status: resp.Status, Err: fmt.Errorf("comment box code %s: %s", res.Code, res.Message)}
	}
	return &res, nil
}

// unwrapJSONP strips a "callback( ... );" wrapper. Plain JSON passes
// through.
func unwrapJSONP(body []byte) ([]byte, error) {
	s := strings.TrimSpace(string(body))
	if strings.HasPrefix(s, "{") {
		return []byte(s), nil
	}
	open := strings.IndexByte(s, '(')
	end := strings.LastIndexByte(s, ')')
	if open < 0 || end <= open {
		return nil, fmt.Errorf("response is not JSONP")
	}
	return []byte(s[open+1 : end]), nil
}

func commentNode(c cboxComment, parent string) (post.CommentNode, bool) {
	content := strings.TrimSpace(c.Contents)
	if c.Deleted || content == "" || (c.Expose != nil && !*c.Expose) {
		return post.CommentNode{}, false
	}
	ts := ""
	if t, ok := discovery.ParseTime(c.RegTime, post.KST); ok {
		ts = t.In(post.KST).Format(post.CommentTimeFormat)
	}
	author := c.MaskedUserID
	if author == "" {
		author = c.UserName
	}
	return post.CommentNode{
		ID:         strconv.FormatInt(c.CommentNo, 10),
		AuthorID:   author,
		AuthorName: c.UserName,
		Content:    content,
		Timestamp:  ts,
		ParentID:   parent,
	}, true
}
