package cafe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/post"
	"github.com/pevans/kimport/smarteditor"
)

// articleResponse is the article API payload. Refusals come back as the
// same envelope with errorCode set and no article.
type articleResponse struct {
	Result struct {
		ErrorCode string   `json:"errorCode"`
		Reason    string   `json:"reason"`
		Message   string   `json:"message"`
		Article   *article `json:"article"`
		Tags      []string `json:"tags"`
		Cafe      struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"cafe"`
	} `json:"result"`
}

type article struct {
	ID           int64  `json:"id"`
	Subject      string `json:"subject"`
	Writer       writer `json:"writer"`
	WriteDate    int64  `json:"writeDate"`
	ReadCount    int    `json:"readCount"`
	CommentCount *int   `json:"commentCount"`
	LikeItCount  *int   `json:"likeItCount"`
	ContentHTML  string `json:"contentHtml"`
	IsReadable   *bool  `json:"isReadable"`
	Menu         struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"menu"`
}

type writer struct {
	ID        string `json:"id"`
	MemberKey string `json:"memberKey"`
	Nick      string `json:"nick"`
	Manager   bool   `json:"manager"`
}

// FetchPost fetches one article through the article API. Login walls,
// members-only articles and deleted articles fail with *post.BlockedError.
func (f *Fetcher) FetchPost(ctx context.Context, ref post.Ref) (*post.Post, error) {
	club, err := f.clubID(ctx, ref.AuthorID)
	if err != nil {
		return nil, err
	}
	pageURL := ArticleURL(DefaultBaseURL, club, ref.PostID)
	apiURL := fmt.Sprintf("%s/cafe-web/cafe-articleapi/v2.1/cafes/%s/articles/%s?%s", f.api, club, url.PathEscape(ref.PostID), url.Values{
		"useCafeId":   {"true"},
		"requestFrom": {"A"},
	}.Encode())

	resp, err := f.client.Do(ctx, fetch.Request{
		URL:        apiURL,
		Referer:    ArticleURL(f.base, club, ref.PostID),
		Header:     http.Header{"Accept": {"application/json, text/plain, */*"}},
		AllowNonOK: true,
	})
	if err != nil {
		return nil, err
	}

	var ar articleResponse
	decodeErr := json.Unmarshal(resp.Body, &ar)
	if err := refusal(pageURL, resp.Status, &ar); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, &post.FetchError{URL: apiURL, Status: resp.Status, Err: fmt.Errorf("failed to decode article: %w", decodeErr)}
	}
	a := ar.Result.Article

	res, err := smarteditor.ExtractHTML(a.ContentHTML, smarteditor.Options{Normalize: f.normalize, BaseURL: f.base})
	if errors.Is(err, smarteditor.ErrNoContainer) && strings.TrimSpace(a.ContentHTML) != "" {
		res, err = smarteditor.ExtractHTML(`<div id="tbody">`+a.ContentHTML+`</div>`, smarteditor.Options{Normalize: f.normalize, BaseURL: f.base})
	}
	if err != nil {
		return nil, &post.NoContentError{URL: pageURL, Stage: "extract body", Err: err}
	}
	if strings.TrimSpace(res.Markdown) == "" {
		return nil, &post.NoContentError{URL: pageURL, Stage: "extract body"}
	}

	d := post.Draft{
		Post: post.Post{
			Platform:          post.Cafe,
			Title:             a.Subject,
			BodyMarkdown:      res.Markdown,
			BodyHTML:          res.HTML,
			SourcePostID:      ref.PostID,
			SourceURL:         pageURL,
			AuthorHandle:      club,
			AuthorDisplayName: a.Writer.Nick,
			InternalAuthorID:  a.Writer.MemberKey,
			CommentCount:      a.CommentCount,
			LikeCount:         a.LikeItCount,
			Videos:            res.Videos,
			ThumbnailURL:      res.FirstImage,
		},
		RawTags: ar.Result.Tags,
	}
	if a.WriteDate > 0 {
		d.PublishedAt = time.UnixMilli(a.WriteDate)
	}
	if a.Menu.Name != "" {
		d.Series = &post.SeriesInfo{
			Title: a.Menu.Name,
			URL:   BoardURL(DefaultBaseURL, club, strconv.FormatInt(a.Menu.ID, 10)),
		}
	}

	return post.Assemble(d, f.now()), nil
}

// refusal maps the statuses and envelopes the article API uses instead of
// an article.
func refusal(pageURL string, status int, ar *articleResponse) error {
	r := ar.Result
	switch {
	case status == http.StatusUnauthorized:
		return &post.BlockedError{URL: pageURL, Reason: post.ReasonLoginRequired}
	case status == http.StatusForbidden:
		return &post.BlockedError{URL: pageURL, Reason: post.ReasonMembersOnly}
	case r.ErrorCode != "" || status == http.StatusNotFound:
		if membersOnly(r.Reason + " " + r.Message) {
			return &post.BlockedError{URL: pageURL, Reason: post.ReasonMembersOnly}
		}
		return &post.BlockedError{URL: pageURL, Reason: post.ReasonErrorPage}
	case status < 200 || status >= 300:
		return &post.FetchError{URL: pageURL, Status: status}
	case r.Article == nil:
		return &post.NoContentError{URL: pageURL, Stage: "read article envelope"}
	case r.Article.IsReadable != nil && !*r.Article.IsReadable:
		return &post.BlockedError{URL: pageURL, Reason: post.ReasonMembersOnly}
	}
	return nil
}

func membersOnly(msg string) bool {
	for _, marker := range []string{"멤버", "회원", "가입", "member"} {
		if strings.Contains(strings.ToLower(msg), marker) {
			return true
		}
	}
	return false
}
