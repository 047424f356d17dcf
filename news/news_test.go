package news

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/post"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		url  string
		kind post.Kind
		id   string
		sub  string
	}{
		{"https://n.news.naver.com/article/001/0014681234", post.KindPost, "0014681234", "001"},
		{"https://n.news.naver.com/mnews/article/023/0003812345?sid=102", post.KindPost, "0003812345", "023"},
		{"https://m.news.naver.com/article/comment/001/0014681234", post.KindPost, "0014681234", "001"},
		{"https://news.naver.com/main/read.naver?mode=LSD&oid=001&aid=0014681234", post.KindPost, "0014681234", "001"},
		{"https://news.naver.com/main/read.nhn?oid=001&aid=0014681234", post.KindPost, "0014681234", "001"},
		{"https://media.naver.com/press/001", post.KindPress, "001", ""},
		{"https://media.naver.com/press/001/ranking", post.KindPress, "001", ""},
		{"https://news.naver.com/main/list.naver?mode=LPOD&oid=001", post.KindPress, "001", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			target, ok := Parse(tt.url)
			require.True(t, ok)
			assert.Equal(t, post.News, target.Platform)
			assert.Equal(t, tt.kind, target.Kind)
			assert.Equal(t, tt.id, target.ID)
			assert.Equal(t, tt.sub, target.SubID)
		})
	}

	for _, bad := range []string{
		"https://n.news.naver.com/",
		"https://news.naver.com/main/read.naver?oid=001",
		"https://news.daum.net/article/001/0014681234",
		"https://media.naver.com/",
	} {
		_, ok := Parse(bad)
		assert.False(t, ok, bad)
	}
}

var articlePage = `<html><head>
<meta property="og:title" content="og 제목">
<meta property="og:image" content="https://imgnews.pstatic.net/image/001/og.jpg?type=w647">
<meta property="og:description" content="기사 요약">
</head><body>
<div class="media_end_head_top_logo"><img title="연합뉴스"></div>
<h2 id="title_area"><span>정부, 새 정책 발표</span></h2>
<span class="media_end_head_info_datestamp_time _ARTICLE_DATE_TIME" data-date-time="2024-05-01 23:10:00">2024.05.01. 오후 11:10</span>
<em class="media_end_head_journalist_name">홍길동 기자</em>
<em class="media_end_categorize_item">정치</em><em class="media_end_categorize_item">사회</em>
<article id="dic_area" class="go_trans _article_content">
<strong class="media_end_summary">요약 첫 줄<br>요약 둘째 줄</strong><br><br>
첫 문단 첫 줄<br>첫 문단 <b>둘째</b> 줄<br><br>
<span class="end_photo_org"><div class="nbd_im_w"><img id="img1" data-src="https://imgnews.pstatic.net/image/001/photo.jpg?type=w647" src="data:image/gif;base64,R0"></div><em class="img_desc">사진 설명</em></span>
둘째 문단<br><br>
<table><tr><th>구분</th><th>값</th></tr><tr><td>가</td><td>1</td></tr></table>
<div class="vod_player_wrap _VOD_PLAYER_WRAP" data-video-id="V123" data-inkey="K9"></div>
<script>var x = 1;</script>
마지막 문단
</article>
` + strings.Repeat("<!-- padding -->", 150) + `</body></html>`

type testServer struct {
	*httptest.Server
	mux *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{mux: http.NewServeMux()}
	ts.Server = httptest.NewServer(ts.mux)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) fetcher() *Fetcher {
	return New(fetch.New(),
		WithArticleBaseURL(ts.URL),
		WithListBaseURL(ts.URL),
		WithAPIBaseURL(ts.URL),
		WithPageDelay(0),
		WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
}

func TestFetchPost(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/mnews/article/001/0014681234", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(articlePage))
	})

	p, err := ts.fetcher().FetchPost(context.Background(), post.Ref{Platform: post.News, AuthorID: "001", PostID: "0014681234"})
	require.NoError(t, err)

	assert.Equal(t, "정부, 새 정책 발표", p.Title)
	assert.Equal(t, "요약 첫 줄 요약 둘째 줄", p.Subtitle, "subtitle is a single line")
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, post.KST), p.PublishDate)
	assert.Equal(t, "홍길동 (연합뉴스)", p.AuthorDisplayName)
	assert.Equal(t, "001", p.AuthorHandle)
	assert.Equal(t, "https://n.news.naver.com/mnews/article/001/0014681234", p.SourceURL)
	assert.Equal(t, []string{"정치", "사회"}, p.Tags)
	assert.Equal(t, "https://imgnews.pstatic.net/image/001/photo.jpg", p.ThumbnailURL)
	assert.Equal(t, "기사 요약", p.Excerpt)

	md := p.BodyMarkdown
	fragments := []string{
		"첫 문단 첫 줄\n첫 문단 둘째 줄",
		"![사진 설명](https://imgnews.pstatic.net/image/001/photo.jpg)\n*사진 설명*",
		"둘째 문단",
		"| 구분",
		"[Video](https://tv.naver.com/embed/V123?inkey=K9)",
		"마지막 문단",
	}
	last := -1
	for _, frag := range fragments {
		idx := strings.Index(md, frag)
		require.GreaterOrEqual(t, idx, 0, "missing %q in\n%s", frag, md)
		assert.Greater(t, idx, last, "%q out of order", frag)
		last = idx
	}
	assert.NotContains(t, md, "요약 첫 줄")
	assert.NotContains(t, md, "var x")
	assert.Equal(t, 2, strings.Count(md, "사진 설명"), "caption only as alt text and caption line")
	assert.NotContains(t, md, "\n\n\n")

	require.Len(t, p.Videos, 1)
	assert.Equal(t, post.StreamOther, p.Videos[0].StreamType)
}

func TestFetchPost_ReadabilityFallback(t *testing.T) {
	ts := newTestServer(t)
	para := strings.Repeat("이 기사는 알려지지 않은 레이아웃으로 작성된 본문입니다. ", 20)
	ts.mux.HandleFunc("/mnews/article/001/0000000001", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>다른 레이아웃</title></head><body>
			<div class="nav"><a href="/">홈</a></div>
			<div class="story"><h1>다른 레이아웃</h1><p>%s</p><p>%s</p><p>%s</p></div>
			</body></html>`, para, para, para)
	})

	p, err := ts.fetcher().FetchPost(context.Background(), post.Ref{AuthorID: "001", PostID: "0000000001"})
	require.NoError(t, err)
	assert.Contains(t, p.BodyMarkdown, "알려지지 않은 레이아웃")
}

func TestFetchPost_Failures(t *testing.T) {
	big := "<html><body>" + strings.Repeat("<div></div>", 300) + "</body></html>"
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"deleted article", 200, `<div class="end_error">페이지를 찾을 수 없습니다</div>`, func(t *testing.T, err error) {
			var be *post.BlockedError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, post.ReasonErrorPage, be.Reason)
		}},
		{"not found", 404, big, func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, post.ErrBlocked))
		}},
		{"empty shell", 200, `<html><body></body></html>`, func(t *testing.T, err error) {
			var be *post.BlockedError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, post.ReasonEmptyShell, be.Reason)
		}},
		{"server error", 502, big, func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, post.ErrFetch))
		}},
		{"nothing readable", 200, big, func(t *testing.T, err error) {
			var ne *post.NoContentError
			require.True(t, errors.As(err, &ne))
			assert.Equal(t, StageReadability, ne.Stage)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.mux.HandleFunc("/mnews/article/001/0000000002", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := ts.fetcher().FetchPost(context.Background(), post.Ref{AuthorID: "001", PostID: "0000000002"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestListPosts_Press(t *testing.T) {
	ts := newTestServer(t)
	pages := map[string]string{
		"":  `<a href="/mnews/article/001/0000000300">a</a><a href="https://n.news.naver.com/article/001/0000000299">b</a><a href="/mnews/article/023/0000000999">other press</a>`,
		"2": `<a href="/main/read.naver?oid=001&aid=0000000298">c</a><a href="/mnews/article/001/0000000299">dup</a>`,
		"3": `<a href="/main/read.naver?oid=001&aid=0000000298">c</a>`,
	}
	hits := 0
	ts.mux.HandleFunc("/main/list.naver", func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "001", r.URL.Query().Get("oid"))
		w.Write([]byte(pages[r.URL.Query().Get("page")]))
	})

	refs, err := ts.fetcher().ListPosts(context.Background(), post.Target{Platform: post.News, Kind: post.KindPress, ID: "001"}, 0)
	require.NoError(t, err)

	var ids []string
	for _, r := range refs {
		ids = append(ids, r.PostID)
		assert.Equal(t, "001", r.AuthorID)
	}
	assert.Equal(t, []string{"0000000300", "0000000299", "0000000298"}, ids)
	assert.Equal(t, 3, hits, "stops at the first page with nothing new")
}

func TestListPosts_LimitKeepsNewest(t *testing.T) {
	ts := newTestServer(t)
	pages := map[string]string{
		"":  `<a href="/mnews/article/001/0000000297">a</a><a href="/mnews/article/001/0000000300">b</a>`,
		"2": `<a href="/mnews/article/001/0000000301">c</a>`,
	}
	ts.mux.HandleFunc("/main/list.naver", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pages[r.URL.Query().Get("page")]))
	})

	refs, err := ts.fetcher().ListPosts(context.Background(), post.Target{Platform: post.News, Kind: post.KindPress, ID: "001"}, 2)
	require.NoError(t, err)

	var ids []string
	for _, r := range refs {
		ids = append(ids, r.PostID)
	}
	assert.Equal(t, []string{"0000000301", "0000000300"}, ids)
}

func TestFetchComments(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/commentBox/cbox/web_naver_list_jsonp.json", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.Referer() != "https://n.news.naver.com/mnews/article/001/0014681234" {
			w.Write([]byte(jsonpCallback + `({"success":false,"code":"3999","message":"referer"});`))
			return
		}
		assert.Equal(t, "news001,0014681234", q.Get("objectId"))

		switch {
		case q.Get("parentCommentNo") == "10":
			w.Write([]byte(jsonpCallback + `({"success":true,"result":{"commentList":[
				{"commentNo":10,"contents":"부모","replyLevel":1},
				{"commentNo":11,"parentCommentNo":10,"replyLevel":2,"contents":"답글","maskedUserId":"abcd****","regTime":"2024-05-01T10:00:00+0900"}
			],"pageModel":{"page":1,"totalPages":1}}});`))
		case q.Get("page") == "1":
			w.Write([]byte(jsonpCallback + `({"success":true,"result":{"commentList":[
				{"commentNo":10,"contents":"부모","replyCount":1,"userName":"efgh****","regTime":"2024-05-01T09:30:00+0900"},
				{"commentNo":12,"contents":"","deleted":true}
			],"pageModel":{"page":1,"totalPages":2}}});`))
		case q.Get("page") == "2":
			w.Write([]byte(jsonpCallback + `({"success":true,"result":{"commentList":[
				{"commentNo":13,"contents":"둘째 페이지"}
			],"pageModel":{"page":2,"totalPages":2}}});`))
		}
	})

	nodes := ts.fetcher().FetchComments(context.Background(), &post.Post{AuthorHandle: "001", SourcePostID: "0014681234"})

	require.Len(t, nodes, 2)
	assert.Equal(t, "10", nodes[0].ID)
	assert.Equal(t, "2024-05-01T09:30:00", nodes[0].Timestamp)
	require.Len(t, nodes[0].Replies, 1)
	assert.Equal(t, "11", nodes[0].Replies[0].ID)
	assert.Equal(t, "10", nodes[0].Replies[0].ParentID)
	assert.Equal(t, "abcd****", nodes[0].Replies[0].AuthorID)
	assert.Equal(t, "13", nodes[1].ID)
	assert.Empty(t, nodes[1].Replies)
}

func TestFetchComments_RepliesSpanPages(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/commentBox/cbox/web_naver_list_jsonp.json", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("parentCommentNo") == "20" && q.Get("page") == "1":
			w.Write([]byte(jsonpCallback + `({"success":true,"result":{"commentList":[
				{"commentNo":20,"contents":"부모"},
				{"commentNo":21,"parentCommentNo":20,"contents":"첫 답글"}
			],"pageModel":{"page":1,"totalPages":2}}});`))
		case q.Get("parentCommentNo") == "20" && q.Get("page") == "2":
			w.Write([]byte(jsonpCallback + `({"success":true,"result":{"commentList":[
				{"commentNo":22,"parentCommentNo":20,"contents":"둘째 답글"}
			],"pageModel":{"page":2,"totalPages":2}}});`))
		default:
			w.Write([]byte(jsonpCallback + `({"success":true,"result":{"commentList":[
				{"commentNo":20,"contents":"부모","replyCount":2}
			],"pageModel":{"page":1,"totalPages":1}}});`))
		}
	})

	nodes := ts.fetcher().FetchComments(context.Background(), &post.Post{AuthorHandle: "001", SourcePostID: "0014681234"})

	require.Len(t, nodes, 1)
	require.Len(t, nodes[0].Replies, 2)
	assert.Equal(t, "21", nodes[0].Replies[0].ID)
	assert.Equal(t, "22", nodes[0].Replies[1].ID)
}

func TestUnwrapJSONP(t *testing.T) {
	got, err := unwrapJSONP([]byte(` cb({"a":"(x)"}); `))
	require.NoError(t, err)
	assert.Equal(t, `{"a":"(x)"}`, string(got))

	got, err = unwrapJSONP([]byte(`{"plain":true}`))
	require.NoError(t, err)
	assert.Equal(t, `{"plain":true}`, string(got))

	_, err = unwrapJSONP([]byte(`<html>`))
	assert.Error(t, err)
}
