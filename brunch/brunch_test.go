package brunch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/markdown"
	"github.com/pevans/kimport/media"
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
		{"https://brunch.co.kr/@writer/12", post.KindPost, "12", "writer"},
		{"https://m.brunch.co.kr/@my.name/3?utm=x", post.KindPost, "3", "my.name"},
		{"https://brunch.co.kr/@writer", post.KindAuthor, "writer", ""},
		{"https://brunch.co.kr/@@aBc1/", post.KindAuthor, "@aBc1", ""},
		{"https://brunch.co.kr/keyword/%EC%97%AC%ED%96%89_%EC%97%90%EC%84%B8%EC%9D%B4", post.KindKeyword, "여행 에세이", ""},
		{"https://brunch.co.kr/brunchbook/sea-stories", post.KindBook, "sea-stories", ""},
		{"https://brunch.co.kr/magazine/daily", post.KindMagazine, "daily", ""},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			target, ok := Parse(tt.url)
			require.True(t, ok)
			assert.Equal(t, tt.kind, target.Kind)
			assert.Equal(t, tt.id, target.ID)
			assert.Equal(t, tt.sub, target.SubID)
		})
	}

	for _, bad := range []string{"https://example.com/@writer/1", "https://brunch.co.kr/", "not a url"} {
		_, ok := Parse(bad)
		assert.False(t, ok, bad)
	}

	target, _ := Parse("https://brunch.co.kr/@writer/12")
	assert.Equal(t, post.Ref{Platform: post.Brunch, AuthorID: "writer", PostID: "12", URL: "https://brunch.co.kr/@writer/12"}, target.Ref)
}

const legacyBody = `<div class="wrap_body">
<h3 class="wrap_item item_type_text">소제목</h3>
<p class="wrap_item item_type_text">첫 줄<br>같은 문단</p>
<p class="wrap_item item_type_text"><br></p>
<p class="wrap_item item_type_text">두 번째 문단</p>
<div class="wrap_item item_type_img"><img src="//img1.daumcdn.net/thumb/R1280x0/?fname=http%3A%2F%2Ft1.daumcdn.net%2Fa.jpg" data-src="//t1.daumcdn.net/real.jpg"><span class="text_caption">사진</span></div>
<blockquote class="wrap_item item_type_quotation">인용 첫 줄<br>인용 둘째 줄</blockquote>
<div class="wrap_item item_type_hr"><hr></div>
<div class="wrap_item item_type_gridGallery" data-app='[{"type":"img","url":"//t1.daumcdn.net/g1.jpg"},{"type":"img","url":"//t1.daumcdn.net/g2.jpg"}]'><img src="//ignored.jpg"><span class="text_caption">갤러리</span></div>
<div class="wrap_item item_type_gridGallery" data-app='not json'><img data-src="//t1.daumcdn.net/g3.jpg"></div>
<div class="wrap_item item_type_video" data-app='{"type":"video","id":"abc123","url":"https://tv.kakao.com/embed/player/cliplink/999"}'></div>
<div class="wrap_item item_type_video"><iframe src="//play-tv.kakao.com/embed/player/cliplink/777?service=brunch"></iframe></div>
<div class="wrap_item item_type_opengraph"><a href="https://example.com/x"><strong class="tit_og">Example</strong><span>desc</span></a></div>
<p class="wrap_item item_type_text">마지막</p>
</div>`

func parseDoc(t *testing.T, s string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	require.NoError(t, err)
	return doc
}

func TestExtractLegacy_OrderAndBlocks(t *testing.T) {
	b := extractLegacy(legacyItems(parseDoc(t, legacyBody)), media.NormalizeImage)
	md := b.markdown

	fragments := []string{
		"### 소제목",
		"첫 줄\n같은 문단\n\n두 번째 문단",
		"![사진](https://t1.daumcdn.net/real.jpg)\n*사진*",
		"> 인용 첫 줄\n> 인용 둘째 줄",
		"---",
		"![](https://t1.daumcdn.net/g1.jpg)\n![](https://t1.daumcdn.net/g2.jpg)\n*갤러리*",
		"![](https://t1.daumcdn.net/g3.jpg)",
		markdown.VideoToken("abc123"),
		markdown.VideoToken("777"),
		"[Example](https://example.com/x)",
		"마지막",
	}
	last := -1
	for _, f := range fragments {
		idx := strings.Index(md, f)
		require.GreaterOrEqual(t, idx, 0, "missing %q in\n%s", f, md)
		assert.Greater(t, idx, last, "%q out of order", f)
		last = idx
	}

	assert.NotContains(t, md, "ignored.jpg")
	assert.NotContains(t, md, "\n\n\n")
	assert.Equal(t, []string{"abc123", "777"}, b.videoIDs)
	assert.True(t, b.legacy)
}

func islandPage(content string) string {
	props, _ := json.Marshal(map[string]any{"article": map[string]string{"content": content}})
	return `<html><body><div id="app" data-props="` + html.EscapeString(string(props)) + `"></div></body></html>`
}

const islandContent = `{"body":[
{"type":"text","data":["첫 문장",{"type":"br"},{"type":"text","text":"둘째"}]},
{"type":"image","url":"//t1.daumcdn.net/i.jpg","caption":"캡션"},
{"type":"hr"},
{"type":"quote","data":["인용"]},
{"type":"heading","level":3,"data":["소제목"]},
{"type":"text","data":[]},
{"type":"text","data":["끝"]}]}`

func TestDecodeIsland(t *testing.T) {
	doc, err := decodeIsland(islandPage(islandContent))
	require.NoError(t, err)

	b := extractIsland(doc, media.NormalizeImage)
	assert.Equal(t, "첫 문장\n둘째\n\n![캡션](https://t1.daumcdn.net/i.jpg)\n*캡션*\n\n---\n\n> 인용\n\n### 소제목\n\n끝", b.markdown)
}

func TestDecodeIsland_Stages(t *testing.T) {
	tests := []struct {
		name  string
		page  string
		stage string
	}{
		{"no attribute", `<div>nothing</div>`, StageLocate},
		{"not json after decode", `<div data-props="hello"></div>`, StageEntityDecode},
		{"no content string", `<div data-props="{&#34;other&#34;:1}"></div>`, StageUnescape},
		{"bad escape", `<div data-props="{&#34;content&#34;:&#34;\q&#34;}"></div>`, StageUnescape},
		{"content not json", islandPage("{broken"), StageParse},
		{"content without body", islandPage(`{"title":"x"}`), StageParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeIsland(tt.page)
			require.Error(t, err)
			assert.Equal(t, tt.stage, stageOf(err))
		})
	}
}

// testServer fakes brunch pages, the API and the Kakao TV playback API on
// one server.
type testServer struct {
	*httptest.Server
	mux        *http.ServeMux
	authorHits atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{mux: http.NewServeMux()}
	ts.Server = httptest.NewServer(ts.mux)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) fetcher() *Fetcher {
	c := fetch.New()
	return New(c,
		WithBaseURL(ts.URL),
		WithAPIBaseURL(ts.URL+"/api"),
		WithVideoResolver(&media.VideoResolver{Client: c, BaseURL: ts.URL}),
		WithPageDelay(0),
		WithClock(func() time.Time { return time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC) }),
	)
}

const postPage = `<html><head>
<meta property="og:title" content="meta title">
<meta property="og:image" content="//t1.daumcdn.net/thumb.jpg">
<meta property="og:description" content="요약">
<meta property="article:published_time" content="2024-06-01T23:30:00+09:00">
<meta name="by" content="김작가">
<script>window.__INITIAL = {"userId":"@@aB3"};</script>
</head><body>
<h1 class="cover_title">[바다 이야기] 03화 파도</h1>
<p class="cover_sub_title">부제</p>
<div class="wrap_book"><a href="/brunchbook/sea"><span class="tit_book">바다 이야기</span></a></div>
<ul class="list_keyword"><li><a>여행</a></li><li><a>바다</a></li><li><a>여행</a></li></ul>
<div class="wrap_like"><span class="num_count">1,024</span></div>
<div class="wrap_comment"><span class="num_count">3</span></div>
` + legacyBody + `</body></html>`

func TestFetchPost(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/@writer/12", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(postPage))
	})
	ts.mux.HandleFunc("/katz/v4/ft/cliplink/{id}/readyNplay", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "abc123" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"token":"t"}`))
	})
	ts.mux.HandleFunc("/katz/v4/ft/cliplink/{id}/streams", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"videoLocations":[{"profile":"HIGH","url":"https://cdn/abc123.mp4"}]}`))
	})

	p, err := ts.fetcher().FetchPost(context.Background(), post.Ref{Platform: post.Brunch, AuthorID: "writer", PostID: "12"})
	require.NoError(t, err)

	assert.Equal(t, "파도", p.Title)
	assert.Equal(t, "부제", p.Subtitle)
	require.NotNil(t, p.Series)
	assert.Equal(t, "바다 이야기", p.Series.Title)
	assert.Equal(t, 3, p.Series.EpisodeNumber)
	assert.Equal(t, "https://brunch.co.kr/brunchbook/sea", p.Series.URL)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, post.KST), p.PublishDate)
	assert.Equal(t, []string{"여행", "바다"}, p.Tags)
	assert.Equal(t, "김작가", p.AuthorDisplayName)
	assert.Equal(t, "@@aB3", p.InternalAuthorID)
	assert.Equal(t, "writer", p.AuthorHandle)
	assert.Equal(t, "https://brunch.co.kr/@writer/12", p.SourceURL)
	require.NotNil(t, p.LikeCount)
	assert.Equal(t, 1024, *p.LikeCount)
	require.NotNil(t, p.CommentCount)
	assert.Equal(t, 3, *p.CommentCount)
	assert.Equal(t, "https://t1.daumcdn.net/thumb.jpg", p.ThumbnailURL)

	// One video resolved, one left as a link to its player
	assert.NotContains(t, p.BodyMarkdown, "{{video:")
	assert.Equal(t, 1, strings.Count(p.BodyMarkdown, "https://cdn/abc123.mp4"))
	assert.Contains(t, p.BodyMarkdown, "[Video]("+media.EmbedURL("777")+")")
	require.Len(t, p.Videos, 2)
	assert.True(t, p.Videos[0].Resolved())
	assert.False(t, p.Videos[1].Resolved())
}

func TestFetchPost_IslandWhenNoLegacy(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/@writer/5", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(islandPage(islandContent)))
	})

	p, err := ts.fetcher().FetchPost(context.Background(), post.Ref{AuthorID: "writer", PostID: "5"})
	require.NoError(t, err)
	assert.Contains(t, p.BodyMarkdown, "> 인용")
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, post.KST), p.PublishDate, "missing date defaults to today")
}

func TestFetchPost_FailureSignatures(t *testing.T) {
	bigPage := "<html><body>" + strings.Repeat("<p>filler</p>", 300) + "</body></html>"

	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"empty shell", 200, `<html><body><div id="root"></div></body></html>`, func(t *testing.T, err error) {
			var be *post.BlockedError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, post.ReasonEmptyShell, be.Reason)
		}},
		{"error page", 404, `<div class="wrap_error">삭제된 글</div>`, func(t *testing.T, err error) {
			var be *post.BlockedError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, post.ReasonErrorPage, be.Reason)
		}},
		{"login wall", 200, `<a href="https://accounts.kakao.com/login?continue=x">login</a>`, func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, post.ErrBlocked))
			assert.Contains(t, err.Error(), post.ReasonLoginRequired)
		}},
		{"server error", 500, bigPage, func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, post.ErrFetch))
			assert.False(t, errors.Is(err, post.ErrBlocked))
		}},
		{"no container", 200, bigPage, func(t *testing.T, err error) {
			var ne *post.NoContentError
			require.True(t, errors.As(err, &ne))
			assert.Equal(t, StageLocate, ne.Stage)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.mux.HandleFunc("/@writer/1", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			p, err := ts.fetcher().FetchPost(context.Background(), post.Ref{AuthorID: "writer", PostID: "1"})
			require.Error(t, err)
			assert.Nil(t, p)
			tt.check(t, err)
		})
	}
}

func TestListPosts_AuthorAPI(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/api/v2/article/@writer", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("publishTime") {
		case "":
			w.Write([]byte(`{"code":200,"data":{"more":true,"list":[
				{"no":30,"publishTime":3000,"profileId":"writer"},
				{"no":20,"publishTime":2000,"profileId":"writer"}]}}`))
		case "2000":
			w.Write([]byte(`{"code":200,"data":{"more":false,"list":[
				{"no":20,"publishTime":2000,"profileId":"writer"},
				{"no":10,"publishTime":1000,"profileId":"writer"}]}}`))
		default:
			t.Errorf("unexpected cursor %q", r.URL.RawQuery)
		}
	})

	refs, err := ts.fetcher().ListPosts(context.Background(), post.Target{Platform: post.Brunch, Kind: post.KindAuthor, ID: "writer"}, 0)
	require.NoError(t, err)

	var ids []string
	for _, r := range refs {
		ids = append(ids, r.PostID)
		assert.Equal(t, "writer", r.AuthorID)
	}
	assert.Equal(t, []string{"30", "20", "10"}, ids)
}

func TestListPosts_FallbackOnAPIFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/api/v2/article/@writer", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ts.mux.HandleFunc("/@writer", func(w http.ResponseWriter, r *http.Request) {
		ts.authorHits.Add(1)
		fmt.Fprintf(w, `<html><body><a href="/@writer/7">a</a><a href="/@writer/41">b</a><a href="%s/@writer/12">c</a></body></html>`, ts.URL)
	})

	refs, err := ts.fetcher().ListPosts(context.Background(), post.Target{Platform: post.Brunch, Kind: post.KindAuthor, ID: "writer"}, 0)
	require.NoError(t, err)

	var ids []string
	for _, r := range refs {
		ids = append(ids, r.PostID)
	}
	assert.Equal(t, []string{"41", "12", "7"}, ids)
	assert.Equal(t, int32(1), ts.authorHits.Load(), "fallback runs exactly once")
}

func TestListPosts_KeywordFallbackKeepsAuthors(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/api/v1/keyword/travel/article", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	ts.mux.HandleFunc("/keyword/travel", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a href="/@alice/12">a</a><a href="/@bob/12">b</a><a href="/@carol/7">c</a></body></html>`))
	})

	refs, err := ts.fetcher().ListPosts(context.Background(), post.Target{Platform: post.Brunch, Kind: post.KindKeyword, ID: "travel"}, 0)
	require.NoError(t, err)

	var got []string
	for _, r := range refs {
		got = append(got, r.AuthorID+"/"+r.PostID)
	}
	assert.Equal(t, []string{"alice/12", "bob/12", "carol/7"}, got)
}

func TestListPosts_APIEnvelopeFailureFallsBack(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/api/v2/article/@writer", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":500,"data":null}`))
	})
	ts.mux.HandleFunc("/@writer", func(w http.ResponseWriter, r *http.Request) {
		ts.authorHits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	refs, err := ts.fetcher().ListPosts(context.Background(), post.Target{Platform: post.Brunch, Kind: post.KindAuthor, ID: "writer"}, 0)
	require.NoError(t, err, "fallback failures are swallowed")
	assert.Empty(t, refs)
	assert.Equal(t, int32(1), ts.authorHits.Load())
}

func TestListPosts_Book(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/api/v1/brunchbook/sea", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"data":{"articles":[{"no":1,"profileId":"a"},{"no":2,"profileId":"a"},{"no":3,"profileId":"a"}]}}`))
	})

	refs, err := ts.fetcher().ListPosts(context.Background(), post.Target{Kind: post.KindBook, ID: "sea"}, 2)
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func TestFetchComments_ParentWithTwoReplies(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/api/v1/comment/@@aB3/12", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"data":{"more":false,"list":[
			{"no":100,"message":"좋은 글","createTime":1714521600000,"membership":true,
			 "author":{"userId":"@@x","profileId":"reader","name":"독자"},
			 "replies":[
				{"no":101,"message":"감사합니다","createTime":1714521660000,"parentNo":100,"author":{"profileId":"writer","name":"작가"}},
				{"no":102,"message":"","imageUrl":"https://img/s.png","parentNo":100,"author":{"profileId":"r2","name":"또"}},
				{"no":103,"message":"  ","parentNo":100,"author":{"profileId":"r3"}}
			 ]},
			{"no":200,"message":"","author":{"profileId":"ghost"}}
		]}}`))
	})

	nodes := ts.fetcher().FetchComments(context.Background(), &post.Post{InternalAuthorID: "@@aB3", SourcePostID: "12"})

	require.Len(t, nodes, 1)
	top := nodes[0]
	assert.Equal(t, "100", top.ID)
	assert.Empty(t, top.ParentID)
	assert.True(t, top.IsPrivilegedMember)
	assert.Equal(t, "reader", top.AuthorID)
	assert.Equal(t, "2024-05-01T09:00:00", top.Timestamp)
	require.Len(t, top.Replies, 2)
	for _, r := range top.Replies {
		assert.Equal(t, "100", r.ParentID)
	}
	assert.Contains(t, top.Replies[1].Content, "![](https://img/s.png)")
}

func TestFetchComments_FailureIsEmpty(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/api/v1/comment/@@aB3/12", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	f := ts.fetcher()
	assert.Empty(t, f.FetchComments(context.Background(), &post.Post{InternalAuthorID: "@@aB3", SourcePostID: "12"}))
	assert.Empty(t, f.FetchComments(context.Background(), &post.Post{SourcePostID: "12"}))
}
