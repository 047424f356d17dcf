package vault

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pevans/kimport/post"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: create a vault in a temp dir with a fixed clock
func setupTestVault(t *testing.T) *Vault {
	v, err := New(filepath.Join(t.TempDir(), "notes"))
	require.NoError(t, err)
	v.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return v
}

func samplePost() *post.Post {
	likes := 7
	return &post.Post{
		Platform:          post.Brunch,
		Title:             "바다: 여름/겨울",
		PublishDate:       time.Date(2024, 5, 1, 0, 0, 0, 0, post.KST),
		BodyMarkdown:      "첫 문장\n\n![](https://img/a.jpg)\n",
		SourcePostID:      "12",
		SourceURL:         "https://brunch.co.kr/@writer/12",
		AuthorHandle:      "@writer",
		AuthorDisplayName: "작가",
		Tags:              []string{"여행", "바다"},
		Series:            &post.SeriesInfo{Title: "바다 일기", EpisodeNumber: 3},
		LikeCount:         &likes,
		Videos: []post.VideoRef{
			{EmbedURL: "https://tv.kakao.com/embed/1"},
			{EmbedURL: "https://tv.kakao.com/embed/2", DirectStreamURL: "https://cdn/2.mp4"},
		},
	}
}

func TestSave(t *testing.T) {
	v := setupTestVault(t)

	path, err := v.Save(Note{
		Post: samplePost(),
		Comments: []post.CommentNode{
			{ID: "1", AuthorName: "독자", Content: "좋아요\n\n정말로", Timestamp: "2024-05-01T10:00:00", Replies: []post.CommentNode{
				{ID: "2", AuthorName: "작가", IsPrivilegedMember: true, Content: "감사합니다", ParentID: "1"},
			}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01 바다 여름 겨울.md", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, "---\nplatform: brunch\n"), text)
	assert.Contains(t, text, "\n---\n\n첫 문장\n\n![](https://img/a.jpg)\n")
	assert.Contains(t, text, "## Comments\n\n- **독자** (2024-05-01T10:00:00)\n  좋아요\n  정말로\n  - **작가 ★**\n    감사합니다\n")

	fm, err := ParseFrontmatter(data)
	require.NoError(t, err)
	assert.Equal(t, post.Key{Platform: post.Brunch, PostID: "12", AuthorID: "@writer"}, fm.Key())
	assert.Equal(t, "2024-05-01", fm.Published)
	assert.Equal(t, "2025-03-01T12:00:00Z", fm.Imported)
	assert.Equal(t, []string{"여행", "바다"}, fm.Tags)
	assert.Equal(t, "바다 일기", fm.Series)
	assert.Equal(t, 3, fm.Episode)
	require.NotNil(t, fm.Likes)
	assert.Equal(t, 7, *fm.Likes)
	assert.Nil(t, fm.Comments)
	assert.Equal(t, []string{"https://tv.kakao.com/embed/1", "https://cdn/2.mp4"}, fm.Videos)
}

func TestSave_UniqueNames(t *testing.T) {
	v := setupTestVault(t)

	var wg sync.WaitGroup
	paths := make([]string, 5)
	for i := range paths {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := v.Save(Note{Post: samplePost()})
			assert.NoError(t, err)
			paths[i] = filepath.Base(p)
		}()
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{
		"2024-05-01 바다 여름 겨울.md",
		"2024-05-01 바다 여름 겨울 2.md",
		"2024-05-01 바다 여름 겨울 3.md",
		"2024-05-01 바다 여름 겨울 4.md",
		"2024-05-01 바다 여름 겨울 5.md",
	}, paths)
}

func TestNoteName(t *testing.T) {
	p := &post.Post{Platform: post.News, SourcePostID: "0001", PublishDate: time.Date(2024, 1, 2, 0, 0, 0, 0, post.KST)}
	assert.Equal(t, "2024-01-02 news 0001", NoteName(p))

	p.Title = strings.Repeat("가", 100)
	name := NoteName(p)
	assert.LessOrEqual(t, len(name), len("2024-01-02 ")+maxNameBytes)
	assert.True(t, strings.HasSuffix(name, "가"), "must not split a character")

	p.Title = "  [속보] 제목?  "
	assert.Equal(t, "2024-01-02 속보 제목", NoteName(p))
}

func TestWriteAsset(t *testing.T) {
	v := setupTestVault(t)

	link, err := v.WriteAsset("photo.jpg", []byte("one"))
	require.NoError(t, err)
	assert.Equal(t, "assets/photo.jpg", link)

	link, err = v.WriteAsset("photo.jpg", []byte("two"))
	require.NoError(t, err)
	assert.Equal(t, "assets/photo 2.jpg", link)

	data, err := os.ReadFile(filepath.Join(v.Dir(), "assets", "photo 2.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	link, err = v.WriteAsset("?.png", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "assets/image.png", link)
}

func TestIndex(t *testing.T) {
	v := setupTestVault(t)

	saved, err := v.Save(Note{Post: samplePost()})
	require.NoError(t, err)

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(v.Dir(), name), []byte(content), 0o644))
	}
	write("plain.md", "# no frontmatter\n")
	write("other.md", "---\ntitle: hand written\n---\nbody\n")
	write("broken.md", "---\nplatform: [unterminated\n---\n")
	write("notes.txt", "---\nplatform: cafe\npost_id: 1\n---\n")

	require.NoError(t, os.MkdirAll(filepath.Join(v.Dir(), "sub"), 0o755))
	write("sub/nested.md", "---\nplatform: cafe\npost_id: \"99\"\nauthor_id: \"10050146\"\n---\n")

	// Assets are never scanned.
	_, err = v.WriteAsset("fake.md", []byte("---\nplatform: news\npost_id: \"5\"\n---\n"))
	require.NoError(t, err)

	ix, err := v.Index()
	require.NoError(t, err)

	assert.Equal(t, 2, ix.Len())
	key := post.Key{Platform: post.Brunch, PostID: "12", AuthorID: "@writer"}
	assert.True(t, ix.Has(key))
	p, ok := ix.Path(key)
	require.True(t, ok)
	assert.Equal(t, saved, p)
	assert.True(t, ix.Has(post.Key{Platform: post.Cafe, PostID: "99", AuthorID: "10050146"}))
	assert.False(t, ix.Has(post.Key{Platform: post.Brunch, PostID: "12", AuthorID: "@other"}))

	require.Len(t, ix.Errors, 1)
	assert.Equal(t, "broken.md", ix.Errors[0].Filename)

	ix.Add(post.Key{Platform: post.News, PostID: "1", AuthorID: "001"}, "x.md")
	assert.Equal(t, 3, ix.Len())
}

func TestIndex_MissingVault(t *testing.T) {
	v := setupTestVault(t)
	require.NoError(t, os.RemoveAll(v.Dir()))

	_, err := v.Index()
	assert.Error(t, err)
}

func TestParseFrontmatter(t *testing.T) {
	_, err := ParseFrontmatter([]byte("no header"))
	assert.ErrorIs(t, err, ErrNoFrontmatter)

	_, err = ParseFrontmatter([]byte("---\nplatform: brunch\n"))
	assert.ErrorIs(t, err, ErrNoFrontmatter, "unterminated block")

	fm, err := ParseFrontmatter([]byte("---\r\nplatform: blog\r\npost_id: \"223\"\r\nauthor_id: kim\r\n---\r\nbody"))
	require.NoError(t, err)
	assert.Equal(t, post.Key{Platform: post.Blog, PostID: "223", AuthorID: "kim"}, fm.Key())

	fm, err = ParseFrontmatter([]byte("---\n---\nbody"))
	require.NoError(t, err)
	assert.Equal(t, post.Platform(""), fm.Platform)
}
