package post

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssemble_CleansTitle(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		title       string
		series      *SeriesInfo
		wantTitle   string
		wantEpisode int
	}{
		{"episode marker", "03화 바다로 가는 길", &SeriesInfo{Title: "여행기"}, "바다로 가는 길", 3},
		{"series prefix then marker", "[여행기] 제12화 귀환", &SeriesInfo{Title: "여행기"}, "귀환", 12},
		{"ep prefix", "EP.7 Closing", &SeriesInfo{Title: "Notes"}, "Closing", 7},
		{"no series keeps number out", "#4 hello", nil, "hello", 0},
		{"plain title untouched", "그냥 제목", nil, "그냥 제목", 0},
		{"marker only keeps original", "3화", nil, "3화", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Assemble(Draft{Post: Post{Title: tt.title, Series: tt.series}}, now)
			assert.Equal(t, tt.wantTitle, p.Title)
			if tt.series != nil {
				require.NotNil(t, p.Series)
				assert.Equal(t, tt.wantEpisode, p.Series.EpisodeNumber)
				assert.Equal(t, 0, tt.series.EpisodeNumber, "draft series should not be mutated")
			}
		})
	}
}

func TestAssemble_PublishDate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// 2024-12-31 20:00 UTC is already January 1st in KST.
	p := Assemble(Draft{PublishedAt: time.Date(2024, 12, 31, 20, 0, 0, 0, time.UTC)}, now)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, KST), p.PublishDate)

	p = Assemble(Draft{}, now)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, KST), p.PublishDate)
}

func TestAssemble_TagsAndPlaceholders(t *testing.T) {
	d := Draft{
		Post: Post{
			Tags:         []string{"여행", "#바다"},
			BodyMarkdown: "text\n\n{{video:zz1}}\n\n\n\nmore",
		},
		RawTags: []string{"바다", " 여행 ", "", "산"},
	}

	p := Assemble(d, time.Now())
	assert.Equal(t, []string{"여행", "바다", "산"}, p.Tags)
	assert.Equal(t, "text\n\nmore", p.BodyMarkdown)
}

func TestTagSet(t *testing.T) {
	var s TagSet
	s.Add("a", "#b", "a", "  ", "c")
	s.Add("b")

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"a", "b", "c"}, s.Slice())
}

func TestBuildCommentTree_ParentWithTwoReplies(t *testing.T) {
	flat := []CommentNode{
		{ID: "1", Content: "top"},
		{ID: "2", Content: "reply a", ParentID: "1"},
		{ID: "3", Content: "other top"},
		{ID: "4", Content: "reply b", ParentID: "1"},
	}

	tree := BuildCommentTree(flat)
	require.Len(t, tree, 2)
	assert.Equal(t, "1", tree[0].ID)
	assert.Equal(t, "3", tree[1].ID)
	require.Len(t, tree[0].Replies, 2)
	for _, r := range tree[0].Replies {
		assert.Equal(t, "1", r.ParentID)
	}
	assert.Equal(t, "reply a", tree[0].Replies[0].Content)
	assert.Equal(t, "reply b", tree[0].Replies[1].Content)
	assert.Equal(t, 4, CountComments(tree))
}

func TestBuildCommentTree_OrphansAndCycles(t *testing.T) {
	flat := []CommentNode{
		{ID: "1", ParentID: "missing"},
		{ID: "2", ParentID: "2"},
		{ID: "3", ParentID: "4"},
		{ID: "4", ParentID: "3"},
	}

	tree := BuildCommentTree(flat)
	require.Len(t, tree, 3)
	for _, n := range tree {
		assert.Empty(t, n.ParentID, "top-level nodes have no parent")
	}
	assert.Equal(t, 4, CountComments(tree))
}

func TestCommentTime(t *testing.T) {
	// 2024-05-01T00:00:00Z
	assert.Equal(t, "2024-05-01T09:00:00", CommentTime(1714521600000))
	assert.Empty(t, CommentTime(0))
}

func TestErrors_Matchable(t *testing.T) {
	fe := &FetchError{URL: "https://x", Status: 500}
	wrapped := fmt.Errorf("list failed: %w", fe)
	assert.True(t, errors.Is(wrapped, ErrFetch))
	var target *FetchError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, 500, target.Status)

	be := &BlockedError{URL: "https://x", Reason: ReasonLoginRequired}
	assert.True(t, errors.Is(be, ErrBlocked))
	assert.False(t, errors.Is(be, ErrFetch))
	assert.Contains(t, be.Error(), "login required")

	ne := &NoContentError{URL: "https://x", Stage: "parse", Err: errors.New("bad json")}
	assert.True(t, errors.Is(ne, ErrNoContent))
	assert.Contains(t, Cause(ne), "parse")
}

func TestKey_String(t *testing.T) {
	k := Key{Platform: Brunch, PostID: "12", AuthorID: "writer"}
	assert.Equal(t, "brunch:writer/12", k.String())
	assert.True(t, Brunch.Valid())
	assert.False(t, Platform("tistory").Valid())
}
