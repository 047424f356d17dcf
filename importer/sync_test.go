package importer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/kimport/media"
	"github.com/pevans/kimport/post"
	"github.com/pevans/kimport/sources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var syncTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func createTestSourceStore(t *testing.T) *sources.SourceStore {
	store, err := sources.NewSourceStore(filepath.Join(t.TempDir(), "sources.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func addSource(t *testing.T, store *sources.SourceStore, platform post.Platform, kind post.Kind, id string, opts *sources.Options) *sources.Source {
	enabled := syncTime.Add(-time.Hour)
	src, err := store.CreateSource(post.Target{Platform: platform, Kind: kind, ID: id},
		"https://"+string(platform)+"/"+id, id, 0, opts, &enabled)
	require.NoError(t, err)
	return src
}

func getSource(t *testing.T, store *sources.SourceStore, id uuid.UUID) *sources.Source {
	src, err := store.GetSource(id)
	require.NoError(t, err)
	return src
}

func TestSyncSources(t *testing.T) {
	store := createTestSourceStore(t)
	brunch := newStub(post.Brunch)
	brunch.add("writer", "2", "둘")
	brunch.add("writer", "1", "하나")
	cafe := newStub(post.Cafe)
	cafe.listErrs["club"] = &post.FetchError{URL: "https://cafe/club", Status: 503}

	good := addSource(t, store, post.Brunch, post.KindAuthor, "writer", nil)
	bad := addSource(t, store, post.Cafe, post.KindBoard, "club", nil)
	count := 1
	require.NoError(t, store.UpdateSource(bad.SourceID, sources.SourceUpdate{FetchErrorCount: &count}))

	paused := addSource(t, store, post.Brunch, post.KindAuthor, "paused", nil)
	require.NoError(t, store.UpdateSource(paused.SourceID, sources.SourceUpdate{ClearEnabledAt: true}))

	imp := New(NewRegistry(brunch, cafe), setupTestVault(t),
		WithDisableAfter(2), WithClock(func() time.Time { return syncTime }))

	results, err := imp.SyncSources(context.Background(), store)
	require.NoError(t, err)
	require.Len(t, results, 2, "disabled sources are not synced")

	assert.Equal(t, good.SourceID, results[0].Source.SourceID)
	assert.Empty(t, results[0].Error)
	require.NotNil(t, results[0].Report)
	assert.Len(t, results[0].Report.Imported, 2)

	assert.Equal(t, "HTTP 503", results[1].Error)
	assert.True(t, results[1].Disabled)

	got := getSource(t, store, good.SourceID)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, syncTime.Equal(*got.LastSyncedAt))
	assert.Equal(t, 0, got.FetchErrorCount)
	assert.Nil(t, got.LastError)

	got = getSource(t, store, bad.SourceID)
	assert.Equal(t, 2, got.FetchErrorCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "HTTP 503", *got.LastError)
	assert.False(t, got.IsEnabled(), "disabled after reaching the threshold")
	assert.Nil(t, got.LastSyncedAt)

	assert.Equal(t, []string{"writer"}, brunch.listed)
}

func TestSyncSources_BlockedPlatformSkipsRest(t *testing.T) {
	store := createTestSourceStore(t)
	brunch := newStub(post.Brunch)
	brunch.add("first", "1", "하나")
	brunch.add("second", "2", "둘")
	brunch.errs["1"] = &post.BlockedError{URL: "https://brunch/first/1", Reason: post.ReasonErrorPage}
	blog := newStub(post.Blog)
	blog.add("diary", "3", "셋")

	first := addSource(t, store, post.Brunch, post.KindAuthor, "first", nil)
	second := addSource(t, store, post.Brunch, post.KindAuthor, "second", nil)
	addSource(t, store, post.Blog, post.KindAuthor, "diary", nil)

	imp := New(NewRegistry(brunch, blog), setupTestVault(t), WithDisableAfter(5))
	results, err := imp.SyncSources(context.Background(), store)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, post.ReasonErrorPage, results[0].Error)
	assert.True(t, results[1].Skipped)
	assert.Empty(t, results[2].Error, "other platforms continue")
	assert.Len(t, results[2].Report.Imported, 1)

	assert.Equal(t, []string{"first"}, brunch.listed)
	assert.Equal(t, 1, getSource(t, store, first.SourceID).FetchErrorCount)
	assert.Equal(t, 0, getSource(t, store, second.SourceID).FetchErrorCount, "skipped sources are not penalized")
}

func TestSyncSources_ByID(t *testing.T) {
	store := createTestSourceStore(t)
	brunch := newStub(post.Brunch)
	brunch.add("writer", "1", "하나")

	src := addSource(t, store, post.Brunch, post.KindAuthor, "writer", nil)
	addSource(t, store, post.Brunch, post.KindAuthor, "other", nil)
	require.NoError(t, store.UpdateSource(src.SourceID, sources.SourceUpdate{ClearEnabledAt: true}))

	imp := New(NewRegistry(brunch), setupTestVault(t))
	results, err := imp.SyncSources(context.Background(), store, src.SourceID)
	require.NoError(t, err)
	require.Len(t, results, 1, "a named source is synced even when disabled")
	assert.Len(t, results[0].Report.Imported, 1)
	assert.Equal(t, []string{"writer"}, brunch.listed)

	_, err = imp.SyncSources(context.Background(), store, uuid.New())
	assert.ErrorIs(t, err, sources.ErrSourceNotFound)
}

func TestSourceOptions(t *testing.T) {
	off, on := false, true
	imp := New(NewRegistry(), nil, WithDefaults(Options{MaxPosts: 50, Comments: true}))

	opts := imp.sourceOptions(sources.Source{
		MaxPosts: 5,
		Options:  &sources.Options{ImageMode: media.ImageLocal, IncludeComments: &off, Enrich: &on},
	})
	assert.Equal(t, 5, opts.MaxPosts)
	assert.True(t, opts.LocalImages)
	assert.False(t, opts.Comments)
	assert.True(t, opts.Enrich.Tags)
	assert.True(t, opts.Enrich.Excerpt)

	opts = imp.sourceOptions(sources.Source{})
	assert.Equal(t, Options{MaxPosts: 50, Comments: true}, opts)
}
