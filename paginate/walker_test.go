package paginate

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	id   string
	time int64
}

func itemID(i item) string { return i.id }

// pages returns a FetchPage serving fixed pages keyed by cursor.
func pages(byCursor map[int64]Page[item, int64], calls *int) func(context.Context, int64) (Page[item, int64], error) {
	return func(_ context.Context, cursor int64) (Page[item, int64], error) {
		*calls++
		p, ok := byCursor[cursor]
		if !ok {
			return Page[item, int64]{}, nil
		}
		return p, nil
	}
}

func TestWalk_DeduplicatesAcrossPages(t *testing.T) {
	calls := 0
	w := Walker[item, int64]{
		FetchPage: pages(map[int64]Page[item, int64]{
			0:  {Items: []item{{"3", 30}, {"2", 20}}, Next: 20},
			20: {Items: []item{{"2", 20}, {"1", 10}}, Next: 10},
		}, &calls),
		ID: itemID,
	}

	items, err := w.Walk(context.Background(), 0)
	require.NoError(t, err)

	var ids []string
	for _, it := range items {
		ids = append(ids, it.id)
	}
	assert.Equal(t, []string{"3", "2", "1"}, ids)
	assert.Equal(t, 3, calls, "walk stops on the empty third page")
}

func TestWalk_StopsOnLast(t *testing.T) {
	calls := 0
	w := Walker[item, int64]{
		FetchPage: pages(map[int64]Page[item, int64]{
			0: {Items: []item{{"1", 1}}, Next: 5, Last: true},
			5: {Items: []item{{"9", 9}}},
		}, &calls),
		ID: itemID,
	}

	items, err := w.Walk(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, calls)
}

func TestWalk_MaxItems(t *testing.T) {
	calls := 0
	w := Walker[item, int64]{
		FetchPage: func(_ context.Context, cursor int64) (Page[item, int64], error) {
			calls++
			base := cursor * 10
			var out []item
			for i := int64(0); i < 10; i++ {
				out = append(out, item{id: strconv.FormatInt(base+i, 10)})
			}
			return Page[item, int64]{Items: out, Next: cursor + 1}, nil
		},
		ID:       itemID,
		MaxItems: 15,
	}

	items, err := w.Walk(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, items, 15)
	assert.Equal(t, 2, calls)
}

func TestWalk_MaxPagesCeiling(t *testing.T) {
	calls := 0
	w := Walker[item, int64]{
		FetchPage: func(_ context.Context, cursor int64) (Page[item, int64], error) {
			calls++
			return Page[item, int64]{Items: []item{{id: strconv.FormatInt(cursor, 10)}}, Next: cursor + 1}, nil
		},
		ID:       itemID,
		MaxPages: 4,
	}

	items, err := w.Walk(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, items, 4)
	assert.Equal(t, 4, calls)
}

func TestWalk_ErrorKeepsAccumulated(t *testing.T) {
	boom := errors.New("HTTP 500")
	w := Walker[item, int64]{
		FetchPage: func(_ context.Context, cursor int64) (Page[item, int64], error) {
			if cursor > 0 {
				return Page[item, int64]{}, boom
			}
			return Page[item, int64]{Items: []item{{"a", 0}, {"b", 0}}, Next: 1}, nil
		},
		ID: itemID,
	}

	items, err := w.Walk(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Len(t, items, 2)
}

func TestWalk_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	w := Walker[item, int64]{
		FetchPage: func(_ context.Context, cursor int64) (Page[item, int64], error) {
			calls++
			cancel()
			return Page[item, int64]{Items: []item{{id: "x"}}, Next: 1}, nil
		},
		ID: itemID,
	}

	items, err := w.Walk(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, calls)
}

func TestPacer_SpacesCalls(t *testing.T) {
	p := NewPacer(30 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Wait(ctx))
	}
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	var nilPacer *Pacer
	assert.NoError(t, nilPacer.Wait(ctx))
	assert.NoError(t, NewPacer(0).Wait(ctx))
}

func TestSortIDsDesc(t *testing.T) {
	ids := []string{"9", "120", "33", "abc", "1000"}
	SortIDsDesc(ids)
	assert.Equal(t, []string{"1000", "120", "33", "9", "abc"}, ids)
}
