// Package paginate walks cursor-paginated listings: fetch a page, keep its
// new items, move the cursor, and stop on exhaustion or a limit.
package paginate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMaxPages is the page ceiling used when a Walker sets none.
const DefaultMaxPages = 200

// Page is one fetched page of a listing.
type Page[T any, C any] struct {
	Items []T

	// Next is the cursor for the following page. It is ignored when Last is
	// set.
	Next C

	// Last marks the final page.
	Last bool
}

// Walker is a paginated listing. FetchPage and ID are required.
type Walker[T any, C any] struct {
	// FetchPage returns the page at cursor. A non-nil error aborts the walk.
	FetchPage func(ctx context.Context, cursor C) (Page[T, C], error)

	// ID identifies an item for deduplication.
	ID func(T) string

	// MaxItems stops the walk once this many distinct items are collected.
	// Zero means no limit.
	MaxItems int

	// MaxPages bounds the number of pages fetched. Zero means
	// DefaultMaxPages.
	MaxPages int

	// Pacer spaces out page fetches. Nil fetches back to back.
	Pacer *Pacer
}

// Walk fetches pages starting at start until a page is empty or last, a
// limit is reached, the context is done, or a fetch fails. The collected
// items are returned in page order even when err is non-nil; a failed page
// contributes nothing.
func (w Walker[T, C]) Walk(ctx context.Context, start C) ([]T, error) {
	maxPages := w.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var items []T
	seen := make(map[string]bool)
	cursor := start

	for page := 0; page < maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return items, err
		}
		if err := w.Pacer.Wait(ctx); err != nil {
			return items, err
		}

		p, err := w.FetchPage(ctx, cursor)
		if err != nil {
			return items, fmt.Errorf("page %d: %w", page+1, err)
		}
		if len(p.Items) == 0 {
			return items, nil
		}

		for _, item := range p.Items {
			id := w.ID(item)
			if seen[id] {
				continue
			}
			seen[id] = true
			items = append(items, item)
			if w.MaxItems > 0 && len(items) >= w.MaxItems {
				return items, nil
			}
		}

		if p.Last {
			return items, nil
		}
		cursor = p.Next
	}

	return items, nil
}

// Pacer enforces a fixed minimum gap between calls.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a Pacer allowing one call per gap. A non-positive gap
// never waits.
func NewPacer(gap time.Duration) *Pacer {
	if gap <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(gap), 1)}
}

// Wait blocks until the next call is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}

// SortIDsDesc sorts numeric ids newest-first in place. Non-numeric ids sort
// after numeric ones, in reverse lexical order.
func SortIDsDesc(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool { return IDNewer(ids[i], ids[j]) })
}

// IDNewer reports whether id a sorts before b in newest-first order.
// Numeric ids compare by value and come before non-numeric ones.
func IDNewer(a, b string) bool {
	x, errA := strconv.ParseUint(a, 10, 64)
	y, errB := strconv.ParseUint(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return x > y
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a > b
	}
}
