// Package importer turns platform URLs into vault notes. It detects which
// platform a URL belongs to, fetches single posts or whole lists one post at
// a time, skips posts the vault already holds and reports what happened.
package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/pevans/kimport/post"
)

// Fetcher is a platform facade.
type Fetcher interface {
	Platform() post.Platform
	Parse(raw string) (post.Target, bool)
	FetchPost(ctx context.Context, ref post.Ref) (*post.Post, error)
	ListPosts(ctx context.Context, target post.Target, limit int) ([]post.Ref, error)
}

// CommentFetcher is implemented by facades whose platform has comments.
// Comment loading never fails the post; an unavailable thread is empty.
type CommentFetcher interface {
	FetchComments(ctx context.Context, p *post.Post) []post.CommentNode
}

// Registry routes URLs to the facade that understands them.
type Registry struct {
	fetchers []Fetcher
	byName   map[post.Platform]Fetcher
}

// NewRegistry creates a registry over fs. Detection tries them in order.
func NewRegistry(fs ...Fetcher) *Registry {
	r := &Registry{byName: make(map[post.Platform]Fetcher)}
	for _, f := range fs {
		r.fetchers = append(r.fetchers, f)
		r.byName[f.Platform()] = f
	}
	return r
}

// Detect parses raw with the first facade that recognizes it.
func (r *Registry) Detect(raw string) (post.Target, error) {
	raw = strings.TrimSpace(raw)
	for _, f := range r.fetchers {
		if target, ok := f.Parse(raw); ok {
			return target, nil
		}
	}
	return post.Target{}, fmt.Errorf("%q: %w", raw, post.ErrInvalidURL)
}

// Fetcher returns the facade for platform.
func (r *Registry) Fetcher(platform post.Platform) (Fetcher, bool) {
	f, ok := r.byName[platform]
	return f, ok
}

// Platforms lists the registered platforms in detection order.
func (r *Registry) Platforms() []post.Platform {
	out := make([]post.Platform, 0, len(r.fetchers))
	for _, f := range r.fetchers {
		out = append(out, f.Platform())
	}
	return out
}

// FetchPost fetches the single post raw points at.
func (r *Registry) FetchPost(ctx context.Context, raw string) (*post.Post, error) {
	target, err := r.Detect(raw)
	if err != nil {
		return nil, err
	}
	if !target.IsPost() {
		return nil, fmt.Errorf("%q names a %s, not a post: %w", raw, target.Kind, post.ErrInvalidURL)
	}
	f, _ := r.Fetcher(target.Platform)
	return f.FetchPost(ctx, target.Ref)
}

// FetchComments fetches p's comment tree. Platforms without comments
// return nil.
func (r *Registry) FetchComments(ctx context.Context, p *post.Post) []post.CommentNode {
	f, ok := r.Fetcher(p.Platform)
	if !ok {
		return nil
	}
	cf, ok := f.(CommentFetcher)
	if !ok {
		return nil
	}
	return cf.FetchComments(ctx, p)
}

func (r *Registry) fetcherFor(target post.Target) (Fetcher, error) {
	f, ok := r.Fetcher(target.Platform)
	if !ok {
		return nil, fmt.Errorf("platform %q: %w", target.Platform, post.ErrInvalidURL)
	}
	return f, nil
}
