package news

import (
	"context"
	"fmt"
	"log"

	"github.com/pevans/kimport/discovery"
	"github.com/pevans/kimport/paginate"
	"github.com/pevans/kimport/post"
)

// ListPosts returns the articles of a press office listing, newest first.
// Listing pages are scraped until one adds no new article; the listing
// repeats its last page when asked for one past the end. Pages are not in
// id order, so limit applies after every page is read and sorted.
func (f *Fetcher) ListPosts(ctx context.Context, t post.Target, limit int) ([]post.Ref, error) {
	switch t.Kind {
	case post.KindPost:
		return []post.Ref{t.Ref}, nil
	case post.KindPress:
	default:
		return nil, fmt.Errorf("news cannot list %s targets: %w", t.Kind, post.ErrInvalidURL)
	}

	oid := t.ID
	pattern := articleLinkPattern(oid)
	seen := make(map[string]bool)

	w := paginate.Walker[string, int]{
		FetchPage: func(ctx context.Context, page int) (paginate.Page[string, int], error) {
			var out paginate.Page[string, int]
			pageURL := PressListURL(f.list, oid, page)

			body, err := f.client.Get(ctx, pageURL, f.list+"/")
			if err != nil {
				return out, err
			}
			doc, err := discovery.ParseHTML(body)
			if err != nil {
				return out, err
			}

			for _, id := range discovery.CollectIDs(doc, pageURL, pattern) {
				if !seen[id] {
					seen[id] = true
					out.Items = append(out.Items, id)
				}
			}
			out.Next = page + 1
			return out, nil
		},
		ID:       func(id string) string { return id },
		MaxPages: maxListPages,
		Pacer:    f.pacer,
	}

	ids, err := w.Walk(ctx, 1)
	if err != nil {
		if len(ids) == 0 {
			return nil, err
		}
		log.Printf("WARN: news press %s listing stopped early: %v", oid, err)
	}

	paginate.SortIDsDesc(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	refs := make([]post.Ref, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, post.Ref{Platform: post.News, AuthorID: oid, PostID: id, URL: ArticleURL(DefaultArticleBaseURL, oid, id)})
	}
	return refs, nil
}
