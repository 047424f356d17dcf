package post

import "fmt"

// Kind classifies what a URL points at.
type Kind string

const (
	KindPost     Kind = "post"
	KindAuthor   Kind = "author"
	KindKeyword  Kind = "keyword"
	KindMagazine Kind = "magazine"
	KindBook     Kind = "book"
	KindBoard    Kind = "board"
	KindPress    Kind = "press"
)

// Ref identifies a single post on a platform. AuthorID holds whatever the
// platform scopes post ids by: an author handle, a cafe club id, a press
// office id or a blog id.
type Ref struct {
	Platform Platform `json:"platform"`
	AuthorID string   `json:"author_id"`
	PostID   string   `json:"post_id"`
	URL      string   `json:"url,omitempty"`
}

// Key returns the duplicate-detection key for the referenced post.
func (r Ref) Key() Key {
	return Key{Platform: r.Platform, PostID: r.PostID, AuthorID: r.AuthorID}
}

func (r Ref) String() string {
	if r.URL != "" {
		return r.URL
	}
	return fmt.Sprintf("%s:%s/%s", r.Platform, r.AuthorID, r.PostID)
}

// Target is the parsed form of a platform URL. For KindPost the Ref field is
// filled; every other kind names a list of posts by ID (and SubID where the
// platform needs two identifiers, such as a cafe club and board).
type Target struct {
	Platform Platform `json:"platform"`
	Kind     Kind     `json:"kind"`
	ID       string   `json:"id,omitempty"`
	SubID    string   `json:"sub_id,omitempty"`
	Ref      Ref      `json:"ref,omitzero"`
}

// IsPost reports whether the target is a single post.
func (t Target) IsPost() bool {
	return t.Kind == KindPost
}
