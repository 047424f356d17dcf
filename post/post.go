package post

import (
	"time"
)

// Platform identifies the site a post was imported from. It is written to
// every note's frontmatter and is part of the duplicate-detection key.
type Platform string

const (
	Brunch Platform = "brunch"
	Cafe   Platform = "cafe"
	News   Platform = "news"
	Blog   Platform = "blog"
)

// Platforms lists every supported platform in detection order.
var Platforms = []Platform{Brunch, Cafe, News, Blog}

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// Post is the normalized result of fetching a single post from any platform.
//
// AuthorHandle is the identifier the platform scopes post ids by: the
// author's handle on brunch and blog, the club id on cafe and the press
// office id on news. The person shown as author is AuthorDisplayName.
type Post struct {
	Platform          Platform    `json:"platform"`
	Title             string      `json:"title"`
	Subtitle          string      `json:"subtitle,omitempty"`
	PublishDate       time.Time   `json:"publish_date"`
	BodyMarkdown      string      `json:"body_markdown"`
	BodyHTML          string      `json:"body_html,omitempty"`
	SourcePostID      string      `json:"source_post_id"`
	SourceURL         string      `json:"source_url"`
	AuthorHandle      string      `json:"author_handle"`
	AuthorDisplayName string      `json:"author_display_name"`
	InternalAuthorID  string      `json:"internal_author_id,omitempty"`
	Tags              []string    `json:"tags"`
	Series            *SeriesInfo `json:"series,omitempty"`
	LikeCount         *int        `json:"like_count,omitempty"`
	CommentCount      *int        `json:"comment_count,omitempty"`
	Videos            []VideoRef  `json:"videos,omitempty"`
	ThumbnailURL      string      `json:"thumbnail_url,omitempty"`
	Excerpt           string      `json:"excerpt,omitempty"`
}

// Key returns the duplicate-detection key for the post.
func (p *Post) Key() Key {
	return Key{Platform: p.Platform, PostID: p.SourcePostID, AuthorID: p.AuthorHandle}
}

// SeriesInfo describes the magazine, book or category a post belongs to.
type SeriesInfo struct {
	Title         string `json:"title"`
	URL           string `json:"url,omitempty"`
	EpisodeNumber int    `json:"episode_number,omitempty"`
}

// StreamType tells whether a video is served by the hosted video service
// that the media resolver knows how to handshake with.
type StreamType string

const (
	StreamHosted StreamType = "hosted"
	StreamOther  StreamType = "other"
)

// VideoRef is a video found in a post body. DirectStreamURL is only set once
// the media resolver has completed its handshake for the video.
type VideoRef struct {
	PlatformVideoID string     `json:"platform_video_id"`
	EmbedURL        string     `json:"embed_url"`
	StreamType      StreamType `json:"stream_type"`
	DirectStreamURL string     `json:"direct_stream_url,omitempty"`
	ThumbnailURL    string     `json:"thumbnail_url,omitempty"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
	QualityProfile  string     `json:"quality_profile,omitempty"`
}

// Resolved reports whether the video has a direct stream URL.
func (v VideoRef) Resolved() bool {
	return v.DirectStreamURL != ""
}

// CommentNode is a single comment with its replies nested underneath.
// Top-level comments have an empty ParentID.
type CommentNode struct {
	ID                 string        `json:"id"`
	AuthorID           string        `json:"author_id"`
	AuthorName         string        `json:"author_name"`
	IsPrivilegedMember bool          `json:"is_privileged_member"`
	Content            string        `json:"content"`
	Timestamp          string        `json:"timestamp"`
	ParentID           string        `json:"parent_id,omitempty"`
	Replies            []CommentNode `json:"replies,omitempty"`
}

// CountComments returns the number of nodes in the given forest, replies
// included.
func CountComments(nodes []CommentNode) int {
	n := 0
	for _, node := range nodes {
		n += 1 + CountComments(node.Replies)
	}
	return n
}

// Key is the triple the host uses to detect previously imported posts. Post
// ids are only unique within a platform (and for some platforms only within
// an author), so all three fields are compared.
type Key struct {
	Platform Platform
	PostID   string
	AuthorID string
}

// String renders the key in a stable form, suitable for map lookups and logs.
func (k Key) String() string {
	return string(k.Platform) + ":" + k.AuthorID + "/" + k.PostID
}
