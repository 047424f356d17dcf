package vault

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pevans/kimport/post"
	"gopkg.in/yaml.v3"
)

const (
	delimiter  = "---"
	dateLayout = "2006-01-02"
)

// ErrNoFrontmatter is returned for markdown files that do not start with a
// frontmatter block.
var ErrNoFrontmatter = errors.New("no frontmatter")

// Frontmatter is the YAML header of an imported note. Platform, PostID and
// AuthorID identify the post for duplicate detection.
type Frontmatter struct {
	Platform  post.Platform `yaml:"platform"`
	PostID    string        `yaml:"post_id"`
	AuthorID  string        `yaml:"author_id"`
	Title     string        `yaml:"title"`
	Subtitle  string        `yaml:"subtitle,omitempty"`
	Author    string        `yaml:"author,omitempty"`
	Source    string        `yaml:"source"`
	Published string        `yaml:"published"`
	Imported  string        `yaml:"imported,omitempty"`
	Tags      []string      `yaml:"tags,omitempty"`
	Series    string        `yaml:"series,omitempty"`
	SeriesURL string        `yaml:"series_url,omitempty"`
	Episode   int           `yaml:"episode,omitempty"`
	Likes     *int          `yaml:"likes,omitempty"`
	Comments  *int          `yaml:"comments,omitempty"`
	Thumbnail string        `yaml:"thumbnail,omitempty"`
	Excerpt   string        `yaml:"excerpt,omitempty"`
	Videos    []string      `yaml:"videos,omitempty"`
}

// Key returns the duplicate-detection key recorded in the frontmatter.
func (f Frontmatter) Key() post.Key {
	return post.Key{Platform: f.Platform, PostID: f.PostID, AuthorID: f.AuthorID}
}

// Note is an imported post and its comments.
type Note struct {
	Post     *post.Post
	Comments []post.CommentNode
}

// NewFrontmatter builds the frontmatter for p.
func NewFrontmatter(p *post.Post, imported time.Time) Frontmatter {
	fm := Frontmatter{
		Platform:  p.Platform,
		PostID:    p.SourcePostID,
		AuthorID:  p.AuthorHandle,
		Title:     p.Title,
		Subtitle:  p.Subtitle,
		Author:    p.AuthorDisplayName,
		Source:    p.SourceURL,
		Published: p.PublishDate.In(post.KST).Format(dateLayout),
		Tags:      p.Tags,
		Likes:     p.LikeCount,
		Comments:  p.CommentCount,
		Thumbnail: p.ThumbnailURL,
		Excerpt:   p.Excerpt,
	}
	if !imported.IsZero() {
		fm.Imported = imported.Format(time.RFC3339)
	}
	if p.Series != nil {
		fm.Series = p.Series.Title
		fm.SeriesURL = p.Series.URL
		fm.Episode = p.Series.EpisodeNumber
	}
	for _, v := range p.Videos {
		if v.Resolved() {
			fm.Videos = append(fm.Videos, v.DirectStreamURL)
		} else if v.EmbedURL != "" {
			fm.Videos = append(fm.Videos, v.EmbedURL)
		}
	}
	return fm
}

// Render writes the note as markdown: frontmatter, body, then a comments
// section when there are comments.
func Render(n Note, imported time.Time) ([]byte, error) {
	fm := NewFrontmatter(n.Post, imported)

	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")
	buf.Write(header)
	buf.WriteString(delimiter + "\n\n")

	if body := strings.TrimSpace(n.Post.BodyMarkdown); body != "" {
		buf.WriteString(body)
		buf.WriteString("\n")
	}

	if len(n.Comments) > 0 {
		buf.WriteString("\n## Comments\n\n")
		writeComments(&buf, n.Comments, 0)
	}
	return buf.Bytes(), nil
}

func writeComments(buf *bytes.Buffer, nodes []post.CommentNode, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, c := range nodes {
		name := c.AuthorName
		if name == "" {
			name = c.AuthorID
		}
		if c.IsPrivilegedMember {
			name += " ★"
		}

		lines := strings.Split(strings.TrimSpace(c.Content), "\n")
		fmt.Fprintf(buf, "%s- **%s**", indent, name)
		if c.Timestamp != "" {
			fmt.Fprintf(buf, " (%s)", c.Timestamp)
		}
		buf.WriteString("\n")
		for _, line := range lines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			fmt.Fprintf(buf, "%s  %s\n", indent, strings.TrimSpace(line))
		}
		writeComments(buf, c.Replies, depth+1)
	}
}

// ParseFrontmatter reads the frontmatter block at the start of data.
func ParseFrontmatter(data []byte) (Frontmatter, error) {
	var fm Frontmatter

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	rest, ok := strings.CutPrefix(text, delimiter+"\n")
	if !ok {
		return fm, ErrNoFrontmatter
	}
	end := strings.Index(rest, "\n"+delimiter)
	if end < 0 {
		if strings.HasPrefix(rest, delimiter) {
			return fm, nil
		}
		return fm, ErrNoFrontmatter
	}

	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return fm, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	return fm, nil
}
