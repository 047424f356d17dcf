package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/pevans/kimport/post"
)

const (
	defaultMaxTags   = 5
	defaultMaxInput  = 6000
	excerptRunes     = 200
	minKeptRatio     = 0.9
	layoutMaxTokens  = 8192
	shortReplyTokens = 256
)

var (
	imageMarkdown = regexp.MustCompile(`!\[[^\]]*\]\(([^)\s]+)\)`)
	linkMarkdown  = regexp.MustCompile(`\[([^\]]*)\]\([^)\s]+\)`)
	markupChars   = regexp.MustCompile("[*_`#>|~-]+")
)

// Enricher asks a Chatter for tags, an excerpt and a layout repair.
type Enricher struct {
	Chatter Chatter

	// MaxTags caps suggested tags; zero means 5.
	MaxTags int

	// MaxInput caps the runes of body text sent with each request; zero
	// means 6000.
	MaxInput int
}

// Options selects the enrichment steps Enrich runs.
type Options struct {
	Tags    bool
	Excerpt bool
	Layout  bool
}

// Enrich runs the selected steps on p in place. Tags are added after the
// post's own, the excerpt is only filled when empty and the body is only
// replaced when the rewrite kept all of its content. Failures never stop
// the other steps; each is returned as a warning.
func (e *Enricher) Enrich(ctx context.Context, p *post.Post, opts Options) []string {
	var warnings []string
	warn := func(step string, err error) {
		warnings = append(warnings, fmt.Sprintf("ai %s: %v", step, err))
	}

	if opts.Tags {
		tags, err := e.SuggestTags(ctx, p)
		if err != nil {
			warn("tags", err)
		} else {
			var set post.TagSet
			set.Add(p.Tags...)
			set.Add(tags...)
			p.Tags = set.Slice()
		}
	}

	if opts.Excerpt && p.Excerpt == "" {
		excerpt, err := e.Excerpt(ctx, p)
		if err != nil {
			warn("excerpt", err)
		} else {
			p.Excerpt = excerpt
		}
	}

	if opts.Layout {
		body, warning, err := e.FixLayout(ctx, p)
		switch {
		case err != nil:
			warn("layout", err)
		case warning != "":
			warnings = append(warnings, "ai layout: "+warning)
		default:
			p.BodyMarkdown = body
		}
	}
	return warnings
}

// SuggestTags asks for topic tags for p.
func (e *Enricher) SuggestTags(ctx context.Context, p *post.Post) ([]string, error) {
	limit := e.MaxTags
	if limit <= 0 {
		limit = defaultMaxTags
	}

	reply, err := e.Chatter.Chat(ctx, []Message{
		{Role: RoleSystem, Content: "You label Korean articles with short topic tags. Reply with a JSON array of strings only."},
		{Role: RoleUser, Content: fmt.Sprintf("Suggest up to %d tags, in the article's language, without '#'.\n\nTitle: %s\n\n%s",
			limit, p.Title, e.input(p.BodyMarkdown))},
	}, shortReplyTokens)
	if err != nil {
		return nil, err
	}

	tags := parseTags(reply)
	if len(tags) == 0 {
		return nil, ErrEmptyResponse
	}
	if len(tags) > limit {
		tags = tags[:limit]
	}
	return tags, nil
}

// Excerpt asks for a one or two sentence summary of p.
func (e *Enricher) Excerpt(ctx context.Context, p *post.Post) (string, error) {
	reply, err := e.Chatter.Chat(ctx, []Message{
		{Role: RoleSystem, Content: "You write one or two sentence summaries in the article's language. Reply with the summary only."},
		{Role: RoleUser, Content: fmt.Sprintf("Title: %s\n\n%s", p.Title, e.input(p.BodyMarkdown))},
	}, shortReplyTokens)
	if err != nil {
		return "", err
	}

	excerpt := strings.Join(strings.Fields(strings.Trim(strings.TrimSpace(reply), `"`)), " ")
	if excerpt == "" {
		return "", ErrEmptyResponse
	}
	if r := []rune(excerpt); len(r) > excerptRunes {
		excerpt = strings.TrimSpace(string(r[:excerptRunes])) + "…"
	}
	return excerpt, nil
}

// FixLayout asks for p's body with its paragraph breaks repaired. When
// the rewrite lost text or images the original body is returned with a
// warning explaining what was dropped.
func (e *Enricher) FixLayout(ctx context.Context, p *post.Post) (string, string, error) {
	original := p.BodyMarkdown
	if strings.TrimSpace(original) == "" {
		return original, "", nil
	}

	reply, err := e.Chatter.Chat(ctx, []Message{
		{Role: RoleSystem, Content: "You repair the layout of markdown converted from web pages. " +
			"Join lines broken mid-sentence, split run-on paragraphs and remove stray blank lines. " +
			"Never add, remove, translate or reword text. Keep every image and link exactly as given. " +
			"Reply with the markdown only."},
		{Role: RoleUser, Content: original},
	}, layoutMaxTokens)
	if err != nil {
		return original, "", err
	}

	fixed := strings.TrimSpace(stripFence(reply))
	if warning := compareContent(original, fixed); warning != "" {
		return original, warning, nil
	}
	return fixed + "\n", "", nil
}

func (e *Enricher) input(md string) string {
	limit := e.MaxInput
	if limit <= 0 {
		limit = defaultMaxInput
	}
	text := PlainText(md)
	if r := []rune(text); len(r) > limit {
		text = string(r[:limit])
	}
	return text
}

// compareContent reports what a rewrite dropped: images, or more than a
// tenth of the text.
func compareContent(original, fixed string) string {
	for _, m := range imageMarkdown.FindAllStringSubmatch(original, -1) {
		if !strings.Contains(fixed, m[1]) {
			return "partial content: image " + m[1] + " missing from rewrite, original kept"
		}
	}

	before, after := textRunes(original), textRunes(fixed)
	if before == 0 {
		return ""
	}
	if kept := float64(after) / float64(before); kept < minKeptRatio {
		return fmt.Sprintf("partial content: rewrite kept %.0f%% of the text, original kept", kept*100)
	}
	return ""
}

func textRunes(md string) int {
	n := 0
	for _, r := range PlainText(md) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			n++
		}
	}
	return n
}

// PlainText reduces markdown to its readable text: images are dropped,
// links keep their text and emphasis marks are removed.
func PlainText(md string) string {
	md = imageMarkdown.ReplaceAllString(md, "")
	md = linkMarkdown.ReplaceAllString(md, "$1")
	md = markupChars.ReplaceAllString(md, " ")

	var lines []string
	for _, line := range strings.Split(md, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// parseTags reads a JSON array of tags, falling back to a comma or line
// separated list.
func parseTags(reply string) []string {
	reply = stripFence(reply)

	var tags []string
	if start, end := strings.Index(reply, "["), strings.LastIndex(reply, "]"); start >= 0 && end > start {
		if json.Unmarshal([]byte(reply[start:end+1]), &tags) != nil {
			tags = nil
		}
	}
	if tags == nil {
		tags = strings.FieldsFunc(reply, func(r rune) bool { return r == ',' || r == '\n' })
	}

	var set post.TagSet
	for _, tag := range tags {
		set.Add(strings.Trim(strings.TrimSpace(tag), `"'`))
	}
	return set.Slice()
}

// stripFence removes a surrounding ``` code fence.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
