// Package markdown holds the content block model shared by every platform
// extractor and the rules that turn an ordered block list into clean
// markdown.
package markdown

import (
	"fmt"
	"html"
	"strings"
)

// Block is one classified unit of post content. The set of implementations
// is closed: Paragraph, Heading, Image, Gallery, Quote, Divider, Video,
// LinkEmbed, Table and Code.
type Block interface {
	// Markdown returns the block's markdown lines, without the blank
	// separator line that follows every block.
	Markdown() []string
	// HTML returns the block rendered as an HTML fragment.
	HTML() string

	block()
}

// Paragraph is a run of text lines.
type Paragraph struct {
	Lines []string
}

func (p Paragraph) Markdown() []string {
	return p.Lines
}

func (p Paragraph) HTML() string {
	escaped := make([]string, len(p.Lines))
	for i, line := range p.Lines {
		escaped[i] = html.EscapeString(line)
	}
	return "<p>" + strings.Join(escaped, "<br>") + "</p>"
}

// Heading is a section title. Level is 2 or 3.
type Heading struct {
	Level int
	Text  string
}

func (h Heading) level() int {
	if h.Level < 2 {
		return 2
	}
	if h.Level > 3 {
		return 3
	}
	return h.Level
}

func (h Heading) Markdown() []string {
	return []string{strings.Repeat("#", h.level()) + " " + strings.TrimSpace(h.Text)}
}

func (h Heading) HTML() string {
	return fmt.Sprintf("<h%d>%s</h%d>", h.level(), html.EscapeString(strings.TrimSpace(h.Text)), h.level())
}

// Image is a single image with an optional caption.
type Image struct {
	URL     string
	Caption string
}

func (i Image) Markdown() []string {
	lines := []string{fmt.Sprintf("![%s](%s)", altText(i.Caption), i.URL)}
	if c := strings.TrimSpace(i.Caption); c != "" {
		lines = append(lines, "*"+c+"*")
	}
	return lines
}

func (i Image) HTML() string {
	out := fmt.Sprintf(`<figure><img src="%s" alt="%s">`, html.EscapeString(i.URL), html.EscapeString(i.Caption))
	if c := strings.TrimSpace(i.Caption); c != "" {
		out += "<figcaption>" + html.EscapeString(c) + "</figcaption>"
	}
	return out + "</figure>"
}

// Gallery is a set of images sharing one caption.
type Gallery struct {
	URLs    []string
	Caption string
}

func (g Gallery) Markdown() []string {
	lines := make([]string, 0, len(g.URLs)+1)
	for _, u := range g.URLs {
		lines = append(lines, "![]("+u+")")
	}
	if c := strings.TrimSpace(g.Caption); c != "" {
		lines = append(lines, "*"+c+"*")
	}
	return lines
}

func (g Gallery) HTML() string {
	var b strings.Builder
	b.WriteString(`<figure class="gallery">`)
	for _, u := range g.URLs {
		fmt.Fprintf(&b, `<img src="%s">`, html.EscapeString(u))
	}
	if c := strings.TrimSpace(g.Caption); c != "" {
		b.WriteString("<figcaption>" + html.EscapeString(c) + "</figcaption>")
	}
	b.WriteString("</figure>")
	return b.String()
}

// Quote is a block quotation. Every line gets its own "> " marker.
type Quote struct {
	Text string
	Cite string
}

func (q Quote) Markdown() []string {
	var lines []string
	for _, line := range strings.Split(strings.TrimSpace(q.Text), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			lines = append(lines, ">")
			continue
		}
		lines = append(lines, "> "+line)
	}
	if c := strings.TrimSpace(q.Cite); c != "" {
		lines = append(lines, ">", "> — "+c)
	}
	return lines
}

func (q Quote) HTML() string {
	body := strings.ReplaceAll(html.EscapeString(strings.TrimSpace(q.Text)), "\n", "<br>")
	if c := strings.TrimSpace(q.Cite); c != "" {
		body += "<cite>" + html.EscapeString(c) + "</cite>"
	}
	return "<blockquote>" + body + "</blockquote>"
}

// Divider is a horizontal rule.
type Divider struct{}

func (Divider) Markdown() []string { return []string{"---"} }
func (Divider) HTML() string       { return "<hr>" }

// Video is where an embedded video sits in the body. With an ID it renders
// as a placeholder token that the media resolver substitutes later; with
// only a URL it renders as a plain link.
type Video struct {
	ID  string
	URL string
}

func (v Video) Markdown() []string {
	switch {
	case v.ID != "":
		return []string{VideoToken(v.ID)}
	case v.URL != "":
		return []string{"[Video](" + v.URL + ")"}
	default:
		return []string{"[Video]"}
	}
}

func (v Video) HTML() string {
	switch {
	case v.ID != "":
		return fmt.Sprintf(`<div class="video" data-video-id="%s">%s</div>`, html.EscapeString(v.ID), html.EscapeString(v.URL))
	case v.URL != "":
		return fmt.Sprintf(`<a class="video" href="%s">Video</a>`, html.EscapeString(v.URL))
	default:
		return `<div class="video"></div>`
	}
}

// LinkEmbed is a link preview card reduced to a plain link.
type LinkEmbed struct {
	URL   string
	Title string
}

func (l LinkEmbed) text() string {
	if t := strings.TrimSpace(l.Title); t != "" {
		return t
	}
	return "Link"
}

func (l LinkEmbed) Markdown() []string {
	return []string{"[" + l.text() + "](" + l.URL + ")"}
}

func (l LinkEmbed) HTML() string {
	return fmt.Sprintf(`<p><a href="%s">%s</a></p>`, html.EscapeString(l.URL), html.EscapeString(l.text()))
}

// Table keeps a table's source HTML and its markdown conversion.
type Table struct {
	Source string
	md     string
}

// NewTable converts the table HTML to markdown up front.
func NewTable(source string) Table {
	return Table{Source: source, md: TableMarkdown(source)}
}

func (t Table) Markdown() []string {
	if t.md == "" {
		return nil
	}
	return strings.Split(t.md, "\n")
}

func (t Table) HTML() string { return t.Source }

// Code is a fenced code block.
type Code struct {
	Lang string
	Text string
}

func (c Code) Markdown() []string {
	lines := []string{"```" + c.Lang}
	lines = append(lines, strings.Split(strings.TrimRight(c.Text, "\n"), "\n")...)
	return append(lines, "```")
}

func (c Code) HTML() string {
	return "<pre><code>" + html.EscapeString(c.Text) + "</code></pre>"
}

func (Paragraph) block() {}
func (Heading) block()   {}
func (Image) block()     {}
func (Gallery) block()   {}
func (Quote) block()     {}
func (Divider) block()   {}
func (Video) block()     {}
func (LinkEmbed) block() {}
func (Table) block()     {}
func (Code) block()      {}

// altText keeps captions from breaking the image syntax.
func altText(caption string) string {
	caption = strings.Join(strings.Fields(caption), " ")
	return strings.NewReplacer("[", "(", "]", ")").Replace(caption)
}
