package markdown

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDoc_PreservesBlockOrder verifies mixed blocks render in source order
func TestDoc_PreservesBlockOrder(t *testing.T) {
	var d Doc
	d.Paragraphs("first paragraph")
	d.Add(Image{URL: "https://img.example.com/a.jpg", Caption: "a cat"})
	d.Add(Quote{Text: "quoted line one\nquoted line two"})
	d.Add(Divider{})
	d.Paragraphs("last paragraph")

	md := d.Markdown()

	fragments := []string{
		"first paragraph",
		"![a cat](https://img.example.com/a.jpg)",
		"> quoted line one\n> quoted line two",
		"---",
		"last paragraph",
	}
	last := -1
	for _, f := range fragments {
		idx := strings.Index(md, f)
		require.GreaterOrEqual(t, idx, 0, "markdown should contain %q", f)
		assert.Greater(t, idx, last, "%q should come after the previous fragment", f)
		last = idx
	}
}

// TestDoc_ConsecutiveBlankTextItems verifies blank items yield one break
func TestDoc_ConsecutiveBlankTextItems(t *testing.T) {
	var d Doc
	d.Paragraphs("one")
	d.Paragraphs("")
	d.Paragraphs("   ")
	d.Paragraphs("two")

	assert.Equal(t, "one\n\ntwo", d.Markdown())
}

// TestDoc_LinesWithinParagraph verifies non-blank lines join with one newline
func TestDoc_LinesWithinParagraph(t *testing.T) {
	var d Doc
	d.Paragraphs("line a\nline b\n\nline c")

	blocks := d.Blocks()
	require.Len(t, blocks, 2)
	assert.Equal(t, Paragraph{Lines: []string{"line a", "line b"}}, blocks[0])
	assert.Equal(t, Paragraph{Lines: []string{"line c"}}, blocks[1])
	assert.Equal(t, "line a\nline b\n\nline c", d.Markdown())
}

// TestDoc_NeverThreeNewlines verifies the clean rule holds for noisy input
func TestDoc_NeverThreeNewlines(t *testing.T) {
	inputs := []string{
		"a\n\n\n\nb",
		"\n\n\n",
		"x\n \n\t\n \ny",
		"\u200b\n\u200b\ntext\n\n\n",
	}
	for _, in := range inputs {
		var d Doc
		d.Paragraphs(in)
		d.Add(Divider{})
		d.Paragraphs(in)
		d.Break()
		d.Break()
		assert.NotContains(t, d.Markdown(), "\n\n\n", "input %q", in)
	}
}

// TestDoc_VideoIDsDeduplicated verifies repeated videos are recorded once
func TestDoc_VideoIDsDeduplicated(t *testing.T) {
	var d Doc
	d.Add(Video{ID: "v1"})
	d.Add(Video{ID: "v2"})
	d.Add(Video{ID: "v1"})
	d.Add(Video{URL: "https://example.com/embed"})

	assert.Equal(t, []string{"v1", "v2"}, d.VideoIDs())
	md := d.Markdown()
	assert.Contains(t, md, VideoToken("v1"))
	assert.Contains(t, md, "[Video](https://example.com/embed)")
}

// TestDoc_Finish verifies both renderings come back together
func TestDoc_Finish(t *testing.T) {
	var d Doc
	d.Add(Heading{Level: 2, Text: "Title"})
	d.Paragraphs("body & more")

	md, fragment := d.Finish()
	assert.Equal(t, "## Title\n\nbody & more", md)
	assert.Equal(t, "<h2>Title</h2>\n<p>body &amp; more</p>", fragment)
}

func TestBlocks_Markdown(t *testing.T) {
	tests := []struct {
		name  string
		block Block
		want  []string
	}{
		{"image without caption", Image{URL: "u"}, []string{"![](u)"}},
		{"image with caption", Image{URL: "u", Caption: "cap"}, []string{"![cap](u)", "*cap*"}},
		{"gallery shares caption", Gallery{URLs: []string{"a", "b"}, Caption: "both"}, []string{"![](a)", "![](b)", "*both*"}},
		{"heading level clamps", Heading{Level: 5, Text: "h"}, []string{"### h"}},
		{"link defaults label", LinkEmbed{URL: "https://x"}, []string{"[Link](https://x)"}},
		{"video with nothing", Video{}, []string{"[Video]"}},
		{"code fence", Code{Lang: "go", Text: "x := 1\n"}, []string{"```go", "x := 1", "```"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.block.Markdown())
		})
	}
}

func TestClean(t *testing.T) {
	assert.Equal(t, "a\n\nb", Clean("\n\na\n\n\n\n\nb\n\n"))
	assert.Equal(t, "a\n\nb", Clean("a\r\n\r\n\r\nb"))
	assert.Equal(t, "a\nb", Clean("a\nb"))
}

func TestTrimText(t *testing.T) {
	assert.Equal(t, "본문", TrimText("\ufeff\u200b 본문 \u200b"))
	assert.True(t, IsBlank("\u200b\n\ufeff\t"))
}

func TestVideoTokens(t *testing.T) {
	md := "intro\n\n" + VideoToken("abc123") + "\n\nmid " + VideoToken("x9") + "\n"

	assert.Equal(t, []string{"abc123", "x9"}, VideoTokenIDs(md))
	assert.NotContains(t, StripVideoTokens(md), "{{video:")
}

func TestTextWithBreaks(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div id="t"><span>first</span><br>second<br/><b>third</b></div>`))
	require.NoError(t, err)

	sel := doc.Find("#t")
	assert.Equal(t, "first\nsecond\nthird", TextWithBreaks(sel))
	assert.Equal(t, 2, sel.Find("br").Length(), "source selection should be untouched")
}

func TestTableMarkdown(t *testing.T) {
	md := TableMarkdown(`<table><thead><tr><th>Name</th><th>Qty</th></tr></thead>` +
		`<tbody><tr><td>apple</td><td>3</td></tr></tbody></table>`)

	assert.Contains(t, md, "Name")
	assert.Contains(t, md, "apple")
	assert.Contains(t, md, "|")
}

func TestConvert(t *testing.T) {
	md, err := Convert(`<p>Hello <strong>world</strong></p><p><a href="/x">link</a></p>`, "https://blog.example.com")
	require.NoError(t, err)

	assert.Contains(t, md, "**world**")
	assert.Contains(t, md, "https://blog.example.com/x")
}
