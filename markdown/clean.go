package markdown

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	blankRun   = regexp.MustCompile(`(?:[ \t]*\n){3,}`)
	videoToken = regexp.MustCompile(`\{\{video:([^{}\s]+)\}\}`)
)

// Clean collapses every run of three or more newlines to exactly two and
// trims the result. It is the last step of every extraction path.
func Clean(md string) string {
	md = strings.ReplaceAll(md, "\r\n", "\n")
	md = blankRun.ReplaceAllString(md, "\n\n")
	return strings.TrimSpace(md)
}

// VideoToken is the placeholder left in markdown where the video with the
// given id sits until the media resolver replaces it.
func VideoToken(id string) string {
	return "{{video:" + id + "}}"
}

// VideoTokenIDs returns the ids of every placeholder in md, in order.
func VideoTokenIDs(md string) []string {
	var ids []string
	for _, m := range videoToken.FindAllStringSubmatch(md, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

// StripVideoTokens removes every placeholder from md.
func StripVideoTokens(md string) string {
	return videoToken.ReplaceAllString(md, "")
}

// IsBlank reports whether s has nothing but whitespace, including the
// zero-width characters editors use for empty paragraphs.
func IsBlank(s string) bool {
	return strings.TrimFunc(s, isSpace) == ""
}

// TrimText trims whitespace and zero-width characters.
func TrimText(s string) string {
	return strings.TrimFunc(s, isSpace)
}

func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\u200b' || r == '\ufeff'
}

// TextWithBreaks returns the text of sel with <br> turned into newlines and
// block-level children ending their own line, so intentional line breaks
// survive text extraction. sel is not modified.
func TextWithBreaks(sel *goquery.Selection) string {
	c := sel.Clone()
	c.Find("br").ReplaceWithHtml("\n")
	c.Find("p, div, li").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	text := strings.ReplaceAll(c.Text(), " ", " ")
	return strings.Trim(text, "\n")
}
