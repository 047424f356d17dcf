package news

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/kimport/markdown"
	"github.com/pevans/kimport/post"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// bodyContainers hold the article body, current layout first.
var bodyContainers = []string{"#dic_area", "#newsct_article", "#articeBody", "#articleBodyContents"}

// naverVideoEmbed is the Naver TV player for a vid/inkey pair.
const naverVideoEmbed = "https://tv.naver.com/embed/%s?inkey=%s"

var spaces = regexp.MustCompile(`\s+`)

// body is an extracted article body.
type body struct {
	markdown   string
	html       string
	summary    string
	videos     []post.VideoRef
	firstImage string
}

// walker turns the mixed inline text and block markup of an article body
// into blocks. Text between <br> tags forms lines; an empty line (two
// consecutive breaks) ends a paragraph.
type walker struct {
	doc        markdown.Doc
	line       strings.Builder
	normalize  func(string) string
	summary    []string
	videos     []post.VideoRef
	firstImage string
}

// extractBody walks the first body container found in doc. ok is false
// when the page has none.
func extractBody(doc *goquery.Document, normalize func(string) string) (body, bool) {
	var container *goquery.Selection
	for _, sel := range bodyContainers {
		if c := doc.Find(sel).First(); c.Length() > 0 {
			container = c
			break
		}
	}
	if container == nil {
		return body{}, false
	}

	w := &walker{normalize: normalize}
	for _, n := range container.Nodes {
		w.walk(n)
	}
	w.endLine()

	md, fragment := w.doc.Finish()
	return body{
		markdown:   md,
		html:       fragment,
		summary:    strings.Join(w.summary, "\n"),
		videos:     w.videos,
		firstImage: w.firstImage,
	}, true
}

func (w *walker) walk(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			w.line.WriteString(spaces.ReplaceAllString(c.Data, " "))
		case html.ElementNode:
			w.element(c)
		}
	}
}

func (w *walker) element(n *html.Node) {
	switch {
	case n.DataAtom == atom.Br:
		w.breakLine()
	case n.DataAtom == atom.Script, n.DataAtom == atom.Style, n.DataAtom == atom.Noscript:
	case hasClass(n, "img_desc"):
		// read with its photo
	case hasClass(n, "media_end_summary"):
		w.summary = append(w.summary, markdown.TrimText(markdown.TextWithBreaks(selection(n))))
	case hasClass(n, "end_photo_org"), hasClass(n, "nbd_im_w"):
		w.endLine()
		w.photo(selection(n))
	case hasClass(n, "vod_player_wrap"), hasClass(n, "_VOD_PLAYER_WRAP"):
		w.endLine()
		w.video(selection(n))
	case n.DataAtom == atom.Table:
		w.endLine()
		var buf bytes.Buffer
		if err := html.Render(&buf, n); err == nil {
			w.doc.Add(markdown.NewTable(buf.String()))
		}
	case n.DataAtom == atom.Img:
		w.endLine()
		w.photo(selection(n))
	case n.DataAtom == atom.H2, n.DataAtom == atom.H3, n.DataAtom == atom.H4:
		w.endLine()
		level := 2
		if n.DataAtom != atom.H2 {
			level = 3
		}
		if text := collapse(selection(n).Text()); text != "" {
			w.doc.Add(markdown.Heading{Level: level, Text: text})
		}
	case n.DataAtom == atom.Blockquote:
		w.endLine()
		if text := markdown.TrimText(markdown.TextWithBreaks(selection(n))); text != "" {
			w.doc.Add(markdown.Quote{Text: text})
		}
	case isBlock(n):
		w.endLine()
		w.walk(n)
		w.endLine()
		if n.DataAtom == atom.P {
			w.doc.Break()
		}
	default:
		w.walk(n)
	}
}

// breakLine ends the current line. A line that is already empty turns the
// break into a paragraph boundary.
func (w *walker) breakLine() {
	w.doc.Text(markdown.TrimText(w.line.String()))
	w.line.Reset()
}

// endLine ends the current line without treating an empty one as a
// boundary.
func (w *walker) endLine() {
	if text := markdown.TrimText(w.line.String()); text != "" {
		w.doc.Text(text)
	}
	w.line.Reset()
}

func (w *walker) photo(s *goquery.Selection) {
	img := s.Find("img").First()
	if img.Length() == 0 && goquery.NodeName(s) == "img" {
		img = s
	}
	src := ""
	for _, attr := range []string{"data-src", "src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			src = v
			break
		}
	}
	if src == "" {
		return
	}
	u := w.normalize(src)
	if w.firstImage == "" {
		w.firstImage = u
	}
	caption := collapse(s.Find(".img_desc, em.img_desc").First().Text())
	if caption == "" {
		caption = collapse(s.Parent().Find(".img_desc").First().Text())
	}
	w.doc.Add(markdown.Image{URL: u, Caption: caption})
}

// videoData is the data-video-info attribute of a player wrapper.
type videoData struct {
	VID   string `json:"vid"`
	InKey string `json:"inkey"`
}

func (w *walker) video(s *goquery.Selection) {
	player := s
	if p := s.Find("[data-video-id], [data-vid]").First(); p.Length() > 0 {
		player = p
	}
	vid := player.AttrOr("data-video-id", player.AttrOr("data-vid", ""))
	inkey := player.AttrOr("data-inkey", "")
	if raw, ok := s.Attr("data-video-info"); ok && vid == "" {
		var d videoData
		if json.Unmarshal([]byte(raw), &d) == nil {
			vid, inkey = d.VID, d.InKey
		}
	}
	if vid == "" {
		w.doc.Add(markdown.Video{})
		return
	}

	embed := fmt.Sprintf(naverVideoEmbed, vid, inkey)
	w.videos = append(w.videos, post.VideoRef{PlatformVideoID: vid, EmbedURL: embed, StreamType: post.StreamOther})
	w.doc.Add(markdown.Video{URL: embed})
}

func selection(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func isBlock(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Div, atom.P, atom.Section, atom.Article, atom.Ul, atom.Ol, atom.Li, atom.Figure, atom.Figcaption, atom.Dl, atom.Dd, atom.Dt:
		return true
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
