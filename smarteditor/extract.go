// Package smarteditor extracts post bodies written with Naver's SmartEditor
// ONE, shared by cafe articles and blog posts. Bodies from older editors
// have no component structure and are converted from raw HTML instead.
package smarteditor

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/kimport/markdown"
	"github.com/pevans/kimport/media"
	"github.com/pevans/kimport/post"
)

// ErrNoContainer means neither a SmartEditor container nor a legacy body
// was found.
var ErrNoContainer = errors.New("no content container")

// legacyContainers hold bodies written before SmartEditor ONE, in order of
// preference.
var legacyContainers = []string{
	"#postViewArea",
	".se_component_wrap",
	"#post-view",
	".post-view",
	"#tbody",
	".ContentRenderer",
}

// videoEmbedFormat is the Naver video player for a vid/inkey pair.
const videoEmbedFormat = "https://serviceapi.nmv.naver.com/flash/convertIframeTag.nhn?vid=%s&outKey=%s"

// Options controls extraction.
type Options struct {
	// Normalize is applied to every image URL. Nil uses
	// media.NormalizeImage.
	Normalize func(string) string

	// BaseURL resolves relative links in legacy bodies.
	BaseURL string
}

// Result is an extracted body.
type Result struct {
	Markdown string
	HTML     string

	// Videos are embedded Naver and third-party videos. They are not
	// hosted-service clips and need no resolution.
	Videos []post.VideoRef

	// FirstImage is the first image in the body, used as a preview.
	FirstImage string

	// Legacy is set when the body came from a pre-SmartEditor container.
	Legacy bool
}

// ExtractHTML parses fragment and extracts it.
func ExtractHTML(fragment string, opts Options) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return Extract(doc.Selection, opts)
}

// Extract walks the SmartEditor components under root in document order.
// When root has no SmartEditor container the first legacy container is
// converted as raw HTML, and when it has neither ErrNoContainer is returned.
func Extract(root *goquery.Selection, opts Options) (*Result, error) {
	if opts.Normalize == nil {
		opts.Normalize = media.NormalizeImage
	}

	container := root.Find(".se-main-container").First()
	if container.Length() == 0 {
		return extractLegacy(root, opts)
	}

	w := &walker{opts: opts}
	container.Find(".se-component").Each(func(_ int, c *goquery.Selection) {
		// Components nested in other components (e.g. inside a table cell)
		// are handled by their parent.
		if c.ParentsFiltered(".se-component").Length() > 0 {
			return
		}
		w.component(c)
	})

	md, fragment := w.doc.Finish()
	return &Result{
		Markdown:   md,
		HTML:       fragment,
		Videos:     w.videos,
		FirstImage: w.firstImage,
	}, nil
}

func extractLegacy(root *goquery.Selection, opts Options) (*Result, error) {
	for _, sel := range legacyContainers {
		c := root.Find(sel).First()
		if c.Length() == 0 {
			continue
		}
		c.Find("script, style").Remove()
		c.Find("img").Each(func(_ int, img *goquery.Selection) {
			if src := imageSource(img); src != "" {
				img.SetAttr("src", opts.Normalize(src))
			}
		})

		inner, err := c.Html()
		if err != nil {
			return nil, fmt.Errorf("failed to read legacy body: %w", err)
		}
		md, err := markdown.Convert(inner, opts.BaseURL)
		if err != nil {
			return nil, err
		}

		first := ""
		if img := c.Find("img").First(); img.Length() > 0 {
			first = img.AttrOr("src", "")
		}
		return &Result{Markdown: md, HTML: inner, FirstImage: first, Legacy: true}, nil
	}
	return nil, ErrNoContainer
}

type walker struct {
	opts       Options
	doc        markdown.Doc
	videos     []post.VideoRef
	firstImage string
}

func (w *walker) component(c *goquery.Selection) {
	switch {
	case c.HasClass("se-text"):
		w.text(c)
	case c.HasClass("se-documentTitle"):
		// read separately as the post title
	case c.HasClass("se-sectionTitle"):
		w.doc.Add(markdown.Heading{Level: 2, Text: collapse(c.Text())})
	case c.HasClass("se-quotation"):
		w.quote(c)
	case c.HasClass("se-horizontalLine"):
		w.doc.Add(markdown.Divider{})
	case c.HasClass("se-image"):
		w.image(c)
	case c.HasClass("se-imageGroup"), c.HasClass("se-imageStrip"), c.HasClass("se-imageGroup-col"):
		w.gallery(c)
	case c.HasClass("se-oglink"):
		w.oglink(c)
	case c.HasClass("se-video"):
		w.video(c)
	case c.HasClass("se-oembed"):
		w.oembed(c)
	case c.HasClass("se-table"):
		if t := c.Find("table").First(); t.Length() > 0 {
			if html, err := goquery.OuterHtml(t); err == nil {
				w.doc.Add(markdown.NewTable(html))
			}
		}
	case c.HasClass("se-code"):
		w.doc.Add(markdown.Code{Text: c.Find(".se-code-source").Text()})
	case c.HasClass("se-placesMap"):
		w.place(c)
	case c.HasClass("se-sticker"):
		// decorative
	default:
		w.doc.Paragraphs(markdown.TextWithBreaks(c))
		w.doc.Break()
	}
}

func (w *walker) text(c *goquery.Selection) {
	c.Find(".se-text-paragraph").Each(func(_ int, p *goquery.Selection) {
		text := markdown.TextWithBreaks(p)
		if markdown.IsBlank(text) {
			w.doc.Break()
			return
		}
		prefix := ""
		if li := p.ParentsFiltered("li").First(); li.Length() > 0 {
			if li.Parent().Is("ol") {
				prefix = fmt.Sprintf("%d. ", li.Index()+1)
			} else {
				prefix = "- "
			}
		}
		for i, line := range strings.Split(text, "\n") {
			if i == 0 {
				line = prefix + line
			}
			w.doc.Text(line)
		}
	})
	w.doc.Break()
}

func (w *walker) quote(c *goquery.Selection) {
	var lines []string
	c.Find(".se-quote .se-text-paragraph, .se-quote p").Each(func(_ int, p *goquery.Selection) {
		lines = append(lines, markdown.TrimText(markdown.TextWithBreaks(p)))
	})
	if len(lines) == 0 {
		lines = append(lines, markdown.TrimText(markdown.TextWithBreaks(c.Find(".se-quote"))))
	}
	text := strings.Join(lines, "\n")
	if markdown.IsBlank(text) {
		return
	}
	w.doc.Add(markdown.Quote{Text: text, Cite: collapse(c.Find(".se-cite").Text())})
}

func (w *walker) image(c *goquery.Selection) {
	src := ""
	if img := c.Find("img").First(); img.Length() > 0 {
		src = imageSource(img)
	} else if v := c.Find("video").First(); v.Length() > 0 {
		src = v.AttrOr("src", "")
	}
	if src == "" {
		return
	}
	u := w.opts.Normalize(src)
	w.noteImage(u)
	w.doc.Add(markdown.Image{URL: u, Caption: collapse(c.Find(".se-caption").Text())})
}

func (w *walker) gallery(c *goquery.Selection) {
	var urls []string
	c.Find("img").Each(func(_ int, img *goquery.Selection) {
		if src := imageSource(img); src != "" {
			urls = append(urls, w.opts.Normalize(src))
		}
	})
	if len(urls) == 0 {
		return
	}
	w.noteImage(urls[0])
	w.doc.Add(markdown.Gallery{URLs: urls, Caption: collapse(c.Find(".se-caption").Text())})
}

func (w *walker) oglink(c *goquery.Selection) {
	a := c.Find("a.se-oglink-info, a.se-oglink-thumbnail, a").First()
	href := strings.TrimSpace(a.AttrOr("href", ""))
	if href == "" {
		return
	}
	w.doc.Add(markdown.LinkEmbed{URL: href, Title: collapse(c.Find(".se-oglink-title").Text())})
}

// videoModule is the data-module payload of a se-video component.
type videoModule struct {
	Data struct {
		VID       string `json:"vid"`
		InKey     string `json:"inkey"`
		Thumbnail string `json:"thumbnail"`
		MediaMeta struct {
			Title string `json:"title"`
		} `json:"mediaMeta"`
	} `json:"data"`
}

func (w *walker) video(c *goquery.Selection) {
	raw := c.Find("[data-module]").First().AttrOr("data-module", "")
	var m videoModule
	if raw == "" || json.Unmarshal([]byte(raw), &m) != nil || m.Data.VID == "" {
		w.doc.Add(markdown.Video{})
		return
	}

	embed := fmt.Sprintf(videoEmbedFormat, m.Data.VID, m.Data.InKey)
	w.videos = append(w.videos, post.VideoRef{
		PlatformVideoID: m.Data.VID,
		EmbedURL:        embed,
		StreamType:      post.StreamOther,
		ThumbnailURL:    m.Data.Thumbnail,
	})
	w.doc.Add(markdown.Video{URL: embed})
}

func (w *walker) oembed(c *goquery.Selection) {
	src := ""
	if iframe := c.Find("iframe").First(); iframe.Length() > 0 {
		src = iframe.AttrOr("src", "")
	}
	if src == "" {
		// The iframe is often serialized into the module data.
		var m struct {
			Data struct {
				InputURL string `json:"inputUrl"`
			} `json:"data"`
		}
		if raw := c.Find("[data-module]").First().AttrOr("data-module", ""); raw != "" && json.Unmarshal([]byte(raw), &m) == nil {
			src = m.Data.InputURL
		}
	}
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}
	if src == "" {
		w.doc.Add(markdown.Video{})
		return
	}
	w.videos = append(w.videos, post.VideoRef{EmbedURL: src, StreamType: post.StreamOther})
	w.doc.Add(markdown.Video{URL: src})
}

func (w *walker) place(c *goquery.Selection) {
	c.Find(".se-map-info").Each(func(_ int, info *goquery.Selection) {
		name := collapse(info.Find(".se-map-title").Text())
		addr := collapse(info.Find(".se-map-address").Text())
		if name == "" {
			return
		}
		href := info.AttrOr("href", "")
		if href == "" {
			href = "https://map.naver.com/p/search/" + url.PathEscape(name)
		}
		title := name
		if addr != "" {
			title += " (" + addr + ")"
		}
		w.doc.Add(markdown.LinkEmbed{URL: href, Title: title})
	})
}

func (w *walker) noteImage(u string) {
	if w.firstImage == "" {
		w.firstImage = u
	}
}

// imageSource prefers lazy-load attributes over src.
func imageSource(img *goquery.Selection) string {
	for _, attr := range []string{"data-lazy-src", "data-src", "src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
