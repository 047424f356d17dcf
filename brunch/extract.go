package brunch

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pevans/kimport/markdown"
	"github.com/pevans/kimport/media"
)

// body is an extracted post body.
type body struct {
	markdown string
	html     string
	videoIDs []string
	legacy   bool
}

// galleryImage is one entry of a grid gallery's data-app attribute.
type galleryImage struct {
	URL string `json:"url"`
	Src string `json:"src"`
}

// videoApp is the data-app attribute of a video item.
type videoApp struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// legacyItems returns the content items of a server-rendered post, or an
// empty selection when the page has no legacy container.
func legacyItems(doc *goquery.Document) *goquery.Selection {
	container := doc.Find(".wrap_body").First()
	if container.Length() == 0 {
		return container
	}
	return container.Find(".wrap_item").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered(".wrap_item").Length() == 0
	})
}

// extractLegacy walks the items of a server-rendered post in document
// order, classifying each by its item_type class.
func extractLegacy(items *goquery.Selection, normalize func(string) string) body {
	var d markdown.Doc

	items.Each(func(_ int, item *goquery.Selection) {
		switch {
		case item.HasClass("item_type_text"):
			legacyText(&d, item)
		case item.HasClass("item_type_img"):
			legacyImage(&d, item, normalize)
		case item.HasClass("item_type_gridGallery"):
			legacyGallery(&d, item, normalize)
		case item.HasClass("item_type_hr"):
			d.Add(markdown.Divider{})
		case item.HasClass("item_type_quotation"):
			text := markdown.TrimText(markdown.TextWithBreaks(item))
			if text != "" {
				d.Add(markdown.Quote{Text: text})
			}
		case item.HasClass("item_type_video"):
			d.Add(legacyVideo(item))
		case item.HasClass("item_type_opengraph"):
			legacyLink(&d, item)
		case item.Find("table").Length() > 0:
			if html, err := goquery.OuterHtml(item.Find("table").First()); err == nil {
				d.Add(markdown.NewTable(html))
			}
		default:
			d.Paragraphs(markdown.TextWithBreaks(item))
		}
	})

	md, fragment := d.Finish()
	return body{markdown: md, html: fragment, videoIDs: d.VideoIDs(), legacy: true}
}

func legacyText(d *markdown.Doc, item *goquery.Selection) {
	switch goquery.NodeName(item) {
	case "h1", "h2":
		d.Add(markdown.Heading{Level: 2, Text: collapse(item.Text())})
		return
	case "h3", "h4", "h5", "h6":
		d.Add(markdown.Heading{Level: 3, Text: collapse(item.Text())})
		return
	}
	d.Paragraphs(markdown.TextWithBreaks(item))
}

func legacyImage(d *markdown.Doc, item *goquery.Selection, normalize func(string) string) {
	src := imageSource(item.Find("img").First())
	if src == "" {
		return
	}
	d.Add(markdown.Image{URL: normalize(src), Caption: collapse(item.Find(".text_caption").Text())})
}

// legacyGallery prefers the data-app JSON array and falls back to the
// nested <img> tags when it is missing or unparseable.
func legacyGallery(d *markdown.Doc, item *goquery.Selection, normalize func(string) string) {
	var urls []string

	if raw, ok := item.Attr("data-app"); ok {
		var images []galleryImage
		if err := json.Unmarshal([]byte(raw), &images); err == nil {
			for _, img := range images {
				src := img.URL
				if src == "" {
					src = img.Src
				}
				if src != "" {
					urls = append(urls, normalize(src))
				}
			}
		}
	}
	if len(urls) == 0 {
		item.Find("img").Each(func(_ int, img *goquery.Selection) {
			if src := imageSource(img); src != "" {
				urls = append(urls, normalize(src))
			}
		})
	}
	if len(urls) == 0 {
		return
	}
	d.Add(markdown.Gallery{URLs: urls, Caption: collapse(item.Find(".text_caption").Text())})
}

// legacyVideo resolves a video item's id and URL: the data-app JSON id
// first, then an id derived from its URL, then a nested iframe.
func legacyVideo(item *goquery.Selection) markdown.Video {
	if raw, ok := item.Attr("data-app"); ok {
		var app videoApp
		_ = json.Unmarshal([]byte(raw), &app)
		id := app.ID
		if id == "" && app.URL != "" {
			id = media.ClipID(app.URL)
		}
		return markdown.Video{ID: id, URL: fixScheme(app.URL)}
	}

	src := fixScheme(strings.TrimSpace(item.Find("iframe").First().AttrOr("src", "")))
	if src == "" {
		return markdown.Video{}
	}
	return markdown.Video{ID: media.ClipID(src), URL: src}
}

func legacyLink(d *markdown.Doc, item *goquery.Selection) {
	a := item.Find("a[href]").First()
	href := strings.TrimSpace(a.AttrOr("href", ""))
	if href == "" {
		return
	}
	title := collapse(a.Find(".tit_og").Text())
	if title == "" {
		title = collapse(a.Text())
	}
	d.Add(markdown.LinkEmbed{URL: href, Title: title})
}

// imageSource prefers the lazy-load attribute over src.
func imageSource(img *goquery.Selection) string {
	for _, attr := range []string{"data-src", "data-lazy-src", "src"} {
		if v := strings.TrimSpace(img.AttrOr(attr, "")); v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	return ""
}

func fixScheme(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
