package brunch

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/pevans/kimport/markdown"
)

// Stages of island decoding, reported in post.NoContentError.Stage.
const (
	StageLocate       = "locate island"
	StageEntityDecode = "entity-decode island"
	StageUnescape     = "unescape island content"
	StageParse        = "parse island content"
)

var (
	propsAttr      = regexp.MustCompile(`data-props="([^"]+)"`)
	contentString  = regexp.MustCompile(`"content"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	errNoIsland    = errors.New("no data-props attribute")
	errNoContent   = errors.New(`no "content" string`)
	errNotJSONText = errors.New("decoded props are not JSON")
)

// islandError is a failure at one stage of island decoding.
type islandError struct {
	stage string
	err   error
}

func (e *islandError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *islandError) Unwrap() error { return e.err }

type islandDoc struct {
	Body []islandNode `json:"body"`
}

type islandNode struct {
	Type    string            `json:"type"`
	Data    []json.RawMessage `json:"data"`
	URL     string            `json:"url"`
	Caption string            `json:"caption"`
	Level   int               `json:"level"`
}

type islandSpan struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// decodeIsland pulls the post document out of the page's data-props
// attribute: locate the attribute, decode HTML entities, unescape the
// nested content string, then parse it.
func decodeIsland(page string) (*islandDoc, error) {
	m := propsAttr.FindStringSubmatch(page)
	if m == nil {
		return nil, &islandError{StageLocate, errNoIsland}
	}

	props := strings.TrimSpace(html.UnescapeString(m[1]))
	if !strings.HasPrefix(props, "{") {
		return nil, &islandError{StageEntityDecode, errNotJSONText}
	}

	cm := contentString.FindStringSubmatch(props)
	if cm == nil {
		return nil, &islandError{StageUnescape, errNoContent}
	}
	var content string
	if err := json.Unmarshal([]byte(`"`+cm[1]+`"`), &content); err != nil {
		return nil, &islandError{StageUnescape, err}
	}

	var doc islandDoc
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, &islandError{StageParse, err}
	}
	if doc.Body == nil {
		return nil, &islandError{StageParse, fmt.Errorf("content has no body array")}
	}
	return &doc, nil
}

// extractIsland renders an island document. Only text, heading, image,
// divider and quote nodes exist in this representation.
func extractIsland(doc *islandDoc, normalize func(string) string) body {
	var d markdown.Doc

	for _, node := range doc.Body {
		switch node.Type {
		case "text":
			d.Paragraphs(node.text())
		case "heading":
			level := node.Level
			if level == 0 {
				level = 2
			}
			d.Add(markdown.Heading{Level: level, Text: collapse(node.text())})
		case "image":
			if node.URL != "" {
				d.Add(markdown.Image{URL: normalize(node.URL), Caption: collapse(node.Caption)})
			}
		case "hr":
			d.Add(markdown.Divider{})
		case "quote":
			if text := markdown.TrimText(node.text()); text != "" {
				d.Add(markdown.Quote{Text: text})
			}
		}
	}

	md, fragment := d.Finish()
	return body{markdown: md, html: fragment}
}

// text concatenates a node's data spans: bare strings, text spans and
// line breaks.
func (n islandNode) text() string {
	var b strings.Builder
	for _, raw := range n.Data {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			b.WriteString(s)
			continue
		}
		var span islandSpan
		if json.Unmarshal(raw, &span) != nil {
			continue
		}
		switch span.Type {
		case "text":
			b.WriteString(span.Text)
		case "br":
			b.WriteString("\n")
		}
	}
	return b.String()
}
