package markdown

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
)

var conv = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// Convert turns a raw HTML fragment into markdown. It is used for bodies
// that carry no block structure of their own, such as pre-SmartEditor posts.
// Relative links resolve against domain when it is non-empty.
func Convert(fragment, domain string) (string, error) {
	var opts []converter.ConvertOptionFunc
	if domain != "" {
		opts = append(opts, converter.WithDomain(domain))
	}
	md, err := conv.ConvertString(fragment, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}
	return Clean(md), nil
}

// TableMarkdown converts a table to a markdown table. When the converter
// fails the rows degrade to pipe-separated text.
func TableMarkdown(tableHTML string) string {
	md, err := conv.ConvertString(tableHTML)
	if err == nil && strings.TrimSpace(md) != "" {
		return strings.TrimSpace(md)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(tableHTML))
	if err != nil {
		return ""
	}
	var rows []string
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.Join(strings.Fields(cell.Text()), " "))
		})
		if len(cells) > 0 {
			rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
		}
	})
	return strings.Join(rows, "\n")
}
