package discovery

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Meta returns the content of the first <meta> tag whose property or name
// equals one of keys and is non-empty.
func Meta(doc *goquery.Document, keys ...string) string {
	for _, key := range keys {
		for _, attr := range []string{"property", "name", "itemprop"} {
			v := strings.TrimSpace(doc.Find(`meta[` + attr + `="` + key + `"]`).First().AttrOr("content", ""))
			if v != "" {
				return v
			}
		}
	}
	return ""
}

// FirstText returns the collapsed text of the first selector that matches
// something non-empty.
func FirstText(doc *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if v := strings.Join(strings.Fields(doc.Find(sel).First().Text()), " "); v != "" {
			return v
		}
	}
	return ""
}

// Count parses a displayed engagement count such as "1,204". ok is false
// when s holds no number.
func Count(s string) (int, bool) {
	s = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// timeLayouts are the timestamp formats found in article meta tags.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006.01.02. 15:04",
	"2006. 1. 2. 15:04",
	"2006-01-02",
}

// ParseTime parses s with the known layouts. Times without a zone are
// taken to be in loc. Epoch milliseconds are accepted too.
func ParseTime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 1e11 {
		return time.UnixMilli(ms).In(loc), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
