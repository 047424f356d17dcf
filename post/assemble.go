package post

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pevans/kimport/markdown"
)

// KST is the fixed +09:00 zone every supported platform publishes in.
var KST = time.FixedZone("KST", 9*60*60)

// episodePrefixes match the episode markers authors put in front of titles,
// e.g. "03화 ...", "EP.3 ...", "[3] ...". The first group is the number.
var episodePrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^\s*제?\s*(\d{1,4})\s*화\s*[.:\-]?\s*`),
	regexp.MustCompile(`^\s*(?i:ep)\.?\s*(\d{1,4})\s*[.:\-]?\s*`),
	regexp.MustCompile(`^\s*\[\s*(\d{1,4})\s*화?\s*\]\s*`),
	regexp.MustCompile(`^\s*#(\d{1,4})\s*[.:\-]?\s*`),
}

// Draft is what a platform facade hands to Assemble: the post fields it
// extracted plus the raw values that still need normalizing.
type Draft struct {
	Post
	PublishedAt time.Time
	RawTags     []string
}

// Assemble turns a draft into the final normalized post: the title loses
// episode and series prefixes, the publish date is normalized to a KST
// calendar date (today when unknown), tags are deduplicated in document
// order and any video placeholder left in the body is dropped.
func Assemble(d Draft, now time.Time) *Post {
	p := d.Post

	p.Title = collapseSpaces(p.Title)
	p.Subtitle = collapseSpaces(p.Subtitle)
	p.Title, p.Series = cleanTitle(p.Title, p.Series)

	published := d.PublishedAt
	if published.IsZero() {
		published = now
	}
	published = published.In(KST)
	p.PublishDate = time.Date(published.Year(), published.Month(), published.Day(), 0, 0, 0, 0, KST)

	var tags TagSet
	tags.Add(p.Tags...)
	tags.Add(d.RawTags...)
	p.Tags = tags.Slice()

	p.BodyMarkdown = markdown.Clean(markdown.StripVideoTokens(p.BodyMarkdown))

	return &p
}

// cleanTitle strips a leading series title and episode marker from title.
// The episode number is recorded on series when one is known.
func cleanTitle(title string, series *SeriesInfo) (string, *SeriesInfo) {
	original := title

	if series != nil && series.Title != "" {
		for _, prefix := range []string{"[" + series.Title + "]", series.Title} {
			if rest, ok := strings.CutPrefix(title, prefix); ok {
				title = strings.TrimLeft(rest, " -:|·")
				break
			}
		}
	}

	for _, re := range episodePrefixes {
		m := re.FindStringSubmatch(title)
		if m == nil {
			continue
		}
		title = title[len(m[0]):]
		if series != nil && series.EpisodeNumber == 0 {
			if n, err := strconv.Atoi(m[1]); err == nil {
				s := *series
				s.EpisodeNumber = n
				series = &s
			}
		}
		break
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return strings.TrimSpace(original), series
	}
	return title, series
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
