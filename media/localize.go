package media

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var imageRef = regexp.MustCompile(`!\[([^\]]*)\]\((https?://[^)\s]+)\)`)

// Getter fetches a URL body. *fetch.Client satisfies it.
type Getter interface {
	Get(ctx context.Context, rawURL, referer string) ([]byte, error)
}

// AssetWriter stores a binary file and returns the link to use for it in
// markdown.
type AssetWriter interface {
	WriteAsset(name string, data []byte) (string, error)
}

// Localizer downloads every remote image referenced in a post body and
// points the references at the stored copies.
type Localizer struct {
	Client Getter
	Assets AssetWriter
}

// Localize rewrites the image references in md. Images that fail to
// download keep their remote URL; the number of failures is returned.
func (l *Localizer) Localize(ctx context.Context, md, referer string) (string, int) {
	local := make(map[string]string)
	failed := 0

	for _, m := range imageRef.FindAllStringSubmatch(md, -1) {
		src := m[2]
		if _, ok := local[src]; ok {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		link, err := l.download(ctx, src, referer)
		if err != nil {
			log.Printf("WARN: image %s: %v", src, err)
			failed++
			local[src] = src
			continue
		}
		local[src] = link
	}

	out := imageRef.ReplaceAllStringFunc(md, func(ref string) string {
		m := imageRef.FindStringSubmatch(ref)
		return "![" + m[1] + "](" + local[m[2]] + ")"
	})
	return out, failed
}

func (l *Localizer) download(ctx context.Context, src, referer string) (string, error) {
	data, err := l.Client.Get(ctx, src, referer)
	if err != nil {
		return "", err
	}
	link, err := l.Assets.WriteAsset(AssetName(src), data)
	if err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}
	return link, nil
}

// AssetName derives a file name for an image URL from its last path
// segment.
func AssetName(src string) string {
	name := ""
	if u, err := url.Parse(src); err == nil {
		name = path.Base(u.Path)
	}
	if decoded, err := url.QueryUnescape(name); err == nil {
		name = decoded
	}
	if name == "/" || name == "." {
		return "image"
	}
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`/\:*?"<>|`, r) || r < 0x20 {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		return "image"
	}
	return name
}
