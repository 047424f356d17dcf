// Package media normalizes image URLs, resolves hosted videos to stream
// URLs and substitutes the results back into post markdown.
package media

import (
	"net/url"
	"strings"
)

// ImageMode selects how image URLs are emitted.
type ImageMode string

const (
	// ImageAsIs keeps the URL found in the page.
	ImageAsIs ImageMode = "default"
	// ImageOriginal rewrites CDN URLs to their full-size originals.
	ImageOriginal ImageMode = "cdn"
	// ImageLocal downloads images into the vault; see Localizer.
	ImageLocal ImageMode = "local"
)

// proxies maps wrapper hosts to the query parameter carrying the real URL.
var proxies = []struct {
	host  string
	path  string
	param string
}{
	{host: "daumcdn.net", path: "/thumb/", param: "fname"},
	{host: "dthumb-phinf.pstatic.net", param: "src"},
	{host: "search.pstatic.net", param: "src"},
}

// hostRewrites maps CDN hosts that serve resized copies to the host
// serving originals.
var hostRewrites = map[string]string{
	"postfiles.pstatic.net":        "blogfiles.pstatic.net",
	"mblogvideo-phinf.pstatic.net": "blogfiles.pstatic.net",
}

// NormalizeImage turns an extracted image URL into the URL of the
// full-size asset: protocol-relative URLs get https, proxy wrappers are
// unwrapped, and size/type parameters on Naver CDN URLs are dropped.
// URLs matching none of these rules are returned unchanged. Normalizing an
// already normalized URL is a no-op.
func NormalizeImage(raw string) string {
	u := fixScheme(strings.TrimSpace(raw))
	if u == "" {
		return u
	}

	// Wrappers can nest (a search proxy around a thumb proxy).
	for range 3 {
		inner, ok := unwrapProxy(u)
		if !ok {
			break
		}
		u = fixScheme(inner)
	}

	return rewriteCDN(u)
}

// Normalizer returns the URL transform for mode. ImageLocal normalizes like
// ImageOriginal; downloading happens later.
func Normalizer(mode ImageMode) func(string) string {
	if mode == ImageAsIs {
		return func(s string) string { return fixScheme(strings.TrimSpace(s)) }
	}
	return NormalizeImage
}

func fixScheme(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}

func unwrapProxy(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return "", false
	}
	host := u.Hostname()
	for _, p := range proxies {
		if host != p.host && !strings.HasSuffix(host, "."+p.host) {
			continue
		}
		if p.path != "" && !strings.HasPrefix(u.Path, p.path) {
			continue
		}
		inner := strings.Trim(u.Query().Get(p.param), `"'`)
		if inner == "" || inner == raw {
			return "", false
		}
		if !strings.HasPrefix(inner, "http") && !strings.HasPrefix(inner, "//") {
			return "", false
		}
		return inner, true
	}
	return "", false
}

func rewriteCDN(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(u.Hostname(), "pstatic.net") {
		return raw
	}

	changed := false
	if to, ok := hostRewrites[u.Hostname()]; ok {
		u.Host = to
		changed = true
	}
	if u.RawQuery != "" {
		q := u.Query()
		if q.Has("type") {
			q.Del("type")
			u.RawQuery = q.Encode()
			changed = true
		}
	}
	if !changed {
		return raw
	}
	return u.String()
}
