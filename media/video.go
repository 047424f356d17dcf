package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pevans/kimport/fetch"
	"github.com/pevans/kimport/markdown"
	"github.com/pevans/kimport/post"
)

const (
	// DefaultPlayBaseURL is the Kakao TV playback API.
	DefaultPlayBaseURL = "https://play-tv.kakao.com"

	embedURLFormat = "https://tv.kakao.com/embed/player/cliplink/%s"
	highProfile    = "HIGH"
)

var (
	// ErrNoToken means the ready/play step returned no bearer token.
	ErrNoToken = errors.New("no playback token")

	// ErrNoStream means the streams step listed no usable encoding.
	ErrNoStream = errors.New("no playable stream")

	clipIDPattern = regexp.MustCompile(`(?:cliplink|v|clip)/(\d+)|[?&](?:clipid|vid)=(\d+)`)
)

// Doer performs one HTTP call. *fetch.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req fetch.Request) (*fetch.Response, error)
}

// EmbedURL is the player page for a Kakao TV clip.
func EmbedURL(id string) string {
	return fmt.Sprintf(embedURLFormat, id)
}

// ClipID extracts a Kakao TV clip id from a player or page URL.
func ClipID(rawURL string) string {
	m := clipIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// VideoResolver resolves Kakao TV clips to direct stream URLs through the
// two-step ready/play and streams handshake.
type VideoResolver struct {
	Client  Doer
	BaseURL string
}

type readyResponse struct {
	Token    string `json:"token"`
	ClipLink struct {
		Clip struct {
			ThumbnailURL string  `json:"thumbnailUrl"`
			Duration     float64 `json:"duration"`
		} `json:"clip"`
	} `json:"clipLink"`
}

type streamsResponse struct {
	IsDRM          bool `json:"isDrm"`
	VideoLocations []struct {
		Profile     string `json:"profile"`
		URL         string `json:"url"`
		ContentType string `json:"contentType"`
	} `json:"videoLocations"`
}

func (r *VideoResolver) base() string {
	if r.BaseURL != "" {
		return strings.TrimRight(r.BaseURL, "/")
	}
	return DefaultPlayBaseURL
}

// Resolve runs the handshake for clip id, passing pageURL as the referer.
// On error the returned ref still carries the id and embed URL.
func (r *VideoResolver) Resolve(ctx context.Context, id, pageURL string) (post.VideoRef, error) {
	ref := post.VideoRef{
		PlatformVideoID: id,
		EmbedURL:        EmbedURL(id),
		StreamType:      post.StreamHosted,
	}

	// Step 1: ready/play for a bearer token
	q := url.Values{}
	q.Set("player", "monet_html5")
	q.Set("service", "kakao_tv")
	q.Set("section", "channel")
	q.Set("profile", highProfile)
	q.Set("dteType", "PC")
	q.Set("referer", pageURL)
	readyURL := fmt.Sprintf("%s/katz/v4/ft/cliplink/%s/readyNplay?%s", r.base(), url.PathEscape(id), q.Encode())

	resp, err := r.Client.Do(ctx, fetch.Request{URL: readyURL, Referer: pageURL, AllowNonOK: true})
	if err != nil {
		return ref, fmt.Errorf("failed to request playback token: %w", err)
	}
	if resp.Status != http.StatusOK {
		return ref, &post.FetchError{URL: readyURL, Status: resp.Status}
	}
	var ready readyResponse
	if err := json.Unmarshal(resp.Body, &ready); err != nil {
		return ref, fmt.Errorf("failed to decode playback token: %w", err)
	}
	if ready.Token == "" {
		return ref, ErrNoToken
	}
	ref.ThumbnailURL = ready.ClipLink.Clip.ThumbnailURL
	ref.DurationSeconds = int(ready.ClipLink.Clip.Duration)

	// Step 2: streams with the token
	streamsURL := fmt.Sprintf("%s/katz/v4/ft/cliplink/%s/streams?%s", r.base(), url.PathEscape(id), url.Values{
		"player":  {"monet_html5"},
		"service": {"kakao_tv"},
		"profile": {highProfile},
	}.Encode())
	resp, err = r.Client.Do(ctx, fetch.Request{
		URL:     streamsURL,
		Referer: pageURL,
		Header:  http.Header{"Authorization": {"Bearer " + ready.Token}},
	})
	if err != nil {
		return ref, fmt.Errorf("failed to request streams: %w", err)
	}
	var streams streamsResponse
	if err := json.Unmarshal(resp.Body, &streams); err != nil {
		return ref, fmt.Errorf("failed to decode streams: %w", err)
	}

	// Protected assets keep only the embed page
	if streams.IsDRM {
		return ref, nil
	}

	chosen := -1
	for i, loc := range streams.VideoLocations {
		if loc.URL != "" && strings.EqualFold(loc.Profile, highProfile) {
			chosen = i
			break
		}
	}
	if chosen < 0 {
		for i, loc := range streams.VideoLocations {
			if loc.URL != "" && isMP4(loc.ContentType, loc.URL) {
				chosen = i
				break
			}
		}
	}
	if chosen < 0 {
		return ref, ErrNoStream
	}

	loc := streams.VideoLocations[chosen]
	ref.DirectStreamURL = loc.URL
	ref.QualityProfile = loc.Profile
	return ref, nil
}

// ResolveAll resolves ids one after another. Failures are logged and leave
// the corresponding ref unresolved; they never fail the post.
func (r *VideoResolver) ResolveAll(ctx context.Context, ids []string, pageURL string) []post.VideoRef {
	refs := make([]post.VideoRef, 0, len(ids))
	for _, id := range ids {
		if ctx.Err() != nil {
			refs = append(refs, post.VideoRef{PlatformVideoID: id, EmbedURL: EmbedURL(id), StreamType: post.StreamHosted})
			continue
		}
		ref, err := r.Resolve(ctx, id, pageURL)
		if err != nil {
			log.Printf("WARN: video %s on %s: %v", id, pageURL, err)
		}
		refs = append(refs, ref)
	}
	return refs
}

func isMP4(contentType, rawURL string) bool {
	if strings.Contains(strings.ToLower(contentType), "mp4") {
		return true
	}
	path := rawURL
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(strings.ToLower(path), ".mp4")
}

// Substitute replaces each video placeholder in md. A resolved video
// becomes an HTML5 video embed; an unresolved one becomes a link to its
// embed page, or is dropped when it has none.
func Substitute(md string, videos []post.VideoRef) string {
	done := make(map[string]bool, len(videos))
	for _, v := range videos {
		if v.PlatformVideoID == "" || done[v.PlatformVideoID] {
			continue
		}
		done[v.PlatformVideoID] = true
		md = strings.ReplaceAll(md, markdown.VideoToken(v.PlatformVideoID), EmbedLine(v))
	}
	return md
}

// EmbedLine is the markdown line standing for v in a post body.
func EmbedLine(v post.VideoRef) string {
	switch {
	case v.Resolved():
		if v.ThumbnailURL != "" {
			return fmt.Sprintf(`<video controls src="%s" poster="%s"></video>`, v.DirectStreamURL, v.ThumbnailURL)
		}
		return fmt.Sprintf(`<video controls src="%s"></video>`, v.DirectStreamURL)
	case v.EmbedURL != "":
		return "[Video](" + v.EmbedURL + ")"
	default:
		return ""
	}
}
