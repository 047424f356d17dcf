package post

import "strings"

// TagSet is an insertion-ordered set of tags. The zero value is ready to use.
type TagSet struct {
	order []string
	seen  map[string]struct{}
}

// Add inserts each tag that is not already present. Tags are trimmed and a
// leading '#' is dropped; empty tags are ignored.
func (s *TagSet) Add(tags ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, tag := range tags {
		tag = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
		if tag == "" {
			continue
		}
		if _, ok := s.seen[tag]; ok {
			continue
		}
		s.seen[tag] = struct{}{}
		s.order = append(s.order, tag)
	}
}

// Len returns the number of distinct tags.
func (s *TagSet) Len() int {
	return len(s.order)
}

// Slice returns the tags in insertion order. The result is never nil.
func (s *TagSet) Slice() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
