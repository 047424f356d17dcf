package markdown

import (
	"strings"
)

// Accumulator collects the lines of the paragraph currently being read. It
// is either empty or accumulating; Flush is the only way back to empty.
type Accumulator struct {
	lines []string
}

// Push appends a line to the current paragraph.
func (a *Accumulator) Push(line string) {
	a.lines = append(a.lines, line)
}

// Empty reports whether no paragraph is in progress.
func (a *Accumulator) Empty() bool {
	return len(a.lines) == 0
}

// Flush ends the current paragraph, returning it and resetting the
// accumulator. ok is false when nothing was accumulated.
func (a *Accumulator) Flush() (p Paragraph, ok bool) {
	if len(a.lines) == 0 {
		return Paragraph{}, false
	}
	p = Paragraph{Lines: a.lines}
	a.lines = nil
	return p, true
}

// Doc builds an ordered block list from a single pass over a post body.
// Text is accumulated into paragraphs; every other block, an explicit break
// and the end of input flush the paragraph in progress first.
type Doc struct {
	acc    Accumulator
	blocks []Block
	videos []string
	seen   map[string]bool
}

// Text adds one line to the current paragraph. Blank lines end the
// paragraph instead.
func (d *Doc) Text(line string) {
	if IsBlank(line) {
		d.Break()
		return
	}
	d.acc.Push(strings.TrimRight(line, " \t "))
}

// Paragraphs splits text on newlines and feeds each segment through Text. A
// completely empty text is itself a paragraph boundary.
func (d *Doc) Paragraphs(text string) {
	if IsBlank(text) {
		d.Break()
		return
	}
	for _, seg := range strings.Split(text, "\n") {
		d.Text(seg)
	}
}

// Break ends the paragraph in progress, if any.
func (d *Doc) Break() {
	if p, ok := d.acc.Flush(); ok {
		d.blocks = append(d.blocks, p)
	}
}

// Add flushes the paragraph in progress and appends b.
func (d *Doc) Add(b Block) {
	d.Break()
	d.blocks = append(d.blocks, b)
	if v, ok := b.(Video); ok && v.ID != "" {
		d.noteVideo(v.ID)
	}
}

func (d *Doc) noteVideo(id string) {
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	if d.seen[id] {
		return
	}
	d.seen[id] = true
	d.videos = append(d.videos, id)
}

// VideoIDs returns the distinct video ids added so far, in document order.
func (d *Doc) VideoIDs() []string {
	out := make([]string, len(d.videos))
	copy(out, d.videos)
	return out
}

// Blocks flushes and returns the blocks built so far.
func (d *Doc) Blocks() []Block {
	d.Break()
	return d.blocks
}

// Empty reports whether the document has no blocks and no pending text.
func (d *Doc) Empty() bool {
	return len(d.blocks) == 0 && d.acc.Empty()
}

// Markdown flushes and renders the document as clean markdown.
func (d *Doc) Markdown() string {
	var lines []string
	for _, b := range d.Blocks() {
		lines = append(lines, b.Markdown()...)
		lines = append(lines, "")
	}
	return Clean(strings.Join(lines, "\n"))
}

// HTML flushes and renders the document as an HTML fragment.
func (d *Doc) HTML() string {
	var parts []string
	for _, b := range d.Blocks() {
		parts = append(parts, b.HTML())
	}
	return strings.Join(parts, "\n")
}

// Finish flushes the document and returns its markdown and HTML renderings.
func (d *Doc) Finish() (md, fragment string) {
	return d.Markdown(), d.HTML()
}
