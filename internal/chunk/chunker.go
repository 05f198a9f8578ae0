// Package chunk splits extracted bookmark content into bounded, overlapping
// text chunks for embedding and indexing. Chunking is deterministic: the
// same document and options always yield the same chunk sequence.
package chunk

import (
	"strings"

	"github.com/markstash/markstash/internal/bookmark"
)

// Size defaults, tuned for embedding recall on web content.
const (
	DefaultMaxChars     = 2048
	DefaultOverlapChars = 200
)

// Options configures the chunker.
type Options struct {
	// MaxChars is the per-chunk size budget in characters.
	MaxChars int
	// OverlapChars is how much trailing text each chunk shares with the next.
	// Must be smaller than MaxChars.
	OverlapChars int
}

// Chunker splits documents by paragraph, then by sentence when a paragraph
// exceeds the budget, then by raw character window as a last resort.
type Chunker struct {
	opts Options
}

// New creates a Chunker, filling zero options with defaults.
func New(opts Options) *Chunker {
	if opts.MaxChars == 0 {
		opts.MaxChars = DefaultMaxChars
	}
	if opts.OverlapChars == 0 {
		opts.OverlapChars = DefaultOverlapChars
	}
	if opts.OverlapChars >= opts.MaxChars {
		opts.OverlapChars = opts.MaxChars / 4
	}
	return &Chunker{opts: opts}
}

// Split breaks a document's text into chunks. The first chunk is prefixed
// with the document header (title, description, tags) so bookmark-level
// context reaches the embedding space. Empty documents yield no chunks.
func (c *Chunker) Split(doc *bookmark.ContentDocument, tags []string) []string {
	if doc.Empty() {
		return nil
	}

	header := Header(doc.Title, doc.Description, tags)
	text := strings.TrimSpace(doc.Text)

	if text == "" {
		if header == "" {
			return nil
		}
		// Title/description-only bookmark: the header is the single chunk.
		return []string{header}
	}

	pieces := c.splitText(text)
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]string, 0, len(pieces))
	for i, p := range pieces {
		if i == 0 && header != "" {
			chunks = append(chunks, header+"\n"+p)
			continue
		}
		chunks = append(chunks, p)
	}
	return chunks
}

// Header renders the bookmark-level context block placed before the first
// chunk's text. Empty fields are omitted.
func Header(title, description string, tags []string) string {
	var b strings.Builder
	if title != "" {
		b.WriteString("Title: ")
		b.WriteString(title)
		b.WriteByte('\n')
	}
	if description != "" {
		b.WriteString("Description: ")
		b.WriteString(description)
		b.WriteByte('\n')
	}
	if len(tags) > 0 {
		b.WriteString("Tags: ")
		b.WriteString(strings.Join(tags, ", "))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// splitText packs paragraphs into chunks up to MaxChars, carrying
// OverlapChars of trailing text into each subsequent chunk.
func (c *Chunker) splitText(text string) []string {
	paragraphs := splitParagraphs(text)

	var chunks []string
	var cur strings.Builder

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		if len(chunks) > 0 && c.opts.OverlapChars > 0 {
			cur.WriteString(overlapTail(chunks[len(chunks)-1], c.opts.OverlapChars))
		}
	}

	for _, para := range paragraphs {
		if len(para) > c.opts.MaxChars {
			// Oversized paragraph: flush what we have, then split it down.
			flush()
			for _, piece := range c.splitOversized(para) {
				if cur.Len()+len(piece)+2 > c.opts.MaxChars && cur.Len() > 0 {
					flush()
				}
				if cur.Len() > 0 {
					cur.WriteString("\n\n")
				}
				cur.WriteString(piece)
			}
			continue
		}

		if cur.Len()+len(para)+2 > c.opts.MaxChars && cur.Len() > 0 {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}

	if s := strings.TrimSpace(cur.String()); s != "" {
		// Drop a trailing chunk that is pure overlap of the previous one.
		if len(chunks) == 0 || !strings.HasSuffix(chunks[len(chunks)-1], s) {
			chunks = append(chunks, s)
		}
	}
	return chunks
}

// splitOversized splits a single paragraph that exceeds the budget,
// preferring sentence boundaries and falling back to a hard window.
func (c *Chunker) splitOversized(para string) []string {
	sentences := splitSentences(para)

	var out []string
	var cur strings.Builder
	for _, s := range sentences {
		for len(s) > c.opts.MaxChars {
			// Pathological sentence: hard split.
			if cur.Len() > 0 {
				out = append(out, strings.TrimSpace(cur.String()))
				cur.Reset()
			}
			out = append(out, strings.TrimSpace(s[:c.opts.MaxChars]))
			s = s[c.opts.MaxChars:]
		}
		if cur.Len()+len(s)+1 > c.opts.MaxChars && cur.Len() > 0 {
			out = append(out, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// splitParagraphs splits on blank lines and normalizes whitespace.
func splitParagraphs(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences splits on sentence-ending punctuation followed by a space.
// Crude but deterministic; good enough for budget-respecting splits.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			if text[i+1] == ' ' || text[i+1] == '\n' {
				s := strings.TrimSpace(text[start : i+1])
				if s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// overlapTail returns up to n trailing characters of s, snapped forward to
// the next word boundary so overlap never starts mid-word.
func overlapTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	tail := s[len(s)-n:]
	if i := strings.IndexByte(tail, ' '); i >= 0 {
		tail = tail[i+1:]
	}
	return tail
}
