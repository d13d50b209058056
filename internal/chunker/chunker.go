// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package chunker splits a structured document into token-bounded,
// heading-aware chunks ready for embedding.
package chunker

import (
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/nyaya-dev/nyaya/internal/document"
	"github.com/nyaya-dev/nyaya/internal/vectorstore"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// DefaultMaxTokens matches the context the default embedding models accept
// comfortably.
const DefaultMaxTokens = 1000

// ChunkType is recorded in every chunk's metadata.
const ChunkType = "doc_chunk"

// Tokenizer converts between text and the token ids the budget is measured
// in. It must be the tokenizer of the embedding model.
type Tokenizer interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

type Options struct {
	MaxTokens  int
	MergePeers bool
}

// Chunk is a contiguous, contextualized span of a document.
type Chunk struct {
	// Text is the heading lineage followed by the span, one per line. This
	// is what gets embedded and stored.
	Text     string
	RawText  string
	Headings []string
	Metadata vectorstore.Metadata
}

type Chunker struct {
	tok  Tokenizer
	opts Options
}

func New(tok Tokenizer, opts Options) (*Chunker, error) {
	if tok == nil {
		return nil, nyayaerr.New(nyayaerr.CodeChunkerOptionsInvalid, "chunker requires a tokenizer")
	}
	if opts.MaxTokens <= 0 {
		return nil, nyayaerr.Errorf(nyayaerr.CodeChunkerOptionsInvalid, "max tokens must be positive, got %d", opts.MaxTokens)
	}
	return &Chunker{tok: tok, opts: opts}, nil
}

// segment is a run of content under one heading lineage before the token
// budget is applied.
type segment struct {
	headings []string
	labels   []document.Label
	text     string
	list     bool
}

// Chunk splits doc. Every returned chunk's Text fits within MaxTokens, and
// the same document and options always yield the same chunks. A document
// that fails validation yields an error and no chunks.
func (c *Chunker) Chunk(doc *document.Document) ([]Chunk, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	var pieces []segment
	for _, seg := range hierarchy(doc) {
		pieces = append(pieces, c.split(seg)...)
	}
	if c.opts.MergePeers {
		pieces = c.mergePeers(pieces)
	}

	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		text := contextualize(p.headings, p.text)
		md := vectorstore.Metadata{
			"chunk_type":  vectorstore.String(ChunkType),
			"headings":    vectorstore.String(strings.Join(p.headings, " > ")),
			"labels":      vectorstore.String(joinLabels(p.labels)),
			"token_count": vectorstore.Int(int64(c.count(text))),
		}
		if doc.Origin != "" {
			md["source_file"] = vectorstore.String(doc.Origin)
		}
		chunks = append(chunks, Chunk{
			Text:     text,
			RawText:  p.text,
			Headings: p.headings,
			Metadata: md,
		})
	}
	return chunks, nil
}

// hierarchy walks the items in order, tracking the heading stack. Each
// content item becomes a segment; consecutive list items under the same
// headings form a single segment.
func hierarchy(doc *document.Document) []segment {
	type heading struct {
		level int
		text  string
	}
	var stack []heading
	var out []segment

	lineage := func() []string {
		hs := make([]string, len(stack))
		for i, h := range stack {
			hs[i] = h.text
		}
		return hs
	}

	for _, item := range doc.Items {
		text := strings.TrimSpace(item.Text)
		switch {
		case item.Label.IsFurniture() || text == "":
			continue
		case item.Label.IsHeading():
			for len(stack) > 0 && stack[len(stack)-1].level >= item.Level {
				stack = stack[:len(stack)-1]
			}
			stack = append(stack, heading{level: item.Level, text: text})
		case item.Label == document.LabelListItem:
			if n := len(out); n > 0 && out[n-1].list && slices.Equal(out[n-1].headings, lineage()) {
				out[n-1].text += "\n" + indent(item.Level) + text
				out[n-1].labels = appendLabel(out[n-1].labels, item.Label)
				continue
			}
			out = append(out, segment{headings: lineage(), labels: []document.Label{item.Label}, text: indent(item.Level) + text, list: true})
		default:
			out = append(out, segment{headings: lineage(), labels: []document.Label{item.Label}, text: text})
		}
	}
	return out
}

// split cuts a segment whose contextualized text exceeds the budget, first
// on line and sentence boundaries, then by token windows.
func (c *Chunker) split(seg segment) []segment {
	seg.headings = c.fitHeadings(seg.headings)
	if c.fits(seg.headings, seg.text) {
		return []segment{seg}
	}

	var out []segment
	emit := func(text string) {
		text = strings.TrimSpace(text)
		if text != "" {
			out = append(out, segment{headings: seg.headings, labels: seg.labels, text: text})
		}
	}

	var current string
	for _, unit := range sentences(seg.text) {
		if c.fits(seg.headings, current+unit) {
			current += unit
			continue
		}
		emit(current)
		current = ""
		if c.fits(seg.headings, unit) {
			current = unit
			continue
		}
		for _, window := range c.windows(seg.headings, unit) {
			emit(window)
		}
	}
	emit(current)
	return out
}

// windows cuts text into consecutive token runs that each fit. A cut only
// lands where the decoded run is valid UTF-8, since byte-level tokens can
// split a multibyte rune.
func (c *Chunker) windows(headings []string, text string) []string {
	ids := c.tok.Encode(strings.TrimSpace(text))
	room := c.opts.MaxTokens - c.count(contextualize(headings, ""))
	if room < 1 {
		room = 1
	}

	var out []string
	for start := 0; start < len(ids); {
		end := min(start+room, len(ids))
		for end > start+1 {
			window := c.tok.Decode(ids[start:end])
			if utf8.ValidString(window) && c.fits(headings, window) {
				break
			}
			end--
		}
		// A single token holding part of a rune is extended to the rune's end.
		for end < len(ids) && !utf8.ValidString(c.tok.Decode(ids[start:end])) {
			end++
		}
		out = append(out, c.tok.Decode(ids[start:end]))
		start = end
	}
	return out
}

// fitHeadings drops the outermost headings until the lineage alone leaves
// room for content.
func (c *Chunker) fitHeadings(headings []string) []string {
	for len(headings) > 0 && c.count(contextualize(headings, ""))+1 > c.opts.MaxTokens {
		headings = headings[1:]
	}
	return headings
}

// mergePeers joins consecutive pieces that share a heading lineage while the
// result still fits.
func (c *Chunker) mergePeers(pieces []segment) []segment {
	var out []segment
	for _, p := range pieces {
		if n := len(out); n > 0 && slices.Equal(out[n-1].headings, p.headings) {
			merged := out[n-1].text + "\n" + p.text
			if c.fits(p.headings, merged) {
				out[n-1].text = merged
				out[n-1].list = false
				for _, l := range p.labels {
					out[n-1].labels = appendLabel(out[n-1].labels, l)
				}
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func (c *Chunker) fits(headings []string, text string) bool {
	return c.count(contextualize(headings, strings.TrimSpace(text))) <= c.opts.MaxTokens
}

func (c *Chunker) count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.tok.Encode(text))
}

func contextualize(headings []string, text string) string {
	if len(headings) == 0 {
		return text
	}
	return strings.Join(headings, "\n") + "\n" + text
}

// sentences splits text after line breaks and sentence-final punctuation,
// keeping separators so the units concatenate back to text.
func sentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		boundary := ch == '\n'
		if !boundary && strings.IndexByte(".;:!?", ch) >= 0 && i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\n') {
			i++
			boundary = true
		}
		if boundary {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// indent renders list nesting; depth 1 is flush left.
func indent(level int) string {
	return strings.Repeat("  ", max(level-1, 0))
}

func appendLabel(labels []document.Label, l document.Label) []document.Label {
	if slices.Contains(labels, l) {
		return labels
	}
	return append(labels, l)
}

func joinLabels(labels []document.Label) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = string(l)
	}
	return strings.Join(parts, ",")
}
