// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package chunker_test

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nyaya-dev/nyaya/internal/chunker"
	"github.com/nyaya-dev/nyaya/internal/document"
	"github.com/nyaya-dev/nyaya/internal/tokenizer"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordTokenizer counts whitespace-separated words, which keeps budgets easy
// to reason about in tests.
type wordTokenizer struct {
	ids   map[string]int
	words []string
}

func newWordTokenizer() *wordTokenizer {
	return &wordTokenizer{ids: map[string]int{}}
}

func (w *wordTokenizer) Encode(text string) []int {
	fields := strings.Fields(text)
	out := make([]int, len(fields))
	for i, f := range fields {
		id, ok := w.ids[f]
		if !ok {
			id = len(w.words)
			w.ids[f] = id
			w.words = append(w.words, f)
		}
		out[i] = id
	}
	return out
}

func (w *wordTokenizer) Decode(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = w.words[id]
	}
	return strings.Join(parts, " ")
}

func newChunker(t *testing.T, maxTokens int, merge bool) (*chunker.Chunker, *wordTokenizer) {
	t.Helper()
	tok := newWordTokenizer()
	c, err := chunker.New(tok, chunker.Options{MaxTokens: maxTokens, MergePeers: merge})
	require.NoError(t, err)
	return c, tok
}

func heading(level int, text string) document.Item {
	if level == 0 {
		return document.Item{Label: document.LabelTitle, Text: text}
	}
	return document.Item{Label: document.LabelSectionHeader, Level: level, Text: text}
}

func para(text string) document.Item {
	return document.Item{Label: document.LabelText, Text: text}
}

func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func TestChunk_ContextualizesWithHeadingLineage(t *testing.T) {
	c, _ := newChunker(t, 100, true)
	doc := &document.Document{Name: "constitution", Origin: "constitution.json", Items: []document.Item{
		heading(0, "Constitution of India"),
		heading(1, "Part III"),
		heading(2, "Article 21"),
		para("No person shall be deprived of his life or personal liberty."),
	}}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	ch := chunks[0]
	assert.Equal(t, "Constitution of India\nPart III\nArticle 21\nNo person shall be deprived of his life or personal liberty.", ch.Text)
	assert.Equal(t, "No person shall be deprived of his life or personal liberty.", ch.RawText)
	assert.Equal(t, []string{"Constitution of India", "Part III", "Article 21"}, ch.Headings)

	headings, _ := ch.Metadata["headings"].AsString()
	assert.Equal(t, "Constitution of India > Part III > Article 21", headings)
	chunkType, _ := ch.Metadata["chunk_type"].AsString()
	assert.Equal(t, chunker.ChunkType, chunkType)
	count, _ := ch.Metadata["token_count"].AsInt()
	assert.EqualValues(t, 18, count)
	source, _ := ch.Metadata["source_file"].AsString()
	assert.Equal(t, "constitution.json", source)
}

func TestChunk_HeadingStackPopsOnSiblingSections(t *testing.T) {
	c, _ := newChunker(t, 100, false)
	doc := &document.Document{Name: "d", Items: []document.Item{
		heading(1, "Part III"),
		heading(2, "Article 19"),
		para("Freedom of speech."),
		heading(2, "Article 21"),
		para("Right to life."),
		heading(1, "Part IV"),
		para("Directive principles."),
	}}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"Part III", "Article 19"}, chunks[0].Headings)
	assert.Equal(t, []string{"Part III", "Article 21"}, chunks[1].Headings)
	assert.Equal(t, []string{"Part IV"}, chunks[2].Headings)
}

func TestChunk_RespectsMaxTokens(t *testing.T) {
	const maxTokens = 12
	c, tok := newChunker(t, maxTokens, true)

	body := words("w", 40) + ". " + words("s", 5) + ".\n" + words("x", 30)
	doc := &document.Document{Name: "d", Items: []document.Item{heading(1, "Heading"), para(body)}}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	var rebuilt []string
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(tok.Encode(ch.Text)), maxTokens, "chunk %q", ch.Text)
		assert.True(t, strings.HasPrefix(ch.Text, "Heading\n"))
		rebuilt = append(rebuilt, strings.Fields(ch.RawText)...)
	}
	assert.Equal(t, strings.Fields(body), rebuilt, "splitting must not drop or reorder content")
}

func TestChunk_MergePeers(t *testing.T) {
	doc := &document.Document{Name: "d", Items: []document.Item{
		heading(1, "Preamble"),
		para("WE, THE PEOPLE OF INDIA,"),
		para("having solemnly resolved"),
		heading(1, "Part I"),
		para("India, that is Bharat."),
	}}

	merged, _ := newChunker(t, 50, true)
	chunks, err := merged.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2, "peers under one heading merge, different headings never do")
	assert.Equal(t, "Preamble\nWE, THE PEOPLE OF INDIA,\nhaving solemnly resolved", chunks[0].Text)

	unmerged, _ := newChunker(t, 50, false)
	chunks, err = unmerged.Chunk(doc)
	require.NoError(t, err)
	assert.Len(t, chunks, 3)
}

func TestChunk_MergeStopsAtBudget(t *testing.T) {
	c, tok := newChunker(t, 8, true)
	doc := &document.Document{Name: "d", Items: []document.Item{
		heading(1, "H"),
		para("a b c"),
		para("d e f"),
		para("g h i"),
	}}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "H\na b c\nd e f", chunks[0].Text)
	for _, ch := range chunks {
		assert.LessOrEqual(t, len(tok.Encode(ch.Text)), 8)
	}
}

func TestChunk_GroupsListItems(t *testing.T) {
	c, _ := newChunker(t, 100, false)
	doc := &document.Document{Name: "d", Items: []document.Item{
		heading(2, "Article 19"),
		{Label: document.LabelListItem, Level: 1, Text: "(a) freedom of speech"},
		{Label: document.LabelListItem, Level: 1, Text: "(b) to assemble"},
		{Label: document.LabelListItem, Level: 2, Text: "(i) peaceably"},
	}}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "(a) freedom of speech\n(b) to assemble\n  (i) peaceably", chunks[0].RawText)
	labels, _ := chunks[0].Metadata["labels"].AsString()
	assert.Equal(t, "list_item", labels)
}

func TestChunk_SkipsFurnitureAndBlankItems(t *testing.T) {
	c, _ := newChunker(t, 100, true)
	doc := &document.Document{Name: "d", Items: []document.Item{
		{Label: document.LabelPageHeader, Text: "THE CONSTITUTION OF INDIA"},
		para("   "),
		para("Content."),
		{Label: document.LabelPageFooter, Text: "12"},
	}}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Content.", chunks[0].Text)
	assert.Empty(t, chunks[0].Headings)
}

func TestChunk_DropsOutermostHeadingsThatExhaustTheBudget(t *testing.T) {
	c, tok := newChunker(t, 6, true)
	doc := &document.Document{Name: "d", Items: []document.Item{
		heading(1, words("long", 6)),
		heading(2, "Art"),
		para("x y"),
	}}

	chunks, err := c.Chunk(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Art"}, chunks[0].Headings)
	assert.LessOrEqual(t, len(tok.Encode(chunks[0].Text)), 6)
}

func TestChunk_Deterministic(t *testing.T) {
	doc := &document.Document{Name: "d", Items: []document.Item{
		heading(1, "Part"), para(words("a", 25)), para(words("b", 7)),
	}}
	c, _ := newChunker(t, 10, true)

	first, err := c.Chunk(doc)
	require.NoError(t, err)
	second, err := c.Chunk(doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestChunk_EmptyDocument(t *testing.T) {
	c, _ := newChunker(t, 10, true)
	chunks, err := c.Chunk(&document.Document{Name: "empty"})
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunk_InvalidDocumentFailsWhole(t *testing.T) {
	c, _ := newChunker(t, 10, true)
	chunks, err := c.Chunk(&document.Document{Name: "d", Items: []document.Item{para("ok"), {Label: "hologram", Text: "x"}}})
	require.Error(t, err)
	assert.Nil(t, chunks)
	assert.True(t, nyayaerr.IsDocumentFormat(err))
}

func TestNew_RejectsBadOptions(t *testing.T) {
	_, err := chunker.New(newWordTokenizer(), chunker.Options{MaxTokens: 0})
	require.Error(t, err)
	assert.True(t, nyayaerr.HasCode(err, nyayaerr.CodeChunkerOptionsInvalid))

	_, err = chunker.New(nil, chunker.Options{MaxTokens: 10})
	require.Error(t, err)
}

func TestChunk_WithBPETokenizer(t *testing.T) {
	tok, err := tokenizer.New("cl100k_base")
	require.NoError(t, err)
	c, err := chunker.New(tok, chunker.Options{MaxTokens: 64, MergePeers: true})
	require.NoError(t, err)

	var items []document.Item
	items = append(items, heading(0, "THE CONSTITUTION OF INDIA"))
	for art := 12; art < 36; art++ {
		items = append(items,
			heading(2, fmt.Sprintf("Article %d", art)),
			para(strings.Repeat(fmt.Sprintf("The State shall not deny to any person equality before the law under article %d. ", art), 4)),
		)
	}

	chunks, err := c.Chunk(&document.Document{Name: "constitution", Items: items})
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.LessOrEqual(t, tok.Count(ch.Text), 64)
		assert.True(t, strings.HasPrefix(ch.Text, "THE CONSTITUTION OF INDIA\nArticle "))
	}
}

func TestChunk_TokenWindowsKeepRunesWhole(t *testing.T) {
	tok, err := tokenizer.New("cl100k_base")
	require.NoError(t, err)
	c, err := chunker.New(tok, chunker.Options{MaxTokens: 50})
	require.NoError(t, err)

	text := strings.Repeat("भारतकासंविधानसर्वोच्चविधिहै", 20) + strings.Repeat("🇮🇳", 200)
	chunks, err := c.Chunk(&document.Document{Name: "constitution", Items: []document.Item{para(text)}})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	var raw strings.Builder
	for i, ch := range chunks {
		assert.True(t, utf8.ValidString(ch.Text), "chunk %d is not valid UTF-8: %q", i, ch.Text)
		assert.LessOrEqual(t, tok.Count(ch.Text), 50)
		raw.WriteString(ch.RawText)
	}
	assert.Equal(t, text, raw.String())
}
