// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package document

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// FromMarkdown converts Markdown into a Document. ATX and setext headings
// become section headers at their level; the first level-1 heading of the
// file becomes the title. List items carry their nesting depth, starting at 1.
func FromMarkdown(name string, src []byte) (*Document, error) {
	root := markdown.Parser().Parse(text.NewReader(src))
	doc := &Document{Name: name}
	seenTitle := false
	listDepth := 0

	err := ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Heading:
			if !entering {
				return ast.WalkSkipChildren, nil
			}
			label, level := LabelSectionHeader, node.Level
			if level == 1 && !seenTitle {
				label, level, seenTitle = LabelTitle, 0, true
			}
			doc.add(label, level, inlineText(node, src))
			return ast.WalkSkipChildren, nil
		case *ast.List:
			if entering {
				listDepth++
			} else {
				listDepth--
			}
		case *ast.ListItem:
			if entering {
				doc.add(LabelListItem, listDepth, listItemText(node, src))
			}
		case *ast.Paragraph:
			if entering && !insideListItem(node) {
				doc.add(LabelText, 0, inlineText(node, src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.TextBlock:
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				doc.add(LabelCode, 0, blockLines(node, src))
			}
			return ast.WalkSkipChildren, nil
		case *extast.Table:
			if entering {
				doc.add(LabelTable, 0, markdownTable(node, src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (d *Document) add(label Label, level int, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	d.Items = append(d.Items, Item{Label: label, Level: level, Text: text})
}

func insideListItem(n ast.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Kind() == ast.KindListItem {
			return true
		}
	}
	return false
}

// listItemText collects the item's own paragraphs, leaving nested lists to
// be visited as their own items.
func listItemText(item *ast.ListItem, src []byte) string {
	var parts []string
	for c := item.FirstChild(); c != nil; c = c.NextSibling() {
		if c.Kind() == ast.KindList {
			continue
		}
		parts = append(parts, inlineText(c, src))
	}
	return strings.Join(parts, " ")
}

// inlineText flattens the inline content under n.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(src))
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

func blockLines(n ast.Node, src []byte) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	return strings.TrimRight(b.String(), "\n")
}

func markdownTable(tbl *extast.Table, src []byte) string {
	var rows []string
	for row := tbl.FirstChild(); row != nil; row = row.NextSibling() {
		var cells []string
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			cells = append(cells, inlineText(cell, src))
		}
		rows = append(rows, strings.Join(cells, " | "))
	}
	return strings.Join(rows, "\n")
}
