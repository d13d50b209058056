// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

// Package document holds the structure-aware form of a source file: an
// ordered list of labelled text items in reading order, with headings kept
// as items so that chunking can follow the section hierarchy.
package document

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// Label classifies a document item.
type Label string

const (
	LabelTitle         Label = "title"
	LabelSectionHeader Label = "section_header"
	LabelText          Label = "text"
	LabelParagraph     Label = "paragraph"
	LabelListItem      Label = "list_item"
	LabelCaption       Label = "caption"
	LabelFootnote      Label = "footnote"
	LabelCode          Label = "code"
	LabelFormula       Label = "formula"
	LabelTable         Label = "table"
	LabelReference     Label = "reference"
	LabelPageHeader    Label = "page_header"
	LabelPageFooter    Label = "page_footer"
)

var knownLabels = []Label{
	LabelTitle, LabelSectionHeader, LabelText, LabelParagraph, LabelListItem,
	LabelCaption, LabelFootnote, LabelCode, LabelFormula, LabelTable,
	LabelReference, LabelPageHeader, LabelPageFooter,
}

// Valid reports whether l is a label the chunker understands.
func (l Label) Valid() bool {
	return slices.Contains(knownLabels, l)
}

// IsHeading reports whether items with this label open a new section.
func (l Label) IsHeading() bool {
	return l == LabelTitle || l == LabelSectionHeader
}

// IsFurniture reports page decoration that carries no content.
func (l Label) IsFurniture() bool {
	return l == LabelPageHeader || l == LabelPageFooter
}

// Item is one labelled span of a document. Level is the heading depth for
// section headers (title is 0) and the nesting depth for list items.
type Item struct {
	Ref   string `json:"ref,omitempty"`
	Label Label  `json:"label"`
	Level int    `json:"level,omitempty"`
	Text  string `json:"text"`
}

// Document is a named, ordered list of items.
type Document struct {
	Name   string `json:"name"`
	Origin string `json:"origin,omitempty"`
	Items  []Item `json:"items"`
}

// Validate checks the invariants the chunker relies on.
func (d *Document) Validate() error {
	if d == nil {
		return nyayaerr.New(nyayaerr.CodeDocumentValidateInvalid, "document is nil")
	}
	if strings.TrimSpace(d.Name) == "" {
		return nyayaerr.New(nyayaerr.CodeDocumentValidateInvalid, "document name must not be empty")
	}
	for i, item := range d.Items {
		if !item.Label.Valid() {
			return nyayaerr.Errorf(nyayaerr.CodeDocumentValidateInvalid,
				"document %q: item %d has unknown label %q", d.Name, i, item.Label)
		}
		if item.Level < 0 {
			return nyayaerr.Errorf(nyayaerr.CodeDocumentValidateInvalid,
				"document %q: item %d has negative level %d", d.Name, i, item.Level)
		}
	}
	return nil
}

// Load reads a source file and converts it to a Document according to its
// extension. Extensions outside supported are rejected. Binary formats are
// not parsed here; they must be converted to docling JSON first.
func Load(path string, supported []string) (*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if len(supported) > 0 && !slices.Contains(supported, ext) {
		return nil, nyayaerr.New(nyayaerr.CodeDocumentFormatUnsupported,
			"unsupported document format "+ext, nyayaerr.FieldDocument(path))
	}

	switch ext {
	case ".pdf", ".docx":
		return nil, nyayaerr.New(nyayaerr.CodeDocumentFormatUnsupported,
			ext+" files must be converted to structured JSON first (docling --to json)",
			nyayaerr.FieldDocument(path))
	case ".json", ".md", ".markdown", ".txt":
	default:
		return nil, nyayaerr.New(nyayaerr.CodeDocumentFormatUnsupported,
			"unsupported document format "+ext, nyayaerr.FieldDocument(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeDocumentReadFailure, "reading document", nyayaerr.FieldDocument(path))
	}

	name := BaseName(path)

	var doc *Document
	switch ext {
	case ".json":
		doc, err = DecodeDocling(data)
		if err == nil && doc.Name == "" {
			doc.Name = name
		}
	case ".md", ".markdown":
		doc, err = FromMarkdown(name, data)
	default:
		doc, err = FromText(name, data)
	}
	if err != nil {
		return nil, nyayaerr.With(err, nyayaerr.FieldDocument(path))
	}

	doc.Origin = filepath.Base(path)
	return doc, nil
}

// BaseName strips the directory and every extension from path, so
// "data/constitution.docling.json" becomes "constitution".
func BaseName(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "."); i > 0 {
		return base[:i]
	}
	return base
}
