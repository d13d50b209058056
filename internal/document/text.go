// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package document

import (
	"strings"
	"unicode/utf8"

	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// FromText splits plain text into paragraphs on blank lines.
func FromText(name string, src []byte) (*Document, error) {
	if !utf8.Valid(src) {
		return nil, nyayaerr.New(nyayaerr.CodeDocumentParseInvalidFormat, "text document is not valid UTF-8")
	}

	doc := &Document{Name: name}
	normalized := strings.ReplaceAll(string(src), "\r\n", "\n")
	for _, para := range strings.Split(normalized, "\n\n") {
		doc.add(LabelText, 0, strings.Join(strings.Fields(para), " "))
	}
	return doc, nil
}
