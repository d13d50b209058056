// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nyaya Contributors

package document

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	nyayaerr "github.com/nyaya-dev/nyaya/pkg/errors"
)

// The subset of the docling document schema needed to recover reading order
// and heading structure. Items are reached from body through $ref links.
type doclingDocument struct {
	SchemaName string         `json:"schema_name"`
	Name       string         `json:"name"`
	Body       *doclingNode   `json:"body" validate:"required"`
	Groups     []doclingNode  `json:"groups" validate:"dive"`
	Texts      []doclingText  `json:"texts" validate:"dive"`
	Tables     []doclingTable `json:"tables" validate:"dive"`
}

type doclingRef struct {
	Ref string `json:"$ref" validate:"required,startswith=#/"`
}

type doclingNode struct {
	SelfRef  string       `json:"self_ref"`
	Label    string       `json:"label"`
	Children []doclingRef `json:"children" validate:"dive"`
}

type doclingText struct {
	SelfRef  string       `json:"self_ref" validate:"required"`
	Label    string       `json:"label" validate:"required"`
	Text     string       `json:"text"`
	Level    int          `json:"level" validate:"gte=0"`
	Children []doclingRef `json:"children" validate:"dive"`
}

type doclingTable struct {
	SelfRef  string       `json:"self_ref" validate:"required"`
	Children []doclingRef `json:"children" validate:"dive"`
	Data     struct {
		Grid [][]struct {
			Text string `json:"text"`
		} `json:"grid"`
	} `json:"data"`
}

var validate = validator.New()

// ignoredCollections hold content the pipeline does not index.
var ignoredCollections = map[string]bool{
	"pictures":        true,
	"key_value_items": true,
	"form_items":      true,
}

// checkboxMarks maps docling's form checkbox labels to the marker prefixed to
// their text.
var checkboxMarks = map[string]string{
	"checkbox_selected":   "[x] ",
	"checkbox_unselected": "[ ] ",
}

// DecodeDocling parses a docling JSON export. It fails without a partial
// result if the JSON is malformed, a reference dangles or loops, or an item
// carries an unknown label.
func DecodeDocling(data []byte) (*Document, error) {
	var raw doclingDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeDocumentParseInvalidFormat, "decoding docling JSON")
	}
	if err := validate.Struct(raw); err != nil {
		return nil, nyayaerr.Wrap(err, nyayaerr.CodeDocumentParseInvalidFormat, "docling JSON is missing required structure")
	}

	w := &doclingWalker{doc: &raw, visiting: map[string]bool{}, out: &Document{Name: raw.Name}}
	if err := w.children(raw.Body.Children, 0); err != nil {
		return nil, err
	}
	return w.out, nil
}

type doclingWalker struct {
	doc      *doclingDocument
	visiting map[string]bool
	out      *Document
}

func (w *doclingWalker) children(refs []doclingRef, depth int) error {
	for _, ref := range refs {
		if err := w.visit(ref.Ref, depth); err != nil {
			return err
		}
	}
	return nil
}

func (w *doclingWalker) visit(ref string, depth int) error {
	if w.visiting[ref] {
		return nyayaerr.Errorf(nyayaerr.CodeDocumentParseInvalidFormat, "docling reference cycle at %s", ref)
	}
	w.visiting[ref] = true
	defer delete(w.visiting, ref)

	collection, idx, err := splitRef(ref)
	if err != nil {
		return err
	}

	switch collection {
	case "texts":
		if idx >= len(w.doc.Texts) {
			return dangling(ref)
		}
		t := w.doc.Texts[idx]
		label, text := Label(t.Label), t.Text
		if mark, ok := checkboxMarks[t.Label]; ok {
			label, text = LabelText, mark+strings.TrimSpace(t.Text)
		}
		if !label.Valid() {
			return nyayaerr.Errorf(nyayaerr.CodeDocumentParseInvalidFormat, "%s has unknown label %q", ref, t.Label)
		}
		level := t.Level
		if label == LabelListItem {
			level = depth
		}
		if label == LabelTitle {
			level = 0
		}
		if strings.TrimSpace(t.Text) != "" {
			w.out.Items = append(w.out.Items, Item{Ref: ref, Label: label, Level: level, Text: text})
		}
		return w.children(t.Children, depth+1)
	case "groups":
		if idx >= len(w.doc.Groups) {
			return dangling(ref)
		}
		g := w.doc.Groups[idx]
		next := depth
		if g.Label == "list" || g.Label == "ordered_list" {
			next = depth + 1
		}
		return w.children(g.Children, next)
	case "tables":
		if idx >= len(w.doc.Tables) {
			return dangling(ref)
		}
		tbl := w.doc.Tables[idx]
		if text := tableText(tbl); text != "" {
			w.out.Items = append(w.out.Items, Item{Ref: ref, Label: LabelTable, Text: text})
		}
		return w.children(tbl.Children, depth)
	default:
		if ignoredCollections[collection] {
			return nil
		}
		return nyayaerr.Errorf(nyayaerr.CodeDocumentParseInvalidFormat, "unsupported docling reference %s", ref)
	}
}

func tableText(tbl doclingTable) string {
	rows := make([]string, 0, len(tbl.Data.Grid))
	for _, row := range tbl.Data.Grid {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, strings.TrimSpace(cell.Text))
		}
		line := strings.Join(cells, " | ")
		if strings.Trim(line, " |") != "" {
			rows = append(rows, line)
		}
	}
	return strings.Join(rows, "\n")
}

func splitRef(ref string) (string, int, error) {
	parts := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	if len(parts) != 2 {
		return "", 0, nyayaerr.Errorf(nyayaerr.CodeDocumentParseInvalidFormat, "malformed docling reference %q", ref)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil || idx < 0 {
		return "", 0, nyayaerr.Errorf(nyayaerr.CodeDocumentParseInvalidFormat, "malformed docling reference %q", ref)
	}
	return parts[0], idx, nil
}

func dangling(ref string) error {
	return nyayaerr.Errorf(nyayaerr.CodeDocumentParseInvalidFormat, "docling reference %s points past the end of its collection", ref)
}
