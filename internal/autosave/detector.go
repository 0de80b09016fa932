package autosave

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// listSeparator splits free-text list fields ("Maths, Physics").
const listSeparator = ","

// Detector decides whether a snapshot differs meaningfully from another.
// Comparison is structural over the field mapping. List-like fields (those
// named at construction, plus any field holding a list Value) compare by
// canonical content: NFC-normalized, split on commas, trimmed, empties
// dropped. Scalars compare after NFC normalization only. A missing field
// equals a blank one.
type Detector struct {
	listFields map[string]bool
}

// NewDetector returns a Detector treating the named fields as lists even
// when the UI supplies them as comma-separated text.
func NewDetector(listFields ...string) *Detector {
	d := &Detector{listFields: make(map[string]bool, len(listFields))}
	for _, name := range listFields {
		d.listFields[name] = true
	}

	return d
}

// Changed reports whether cur should be persisted given the previously
// recorded snapshot. With no previous snapshot, cur counts as changed only
// when at least one field is non-empty.
func (d *Detector) Changed(prev *FormSnapshot, cur FormSnapshot) bool {
	if prev == nil {
		return !cur.IsEmpty()
	}

	return !d.Equal(*prev, cur)
}

// Equal reports whether a and b carry the same canonical content.
func (d *Detector) Equal(a, b FormSnapshot) bool {
	ca := d.canonical(a)
	cb := d.canonical(b)

	if len(ca) != len(cb) {
		return false
	}

	for name, va := range ca {
		vb, ok := cb[name]
		if !ok || !slices.Equal(va, vb) {
			return false
		}
	}

	return true
}

// canonical maps each non-blank field to its normalized content. Blank
// fields are omitted so that absent and empty compare equal.
func (d *Detector) canonical(s FormSnapshot) map[string][]string {
	out := make(map[string][]string, s.Len())

	for _, f := range s.fields {
		var content []string
		if f.Value.IsList() || d.listFields[f.Name] {
			content = NormalizeList(f.Value)
		} else if !f.Value.IsEmpty() {
			content = []string{norm.NFC.String(f.Value.text)}
		}

		if len(content) > 0 {
			out[f.Name] = content
		}
	}

	return out
}

// NormalizeList returns the canonical items of a list-like value: each
// element (or comma-separated part of a scalar) NFC-normalized and trimmed,
// with empty parts dropped.
func NormalizeList(v Value) []string {
	var raw []string
	if v.IsList() {
		for _, item := range v.list {
			raw = append(raw, strings.Split(item, listSeparator)...)
		}
	} else {
		raw = strings.Split(v.text, listSeparator)
	}

	var items []string

	for _, part := range raw {
		part = strings.TrimSpace(norm.NFC.String(part))
		if part != "" {
			items = append(items, part)
		}
	}

	return items
}
