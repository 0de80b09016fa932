package autosave

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Value is a single form field value: either a scalar string or a list of
// strings. The zero Value is the empty scalar.
type Value struct {
	text   string
	list   []string
	isList bool
}

// Text returns a scalar Value.
func Text(s string) Value {
	return Value{text: s}
}

// List returns a list Value. The items are copied.
func List(items ...string) Value {
	return Value{list: append([]string(nil), items...), isList: true}
}

// IsList reports whether v holds a list rather than a scalar.
func (v Value) IsList() bool {
	return v.isList
}

// Items returns a copy of the list items, or nil for a scalar.
func (v Value) Items() []string {
	if !v.isList {
		return nil
	}

	return append([]string(nil), v.list...)
}

// String returns the scalar text, or the list items joined with ", ".
func (v Value) String() string {
	if v.isList {
		return strings.Join(v.list, ", ")
	}

	return v.text
}

// IsEmpty reports whether the value carries no non-blank content.
func (v Value) IsEmpty() bool {
	if !v.isList {
		return strings.TrimSpace(v.text) == ""
	}

	for _, item := range v.list {
		if strings.TrimSpace(item) != "" {
			return false
		}
	}

	return true
}

// MarshalJSON encodes scalars as JSON strings and lists as string arrays.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isList {
		items := v.list
		if items == nil {
			items = []string{}
		}

		return json.Marshal(items)
	}

	return json.Marshal(v.text)
}

// UnmarshalJSON accepts a JSON string, an array of strings, or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err == nil && len(data) > 0 && data[0] == '[' {
		*v = List(items...)
		return nil
	}

	var text *string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("autosave: field value must be a string or string list: %w", err)
	}

	if text == nil {
		*v = Value{}
		return nil
	}

	*v = Text(*text)

	return nil
}

// Field is one named entry of a FormSnapshot.
type Field struct {
	Name  string `json:"name"`
	Value Value  `json:"value"`
}

// FormSnapshot is an ordered mapping from field name to value, capturing the
// whole editable form at one instant. Methods never mutate the receiver's
// backing storage, so a captured snapshot stays immutable.
type FormSnapshot struct {
	fields []Field
}

// NewSnapshot builds a snapshot from fields in order. A repeated name keeps
// its first position and takes the last value.
func NewSnapshot(fields ...Field) FormSnapshot {
	var s FormSnapshot
	for _, f := range fields {
		s = s.With(f.Name, f.Value)
	}

	return s
}

// With returns a copy of s with name set to v. Existing fields keep their
// position; new fields are appended.
func (s FormSnapshot) With(name string, v Value) FormSnapshot {
	out := make([]Field, len(s.fields), len(s.fields)+1)
	copy(out, s.fields)

	for i := range out {
		if out[i].Name == name {
			out[i].Value = v
			return FormSnapshot{fields: out}
		}
	}

	return FormSnapshot{fields: append(out, Field{Name: name, Value: v})}
}

// Get returns the value for name.
func (s FormSnapshot) Get(name string) (Value, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f.Value, true
		}
	}

	return Value{}, false
}

// Fields returns a copy of the ordered fields.
func (s FormSnapshot) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Len returns the number of fields.
func (s FormSnapshot) Len() int {
	return len(s.fields)
}

// IsEmpty reports whether every field is blank.
func (s FormSnapshot) IsEmpty() bool {
	for _, f := range s.fields {
		if !f.Value.IsEmpty() {
			return false
		}
	}

	return true
}

// MarshalJSON encodes the snapshot as an ordered array of fields.
func (s FormSnapshot) MarshalJSON() ([]byte, error) {
	fields := s.fields
	if fields == nil {
		fields = []Field{}
	}

	return json.Marshal(fields)
}

// UnmarshalJSON decodes an ordered array of fields.
func (s *FormSnapshot) UnmarshalJSON(data []byte) error {
	var fields []Field
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("autosave: decoding snapshot: %w", err)
	}

	*s = NewSnapshot(fields...)

	return nil
}

// PersistenceKey identifies the backend record a form's autosave targets.
type PersistenceKey struct {
	OwnerID  string
	RecordID string
}

// Valid reports whether both parts are present. An invalid key disables
// autosave entirely.
func (k PersistenceKey) Valid() bool {
	return k.OwnerID != "" && k.RecordID != ""
}

// String returns "owner/record" for logs.
func (k PersistenceKey) String() string {
	return k.OwnerID + "/" + k.RecordID
}

// fallbackKeyPrefix namespaces fallback entries in the shared local store.
const fallbackKeyPrefix = "autosave:"

// FallbackKey derives the Local Fallback Store key for k. Both parts are
// query-escaped, so a ":" inside an ID cannot shift the separator.
func (k PersistenceKey) FallbackKey() string {
	return fallbackKeyPrefix + url.QueryEscape(k.OwnerID) + ":" + url.QueryEscape(k.RecordID)
}

// ErrBadFallbackKey is returned by ParseFallbackKey for foreign keys.
var ErrBadFallbackKey = errors.New("autosave: not a fallback key")

// ParseFallbackKey is the inverse of PersistenceKey.FallbackKey.
func ParseFallbackKey(key string) (PersistenceKey, error) {
	rest, ok := strings.CutPrefix(key, fallbackKeyPrefix)
	if !ok {
		return PersistenceKey{}, fmt.Errorf("%w: %q", ErrBadFallbackKey, key)
	}

	rawOwner, rawRecord, ok := strings.Cut(rest, ":")
	if !ok || rawOwner == "" || rawRecord == "" || strings.Contains(rawRecord, ":") {
		return PersistenceKey{}, fmt.Errorf("%w: %q", ErrBadFallbackKey, key)
	}

	owner, err := url.QueryUnescape(rawOwner)
	if err != nil {
		return PersistenceKey{}, fmt.Errorf("%w: %q: %w", ErrBadFallbackKey, key, err)
	}

	record, err := url.QueryUnescape(rawRecord)
	if err != nil {
		return PersistenceKey{}, fmt.Errorf("%w: %q: %w", ErrBadFallbackKey, key, err)
	}

	return PersistenceKey{OwnerID: owner, RecordID: record}, nil
}

// FallbackRecord is an unsaved snapshot held in the Local Fallback Store.
// Timestamp is Unix milliseconds at the time of the write.
type FallbackRecord struct {
	Snapshot  FormSnapshot `json:"snapshot"`
	Timestamp int64        `json:"timestamp"`
}
