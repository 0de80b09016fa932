package application

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/autosave"
)

// ErrUnknownField is returned when a draft file names a field that is not
// part of the form.
var ErrUnknownField = errors.New("application: unknown form field")

// Draft is one application being edited: its persistence key, its last
// known backend status, and the form content.
type Draft struct {
	OwnerID  string
	RecordID string
	Status   string
	Form     autosave.FormSnapshot
}

// Key returns the draft's persistence key.
func (d *Draft) Key() autosave.PersistenceKey {
	return autosave.PersistenceKey{OwnerID: d.OwnerID, RecordID: d.RecordID}
}

// draftFile is the TOML layout of a draft file.
type draftFile struct {
	OwnerID  string         `toml:"owner_id"`
	RecordID string         `toml:"record_id"`
	Status   string         `toml:"status,omitempty"`
	Fields   map[string]any `toml:"fields"`
}

// draftHeader is the part of draftFile above the [fields] table.
type draftHeader struct {
	OwnerID  string `toml:"owner_id"`
	RecordID string `toml:"record_id"`
	Status   string `toml:"status,omitempty"`
}

// LoadDraft reads a TOML draft file. Every form field is present in the
// returned snapshot, blank when the file omits it. List fields accept an
// array or a comma-separated string.
func LoadDraft(path string) (*Draft, error) {
	var f draftFile
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("application: reading draft %s: %w", path, err)
	}

	return f.toDraft()
}

// ParseDraft decodes draft file content.
func ParseDraft(data []byte) (*Draft, error) {
	var f draftFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("application: parsing draft: %w", err)
	}

	return f.toDraft()
}

func (f *draftFile) toDraft() (*Draft, error) {
	var unknown []string

	for name := range f.Fields {
		if !IsField(name) {
			unknown = append(unknown, name)
		}
	}

	if len(unknown) > 0 {
		slices.Sort(unknown)
		return nil, fmt.Errorf("%w: %v", ErrUnknownField, unknown)
	}

	form := EmptyForm()

	for _, name := range Fields {
		raw, ok := f.Fields[name]
		if !ok {
			continue
		}

		v, err := valueOf(name, raw)
		if err != nil {
			return nil, err
		}

		form = form.With(name, v)
	}

	return &Draft{OwnerID: f.OwnerID, RecordID: f.RecordID, Status: f.Status, Form: form}, nil
}

// EncodeDraft renders d as TOML with fields in form order.
func EncodeDraft(d *Draft) ([]byte, error) {
	var buf bytes.Buffer

	enc := toml.NewEncoder(&buf)

	header := draftHeader{OwnerID: d.OwnerID, RecordID: d.RecordID, Status: d.Status}
	if err := enc.Encode(header); err != nil {
		return nil, fmt.Errorf("application: encoding draft header: %w", err)
	}

	buf.WriteString("\n[fields]\n")

	for _, name := range Fields {
		v, _ := d.Form.Get(name)

		var val any = v.String()
		if IsListField(name) {
			items := v.Items()
			if !v.IsList() {
				items = autosave.NormalizeList(v)
			}

			if items == nil {
				items = []string{}
			}

			val = items
		}

		if err := enc.Encode(map[string]any{name: val}); err != nil {
			return nil, fmt.Errorf("application: encoding %s: %w", name, err)
		}
	}

	return buf.Bytes(), nil
}

// WriteDraft writes d to path atomically (temp file, then rename) so a
// watcher never reads a partial file.
func WriteDraft(path string, d *Draft) error {
	data, err := EncodeDraft(d)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".draft-*.tmp")
	if err != nil {
		return fmt.Errorf("application: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)

		return fmt.Errorf("application: writing draft: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("application: closing draft: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("application: renaming draft: %w", err)
	}

	return nil
}
