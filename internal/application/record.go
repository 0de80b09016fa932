package application

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/autosave"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/remote"
)

// ToRecord maps a form snapshot to a backend row for key. List fields
// become normalized string arrays (empty, never null). year_of_study
// becomes an integer, or null when blank or not a number. Other blank
// scalars become null. Fields outside the form are dropped.
func ToRecord(key autosave.PersistenceKey, snap autosave.FormSnapshot, status string, now time.Time) remote.Row {
	row := remote.Row{
		ColumnID:        key.RecordID,
		ColumnUserID:    key.OwnerID,
		ColumnStatus:    status,
		ColumnUpdatedAt: now.UTC().Format(time.RFC3339),
	}

	for _, name := range Fields {
		v, _ := snap.Get(name)

		switch {
		case IsListField(name):
			items := autosave.NormalizeList(v)
			if items == nil {
				items = []string{}
			}

			row[name] = items
		case name == FieldYearOfStudy:
			row[name] = parseYear(v.String())
		case v.IsEmpty():
			row[name] = nil
		default:
			row[name] = v.String()
		}
	}

	return row
}

// parseYear returns the year as an int, or nil when it is not a number.
func parseYear(s string) any {
	year, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return nil
	}

	return year
}

// FromRecord loads a backend row into a Draft. Unknown columns are ignored;
// missing or null form fields load blank.
func FromRecord(row remote.Row) (*Draft, error) {
	id, _ := row[ColumnID].(string)
	owner, _ := row[ColumnUserID].(string)

	if id == "" || owner == "" {
		return nil, fmt.Errorf("application: record is missing %s or %s", ColumnID, ColumnUserID)
	}

	status, _ := row[ColumnStatus].(string)

	form := EmptyForm()

	for _, name := range Fields {
		raw, ok := row[name]
		if !ok || raw == nil {
			continue
		}

		v, err := valueOf(name, raw)
		if err != nil {
			return nil, err
		}

		form = form.With(name, v)
	}

	return &Draft{OwnerID: owner, RecordID: id, Status: status, Form: form}, nil
}

// valueOf converts a decoded JSON or TOML value into a form Value.
func valueOf(name string, raw any) (autosave.Value, error) {
	switch x := raw.(type) {
	case string:
		return autosave.Text(x), nil
	case float64:
		return autosave.Text(strconv.FormatFloat(x, 'f', -1, 64)), nil
	case int64:
		return autosave.Text(strconv.FormatInt(x, 10)), nil
	case []string:
		return autosave.List(x...), nil
	case []any:
		items := make([]string, 0, len(x))

		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return autosave.Value{}, fmt.Errorf("application: %s: list items must be strings, got %T", name, item)
			}

			items = append(items, s)
		}

		return autosave.List(items...), nil
	default:
		return autosave.Value{}, fmt.Errorf("application: %s: unsupported value type %T", name, raw)
	}
}

// Upserter writes rows to a backend table.
type Upserter interface {
	Upsert(ctx context.Context, table string, row remote.Row) error
}

// DraftPersister is the autosave.Persister for tutor applications: every
// write is an upsert with status "draft".
type DraftPersister struct {
	client  Upserter
	table   string
	nowFunc func() time.Time
}

var _ autosave.Persister = (*DraftPersister)(nil)

// NewDraftPersister returns a persister writing to table.
func NewDraftPersister(client Upserter, table string) *DraftPersister {
	return &DraftPersister{client: client, table: table, nowFunc: time.Now}
}

// Upsert implements autosave.Persister.
func (p *DraftPersister) Upsert(ctx context.Context, key autosave.PersistenceKey, snap autosave.FormSnapshot) error {
	return p.client.Upsert(ctx, p.table, ToRecord(key, snap, StatusDraft, p.nowFunc()))
}
