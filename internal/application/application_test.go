package application

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/autosave"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/remote"
)

var testKey = autosave.PersistenceKey{OwnerID: "user-1", RecordID: "app-1"}

// completeForm returns a form that passes submission checks.
func completeForm() autosave.FormSnapshot {
	return EmptyForm().
		With(FieldFullName, autosave.Text("Sinethemba Mbeki")).
		With(FieldStudentNumber, autosave.Text("201912345")).
		With(FieldDateOfBirth, autosave.Text("2002-04-17")).
		With(FieldContactNumber, autosave.Text("082 123 4567")).
		With(FieldDegreeProgram, autosave.Text("BSc Computer Science")).
		With(FieldFaculty, autosave.Text("Science and Agriculture")).
		With(FieldYearOfStudy, autosave.Text("3")).
		With(FieldSubjectsToTutor, autosave.Text("Mathematics, Statistics")).
		With(FieldLanguagesSpoken, autosave.List("isiXhosa", "English")).
		With(FieldAvailability, autosave.Text("Weekday afternoons")).
		With(FieldMotivationLetter, autosave.Text(strings.Repeat("I enjoy helping first-years. ", 3)))
}

type recordingUpserter struct {
	table string
	rows  []remote.Row
	err   error
}

func (u *recordingUpserter) Upsert(_ context.Context, table string, row remote.Row) error {
	u.table = table
	u.rows = append(u.rows, row)

	return u.err
}

func TestToRecord(t *testing.T) {
	now := time.Date(2026, 2, 10, 14, 30, 0, 0, time.FixedZone("SAST", 2*60*60))

	form := completeForm().
		With(FieldSubjectsCompleted, autosave.Text(" , ")).
		With(FieldGender, autosave.Text("  ")).
		With("favourite_colour", autosave.Text("green"))

	row := ToRecord(testKey, form, StatusDraft, now)

	assert.Equal(t, "app-1", row[ColumnID])
	assert.Equal(t, "user-1", row[ColumnUserID])
	assert.Equal(t, StatusDraft, row[ColumnStatus])
	assert.Equal(t, "2026-02-10T12:30:00Z", row[ColumnUpdatedAt])

	assert.Equal(t, []string{"Mathematics", "Statistics"}, row[FieldSubjectsToTutor])
	assert.Equal(t, []string{}, row[FieldSubjectsCompleted], "empty lists are arrays, not null")
	assert.Equal(t, 3, row[FieldYearOfStudy])
	assert.Nil(t, row[FieldGender])
	assert.Equal(t, "Sinethemba Mbeki", row[FieldFullName])
	assert.NotContains(t, row, "favourite_colour")
	assert.Len(t, row, len(Fields)+4)
}

func TestToRecord_UnparseableYearIsNull(t *testing.T) {
	row := ToRecord(testKey, EmptyForm().With(FieldYearOfStudy, autosave.Text("second")), StatusDraft, time.Now())
	assert.Nil(t, row[FieldYearOfStudy])
}

func TestFromRecord(t *testing.T) {
	row := remote.Row{
		"id":                "app-1",
		"user_id":           "user-1",
		"status":            "submitted",
		"full_name":         "Ayabonga",
		"year_of_study":     float64(2),
		"languages_spoken":  []any{"isiXhosa", "Sesotho"},
		"subjects_to_tutor": nil,
		"created_at":        "2026-01-01T00:00:00Z",
	}

	d, err := FromRecord(row)
	require.NoError(t, err)
	assert.Equal(t, testKey, d.Key())
	assert.Equal(t, "submitted", d.Status)
	assert.Equal(t, len(Fields), d.Form.Len())

	year, _ := d.Form.Get(FieldYearOfStudy)
	assert.Equal(t, "2", year.String())

	langs, _ := d.Form.Get(FieldLanguagesSpoken)
	assert.Equal(t, []string{"isiXhosa", "Sesotho"}, langs.Items())

	subjects, _ := d.Form.Get(FieldSubjectsToTutor)
	assert.True(t, subjects.IsList())
	assert.True(t, subjects.IsEmpty())

	_, err = FromRecord(remote.Row{"id": "x"})
	assert.Error(t, err)

	_, err = FromRecord(remote.Row{"id": "x", "user_id": "u", "languages_spoken": []any{1}})
	assert.ErrorContains(t, err, "list items must be strings")
}

func TestDraftPersister(t *testing.T) {
	up := &recordingUpserter{}
	p := NewDraftPersister(up, "tutor_applications")
	p.nowFunc = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, p.Upsert(t.Context(), testKey, completeForm()))
	require.Len(t, up.rows, 1)
	assert.Equal(t, "tutor_applications", up.table)
	assert.Equal(t, StatusDraft, up.rows[0][ColumnStatus])
	assert.Equal(t, "2026-01-02T03:04:05Z", up.rows[0][ColumnUpdatedAt])

	up.err = errors.New("boom")
	assert.Error(t, p.Upsert(t.Context(), testKey, completeForm()))
}

func TestValidator_CompleteFormPasses(t *testing.T) {
	assert.NoError(t, NewValidator().Check(completeForm()))
}

func TestValidator_ReportsEveryProblem(t *testing.T) {
	form := completeForm().
		With(FieldFullName, autosave.Text("   ")).
		With(FieldStudentNumber, autosave.Text("20-19")).
		With(FieldDateOfBirth, autosave.Text("17/04/2002")).
		With(FieldYearOfStudy, autosave.Text("9")).
		With(FieldSubjectsToTutor, autosave.Text(",")).
		With(FieldMotivationLetter, autosave.Text("Too short."))

	err := NewValidator().Check(form)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	assert.ElementsMatch(t, []string{
		FieldFullName, FieldStudentNumber, FieldDateOfBirth,
		FieldYearOfStudy, FieldSubjectsToTutor, FieldMotivationLetter,
	}, mapKeys(verr.Fields))

	assert.Equal(t, "full_name cannot be blank", verr.Fields[FieldFullName])
	assert.Contains(t, verr.Fields[FieldMotivationLetter], "50")
	assert.Contains(t, verr.Fields[FieldYearOfStudy], "7")
	assert.Contains(t, err.Error(), "not ready to submit")
}

func TestSubmit(t *testing.T) {
	up := &recordingUpserter{}
	d := &Draft{OwnerID: "user-1", RecordID: "app-1", Form: completeForm()}
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, Submit(t.Context(), up, "tutor_applications", NewValidator(), d, now))
	require.Len(t, up.rows, 1)
	assert.Equal(t, StatusSubmitted, up.rows[0][ColumnStatus])

	d.Form = d.Form.With(FieldFaculty, autosave.Text(""))

	var verr *ValidationError
	require.ErrorAs(t, Submit(t.Context(), up, "tutor_applications", NewValidator(), d, now), &verr)
	assert.Len(t, up.rows, 1, "an invalid draft is never sent")
}

func TestDraftFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "application.toml")
	d := &Draft{OwnerID: "user-1", RecordID: "app-1", Form: completeForm()}

	require.NoError(t, WriteDraft(path, d))

	loaded, err := LoadDraft(path)
	require.NoError(t, err)
	assert.Equal(t, d.Key(), loaded.Key())
	assert.True(t, NewDetector().Equal(d.Form, loaded.Form))

	subjects, _ := loaded.Form.Get(FieldSubjectsToTutor)
	assert.Equal(t, []string{"Mathematics", "Statistics"}, subjects.Items(), "comma text is written as an array")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Less(t,
		strings.Index(string(data), FieldFullName),
		strings.Index(string(data), FieldMotivationLetter),
		"fields are written in form order")
}

func TestParseDraft(t *testing.T) {
	d, err := ParseDraft([]byte(`
owner_id = "user-1"
record_id = "app-1"

[fields]
full_name = "Olwethu"
year_of_study = 2
subjects_to_tutor = "Physics, Chemistry"
languages_spoken = ["English"]
`))
	require.NoError(t, err)
	assert.Equal(t, len(Fields), d.Form.Len())

	year, _ := d.Form.Get(FieldYearOfStudy)
	assert.Equal(t, "2", year.String())

	subjects, _ := d.Form.Get(FieldSubjectsToTutor)
	assert.Equal(t, []string{"Physics", "Chemistry"}, autosave.NormalizeList(subjects))

	_, err = ParseDraft([]byte("owner_id = \"u\"\n[fields]\nfull_nme = \"x\"\n"))
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = ParseDraft([]byte("owner_id = \n"))
	assert.Error(t, err)
}

func mapKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	return keys
}
