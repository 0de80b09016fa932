package main

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/application"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/autosave"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/config"
	"github.com/DbyProsper/Fort-Hare-Tutors-Hub-sub000/internal/remote"
)

const (
	testOwner  = "student-7f3a"
	testRecord = "app-0192"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}

// writeTestDraft writes a draft for the test key with the given full name
// and returns its path.
func writeTestDraft(t *testing.T, dir string, form autosave.FormSnapshot) string {
	t.Helper()

	path := filepath.Join(dir, "application.toml")
	require.NoError(t, application.WriteDraft(path, &application.Draft{
		OwnerID:  testOwner,
		RecordID: testRecord,
		Status:   application.StatusDraft,
		Form:     form,
	}))

	return path
}

func namedForm(name string) autosave.FormSnapshot {
	return application.EmptyForm().
		With(application.FieldFullName, autosave.Text(name)).
		With(application.FieldSubjectsToTutor, autosave.Text("Mathematics, Physics"))
}

func completeForm() autosave.FormSnapshot {
	return application.EmptyForm().
		With(application.FieldFullName, autosave.Text("Sinethemba Mbeki")).
		With(application.FieldStudentNumber, autosave.Text("201912345")).
		With(application.FieldContactNumber, autosave.Text("082 123 4567")).
		With(application.FieldDegreeProgram, autosave.Text("BSc Computer Science")).
		With(application.FieldFaculty, autosave.Text("Science and Agriculture")).
		With(application.FieldYearOfStudy, autosave.Text("3")).
		With(application.FieldSubjectsToTutor, autosave.Text("Mathematics, Statistics")).
		With(application.FieldLanguagesSpoken, autosave.List("isiXhosa", "English")).
		With(application.FieldAvailability, autosave.Text("Weekday afternoons")).
		With(application.FieldMotivationLetter, autosave.Text(strings.Repeat("I enjoy helping first-years. ", 3)))
}

type listedDraft struct {
	OwnerID  string `json:"owner_id"`
	RecordID string `json:"record_id"`
}

func listPending(t *testing.T) []listedDraft {
	t.Helper()

	out, err := runCLI(t, "", "--json", "draft", "list")
	require.NoError(t, err)

	var got []listedDraft
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	return got
}

// --- draft new ---

func TestDraftNew_WritesEmptyDraft(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "mine.toml")

	out, err := runCLI(t, "", "--owner", testOwner, "draft", "new", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created "+path)

	d, err := application.LoadDraft(path)
	require.NoError(t, err)

	assert.Equal(t, testOwner, d.OwnerID)
	assert.Equal(t, application.StatusDraft, d.Status)
	assert.Equal(t, len(application.Fields), d.Form.Len())
	assert.True(t, d.Form.IsEmpty())

	_, err = uuid.Parse(d.RecordID)
	assert.NoError(t, err, "record id should be a UUID")
}

func TestDraftNew_UsesSavedTokenOwner(t *testing.T) {
	dir := isolateEnv(t)

	_, err := runCLI(t, "tok-abc\n", "--owner", "user-from-token", "token", "save")
	require.NoError(t, err)

	path := filepath.Join(dir, "mine.toml")
	_, err = runCLI(t, "", "draft", "new", "--record", "app-1", path)
	require.NoError(t, err)

	d, err := application.LoadDraft(path)
	require.NoError(t, err)
	assert.Equal(t, "user-from-token", d.OwnerID)
	assert.Equal(t, "app-1", d.RecordID)
}

func TestDraftNew_RefusesOverwrite(t *testing.T) {
	dir := isolateEnv(t)
	path := writeTestDraft(t, dir, namedForm("Ayanda"))

	_, err := runCLI(t, "", "--owner", testOwner, "draft", "new", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	d, err := application.LoadDraft(path)
	require.NoError(t, err)
	assert.Equal(t, testRecord, d.RecordID)
}

func TestDraftNew_NoOwner(t *testing.T) {
	dir := isolateEnv(t)

	_, err := runCLI(t, "", "draft", "new", filepath.Join(dir, "x.toml"))
	assert.ErrorIs(t, err, errNoOwner)
}

// --- draft save / list / replay ---

func TestDraftSave_UploadsDraft(t *testing.T) {
	dir := isolateEnv(t)
	backend := newFakeBackend(t)
	t.Setenv(config.EnvBaseURL, backend.srv.URL)
	t.Setenv(config.EnvAPIKey, "anon")

	path := writeTestDraft(t, dir, namedForm("Ayanda Dlamini"))

	out, err := runCLI(t, "", "draft", "save", path)
	require.NoError(t, err)
	assert.Contains(t, out, "All changes saved")

	row, ok := backend.row(testRecord)
	require.True(t, ok)
	assert.Equal(t, "Ayanda Dlamini", row[application.FieldFullName])
	assert.Equal(t, testOwner, row[application.ColumnUserID])
	assert.Equal(t, application.StatusDraft, row[application.ColumnStatus])
	assert.Equal(t, []any{"Mathematics", "Physics"}, row[application.FieldSubjectsToTutor])
	assert.Equal(t, []string{"Bearer anon"}, backend.auth)

	assert.Empty(t, listPending(t))
}

func TestDraftSave_OfflineStoresThenReplayUploads(t *testing.T) {
	dir := isolateEnv(t)
	backend := newFakeBackend(t)
	t.Setenv(config.EnvBaseURL, backend.srv.URL)

	path := writeTestDraft(t, dir, namedForm("Lwazi"))

	out, err := runCLI(t, "", "--offline", "draft", "save", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Offline")
	assert.Zero(t, backend.upsertCount())

	pending := listPending(t)
	require.Len(t, pending, 1)
	assert.Equal(t, listedDraft{OwnerID: testOwner, RecordID: testRecord}, pending[0])

	table, err := runCLI(t, "", "draft", "list")
	require.NoError(t, err)
	assert.Contains(t, table, "RECORD")
	assert.Contains(t, table, testRecord)

	_, err = runCLI(t, "", "--offline", "draft", "replay")
	require.Error(t, err, "replay needs the backend")

	_, err = runCLI(t, "", "draft", "replay")
	require.NoError(t, err)

	row, ok := backend.row(testRecord)
	require.True(t, ok)
	assert.Equal(t, "Lwazi", row[application.FieldFullName])
	assert.Empty(t, listPending(t))
}

func TestDraftSave_UnreachableBackendStoresLocally(t *testing.T) {
	dir := isolateEnv(t)
	backend := newFakeBackend(t)
	t.Setenv(config.EnvBaseURL, backend.srv.URL)
	backend.srv.Close()

	path := writeTestDraft(t, dir, namedForm("Lwazi"))

	out, err := runCLI(t, "", "draft", "save", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Offline")
	assert.Len(t, listPending(t), 1)
}

func TestDraftSave_RejectedKeepsLocalCopy(t *testing.T) {
	dir := isolateEnv(t)
	backend := newFakeBackend(t)
	backend.reject = true
	t.Setenv(config.EnvBaseURL, backend.srv.URL)

	path := writeTestDraft(t, dir, namedForm("Lwazi"))

	out, err := runCLI(t, "", "draft", "save", path)
	require.Error(t, err)
	assert.Contains(t, out, "Save failed")
	assert.Equal(t, 1, backend.upsertCount(), "client errors are not retried")

	assert.Len(t, listPending(t), 1)

	_, err = runCLI(t, "", "draft", "replay")
	require.Error(t, err)
	assert.ErrorIs(t, err, remote.ErrBadRequest)
	assert.Len(t, listPending(t), 1, "failed replay keeps the record")
}

func TestDraftSave_NoBackendConfigured(t *testing.T) {
	dir := isolateEnv(t)
	path := writeTestDraft(t, dir, namedForm("Lwazi"))

	_, err := runCLI(t, "", "draft", "save", path)
	assert.ErrorIs(t, err, errNoRemote)
}

func TestDraftSave_UsesSavedToken(t *testing.T) {
	dir := isolateEnv(t)
	backend := newFakeBackend(t)
	t.Setenv(config.EnvBaseURL, backend.srv.URL)
	t.Setenv(config.EnvAPIKey, "anon")

	_, err := runCLI(t, "  tok-abc  \n", "--owner", testOwner, "token", "save")
	require.NoError(t, err)

	path := writeTestDraft(t, dir, namedForm("Lwazi"))

	_, err = runCLI(t, "", "draft", "save", path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer tok-abc"}, backend.auth)
}

func TestDraftSave_SubmittedDraftIsRejected(t *testing.T) {
	dir := isolateEnv(t)
	path := filepath.Join(dir, "done.toml")
	require.NoError(t, application.WriteDraft(path, &application.Draft{
		OwnerID: testOwner, RecordID: testRecord, Status: application.StatusSubmitted, Form: completeForm(),
	}))

	_, err := runCLI(t, "", "draft", "save", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already submitted")
}

func TestDraftList_Empty(t *testing.T) {
	isolateEnv(t)

	out, err := runCLI(t, "", "draft", "list")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, listPending(t))
}

// --- draft submit ---

func TestDraftSubmit_IncompleteFormIsNotSent(t *testing.T) {
	dir := isolateEnv(t)
	backend := newFakeBackend(t)
	t.Setenv(config.EnvBaseURL, backend.srv.URL)

	path := writeTestDraft(t, dir, namedForm("Lwazi"))

	_, err := runCLI(t, "", "draft", "submit", path)
	require.Error(t, err)

	var verr *application.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, application.FieldStudentNumber)
	assert.Contains(t, verr.Fields, application.FieldMotivationLetter)
	assert.NotContains(t, verr.Fields, application.FieldFullName)
	assert.Zero(t, backend.upsertCount())
}

func TestDraftSubmit_SendsAndClearsStoredDraft(t *testing.T) {
	dir := isolateEnv(t)
	backend := newFakeBackend(t)
	t.Setenv(config.EnvBaseURL, backend.srv.URL)

	path := writeTestDraft(t, dir, completeForm())

	_, err := runCLI(t, "", "--offline", "draft", "save", path)
	require.NoError(t, err)
	require.Len(t, listPending(t), 1)

	_, err = runCLI(t, "", "draft", "submit", path)
	require.NoError(t, err)

	row, ok := backend.row(testRecord)
	require.True(t, ok)
	assert.Equal(t, application.StatusSubmitted, row[application.ColumnStatus])
	assert.InDelta(t, 3, row[application.FieldYearOfStudy], 0)

	assert.Empty(t, listPending(t), "a stored draft must not overwrite the submission later")

	d, err := application.LoadDraft(path)
	require.NoError(t, err)
	assert.Equal(t, application.StatusSubmitted, d.Status)

	_, err = runCLI(t, "", "draft", "submit", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already submitted")
}

func TestDraftSubmit_Offline(t *testing.T) {
	dir := isolateEnv(t)
	path := writeTestDraft(t, dir, completeForm())

	_, err := runCLI(t, "", "--offline", "draft", "submit", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--offline")
}

// --- draft pull ---

func TestDraftPull_WritesRemoteRecord(t *testing.T) {
	dir := isolateEnv(t)
	backend := newFakeBackend(t)
	t.Setenv(config.EnvBaseURL, backend.srv.URL)

	src := writeTestDraft(t, dir, namedForm("Ayanda Dlamini"))
	_, err := runCLI(t, "", "draft", "save", src)
	require.NoError(t, err)

	dst := filepath.Join(dir, "pulled.toml")
	_, err = runCLI(t, "", "draft", "pull", testRecord, dst)
	require.NoError(t, err)

	d, err := application.LoadDraft(dst)
	require.NoError(t, err)
	assert.Equal(t, testOwner, d.OwnerID)
	assert.Equal(t, testRecord, d.RecordID)

	name, _ := d.Form.Get(application.FieldFullName)
	assert.Equal(t, "Ayanda Dlamini", name.String())

	subjects, _ := d.Form.Get(application.FieldSubjectsToTutor)
	assert.Equal(t, []string{"Mathematics", "Physics"}, subjects.Items())
}

func TestDraftPull_UnknownRecord(t *testing.T) {
	dir := isolateEnv(t)
	backend := newFakeBackend(t)
	t.Setenv(config.EnvBaseURL, backend.srv.URL)

	_, err := runCLI(t, "", "draft", "pull", "missing", filepath.Join(dir, "x.toml"))
	assert.ErrorIs(t, err, remote.ErrNotFound)
}
