package tokenfile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func testSession() *File {
	return &File{
		Token: &oauth2.Token{
			AccessToken:  "access-123",
			RefreshToken: "refresh-456",
			TokenType:    "bearer",
			Expiry:       time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		UserID: "9b2c7d4e-0000-4000-8000-000000000001",
		Email:  "student@ufh.ac.za",
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Nil(t, f)
	assert.NoError(t, err)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	require.NoError(t, Save(path, testSession()))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "access-123", f.Token.AccessToken)
	assert.Equal(t, "refresh-456", f.Token.RefreshToken)
	assert.True(t, f.Token.Expiry.Equal(testSession().Token.Expiry))
	assert.Equal(t, testSession().UserID, f.UserID)
	assert.Equal(t, "student@ufh.ac.za", f.Email)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(FilePerms), info.Mode().Perm())
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")

	require.NoError(t, Save(path, testSession()))
	require.NoError(t, Save(path, testSession()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "session.json", entries[0].Name())
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid json", `{not json}`, "decoding"},
		{"no token", `{"user_id":"u"}`, "missing token"},
		{"empty access token", `{"token":{"access_token":""},"user_id":"u"}`, "missing token"},
		{"no user", `{"token":{"access_token":"a"}}`, "missing user id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))

			f, err := Load(path)
			assert.Nil(t, f)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, Save(path, testSession()))

	removed, err := Remove(path)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = Remove(path)
	require.NoError(t, err)
	assert.False(t, removed)
}
