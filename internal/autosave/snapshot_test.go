package autosave

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormSnapshot_WithKeepsOrderAndCopies(t *testing.T) {
	base := NewSnapshot(
		Field{Name: "full_name", Value: Text("Yonela")},
		Field{Name: "email", Value: Text("y@ufh.ac.za")},
	)

	updated := base.With("full_name", Text("Yonela D.")).With("phone", Text("0821234567"))

	name, _ := base.Get("full_name")
	assert.Equal(t, "Yonela", name.String(), "With must not mutate the receiver")
	assert.Equal(t, 2, base.Len())

	var names []string
	for _, f := range updated.Fields() {
		names = append(names, f.Name)
	}

	assert.Equal(t, []string{"full_name", "email", "phone"}, names)
}

func TestFormSnapshot_JSONShape(t *testing.T) {
	snap := NewSnapshot(
		Field{Name: "full_name", Value: Text("Yonela")},
		Field{Name: "languages_spoken", Value: List("isiXhosa", "English")},
	)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"name":"full_name","value":"Yonela"},{"name":"languages_spoken","value":["isiXhosa","English"]}]`,
		string(data))

	var decoded FormSnapshot
	require.NoError(t, json.Unmarshal([]byte(`[{"name":"motivation","value":null},{"name":"languages_spoken","value":["English"]}]`), &decoded))

	v, ok := decoded.Get("languages_spoken")
	require.True(t, ok)
	assert.True(t, v.IsList())
	assert.Equal(t, []string{"English"}, v.Items())

	v, ok = decoded.Get("motivation")
	require.True(t, ok)
	assert.True(t, v.IsEmpty())
}

func TestFormSnapshot_RejectsNonStringValues(t *testing.T) {
	var decoded FormSnapshot
	err := json.Unmarshal([]byte(`[{"name":"year_of_study","value":3}]`), &decoded)
	assert.Error(t, err)
}

func TestPersistenceKey_FallbackKeyRoundTrip(t *testing.T) {
	key := PersistenceKey{OwnerID: "u-1", RecordID: "a-9"}
	assert.Equal(t, "autosave:u-1:a-9", key.FallbackKey())

	parsed, err := ParseFallbackKey(key.FallbackKey())
	require.NoError(t, err)
	assert.Equal(t, key, parsed)

	for _, bad := range []string{
		"draft:u-1:a-9", "autosave:u-1", "autosave::a-9", "autosave:u-1:", "autosave:u:1:2", "autosave:u-1:a%zz",
	} {
		_, err := ParseFallbackKey(bad)
		assert.ErrorIs(t, err, ErrBadFallbackKey, bad)
	}
}

func TestPersistenceKey_FallbackKeyEscapesSeparator(t *testing.T) {
	a := PersistenceKey{OwnerID: "a:b", RecordID: "c"}
	b := PersistenceKey{OwnerID: "a", RecordID: "b:c"}

	assert.NotEqual(t, a.FallbackKey(), b.FallbackKey())

	for _, key := range []PersistenceKey{a, b, {OwnerID: "Thabo M. (2nd year)", RecordID: "app 7%"}} {
		parsed, err := ParseFallbackKey(key.FallbackKey())
		require.NoError(t, err)
		assert.Equal(t, key, parsed)
	}
}

func TestPersistenceKey_Valid(t *testing.T) {
	assert.True(t, PersistenceKey{OwnerID: "u", RecordID: "r"}.Valid())
	assert.False(t, PersistenceKey{OwnerID: "u"}.Valid())
	assert.False(t, PersistenceKey{RecordID: "r"}.Valid())
}

func TestMemoryFallback_Capacity(t *testing.T) {
	store := NewMemoryFallback(1)
	ctx := t.Context()

	require.NoError(t, store.Set(ctx, "autosave:a:1", FallbackRecord{Timestamp: 1}))
	require.NoError(t, store.Set(ctx, "autosave:a:1", FallbackRecord{Timestamp: 2}), "overwrite fits")
	assert.ErrorIs(t, store.Set(ctx, "autosave:a:2", FallbackRecord{}), ErrStoreFull)

	rec, found, err := store.Get(ctx, "autosave:a:1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(2), rec.Timestamp)

	require.NoError(t, store.Delete(ctx, "autosave:a:1"))
	require.NoError(t, store.Delete(ctx, "autosave:a:1"))
	assert.Equal(t, 0, store.Len())
}
