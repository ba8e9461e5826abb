package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straja-ai/piiscan/internal/recognize"
)

func TestNewBuildsEveryCategory(t *testing.T) {
	r, err := New(Options{})
	require.NoError(t, err)

	names := r.Names()
	assert.Len(t, names, len(table))
	assert.Equal(t, "PERSON_NAME", names[0])

	for _, n := range names {
		b, ok := r.Resolve(n)
		require.True(t, ok, n)
		assert.Equal(t, n, b.Name)
		assert.True(t, (b.Strategy == nil) != (b.Finder == nil), "%s must have exactly one resolver", n)
	}
}

func TestResolveAliasesAndCase(t *testing.T) {
	r, err := New(Options{})
	require.NoError(t, err)

	b, ok := r.Resolve("RELIGIOUS_AFFLICATION")
	require.True(t, ok)
	assert.Equal(t, "RELIGIOUS_AFFILIATION", b.Name)

	b, ok = r.Resolve(" BIOMETERIC_IDENTIFIER ")
	require.True(t, ok)
	assert.Equal(t, "BIOMETRIC_IDENTIFIER", b.Name)

	_, ok = r.Resolve("email")
	assert.False(t, ok)
	_, ok = r.Resolve("SHOE_SIZE")
	assert.False(t, ok)

	folded, err := New(Options{FoldNames: true})
	require.NoError(t, err)
	b, ok = folded.Resolve(" biometeric_identifier ")
	require.True(t, ok)
	assert.Equal(t, "BIOMETRIC_IDENTIFIER", b.Name)
	_, ok = folded.Resolve("Email")
	assert.True(t, ok)
}

func TestVariants(t *testing.T) {
	r, err := New(Options{})
	require.NoError(t, err)

	cases := map[string]string{
		"PERSON_NAME":  "deny_list",
		"TAX_ID":       "pattern",
		"ORGANIZATION": "model",
		"EMAIL":        "bespoke",
		"DATES":        "bespoke",
	}
	for name, want := range cases {
		b, ok := r.Resolve(name)
		require.True(t, ok)
		assert.Equal(t, want, b.Variant(), name)
	}

	b, _ := r.Resolve("ORGANIZATION")
	m, ok := b.Strategy.(*recognize.Model)
	require.True(t, ok)
	assert.Equal(t, "ORG", m.Target())
}

func TestLegacyShapes(t *testing.T) {
	r, err := New(Options{})
	require.NoError(t, err)
	scalar := map[string]bool{
		"PERSON_NAME": true, "TITLES": true, "DATES": true, "EMAIL": true, "ORGANIZATION": true,
		"LOCATION": true, "RELIGIOUS_AFFILIATION": true, "DRIVER_LICENSE": true,
	}
	for _, n := range r.Names() {
		b, _ := r.Resolve(n)
		if scalar[n] {
			assert.Equal(t, ShapeScalar, b.Legacy, n)
		} else {
			assert.Equal(t, ShapeList, b.Legacy, n)
		}
	}
}

func TestKnown(t *testing.T) {
	r, err := New(Options{})
	require.NoError(t, err)
	ok, unknown := r.Known([]string{"EMAIL", "ZZZ", "AAA"})
	assert.False(t, ok)
	assert.Equal(t, []string{"AAA", "ZZZ"}, unknown)

	ok, unknown = r.Known([]string{"EMAIL", "TAX_ID"})
	assert.True(t, ok)
	assert.Empty(t, unknown)
}

func TestFindEmails(t *testing.T) {
	got, err := findEmails(context.Background(), "write to a@b.com or ops.team@example.org, not @nobody")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a@b.com", got[0].Text)
	assert.Equal(t, "ops.team@example.org", got[1].Text)
}

func TestFindDatesUsesDisplayForm(t *testing.T) {
	got, err := findDates(context.Background(), "Signed 2020-01-15.")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Jan 15, 2020", got[0].Text)
	assert.Equal(t, "DATE", got[0].Label)
}

func TestDenyListOverride(t *testing.T) {
	r, err := New(Options{DenyLists: map[string][]string{"genders": {"agender"}}})
	require.NoError(t, err)
	b, _ := r.Resolve("GENDERS")
	d := b.Strategy.(*recognize.DenyList)
	assert.Equal(t, []string{"agender"}, d.Terms())

	_, err = New(Options{DenyLists: map[string][]string{"TAX_ID": {"x"}}})
	assert.Error(t, err)

	_, err = New(Options{DenyLists: map[string][]string{"GENDERS": {}}})
	assert.Error(t, err)
}

func TestLoadDenyLists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lists.yaml")
	require.NoError(t, os.WriteFile(path, []byte("titles:\n  - Capt.\n  - Chief\n"), 0o644))

	lists, err := LoadDenyLists(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Capt.", "Chief"}, lists["TITLES"])
	assert.NoError(t, ValidateDenyLists(lists))

	_, err = LoadDenyLists(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestBuiltinDenyListsCoverTable(t *testing.T) {
	lists, err := builtinDenyLists()
	require.NoError(t, err)
	for _, n := range DenyListCategories() {
		assert.NotEmpty(t, lists[n], n)
	}
}
