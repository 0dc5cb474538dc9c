package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erauner12/farmhand/internal/storage"
)

func TestCatalogsShareKeys(t *testing.T) {
	catalogs, err := LoadCatalogs()
	require.NoError(t, err)
	require.Contains(t, catalogs, "en")
	require.Contains(t, catalogs, "fr")
	require.Contains(t, catalogs, "sw")

	for lang, cat := range catalogs {
		for key := range cat {
			assert.Contains(t, catalogs[Fallback], key, "%s has key %s missing from %s", lang, key, Fallback)
		}
	}
}

func TestParseCatalog_Flattens(t *testing.T) {
	cat, err := ParseCatalog([]byte("a:\n  b:\n    c: deep\n  n: 3\ntop: x\n"))
	require.NoError(t, err)
	assert.Equal(t, Catalog{"a.b.c": "deep", "a.n": "3", "top": "x"}, cat)

	_, err = ParseCatalog([]byte("a: [unterminated"))
	assert.Error(t, err)
}

func TestTranslate(t *testing.T) {
	tr, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, "en", tr.Language())
	assert.Equal(t, "Welcome back, Ann.", tr.T("auth.login_success", "Ann"))

	require.NoError(t, tr.SetLanguage("fr"))
	assert.Equal(t, "Bon retour, Ann.", tr.T("auth.login_success", "Ann"))

	// sw has no auth.login_prompt; English fills the gap
	require.NoError(t, tr.SetLanguage("sw"))
	assert.Equal(t, "Log in to continue.", tr.T("auth.login_prompt"))

	assert.Equal(t, "no.such.key", tr.T("no.such.key"))
}

func TestSetLanguage(t *testing.T) {
	store := storage.NewMemoryStore()
	tr, err := New(store)
	require.NoError(t, err)

	assert.Error(t, tr.SetLanguage("de"))
	assert.Equal(t, "en", tr.Language())

	require.NoError(t, tr.SetLanguage("FR-ca"))
	assert.Equal(t, "fr", tr.Language())

	again, err := New(store)
	require.NoError(t, err)
	assert.Equal(t, "fr", again.Language())
	assert.Equal(t, []string{"en", "fr", "sw"}, again.Languages())
}
