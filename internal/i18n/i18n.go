// Package i18n selects the display language and translates message keys
// from catalogs embedded in the binary.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/erauner12/farmhand/internal/storage"
)

// Fallback is used for keys missing from the selected catalog
const Fallback = "en"

const languageKey = "language"

//go:embed locales/*.yaml
var localeFS embed.FS

// Catalog maps dotted keys ("auth.logged_out") to message formats
type Catalog map[string]string

// LoadCatalogs parses every embedded locale file
func LoadCatalogs() (map[string]Catalog, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	catalogs := make(map[string]Catalog, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}
		b, err := localeFS.ReadFile("locales/" + name)
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", name, err)
		}
		cat, err := ParseCatalog(b)
		if err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", name, err)
		}
		catalogs[strings.TrimSuffix(name, ".yaml")] = cat
	}
	return catalogs, nil
}

// ParseCatalog flattens a nested YAML document into dotted keys
func ParseCatalog(b []byte) (Catalog, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(b, &tree); err != nil {
		return nil, err
	}
	cat := Catalog{}
	flatten("", tree, cat)
	return cat, nil
}

func flatten(prefix string, node map[string]any, out Catalog) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case string:
			out[key] = val
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Translator holds the selected language
type Translator struct {
	store    storage.Store
	catalogs map[string]Catalog

	mu   sync.RWMutex
	lang string
}

// New loads the embedded catalogs and restores the persisted language
func New(store storage.Store) (*Translator, error) {
	catalogs, err := LoadCatalogs()
	if err != nil {
		return nil, err
	}
	if _, ok := catalogs[Fallback]; !ok {
		return nil, fmt.Errorf("missing %s catalog", Fallback)
	}

	t := &Translator{store: store, catalogs: catalogs, lang: Fallback}
	if store != nil {
		v, ok, err := store.Get(languageKey)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("failed to read language")
		case ok && t.Supported(v):
			t.lang = normalize(v)
		}
	}
	return t, nil
}

// Languages lists the available language tags
func (t *Translator) Languages() []string {
	langs := make([]string, 0, len(t.catalogs))
	for l := range t.catalogs {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Supported reports whether a catalog exists for tag. Region subtags
// ("fr-CA") match their base language.
func (t *Translator) Supported(tag string) bool {
	_, ok := t.catalogs[normalize(tag)]
	return ok
}

func (t *Translator) Language() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lang
}

// SetLanguage selects and persists tag
func (t *Translator) SetLanguage(tag string) error {
	if !t.Supported(tag) {
		return fmt.Errorf("unsupported language %q (available: %s)", tag, strings.Join(t.Languages(), ", "))
	}
	lang := normalize(tag)
	if t.store != nil {
		if err := t.store.Set(languageKey, lang); err != nil {
			return fmt.Errorf("store language: %w", err)
		}
	}
	t.mu.Lock()
	t.lang = lang
	t.mu.Unlock()
	return nil
}

// T translates key in the selected language, then English, then returns
// the key itself. args are applied with fmt.Sprintf.
func (t *Translator) T(key string, args ...any) string {
	lang := t.Language()

	format, ok := t.catalogs[lang][key]
	if !ok {
		format, ok = t.catalogs[Fallback][key]
	}
	if !ok {
		log.Debug().Str("key", key).Str("lang", lang).Msg("missing translation")
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}

func normalize(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return tag
}
