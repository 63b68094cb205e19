// Package i18n loads the user-facing message catalogs. Spanish is the
// default language; English is available per request via Accept-Language.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sync"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// DefaultLang is used when no requested language matches.
const DefaultLang = "es"

// Translator renders message ids in one language.
type Translator struct {
	bundle    *goi18n.Bundle
	localizer *goi18n.Localizer
	lang      string
}

// New loads every embedded catalog and returns a Translator for lang.
func New(lang string) (*Translator, error) {
	bundle := goi18n.NewBundle(language.Spanish)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, f.Name()); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.Name(), err)
		}
	}

	if lang == "" {
		lang = DefaultLang
	}
	return &Translator{
		bundle:    bundle,
		localizer: goi18n.NewLocalizer(bundle, lang, DefaultLang),
		lang:      lang,
	}, nil
}

var (
	defaultOnce sync.Once
	defaultT    *Translator
)

// Default returns the shared Spanish translator.
func Default() *Translator {
	defaultOnce.Do(func() {
		t, err := New(DefaultLang)
		if err != nil {
			panic(err) // embedded catalogs are part of the binary
		}
		defaultT = t
	})
	return defaultT
}

// For returns a Translator sharing t's catalogs for the given languages,
// typically the raw Accept-Language header.
func (t *Translator) For(langs ...string) *Translator {
	if t == nil {
		t = Default()
	}
	all := append(langs, t.lang, DefaultLang)
	return &Translator{
		bundle:    t.bundle,
		localizer: goi18n.NewLocalizer(t.bundle, all...),
		lang:      t.lang,
	}
}

// T translates id. Unknown ids come back unchanged.
func (t *Translator) T(id string) string {
	return t.Tf(id, nil)
}

// Tf translates id, filling template fields from data.
func (t *Translator) Tf(id string, data map[string]any) string {
	if t == nil {
		t = Default()
	}
	msg, err := t.localizer.Localize(&goi18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil {
		return id
	}
	return msg
}
