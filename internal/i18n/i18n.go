// Package i18n holds the message catalog. Prepare labels, warnings and
// suggestion labels produced by the session are message ids resolved here.
package i18n

import (
	"embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// EnvLang overrides the detected language
const EnvLang = "INSTALLERX_LANG"

//go:embed locales/*.toml
var localeFS embed.FS

var supported = []language.Tag{
	language.English,
	language.Chinese,
}

var (
	mu        sync.RWMutex
	bundle    *goi18n.Bundle
	localizer *goi18n.Localizer
	current   = language.English
)

// Init loads the catalogs and picks the language. lang comes from the
// configuration or --lang; when empty INSTALLERX_LANG, then the locale
// environment and finally the platform preference are consulted.
func Init(lang string) error {
	b := goi18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales: %w", err)
	}
	for _, entry := range entries {
		file := "locales/" + entry.Name()
		if _, err := b.LoadMessageFileFS(localeFS, file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	chosen := Match(candidates(lang)...)

	mu.Lock()
	bundle = b
	localizer = goi18n.NewLocalizer(b, chosen.String(), language.English.String())
	current = chosen
	mu.Unlock()
	return nil
}

// T translates id. An unknown id is returned unchanged so callers always
// have something to print.
func T(id string, data ...map[string]interface{}) string {
	mu.RLock()
	l := localizer
	mu.RUnlock()
	if l == nil {
		if err := Init(""); err != nil {
			fmt.Fprintf(os.Stderr, "i18n init failed: %v\n", err)
			return id
		}
		mu.RLock()
		l = localizer
		mu.RUnlock()
	}

	templateData := map[string]interface{}{}
	if len(data) > 0 && data[0] != nil {
		templateData = data[0]
	}
	msg, err := l.Localize(&goi18n.LocalizeConfig{
		MessageID:      id,
		TemplateData:   templateData,
		PluralCount:    templateData["Count"],
		DefaultMessage: &goi18n.Message{ID: id, Other: id},
	})
	if err != nil || msg == "" {
		return id
	}
	return msg
}

// Current returns the chosen language
func Current() language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Match picks the supported language closest to the given locale
// strings. POSIX forms such as zh_CN.UTF-8 are accepted.
func Match(locales ...string) language.Tag {
	var tags []language.Tag
	for _, l := range locales {
		if tag, ok := parseLocale(l); ok {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return language.English
	}
	_, index, confidence := language.NewMatcher(supported).Match(tags...)
	if confidence == language.No {
		return language.English
	}
	return supported[index]
}

func parseLocale(s string) (language.Tag, bool) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	if s == "" || s == "C" || s == "POSIX" {
		return language.Und, false
	}
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return language.Und, false
	}
	return tag, true
}

func candidates(lang string) []string {
	var out []string
	if lang != "" {
		out = append(out, lang)
	}
	for _, key := range []string{EnvLang, "LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		out = append(out, platformLocales()...)
	}
	return out
}
