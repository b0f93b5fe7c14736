// Package i18n holds the English and Arabic message catalogs and resolves the
// language of a request.
package i18n

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

const (
	English = "en"
	Arabic  = "ar"

	// LangParam is the query parameter used to select a language.
	LangParam = "lang"
	// LangCookieName stores the user's language preference.
	LangCookieName = "lang"
)

var supportedTags = []language.Tag{
	language.English,
	language.Arabic,
}

var tagMatcher = language.NewMatcher(supportedTags)

//go:embed locales/*/*.yaml
var embeddedCatalogFS embed.FS

type catalogFile struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Bundle maps locale -> key -> message.
type Bundle map[string]map[string]string

var defaultBundle = mustLoadAndRegister()

func mustLoadAndRegister() Bundle {
	bundle, err := LoadFromFS(embeddedCatalogFS)
	if err != nil {
		panic(err)
	}
	bundle.Register()
	return bundle
}

// Default returns the embedded catalogs.
func Default() Bundle {
	return defaultBundle
}

// LoadFromFS reads locales/<locale>/<namespace>.yaml files.
func LoadFromFS(catalogFS fs.FS) (Bundle, error) {
	paths, err := fs.Glob(catalogFS, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	bundle := Bundle{}
	for _, p := range paths {
		data, err := fs.ReadFile(catalogFS, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		localeFromPath := path.Base(path.Dir(p))
		if file.Locale != localeFromPath {
			return nil, fmt.Errorf("catalog %s: locale %q must match path locale %q", p, file.Locale, localeFromPath)
		}
		if bundle[file.Locale] == nil {
			bundle[file.Locale] = map[string]string{}
		}
		for key, value := range file.Messages {
			key = strings.TrimSpace(key)
			if _, exists := bundle[file.Locale][key]; exists {
				return nil, fmt.Errorf("catalog %s: duplicate key %q", p, key)
			}
			bundle[file.Locale][key] = value
		}
	}
	if _, ok := bundle[English]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", English)
	}
	return bundle, nil
}

// Register installs every message with x/text/message.
func (b Bundle) Register() {
	for locale, messages := range b {
		tag := Tag(locale)
		for key, value := range messages {
			message.SetString(tag, key, value)
		}
	}
}

// MissingKeys lists keys defined in English but not in locale.
func (b Bundle) MissingKeys(locale string) []string {
	var missing []string
	for key := range b[English] {
		if _, ok := b[locale][key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

// Normalize maps any language value onto a supported language code.
func Normalize(lang string) string {
	if tag, ok := parseTag(lang); ok {
		return code(tag)
	}
	return English
}

func Tag(lang string) language.Tag {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(lang)), Arabic) {
		return language.Arabic
	}
	return language.English
}

// T renders key in lang.
func T(lang string, key string, args ...any) string {
	return message.NewPrinter(Tag(lang)).Sprintf(key, args...)
}

// FormatTime renders t the way notifications show dates.
func FormatTime(t time.Time) string {
	return t.In(riyadh).Format("2006-01-02 15:04")
}

var riyadh = time.FixedZone("AST", 3*60*60)

// ResolveTag determines the best language tag for the request.
// The bool indicates whether the lang query param should be persisted as a cookie.
func ResolveTag(r *http.Request) (language.Tag, bool) {
	if r == nil {
		return language.English, false
	}

	if langValue := strings.TrimSpace(r.URL.Query().Get(LangParam)); langValue != "" {
		if tag, ok := parseTag(langValue); ok {
			return tag, true
		}
	}

	if cookie, err := r.Cookie(LangCookieName); err == nil {
		if tag, ok := parseTag(cookie.Value); ok {
			return tag, false
		}
	}

	if accept := strings.TrimSpace(r.Header.Get("Accept-Language")); accept != "" {
		if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
			_, index, confidence := tagMatcher.Match(tags...)
			if confidence != language.No {
				return supportedTags[index], false
			}
		}
	}

	return language.English, false
}

// ResolveLang is ResolveTag reduced to a language code.
func ResolveLang(r *http.Request) string {
	tag, _ := ResolveTag(r)
	return code(tag)
}

// SetLanguageCookie persists the selected language on the response.
func SetLanguageCookie(w http.ResponseWriter, tag language.Tag) {
	http.SetCookie(w, &http.Cookie{
		Name:     LangCookieName,
		Value:    code(tag),
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		SameSite: http.SameSiteLaxMode,
	})
}

type ctxKey struct{}

func WithLang(ctx context.Context, lang string) context.Context {
	return context.WithValue(ctx, ctxKey{}, Normalize(lang))
}

// FromContext returns the request language, English when unset.
func FromContext(ctx context.Context) string {
	if lang, ok := ctx.Value(ctxKey{}).(string); ok {
		return lang
	}
	return English
}

func parseTag(value string) (language.Tag, bool) {
	parsed, err := language.Parse(strings.TrimSpace(value))
	if err != nil {
		return language.Tag{}, false
	}
	base, _ := parsed.Base()
	for _, tag := range supportedTags {
		if b, _ := tag.Base(); b == base {
			return tag, true
		}
	}
	return language.Tag{}, false
}

func code(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}
