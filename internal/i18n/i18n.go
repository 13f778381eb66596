// Package i18n provides UI text lookup for the supported locales.
// A Locale is an explicit value passed to whatever formats text; there is
// no process-wide current language.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Supported lists the locales with a catalog. English is the fallback.
var Supported = []language.Tag{
	language.English,
	language.Japanese,
	language.Korean,
	language.Chinese,
}

// Bundle holds the catalogs of all supported locales.
type Bundle struct {
	builder  *catalog.Builder
	matcher  language.Matcher
	english  *message.Printer
	messages map[language.Tag]map[string]string
}

var (
	defaultOnce   sync.Once
	defaultBundle *Bundle
	defaultErr    error
)

// Default returns the bundle built from the embedded catalogs.
func Default() *Bundle {
	defaultOnce.Do(func() {
		defaultBundle, defaultErr = Load()
	})
	if defaultErr != nil {
		panic(fmt.Sprintf("i18n: embedded catalogs: %v", defaultErr))
	}
	return defaultBundle
}

// Load parses the embedded catalogs.
func Load() (*Bundle, error) {
	b := &Bundle{
		builder:  catalog.NewBuilder(catalog.Fallback(language.English)),
		matcher:  language.NewMatcher(Supported),
		messages: make(map[language.Tag]map[string]string, len(Supported)),
	}
	for _, tag := range Supported {
		data, err := localeFS.ReadFile(path.Join("locales", tag.String()+".yaml"))
		if err != nil {
			return nil, fmt.Errorf("read %s catalog: %w", tag, err)
		}
		if err := b.add(tag, data); err != nil {
			return nil, err
		}
	}
	b.english = message.NewPrinter(language.English, message.Catalog(b.builder))
	return b, nil
}

func (b *Bundle) add(tag language.Tag, data []byte) error {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("parse %s catalog: %w", tag, err)
	}

	flat := b.messages[tag]
	if flat == nil {
		flat = make(map[string]string)
		b.messages[tag] = flat
	}
	entries := make(map[string]string)
	flatten("", tree, entries)
	for key, msg := range entries {
		if err := b.builder.SetString(tag, key, msg); err != nil {
			return fmt.Errorf("set %s/%s: %w", tag, key, err)
		}
		flat[key] = msg
	}
	return nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
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

// Locale returns the supported locale closest to tag.
func (b *Bundle) Locale(tag language.Tag) Locale {
	_, index, _ := b.matcher.Match(tag)
	matched := Supported[index]
	return Locale{
		tag:     matched,
		bundle:  b,
		printer: message.NewPrinter(matched, message.Catalog(b.builder)),
	}
}

// Accept picks a locale from an Accept-Language header value or a plain
// language code.
func (b *Bundle) Accept(header string) Locale {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return b.Locale(language.English)
	}
	_, index, _ := b.matcher.Match(tags...)
	return b.Locale(Supported[index])
}

// New returns the locale closest to tag from the default bundle.
func New(tag language.Tag) Locale {
	return Default().Locale(tag)
}

// Parse returns the locale for a language code such as "ja" or "zh-TW".
// Unparseable codes yield English.
func Parse(code string) Locale {
	return Default().Accept(code)
}

// Locale is a resolved UI language.
type Locale struct {
	tag     language.Tag
	bundle  *Bundle
	printer *message.Printer
}

// Tag returns the matched supported language.
func (l Locale) Tag() language.Tag {
	return l.tag
}

func (l Locale) String() string {
	return l.tag.String()
}

// T returns the text for a dotted key such as "step5.play", falling back
// to English and then to the key itself.
func (l Locale) T(key string) string {
	p := l.printerFor(key)
	if p == nil {
		return key
	}
	return p.Sprintf(key)
}

// Tf looks up key and formats it with args.
func (l Locale) Tf(key string, args ...any) string {
	p := l.printerFor(key)
	if p == nil {
		return key
	}
	return p.Sprintf(key, args...)
}

func (l Locale) printerFor(key string) *message.Printer {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	if _, ok := l.bundle.messages[l.tag][key]; ok {
		return l.printer
	}
	if _, ok := l.bundle.messages[language.English][key]; ok {
		return l.bundle.english
	}
	return nil
}

// Messages returns every key resolved for this locale.
func (l Locale) Messages() map[string]string {
	out := make(map[string]string, len(l.bundle.messages[language.English]))
	for key := range l.bundle.messages[language.English] {
		out[key] = l.T(key)
	}
	for key := range l.bundle.messages[l.tag] {
		out[key] = l.T(key)
	}
	return out
}

// Keys returns all known keys in sorted order.
func (b *Bundle) Keys() []string {
	seen := make(map[string]struct{})
	for _, msgs := range b.messages {
		for key := range msgs {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
