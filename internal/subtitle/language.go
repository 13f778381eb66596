package subtitle

import (
	"strings"

	"github.com/abadojack/whatlanggo"
	"golang.org/x/text/language"
)

// DetectLanguage returns the most common language across caption texts.
func DetectLanguage(captions []Caption) language.Tag {
	if len(captions) == 0 {
		return language.Und
	}

	counts := make(map[string]int)
	for _, c := range captions {
		if strings.TrimSpace(c.Text) == "" {
			continue
		}
		lang := whatlanggo.DetectLang(c.Text).Iso6391()
		if lang == "" {
			continue
		}
		counts[lang]++
	}

	var topLang string
	var topCount int
	for lang, count := range counts {
		if count > topCount || (count == topCount && lang < topLang) {
			topLang = lang
			topCount = count
		}
	}
	if topLang == "" {
		return language.Und
	}

	tag, err := language.Parse(topLang)
	if err != nil {
		return language.Und
	}
	return tag
}
