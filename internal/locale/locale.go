package locale

import (
	_ "embed"
	"sort"

	"github.com/go-faster/errors"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales.yaml
var embedded []byte

// Default мова для нових користувачів і для невідомих кодів.
const Default = "uk"

// Languages у порядку показу в меню вибору мови. Перша є запасною для matcher.
var Languages = []string{"uk", "en", "ru", "fr", "de"}

var names = map[string]string{
	"uk": "🇺🇦 Українська",
	"en": "🇬🇧 English",
	"ru": "🇷🇺 Русский",
	"fr": "🇫🇷 Français",
	"de": "🇩🇪 Deutsch",
}

// Catalog незмінна таблиця мова × ключ → текст. Безпечна для конкурентного читання.
type Catalog struct {
	tables  map[string]map[string]string
	matcher language.Matcher
}

// Load розбирає вбудований файл перекладів.
func Load() (*Catalog, error) {
	return Parse(embedded)
}

// Parse розбирає YAML з перекладами і перевіряє, що кожна мова має всі ключі мови за замовчуванням.
func Parse(data []byte) (*Catalog, error) {
	var tables map[string]map[string]string
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, errors.Wrap(err, "розбір перекладів")
	}

	base, ok := tables[Default]
	if !ok {
		return nil, errors.Errorf("немає перекладів для мови за замовчуванням %q", Default)
	}

	tags := make([]language.Tag, 0, len(Languages))
	for _, code := range Languages {
		table, ok := tables[code]
		if !ok {
			return nil, errors.Errorf("немає перекладів для мови %q", code)
		}
		for key := range base {
			if _, ok := table[key]; !ok {
				return nil, errors.Errorf("мова %q: відсутній ключ %q", code, key)
			}
		}
		tags = append(tags, language.MustParse(code))
	}

	return &Catalog{tables: tables, matcher: language.NewMatcher(tags)}, nil
}

// T повертає переклад. Невідома мова падає на Default, невідомий ключ повертається як є.
func (c *Catalog) T(lang, key string) string {
	if table, ok := c.tables[lang]; ok {
		if s, ok := table[key]; ok {
			return s
		}
	}
	if s, ok := c.tables[Default][key]; ok {
		return s
	}
	return key
}

func (c *Catalog) Supported(code string) bool {
	for _, l := range Languages {
		if l == code {
			return true
		}
	}
	return false
}

// Match підбирає підтримувану мову за кодом клієнта Telegram ("en-US", "uk", ...).
func (c *Catalog) Match(code string) string {
	if code == "" {
		return Default
	}
	tag, err := language.Parse(code)
	if err != nil {
		return Default
	}
	_, idx, conf := c.matcher.Match(tag)
	if conf == language.No {
		return Default
	}
	return Languages[idx]
}

// Variants усі переклади ключа, без повторів. Потрібно для розпізнавання кнопок меню будь-якою мовою.
func (c *Catalog) Variants(key string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, code := range Languages {
		s, ok := c.tables[code][key]
		if !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Name повертає підпис мови для кнопки.
func Name(code string) string {
	if n, ok := names[code]; ok {
		return n
	}
	return code
}
