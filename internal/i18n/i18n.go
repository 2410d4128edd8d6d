// Package i18n holds the message catalogs used to render order change
// summaries.
package i18n

import (
	"github.com/go-faster/errors"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"

	"github.com/xenking/kart-orders/internal/domain/reconcile"
)

// Supported lists the languages with a full catalog, default first.
var Supported = []language.Tag{language.English, language.Vietnamese}

type entry struct {
	key string
	msg catalog.Message
}

func counted(one, other string) catalog.Message {
	return plural.Selectf(1, "%d", "=1", one, "other", other)
}

var messages = map[language.Tag][]entry{
	language.English: {
		{reconcile.KeyAdded, counted("1 item added", "%d items added")},
		{reconcile.KeyRemoved, counted("1 item removed", "%d items removed")},
		{reconcile.KeyQuantityChanged, counted("quantity changed on 1 item", "quantity changed on %d items")},
		{reconcile.KeyVoucher, catalog.String("voucher changed")},
		{reconcile.KeyTable, catalog.String("table changed")},
		{reconcile.KeyOwner, catalog.String("owner changed")},
		{reconcile.KeyNote, catalog.String("note changed")},
		{reconcile.KeyNone, catalog.String("no changes")},
	},
	// Vietnamese nouns do not inflect for number, so one form covers every count.
	language.Vietnamese: {
		{reconcile.KeyAdded, catalog.String("đã thêm %d món")},
		{reconcile.KeyRemoved, catalog.String("đã bỏ %d món")},
		{reconcile.KeyQuantityChanged, catalog.String("đổi số lượng %d món")},
		{reconcile.KeyVoucher, catalog.String("đổi mã giảm giá")},
		{reconcile.KeyTable, catalog.String("đổi bàn")},
		{reconcile.KeyOwner, catalog.String("đổi người đặt")},
		{reconcile.KeyNote, catalog.String("đổi ghi chú")},
		{reconcile.KeyNone, catalog.String("không có thay đổi")},
	},
}

// Bundle resolves reconcile message keys for the supported languages.
type Bundle struct {
	cat      *catalog.Builder
	matcher  language.Matcher
	fallback language.Tag
	known    map[string]struct{}
}

// New builds the catalogs. Unsupported fallback tags are rejected.
func New(fallback language.Tag) (*Bundle, error) {
	b := &Bundle{
		cat:      catalog.NewBuilder(catalog.Fallback(fallback)),
		fallback: fallback,
		known:    make(map[string]struct{}),
	}

	tags := []language.Tag{fallback}
	found := false
	for _, tag := range Supported {
		if tag == fallback {
			found = true
			continue
		}
		tags = append(tags, tag)
	}
	if !found {
		return nil, errors.Errorf("unsupported default locale %q", fallback)
	}

	for _, tag := range Supported {
		for _, e := range messages[tag] {
			if err := b.cat.Set(tag, e.key, e.msg); err != nil {
				return nil, errors.Wrapf(err, "set %s/%s", tag, e.key)
			}
			b.known[e.key] = struct{}{}
		}
	}
	b.matcher = language.NewMatcher(tags)
	return b, nil
}

// ParseLocale parses a BCP 47 tag such as "en" or "vi".
func ParseLocale(s string) (language.Tag, error) {
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, errors.Wrapf(err, "parse locale %q", s)
	}
	base, _ := tag.Base()
	return language.Make(base.String()), nil
}

// Default returns the fallback language.
func (b *Bundle) Default() language.Tag {
	return b.fallback
}

// Match picks the best supported language for an Accept-Language header.
func (b *Bundle) Match(acceptLanguage string) language.Tag {
	if acceptLanguage == "" {
		return b.fallback
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return b.fallback
	}
	tag, _, conf := b.matcher.Match(prefs...)
	if conf == language.No {
		return b.fallback
	}
	base, _ := tag.Base()
	return language.Make(base.String())
}

// Translator returns a reconcile.Translator for tag. Keys missing from the
// catalog render as the key itself.
func (b *Bundle) Translator(tag language.Tag) reconcile.Translator {
	p := message.NewPrinter(tag, message.Catalog(b.cat))
	return func(key string, args ...any) string {
		if _, ok := b.known[key]; !ok {
			return key
		}
		return p.Sprintf(key, args...)
	}
}
