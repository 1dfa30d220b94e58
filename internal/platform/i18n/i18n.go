// Package i18n resolves display locales and formats amounts for them.
package i18n

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var supportedTags = []language.Tag{
	language.AmericanEnglish,
	language.BrazilianPortuguese,
	language.MustParse("ko-KR"),
	language.MustParse("vi-VN"),
}

var matcher = language.NewMatcher(supportedTags)

// SupportedTags returns the locales amounts can be rendered in. The first
// entry is the default.
func SupportedTags() []language.Tag {
	return append([]language.Tag(nil), supportedTags...)
}

// DefaultTag returns the fallback locale.
func DefaultTag() language.Tag {
	return supportedTags[0]
}

// ParseTag matches value against the supported locales.
func ParseTag(value string) (language.Tag, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return language.Und, false
	}
	parsed, err := language.Parse(value)
	if err != nil {
		return language.Und, false
	}
	_, index, confidence := matcher.Match(parsed)
	if confidence == language.No {
		return language.Und, false
	}
	return supportedTags[index], true
}

// NormalizeTag coerces unknown tags to the default locale.
func NormalizeTag(value string) language.Tag {
	if tag, ok := ParseTag(value); ok {
		return tag
	}
	return DefaultTag()
}

// Printer returns a message printer for tag.
func Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// FormatAmount renders amount with locale digit grouping and at most two
// fraction digits.
func FormatAmount(p *message.Printer, amount decimal.Decimal) string {
	return p.Sprint(number.Decimal(amount.Round(2).InexactFloat64(), number.MaxFractionDigits(2)))
}

// FormatPercent renders a percentage value such as 42.5 as "42.5%".
func FormatPercent(p *message.Printer, value decimal.Decimal) string {
	return p.Sprintf("%v%%", number.Decimal(value.Round(2).InexactFloat64(), number.MaxFractionDigits(2)))
}
