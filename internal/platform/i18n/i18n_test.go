package i18n

import (
	"testing"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		value string
		want  language.Tag
	}{
		{value: "", want: language.AmericanEnglish},
		{value: "pt-BR", want: language.BrazilianPortuguese},
		{value: "not a tag", want: language.AmericanEnglish},
		{value: "ko", want: language.MustParse("ko-KR")},
	}
	for _, tt := range tests {
		if got := NormalizeTag(tt.value); got != tt.want {
			t.Fatalf("NormalizeTag(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestFormatAmountGroupsDigits(t *testing.T) {
	amount := decimal.RequireFromString("1500000")
	if got := FormatAmount(Printer(language.AmericanEnglish), amount); got != "1,500,000" {
		t.Fatalf("en-US = %q, want 1,500,000", got)
	}
	if got := FormatAmount(Printer(language.BrazilianPortuguese), amount); got != "1.500.000" {
		t.Fatalf("pt-BR = %q, want 1.500.000", got)
	}
}

func TestFormatPercent(t *testing.T) {
	got := FormatPercent(Printer(language.AmericanEnglish), decimal.RequireFromString("37.5"))
	if got != "37.5%" {
		t.Fatalf("percent = %q, want 37.5%%", got)
	}
}
