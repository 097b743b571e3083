package extraction

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// normalizeLocale rewrites a pt-BR formatted number ("1.234,56") into the
// dot-decimal form decimal.NewFromString accepts. Without a comma the dot
// is taken as the decimal separator.
func normalizeLocale(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	return s
}

// ParseLocaleNumber parses a rate written with either comma or dot decimals.
func ParseLocaleNumber(s string) (float64, error) {
	normalized := normalizeLocale(s)
	if normalized == "" {
		return 0, fmt.Errorf("empty number")
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return 0, fmt.Errorf("parse number %q: %w", s, err)
	}
	return d.InexactFloat64(), nil
}

// ParseLocaleInt parses a day count where dots are thousands separators ("1.260").
// Counts outside 1..MaxInt32 are rejected.
func ParseLocaleInt(s string) (int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("empty integer")
	}
	if !strings.Contains(trimmed, ",") {
		trimmed = strings.ReplaceAll(trimmed, ".", "")
	}
	d, err := decimal.NewFromString(normalizeLocale(trimmed))
	if err != nil {
		return 0, fmt.Errorf("parse integer %q: %w", s, err)
	}
	if !d.IsInteger() {
		return 0, fmt.Errorf("parse integer %q: not a whole number", s)
	}
	if d.LessThan(decimal.NewFromInt(1)) || d.GreaterThan(decimal.NewFromInt(math.MaxInt32)) {
		return 0, fmt.Errorf("parse integer %q: out of range", s)
	}
	return int(d.IntPart()), nil
}

// fold lowercases s and strips diacritics so "Implícita" matches "implicita".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// containsAny reports whether folded text contains any of the folded markers.
func containsAny(text string, markers []string) (string, bool) {
	folded := fold(text)
	for _, m := range markers {
		if m == "" {
			continue
		}
		if strings.Contains(folded, fold(m)) {
			return m, true
		}
	}
	return "", false
}
