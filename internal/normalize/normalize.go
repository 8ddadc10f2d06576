// Package normalize folds text down to printable ASCII for renderers limited
// to a single-byte character set. The transform is lossy and must only be
// applied to a copy handed to such a renderer.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// symbols are the emoji and pictograph blocks removed before folding.
var symbols = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x200D, Hi: 0x200D, Stride: 1}, // zero width joiner
		{Lo: 0x2600, Hi: 0x26FF, Stride: 1}, // miscellaneous symbols
		{Lo: 0x2700, Hi: 0x27BF, Stride: 1}, // dingbats
		{Lo: 0xFE00, Hi: 0xFE0F, Stride: 1}, // variation selectors
	},
	R32: []unicode.Range32{
		{Lo: 0x1F1E0, Hi: 0x1F1FF, Stride: 1}, // flags
		{Lo: 0x1F300, Hi: 0x1F5FF, Stride: 1}, // symbols and pictographs
		{Lo: 0x1F600, Hi: 0x1F64F, Stride: 1}, // emoticons
		{Lo: 0x1F680, Hi: 0x1F6FF, Stride: 1}, // transport and map
		{Lo: 0x1F900, Hi: 0x1F9FF, Stride: 1}, // supplemental symbols
	},
}

// folding maps characters that accent stripping alone cannot reduce to ASCII.
var folding = strings.NewReplacer(
	"‘", "'", "’", "'", "‚", "'", "′", "'",
	"“", `"`, "”", `"`, "„", `"`, "″", `"`, "«", `"`, "»", `"`,
	"—", "-", "–", "-", "\u2010", "-", "\u2011", "-",
	"…", "...",
	"€", "EUR", "£", "GBP", "¥", "JPY",
	"œ", "oe", "Œ", "OE", "æ", "ae", "Æ", "AE", "ß", "ss",
	"Ç", "c",
	"\u00a0", " ", "\u202f", " ", "\u2009", " ",
	"•", "-", "·", "-", "°", "o",
)

func printable(r rune) bool {
	return r == '\n' || r == '\t' || (r >= 0x20 && r <= 0x7E)
}

// ForLimitedCharset strips pictographs, folds punctuation, currency and
// accented letters to ASCII, then drops anything still outside printable ASCII.
func ForLimitedCharset(text string) string {
	stripped, _, err := transform.String(runes.Remove(runes.In(symbols)), text)
	if err != nil {
		stripped = text
	}

	folded := folding.Replace(stripped)

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
		runes.Remove(runes.Predicate(func(r rune) bool { return !printable(r) })),
	)
	out, _, err := transform.String(t, folded)
	if err != nil {
		return asciiOnly(folded)
	}
	return out
}

func asciiOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if printable(r) {
			return r
		}
		return -1
	}, s)
}
