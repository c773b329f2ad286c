package aamva

import (
	"html"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

const (
	recordSeparator = "\x1e"
)

var placeholders = strings.NewReplacer(
	"<LF>", "\n",
	"<RS>", recordSeparator,
	"<CR>", "\r",
)

var lineEndings = strings.NewReplacer(
	"\r", "",
	recordSeparator, "\n",
)

// stripControl drops control characters that survive line-ending
// normalisation, keeping line feeds and tabs.
var stripControl = runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}))

// Normalize prepares raw scanner output for tokenisation: HTML entities are
// unescaped, control-character placeholders are replaced, carriage returns
// dropped and record separators turned into line breaks.
func Normalize(raw string) string {
	s := html.UnescapeString(raw)
	s = placeholders.Replace(s)
	s = lineEndings.Replace(s)

	if out, _, err := transform.String(stripControl, s); err == nil {
		s = out
	}
	return s
}
