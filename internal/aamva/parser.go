// Package aamva turns the text decoded from a driver's-license PDF417
// symbol into labelled fields.
//
// The payload is a sequence of three-letter element IDs ("DCS", "DAQ", ...)
// each followed by its value. Values run until the next element ID, so
// fields do not need to be separated by line breaks.
package aamva

import (
	"regexp"
	"strings"
)

var codePattern = regexp.MustCompile(`D[A-Z]{2}`)

// Field is one element ID and its trimmed value, in payload order.
type Field struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// Record maps labels to values.
type Record map[string]string

// Parser maps element IDs to labels. The zero value is not usable; create
// parsers with NewParser.
type Parser struct {
	fields map[string]string
}

// NewParser returns a parser over the default table extended (or
// overridden) by extra. Entries of extra whose key is not a valid element
// ID are ignored.
func NewParser(extra map[string]string) *Parser {
	fields := make(map[string]string, len(defaultFields)+len(extra))
	for c, l := range defaultFields {
		fields[c] = l
	}
	for c, l := range extra {
		c = strings.ToUpper(strings.TrimSpace(c))
		if len(c) == 3 && codePattern.MatchString(c) && l != "" {
			fields[c] = l
		}
	}
	return &Parser{fields: fields}
}

var defaultParser = NewParser(nil)

// Parse parses raw with the default table.
func Parse(raw string) Record { return defaultParser.Parse(raw) }

// Parse normalises raw, tokenises it and keeps the known, non-empty
// fields. A code that appears more than once keeps its last value.
// Parse never fails; unrecognised input yields an empty record.
func (p *Parser) Parse(raw string) Record {
	rec := make(Record)
	for _, f := range p.tokenize(Normalize(raw)) {
		label, ok := p.fields[f.Code]
		if !ok || f.Value == "" {
			continue
		}
		rec[label] = f.Value
	}
	return rec
}

// Fields returns the known, non-empty fields of raw in payload order.
func (p *Parser) Fields(raw string) []Field {
	var out []Field
	for _, f := range p.tokenize(Normalize(raw)) {
		if _, ok := p.fields[f.Code]; ok && f.Value != "" {
			out = append(out, f)
		}
	}
	return out
}

// Known reports whether code is in the parser's table.
func (p *Parser) Known(code string) bool {
	_, ok := p.fields[code]
	return ok
}

// Tokenize splits normalised text at every element ID using the default
// table to resolve overlapping matches.
func Tokenize(text string) []Field { return defaultParser.tokenize(text) }

func (p *Parser) tokenize(text string) []Field {
	starts := p.codeOffsets(text)
	fields := make([]Field, 0, len(starts))
	for i, start := range starts {
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		fields = append(fields, Field{
			Code:  text[start : start+3],
			Value: strings.TrimSpace(text[start+3 : end]),
		})
	}
	return fields
}

// codeOffsets returns the start of every element ID in text. Matches do
// not overlap; an unknown ID is dropped in favour of a known one starting
// inside it, which happens with subfile headers such as "DLDAQ".
func (p *Parser) codeOffsets(text string) []int {
	var offsets []int
	for i := 0; i+3 <= len(text); {
		if !isCode(text[i:]) {
			i++
			continue
		}
		if !p.Known(text[i:i+3]) && p.knownWithin(text, i+1, i+3) {
			i++
			continue
		}
		offsets = append(offsets, i)
		i += 3
	}
	return offsets
}

// knownWithin reports whether a known code starts in text[from:to].
func (p *Parser) knownWithin(text string, from, to int) bool {
	for j := from; j < to && j+3 <= len(text); j++ {
		if isCode(text[j:]) && p.Known(text[j:j+3]) {
			return true
		}
	}
	return false
}

func isCode(s string) bool {
	return len(s) >= 3 && s[0] == 'D' && isUpper(s[1]) && isUpper(s[2])
}

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
