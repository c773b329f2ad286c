package aamva

import "sort"

// defaultFields maps AAMVA element IDs to the labels reported to callers.
// DCT (older card versions) and DAC both carry the first name.
var defaultFields = map[string]string{
	"DCS": "Last Name",
	"DCT": "First Name",
	"DAC": "First Name",
	"DAD": "Middle Name",
	"DBD": "Issue Date",
	"DBA": "Expiration Date",
	"DBB": "Date of Birth",
	"DBC": "Sex",
	"DAY": "Eye Color",
	"DAU": "Height",
	"DAG": "Address",
	"DAI": "City",
	"DAJ": "State",
	"DAK": "ZIP Code",
	"DAQ": "License Number",
	"DCG": "Country",
	"DDE": "Last Name Truncated",
	"DDF": "First Name Truncated",
	"DDG": "Middle Name Truncated",
	"DCF": "Document Discriminator",
	"DCJ": "Audit Information",
}

// Label returns the label of a code in the default table.
func Label(code string) (string, bool) {
	l, ok := defaultFields[code]
	return l, ok
}

// Codes returns the codes of the default table in sorted order.
func Codes() []string {
	codes := make([]string, 0, len(defaultFields))
	for c := range defaultFields {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
