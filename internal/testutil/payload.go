package testutil

import (
	"sort"
	"strings"
)

// SampleAAMVA is a realistic AAMVA payload as delivered by scanners that
// replace control characters with placeholders.
const SampleAAMVA = "@<LF><RS><CR>ANSI 636014040002DL00410278ZC03190024DLDAQD1234562<LF>" +
	"DCSSMITH<LF>DDEN<LF>DACJANE<LF>DDFN<LF>DADQUINN<LF>DDGN<LF>DCAC<LF>DCBNONE<LF>DCDNONE<LF>" +
	"DBD08312020<LF>DBB01151985<LF>DBA01152030<LF>DBC2<LF>DAU065 IN<LF>DAYBRO<LF>" +
	"DAG1600 AMPHITHEATRE PKWY<LF>DAIMOUNTAIN VIEW<LF>DAJCA<LF>DAK940430000  <LF>" +
	"DCF00/00/0000NNNAN/ANFD/YY<LF>DCGUSA<LF>DCK00000000000000000000<LF><CR>"

// RenderPayload renders code/value pairs as newline separated AAMVA lines,
// sorted by code so the output is stable.
func RenderPayload(fields map[string]string) string {
	codes := make([]string, 0, len(fields))
	for code := range fields {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var b strings.Builder
	for _, code := range codes {
		b.WriteString(code)
		b.WriteString(fields[code])
		b.WriteByte('\n')
	}
	return b.String()
}
