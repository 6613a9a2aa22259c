package util

import (
	"strings"
	"unicode"
)

// companySuffixes are legal-form words dropped when comparing names
var companySuffixes = map[string]struct{}{
	"inc": {}, "incorporated": {}, "corp": {}, "corporation": {}, "llc": {}, "ltd": {},
	"limited": {}, "plc": {}, "holdings": {}, "holding": {}, "group": {}, "co": {},
	"company": {}, "lp": {}, "ag": {}, "sa": {}, "nv": {}, "se": {}, "gmbh": {},
}

// NormalizeCompany reduces a company name to a comparison key:
// "The TechCorp, Inc." and "techcorp" both become "techcorp"
func NormalizeCompany(name string) string {
	name = strings.ReplaceAll(strings.ToLower(name), "&", " and ")
	name = strings.NewReplacer("'s", "", "’s", "").Replace(name)

	fields := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	// "l.l.c" splits into single letters; fold them back
	fields = foldInitials(fields)

	all := append([]string(nil), fields...)
	if len(fields) > 0 && fields[0] == "the" {
		fields = fields[1:]
	}
	for len(fields) > 1 {
		if _, ok := companySuffixes[fields[len(fields)-1]]; !ok {
			break
		}
		fields = fields[:len(fields)-1]
	}
	if len(fields) == 0 {
		return strings.Join(all, " ")
	}
	return strings.Join(fields, " ")
}

func foldInitials(fields []string) []string {
	out := make([]string, 0, len(fields))
	var run strings.Builder
	flush := func() {
		if run.Len() > 0 {
			out = append(out, run.String())
			run.Reset()
		}
	}
	for _, f := range fields {
		if len([]rune(f)) == 1 {
			run.WriteString(f)
			continue
		}
		flush()
		out = append(out, f)
	}
	flush()
	return out
}
