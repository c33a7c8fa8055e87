// Package uid recognises unique-id codes and generates new V6 barcodes.
package uid

import (
	"regexp"
)

// Schema is a named unique-id format.
type Schema struct {
	Name  string
	Title string
	re    *regexp.Regexp
}

// Match reports whether code matches the whole schema pattern.
func (s Schema) Match(code string) bool {
	return s.re.MatchString(code)
}

func newSchema(name, title, pattern string) Schema {
	return Schema{Name: name, Title: title, re: regexp.MustCompile(`^(?:` + pattern + `)$`)}
}

var schemas = []Schema{
	// 9-digit integer, zero-padded to the left.
	newSchema("V6_BARCODE", "V6 Barcode", `[0-9]{9}`),
	// DDMMYY-XXXX, Xs are capitalised alphanumeric without I, O and B.
	newSchema("V7_SERIAL", "V7 Serial Number", `[0-3][0-9][0-1][0-9][0-9][0-9]-[0-9AC-HJ-NP-Z]{4}`),
	// YYMMDDXXXXX, Xs are numeric.
	newSchema("HEMERA_QR", "Hemera QR Code", `[0-9][0-9][0-1][0-9][0-3][0-9][0-9]{5}`),
	// 128-QQ-YYMMDD-XXXX, QQ is the motor type.
	newSchema("ROTO_QR", "Revo Roto QR Code", `128-[0-9]{2}-[0-9][0-9][0-1][0-9][0-3][0-9]-[0-9]{4}`),
}

// Schemas returns every known schema in declaration order.
func Schemas() []Schema {
	out := make([]Schema, len(schemas))
	copy(out, schemas)
	return out
}

// Lookup returns the schema with the given name.
func Lookup(name string) (Schema, bool) {
	for _, s := range schemas {
		if s.Name == name {
			return s, true
		}
	}
	return Schema{}, false
}

// MatchAll returns the names of every schema code satisfies, in declaration order.
func MatchAll(code string) []string {
	var matched []string
	for _, s := range schemas {
		if s.Match(code) {
			matched = append(matched, s.Name)
		}
	}
	return matched
}
