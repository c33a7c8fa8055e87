package uid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchAll(t *testing.T) {
	testCases := []struct {
		name     string
		code     string
		expected []string
	}{
		{name: "V6 barcode", code: "000012345", expected: []string{"V6_BARCODE"}},
		{name: "V7 serial", code: "311299-AC9Z", expected: []string{"V7_SERIAL"}},
		{name: "V7 serial rejects ambiguous letters", code: "311299-ABIO", expected: nil},
		{name: "Hemera QR", code: "22123112345", expected: []string{"HEMERA_QR"}},
		{name: "Roto QR", code: "128-05-220131-0042", expected: []string{"ROTO_QR"}},
		{name: "Too short", code: "12345678", expected: nil},
		{name: "Prefix only matches are rejected", code: "1234567890", expected: nil},
		{name: "Empty", code: "", expected: nil},
		{name: "Trailing newline", code: "123456789\n", expected: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, MatchAll(tc.code))
		})
	}
}

func TestLookup(t *testing.T) {
	s, ok := Lookup("HEMERA_QR")
	assert.True(t, ok)
	assert.Equal(t, "Hemera QR Code", s.Title)
	assert.True(t, s.Match("22013100001"))

	_, ok = Lookup("NOPE")
	assert.False(t, ok)
	assert.Len(t, Schemas(), 4)
}
