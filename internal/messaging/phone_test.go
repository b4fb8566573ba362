package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want Phone
	}{
		{"local with leading zero", "01012345678", "+201012345678"},
		{"already international", "+201012345678", "+201012345678"},
		{"national without zero", "1012345678", "+201012345678"},
		{"formatted", "+20 101-234-5678", "+201012345678"},
		{"spaces and parens", "(010) 1234 5678", "+201012345678"},
		{"country code without plus", "201012345678", "+201012345678"},
		{"empty", "", ""},
		{"garbage", "abc", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizePhone(tc.in, "20"))
		})
	}
}

func TestNormalizePhoneIdempotent(t *testing.T) {
	once := NormalizePhone("0100 555 7777", "20")
	twice := NormalizePhone(once.E164(), "20")
	assert.Equal(t, once, twice)
}

func TestPhoneAccessors(t *testing.T) {
	p := NormalizePhone("01012345678", "20")
	assert.Equal(t, "+201012345678", p.E164())
	assert.Equal(t, "201012345678", p.Digits())
	assert.False(t, p.IsZero())
	assert.True(t, Phone("").IsZero())
}
