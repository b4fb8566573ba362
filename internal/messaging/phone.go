package messaging

import "strings"

// Phone is a canonical E.164-like phone number, always stored with a leading +.
// Storage keys use E164(); the Graph API expects Digits().
type Phone string

// NormalizePhone canonicalizes a free-form phone string. Everything except
// digits and a leading + is stripped. Numbers without an international prefix
// get the default country code, with a leading 0 treated as a local-format
// marker to be replaced. Normalizing an already-normalized value is a no-op.
func NormalizePhone(raw, defaultCountryCode string) Phone {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	international := strings.HasPrefix(raw, "+")
	digits := sanitizePhone(raw)
	if digits == "" {
		return ""
	}

	if !international {
		if strings.HasPrefix(digits, "0") {
			digits = defaultCountryCode + digits[1:]
		} else if !strings.HasPrefix(digits, defaultCountryCode) {
			digits = defaultCountryCode + digits
		}
	}
	return Phone("+" + digits)
}

// E164 returns the +-prefixed representation used for storage keys.
func (p Phone) E164() string {
	return string(p)
}

// Digits returns the digits-only representation the provider API expects.
func (p Phone) Digits() string {
	return strings.TrimPrefix(string(p), "+")
}

// IsZero reports whether the phone is empty.
func (p Phone) IsZero() bool {
	return p == ""
}

func sanitizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
