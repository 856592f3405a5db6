package logger

import "strings"

// RedactPhone masks a phone number for safe logging, keeping the country
// prefix and the last two digits.
// "+55 11 99876-5432" → "+55*********32"
// Numbers with fewer than six digits are fully masked: "1234" → "****"
func RedactPhone(phone string) string {
	var digits strings.Builder
	plus := strings.HasPrefix(strings.TrimSpace(phone), "+")
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) < 6 {
		return strings.Repeat("*", len(d))
	}

	prefix := d[:2]
	if plus {
		prefix = "+" + prefix
	}
	return prefix + strings.Repeat("*", len(d)-4) + d[len(d)-2:]
}
