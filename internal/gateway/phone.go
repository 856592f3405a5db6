package gateway

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// NormalizePhone parses raw in defaultRegion and returns its E.164 digits
// without the leading "+", which is what the gateway expects. Numbers that
// cannot be valid are an InvalidNumber error so the lead is blocked without a
// network call.
func NormalizePhone(raw, defaultRegion string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &Error{Kind: KindInvalidNumber, Message: "empty phone number"}
	}
	if !strings.HasPrefix(raw, "+") && len(digits(raw)) > 11 {
		// Already carries a country code.
		raw = "+" + digits(raw)
	}

	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil {
		return "", &Error{Kind: KindInvalidNumber, Message: "unparseable phone number", Err: err}
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", &Error{Kind: KindInvalidNumber, Message: "phone number is not valid"}
	}
	return strings.TrimPrefix(phonenumbers.Format(num, phonenumbers.E164), "+"), nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
