package logger

import "testing"

func TestRedactPhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"+55 11 99876-5432", "+55*********32"},
		{"5511998765432", "55*********32"},
		{"1234", "****"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := RedactPhone(tt.in); got != tt.want {
			t.Errorf("RedactPhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactPIIValue(t *testing.T) {
	if got := redactPIIValue("phone", "5511998765432"); got != "55*********32" {
		t.Errorf("phone key not redacted: %q", got)
	}
	if got := redactPIIValue("msg", "sent to +5511998765432 ok"); got != "sent to +55*********32 ok" {
		t.Errorf("embedded number not redacted: %q", got)
	}
	if got := redactPIIValue("date", "2026-03-02"); got != "2026-03-02" {
		t.Errorf("dates must not be redacted: %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != DEBUG || ParseLevel("warning") != WARN || ParseLevel("") != INFO {
		t.Error("ParseLevel mapping wrong")
	}
}
