package logger

import "testing"

func TestRedactEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"john.doe@example.com", "jo***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
	}
	for _, c := range cases {
		if got := RedactEmail(c.in); got != c.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRedactPhone(t *testing.T) {
	if got := RedactPhone("+14155550123"); got != "********0123" {
		t.Errorf("RedactPhone = %q", got)
	}
	if got := RedactPhone("123"); got != "****" {
		t.Errorf("RedactPhone short = %q", got)
	}
}

func TestRedactRecipient(t *testing.T) {
	if got := RedactRecipient("owner@realtechee.com"); got != "ow***@realtechee.com" {
		t.Errorf("RedactRecipient email = %q", got)
	}
	if got := RedactRecipient("+14155550123"); got != "********0123" {
		t.Errorf("RedactRecipient phone = %q", got)
	}
}
