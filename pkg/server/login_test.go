package server

import (
	"strings"
	"testing"
)

func TestParseConnect(t *testing.T) {
	cases := []struct {
		in       string
		command  string
		user     string
		password string
	}{
		{"connect Alice s3cret", "connect", "Alice", "s3cret"},
		{"CONNECT Alice s3cret", "connect", "Alice", "s3cret"},
		{"co Alice s3cret", "co", "Alice", "s3cret"},
		{"create Bob hunter2", "create", "Bob", "hunter2"},
		{`connect "Lady Ambermoon" s3cret`, "connect", "Lady Ambermoon", "s3cret"},
		{"connect Alice", "connect", "Alice", ""},
		{"connect", "connect", "", ""},
		{"", "", "", ""},
		{"   connect   Alice   pw with spaces  ", "connect", "Alice", "pw with spaces"},
	}
	for _, tc := range cases {
		cmd, user, pw := ParseConnect(tc.in)
		if cmd != tc.command || user != tc.user || pw != tc.password {
			t.Errorf("ParseConnect(%q) = (%q, %q, %q), want (%q, %q, %q)",
				tc.in, cmd, user, pw, tc.command, tc.user, tc.password)
		}
	}
}

func TestStripTelnet(t *testing.T) {
	// IAC WILL ECHO in front of user text.
	in := string([]byte{0xFF, 0xFB, 0x01}) + "look"
	if got := stripTelnet(in); got != "look" {
		t.Errorf("stripTelnet = %q", got)
	}
	// Control characters drop, tabs survive.
	if got := stripTelnet("say\thi\x07there"); got != "say\thithere" {
		t.Errorf("stripTelnet = %q", got)
	}
	if got := stripTelnet("plain text"); got != "plain text" {
		t.Errorf("stripTelnet mangled plain text: %q", got)
	}
}

func TestWelcomeTextMentionsUsage(t *testing.T) {
	for _, want := range []string{"connect", "create", "QUIT"} {
		if !strings.Contains(WelcomeText, want) {
			t.Errorf("welcome text missing %q", want)
		}
	}
}
