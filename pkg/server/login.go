package server

import (
	"strings"
)

// WelcomeText greets descriptors before login.
const WelcomeText = `Welcome to GoVeilMUSH.

  connect <name> <password>   -- connect to an existing character
  create <name> <password>    -- create a new character
  QUIT                        -- disconnect

Names with spaces go in quotes: connect "Veiled One" hunter2`

// ParseConnect parses a login-screen line into (command, user, password).
// Handles "connect name password", "create name password", and quoted
// names with spaces.
func ParseConnect(msg string) (command, user, password string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "", "", ""
	}

	parts := strings.SplitN(msg, " ", 2)
	command = strings.ToLower(parts[0])
	if len(parts) < 2 {
		return command, "", ""
	}

	rest := strings.TrimSpace(parts[1])
	if rest == "" {
		return command, "", ""
	}

	if rest[0] == '"' {
		end := strings.Index(rest[1:], "\"")
		if end >= 0 {
			user = rest[1 : end+1]
			password = strings.TrimSpace(rest[end+2:])
			return
		}
	}

	parts = strings.SplitN(rest, " ", 2)
	user = parts[0]
	if len(parts) > 1 {
		password = strings.TrimSpace(parts[1])
	}
	return
}
