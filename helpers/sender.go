package helpers

import "strings"

// FormatSender renders the RFC-style sender identity for a local user. With a
// display name the result is `Name <user@namespace>`, otherwise the bare
// address. The caller is responsible for sanitizing the display name; no
// control characters are introduced here.
func FormatSender(displayName, username, namespace string) string {
	address := JoinAddress(username, namespace)
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return address
	}
	return displayName + " <" + address + ">"
}

// ParseSender splits a formatted sender string into display name and address.
// For `Name <addr>` the display name is everything before the final "<"
// (trimmed, surrounding quotes stripped) and the address is the text between
// the final angle-bracket pair. Anything else is treated as a bare address.
// ParseSender never fails; at worst the raw input comes back as the address.
func ParseSender(raw string) (displayName, address string) {
	open := strings.LastIndex(raw, "<")
	if open == -1 {
		return "", strings.TrimSpace(raw)
	}
	rest := raw[open+1:]
	close := strings.Index(rest, ">")
	if close == -1 {
		return "", strings.TrimSpace(raw)
	}

	displayName = strings.TrimSpace(raw[:open])
	displayName = strings.Trim(displayName, `"`)
	address = strings.TrimSpace(rest[:close])
	return displayName, address
}
