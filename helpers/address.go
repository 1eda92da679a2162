package helpers

import "strings"

// SplitEmailAddress splits a lowercased address into its local part and
// domain. ok is false when the address does not contain exactly one "@"
// separating two non-empty parts.
func SplitEmailAddress(email string) (localPart, domain string, ok bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// JoinAddress derives the full address for a local username under the given
// namespace.
func JoinAddress(username, namespace string) string {
	return username + "@" + namespace
}
