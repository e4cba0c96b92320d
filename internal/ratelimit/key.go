package ratelimit

import "strings"

// KeyForAttempt builds a limiter key for an attempt kind and client identifier.
func KeyForAttempt(kind, client string) string {
	kind = strings.TrimSpace(kind)
	client = strings.TrimSpace(client)
	if kind == "" || client == "" {
		return ""
	}
	return kind + ":" + client
}
