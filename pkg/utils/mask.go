package utils

import "strings"

// MaskSecret keeps the first and last four characters of s and replaces the
// rest with asterisks. Values of eight characters or fewer are fully masked.
func MaskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// MaskBearer masks the token part of an Authorization header value.
func MaskBearer(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok {
		return MaskSecret(header)
	}
	return scheme + " " + MaskSecret(token)
}
