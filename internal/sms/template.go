package sms

import (
	"regexp"
	"strings"
)

var (
	firstNameRe = regexp.MustCompile(`(?i)\{\{\s*firstName\s*\}\}`)
	lastNameRe  = regexp.MustCompile(`(?i)\{\{\s*lastName\s*\}\}`)
	fullNameRe  = regexp.MustCompile(`(?i)\{\{\s*fullName\s*\}\}`)
)

// RenderTemplate substitutes personalization placeholders into message.
// Placeholders are case-insensitive and may contain whitespace inside the
// braces. Missing fields render as the empty string; fullName is
// trim(firstName + " " + lastName).
func RenderTemplate(message, firstName, lastName string) string {
	out := firstNameRe.ReplaceAllString(message, firstName)
	out = lastNameRe.ReplaceAllString(out, lastName)
	out = fullNameRe.ReplaceAllString(out, strings.TrimSpace(firstName+" "+lastName))
	return out
}
