package prompt

import (
	"crypto/rand"
	"regexp"
)

const tokenPrefix = "SEC_TOKEN_"
const tokenLength = 32
const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// MinTokenOccurrences is the number of times the security token must appear
// in a built prompt. Saturating the prompt makes it impractical for injected
// instructions to strip every occurrence before the model echoes it back.
const MinTokenOccurrences = 20

var tokenRe = regexp.MustCompile(`^SEC_TOKEN_[A-Za-z0-9]{32}$`)

// NewSecurityToken generates a random per-request security token. The token
// is embedded throughout the prompt and must be returned verbatim in the
// response's security_token field.
func NewSecurityToken() string {
	buf := make([]byte, tokenLength)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic("prompt: crypto/rand read failed: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return tokenPrefix + string(buf)
}

// ValidToken reports whether s has the exact shape of a security token.
func ValidToken(s string) bool {
	return tokenRe.MatchString(s)
}

// ExtractToken returns the first security token embedded in a built prompt,
// or "" when none is present.
func ExtractToken(promptText string) string {
	return securityTokenRe.FindString(promptText)
}
