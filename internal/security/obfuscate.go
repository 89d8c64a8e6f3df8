// Package security provides the reversible obfuscation applied to sensitive
// applicant fields before they are stored or sent. It is a placeholder and
// offers no cryptographic protection.
package security

import (
	"encoding/base64"
	"strings"

	"github.com/atinyakov/FarmCredit/internal/models"
)

const prefix = "ENC_"

// Encrypt obfuscates text. The empty string maps to itself.
func Encrypt(text string) string {
	if text == "" {
		return ""
	}
	return prefix + base64.StdEncoding.EncodeToString([]byte(text))
}

// Decrypt reverses Encrypt. Values that were not produced by Encrypt are
// returned unchanged.
func Decrypt(token string) string {
	if !strings.HasPrefix(token, prefix) {
		return token
	}
	plain, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, prefix))
	if err != nil {
		return token
	}
	return string(plain)
}

// IsEncrypted reports whether s looks like an Encrypt token.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, prefix)
}

// Mask hides all but the last visible characters of text.
func Mask(text string, visible int) string {
	r := []rune(text)
	if len(r) <= visible {
		return text
	}
	return strings.Repeat("*", len(r)-visible) + string(r[len(r)-visible:])
}

// SealPersonal obfuscates the identity number and phone of p. Already
// obfuscated values are left as they are, so sealing twice is harmless.
func SealPersonal(p *models.Personal) {
	if !IsEncrypted(p.AadhaarOrID) {
		p.AadhaarOrID = Encrypt(p.AadhaarOrID)
	}
	if !IsEncrypted(p.Phone) {
		p.Phone = Encrypt(p.Phone)
	}
}

// OpenPersonal reverses SealPersonal.
func OpenPersonal(p *models.Personal) {
	p.AadhaarOrID = Decrypt(p.AadhaarOrID)
	p.Phone = Decrypt(p.Phone)
}
