package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// TicketCodeAlphabet leaves out characters door staff confuse when typing (0/O, 1/I/L).
const TicketCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// TicketCodeLength is the number of characters in a ticket code.
const TicketCodeLength = 12

func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateTicketCode returns a random code drawn from TicketCodeAlphabet.
func GenerateTicketCode(length int) (string, error) {
	const n = byte(len(TicketCodeAlphabet))
	// Largest multiple of n below 256; bytes above it are rejected to avoid modulo bias.
	const limit = 256 - 256%int(n)

	code := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(code) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			code = append(code, TicketCodeAlphabet[b%n])
			if len(code) == length {
				break
			}
		}
	}

	return string(code), nil
}

// NormalizeTicketCode canonicalises a typed or scanned code.
func NormalizeTicketCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}

// IsTicketCode reports whether code has the shape GenerateTicketCode produces.
func IsTicketCode(code string) bool {
	if len(code) != TicketCodeLength {
		return false
	}
	for _, c := range code {
		if !strings.ContainsRune(TicketCodeAlphabet, c) {
			return false
		}
	}
	return true
}
