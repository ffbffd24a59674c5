package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
)

// OneTimeTokenSize is the entropy, in bytes, of invitation and reset tokens.
const OneTimeTokenSize = 32

// NewOneTimeToken returns a URL-safe random token. Only its hash is ever
// stored; the plaintext goes to the recipient once.
func NewOneTimeToken() (string, error) {
	var raw [OneTimeTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// CheckOneTimeToken rejects input that cannot be a token minted by
// NewOneTimeToken, so obviously bad input never reaches a hash scan.
func CheckOneTimeToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("empty token")
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return err
	}
	if len(raw) != OneTimeTokenSize {
		return errors.New("invalid token size")
	}
	return nil
}
