package totp

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"image/png"
	"math/big"
	"strings"

	"github.com/pquerna/otp"
)

// BackupCodeAlphabet is uppercase alphanumerics without 0, O, 1 and I.
const BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func (e *Engine) newBackupCodes(ctx context.Context) ([]string, []string, error) {
	codes := make([]string, 0, e.config.BackupCodeCount)
	seen := make(map[string]struct{}, e.config.BackupCodeCount)
	for len(codes) < e.config.BackupCodeCount {
		code, err := randomCode(e.config.BackupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}

	hashes, err := e.hashes.HashAll(ctx, codes)
	if err != nil {
		return nil, nil, err
	}
	return codes, hashes, nil
}

func randomCode(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(BackupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// CanonicalBackupCode upper-cases code and drops separators users tend to type.
func CanonicalBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, code)
}

func (e *Engine) canonicalBackupCode(code string) (string, bool) {
	code = CanonicalBackupCode(code)
	if len(code) != e.config.BackupCodeLength {
		return "", false
	}
	for i := 0; i < len(code); i++ {
		if strings.IndexByte(BackupCodeAlphabet, code[i]) < 0 {
			return "", false
		}
	}
	return code, true
}

// QRCodePNG renders a provisioning URI as a square PNG.
func QRCodePNG(uri string, size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.New("totp: qr size must be > 0")
	}
	key, err := otp.NewKeyFromURL(uri)
	if err != nil {
		return nil, err
	}
	img, err := key.Image(size, size)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
