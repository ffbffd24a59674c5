package internal

import (
	"strings"
	"testing"
)

func TestNewOneTimeTokenUniqueAndWellFormed(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		tok, err := NewOneTimeToken()
		if err != nil {
			t.Fatalf("NewOneTimeToken: %v", err)
		}
		if err := CheckOneTimeToken(tok); err != nil {
			t.Fatalf("minted token rejected: %v", err)
		}
		if strings.ContainsAny(tok, "+/=") {
			t.Fatalf("token is not raw url-safe base64: %q", tok)
		}
		if _, dup := seen[tok]; dup {
			t.Fatalf("duplicate token %q", tok)
		}
		seen[tok] = struct{}{}
	}
}

func FuzzCheckOneTimeToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("!!!not-base64!!!")
	if tok, err := NewOneTimeToken(); err == nil {
		f.Add(tok)
	}

	f.Fuzz(func(t *testing.T, input string) {
		// Must not panic; rejection is fine.
		_ = CheckOneTimeToken(input)
	})
}
