package oauth

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestGenerateVerifier(t *testing.T) {
	for _, length := range []int{1, 16, 32, MinVerifierLength, DefaultVerifierLength, 100, MaxVerifierLength, 256} {
		verifier, err := GenerateVerifier(length)
		if err != nil {
			t.Fatalf("GenerateVerifier(%d) error = %v", length, err)
		}

		if len(verifier) != length {
			t.Errorf("verifier length = %d, want %d", len(verifier), length)
		}

		for i := 0; i < len(verifier); i++ {
			if !strings.ContainsRune(verifierCharset, rune(verifier[i])) {
				t.Errorf("verifier contains %q, not in the RFC 7636 unreserved set", verifier[i])
			}
		}
	}
}

func TestGenerateVerifier_RejectsNonPositiveLength(t *testing.T) {
	for _, length := range []int{0, -1} {
		_, err := GenerateVerifier(length)
		if err == nil {
			t.Errorf("GenerateVerifier(%d) expected error, got nil", length)
		}
		var invalid *InvalidInputError
		if !errors.As(err, &invalid) {
			t.Errorf("GenerateVerifier(%d) error = %T, want *InvalidInputError", length, err)
		}
	}
}

// Verifiers minted for authorization requests must respect the RFC 7636
// length bounds even though the raw generator does not.
func TestGeneratePKCEWithLength_Bounds(t *testing.T) {
	for _, length := range []int{MinVerifierLength - 1, MaxVerifierLength + 1, 0} {
		_, err := GeneratePKCEWithLength(length)
		if err == nil {
			t.Errorf("GeneratePKCEWithLength(%d) expected error, got nil", length)
		}
		var invalid *InvalidInputError
		if !errors.As(err, &invalid) {
			t.Errorf("GeneratePKCEWithLength(%d) error = %T, want *InvalidInputError", length, err)
		}
	}

	for _, length := range []int{MinVerifierLength, MaxVerifierLength} {
		pkce, err := GeneratePKCEWithLength(length)
		if err != nil {
			t.Fatalf("GeneratePKCEWithLength(%d) error = %v", length, err)
		}
		if len(pkce.CodeVerifier) != length {
			t.Errorf("CodeVerifier length = %d, want %d", len(pkce.CodeVerifier), length)
		}
	}
}

func TestGenerateVerifier_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		verifier, err := GenerateVerifier(DefaultVerifierLength)
		if err != nil {
			t.Fatalf("GenerateVerifier() error = %v", err)
		}

		if seen[verifier] {
			t.Error("generated duplicate verifier")
		}
		seen[verifier] = true
	}
}

func TestChallengeS256(t *testing.T) {
	verifier, err := GenerateVerifier(DefaultVerifierLength)
	if err != nil {
		t.Fatalf("GenerateVerifier() error = %v", err)
	}

	challenge, err := ChallengeS256(verifier)
	if err != nil {
		t.Fatalf("ChallengeS256() error = %v", err)
	}

	hash := sha256.Sum256([]byte(verifier))
	expected := base64.RawURLEncoding.EncodeToString(hash[:])
	if challenge != expected {
		t.Errorf("challenge = %q, want %q", challenge, expected)
	}

	// Deterministic: same verifier, same challenge.
	again, err := ChallengeS256(verifier)
	if err != nil {
		t.Fatalf("ChallengeS256() error = %v", err)
	}
	if again != challenge {
		t.Errorf("second derivation = %q, want %q", again, challenge)
	}
}

// TestChallengeS256_RFC7636Vector checks the worked example from
// RFC 7636 appendix B.
func TestChallengeS256_RFC7636Vector(t *testing.T) {
	const verifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	const want = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"

	challenge, err := ChallengeS256(verifier)
	if err != nil {
		t.Fatalf("ChallengeS256() error = %v", err)
	}
	if challenge != want {
		t.Errorf("challenge = %q, want %q", challenge, want)
	}
}

func TestChallengeS256_NonASCII(t *testing.T) {
	_, err := ChallengeS256("verifier-with-ümlaut-padding-to-be-long-enough")
	if err == nil {
		t.Fatal("expected error for non-ASCII verifier, got nil")
	}
	var invalid *InvalidInputError
	if !errors.As(err, &invalid) {
		t.Errorf("error = %T, want *InvalidInputError", err)
	}
}

func TestGeneratePKCE(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatalf("GeneratePKCE() error = %v", err)
	}

	if len(pkce.CodeVerifier) != DefaultVerifierLength {
		t.Errorf("CodeVerifier length = %d, want %d", len(pkce.CodeVerifier), DefaultVerifierLength)
	}

	if pkce.CodeChallengeMethod != "S256" {
		t.Errorf("CodeChallengeMethod = %q, want %q", pkce.CodeChallengeMethod, "S256")
	}

	expected, err := ChallengeS256(pkce.CodeVerifier)
	if err != nil {
		t.Fatalf("ChallengeS256() error = %v", err)
	}
	if pkce.CodeChallenge != expected {
		t.Errorf("CodeChallenge = %q, want %q", pkce.CodeChallenge, expected)
	}
}

func TestGenerateState(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		state, err := GenerateState()
		if err != nil {
			t.Fatalf("GenerateState() error = %v", err)
		}

		if len(state) != stateLength {
			t.Errorf("state length = %d, want %d", len(state), stateLength)
		}
		if seen[state] {
			t.Error("generated duplicate state")
		}
		seen[state] = true
	}
}
