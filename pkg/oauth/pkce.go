package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// verifierCharset is the RFC 7636 unreserved character set. Code verifiers
// must be built from exactly these 66 characters to stay protocol-compliant.
const verifierCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

const (
	// MinVerifierLength and MaxVerifierLength bound the code verifier
	// length per RFC 7636 section 4.1.
	MinVerifierLength = 43
	MaxVerifierLength = 128

	// DefaultVerifierLength is the verifier length used when the caller
	// does not pick one. 64 characters of a 66-symbol alphabet is roughly
	// 386 bits of entropy, comfortably above the 256-bit recommendation.
	DefaultVerifierLength = 64

	// stateLength is the length of generated state parameters.
	stateLength = 43
)

// PKCEChallenge holds a PKCE code verifier/challenge pair for a single
// authorization attempt. The verifier is kept in memory only and is never
// persisted; it is sent once, in the code exchange request.
type PKCEChallenge struct {
	// CodeVerifier is the high-entropy secret bound to this attempt.
	CodeVerifier string

	// CodeChallenge is the S256 hash of the verifier, sent in the
	// authorization request.
	CodeChallenge string

	// CodeChallengeMethod is always "S256". Plain is not supported.
	CodeChallengeMethod string
}

// GeneratePKCE generates a fresh code verifier of the default length and
// derives its S256 challenge.
func GeneratePKCE() (*PKCEChallenge, error) {
	return GeneratePKCEWithLength(DefaultVerifierLength)
}

// GeneratePKCEWithLength mints a verifier/challenge pair for use in an
// authorization request. Verifiers sent to a provider must be 43 to 128
// characters per RFC 7636 section 4.1, so the bounds are enforced here, at
// the minting point, rather than in the raw generator.
func GeneratePKCEWithLength(length int) (*PKCEChallenge, error) {
	if length < MinVerifierLength || length > MaxVerifierLength {
		return nil, &InvalidInputError{
			Field:  "verifier length",
			Reason: fmt.Sprintf("%d is outside [%d, %d]", length, MinVerifierLength, MaxVerifierLength),
		}
	}

	verifier, err := GenerateVerifier(length)
	if err != nil {
		return nil, err
	}

	challenge, err := ChallengeS256(verifier)
	if err != nil {
		return nil, err
	}

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       challenge,
		CodeChallengeMethod: "S256",
	}, nil
}

// GenerateVerifier generates a random string of exactly length characters
// (any length >= 1), each drawn uniformly from the RFC 7636 unreserved set
// using the platform's cryptographically secure entropy source. The RFC's
// 43-128 bounds apply to verifiers sent in authorization requests and are
// enforced by GeneratePKCEWithLength, not here.
//
// Returns an error wrapping ErrEntropyUnavailable if the entropy source
// fails; this is fatal and must not be retried with a weaker source.
func GenerateVerifier(length int) (string, error) {
	if length < 1 {
		return "", &InvalidInputError{
			Field:  "verifier length",
			Reason: fmt.Sprintf("%d is not positive", length),
		}
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length)

	// Rejection sampling keeps the draw uniform: 198 is the largest
	// multiple of len(verifierCharset) that fits in a byte.
	const limit = 198

	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, verifierCharset[int(b)%len(verifierCharset)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}

// ChallengeS256 derives the code challenge from a code verifier: the SHA-256
// digest of the verifier's ASCII bytes, base64url-encoded without padding.
// Deterministic and side-effect free.
func ChallengeS256(verifier string) (string, error) {
	for i := 0; i < len(verifier); i++ {
		if verifier[i] > 0x7f {
			return "", &InvalidInputError{Field: "code verifier", Reason: "contains non-ASCII characters"}
		}
	}

	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// GenerateState generates a random state parameter binding the authorization
// response back to the request that produced it.
func GenerateState() (string, error) {
	return GenerateVerifier(stateLength)
}
