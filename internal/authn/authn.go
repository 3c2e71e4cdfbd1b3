// Package authn hashes and verifies user passwords with a salted SHA-256
// scheme, and implements the ownership check that the authenticated user
// must match the user named in the request path.
package authn

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"github.com/wehriam/hiitrack/internal/apierrors"
)

const saltSize = 16

// Hash derives a stored credential from a plaintext password: a random salt
// plus a length-prefix-safe "salt$digest" hex encoding.
func Hash(password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	digest := digestWithSalt(salt, password)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(digest), nil
}

// Verify reports whether password matches a hash produced by Hash, using a
// constant-time comparison to avoid leaking timing information.
func Verify(hash, password string) bool {
	saltHex, digestHex, ok := splitHash(hash)
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	wantDigest, err := hex.DecodeString(digestHex)
	if err != nil {
		return false
	}
	gotDigest := digestWithSalt(salt, password)
	return subtle.ConstantTimeCompare(gotDigest, wantDigest) == 1
}

// Authorize fails with NotAuthorized when the authenticated user is not the
// target user.
func Authorize(authenticatedUser, targetUser string) error {
	if authenticatedUser != targetUser {
		return apierrors.NotAuthorized("authenticated user does not own this resource")
	}
	return nil
}

func digestWithSalt(salt []byte, password string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(password))
	return h.Sum(nil)
}

func splitHash(hash string) (salt, digest string, ok bool) {
	for i := 0; i < len(hash); i++ {
		if hash[i] == '$' {
			return hash[:i], hash[i+1:], true
		}
	}
	return "", "", false
}
