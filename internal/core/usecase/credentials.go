package usecase

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/atvirokodosprendimai/desiauth/internal/core/domain"
	"golang.org/x/crypto/bcrypt"
)

// HashCost is the bcrypt work factor for passwords and API key secrets.
// Tests lower it to bcrypt.MinCost.
var HashCost = 12

func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), HashCost)
	if err != nil {
		return "", fmt.Errorf("hash secret: %w: %v", domain.ErrInvalidCredential, err)
	}
	return string(hash), nil
}

// compareHash is swapped in tests to count bcrypt comparisons.
var compareHash = bcrypt.CompareHashAndPassword

// VerifySecret reports whether secret matches hash. A malformed hash is a
// mismatch.
func VerifySecret(secret, hash string) bool {
	if hash == "" {
		return false
	}
	return compareHash([]byte(hash), []byte(secret)) == nil
}

var placeholder struct {
	mu   sync.Mutex
	cost int
	hash string
}

// placeholderHash is a hash of a random secret at the current HashCost.
// Comparing against it costs as much as checking a real password.
func placeholderHash() string {
	placeholder.mu.Lock()
	defer placeholder.mu.Unlock()
	if placeholder.hash != "" && placeholder.cost == HashCost {
		return placeholder.hash
	}
	secret, err := RandomToken(24)
	if err != nil {
		secret = "placeholder"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), HashCost)
	if err != nil {
		return ""
	}
	placeholder.cost, placeholder.hash = HashCost, string(hash)
	return placeholder.hash
}

// RandomToken returns n random bytes encoded as unpadded base64url.
func RandomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
