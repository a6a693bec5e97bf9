package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	SchemeBcrypt   = "bcrypt"
	SchemeArgon2id = "argon2id"

	minPasswordLength = 8
)

// Hasher hashes and verifies user credentials.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}

// NewHasher returns the hasher for scheme. The result verifies digests of
// every supported scheme, so switching schemes keeps existing users working.
func NewHasher(scheme string, bcryptCost int) (Hasher, error) {
	bc := BcryptHasher{Cost: bcryptCost}
	ar := Argon2Hasher{}
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", SchemeBcrypt:
		return MultiHasher{Primary: bc, Fallback: []Hasher{ar}}, nil
	case SchemeArgon2id:
		return MultiHasher{Primary: ar, Fallback: []Hasher{bc}}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported password scheme %q", ErrInvalidInput, scheme)
	}
}

// ValidatePassword enforces the minimum credential policy.
func ValidatePassword(password string) error {
	if len([]rune(password)) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	return nil
}

// BcryptHasher hashes passwords using bcrypt.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	if len(password) == 0 {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hash), nil
}

func (h BcryptHasher) Verify(password, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// Argon2 parameters, PHC encoded into every digest.
const (
	argonTime    = 2
	argonMemory  = 64 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16
)

// Argon2Hasher hashes passwords using Argon2id in PHC string format:
// $argon2id$v=19$m=65536,t=2,p=1$<salt>$<hash>
type Argon2Hasher struct{}

func (Argon2Hasher) Hash(password string) (string, error) {
	if len(password) == 0 {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

func (Argon2Hasher) Verify(password, digest string) bool {
	salt, hash, params, err := decodePHC(digest)
	if err != nil {
		return false
	}
	candidate := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, candidate) == 1
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

func decodePHC(encoded string) (salt, hash []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, nil, params, fmt.Errorf("invalid PHC hash format")
	}
	if parts[1] != SchemeArgon2id {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	if len(hash) == 0 {
		return nil, nil, params, fmt.Errorf("empty hash")
	}
	return salt, hash, params, nil
}

// MultiHasher hashes with Primary and verifies against the scheme the digest
// was produced with.
type MultiHasher struct {
	Primary  Hasher
	Fallback []Hasher
}

func (m MultiHasher) Hash(password string) (string, error) {
	return m.Primary.Hash(password)
}

func (m MultiHasher) Verify(password, digest string) bool {
	h := m.Primary
	if isArgon2Digest(digest) != isArgon2Hasher(h) {
		for _, f := range m.Fallback {
			if isArgon2Digest(digest) == isArgon2Hasher(f) {
				h = f
				break
			}
		}
	}
	return h.Verify(password, digest)
}

func isArgon2Digest(digest string) bool {
	return strings.HasPrefix(digest, "$"+SchemeArgon2id+"$")
}

func isArgon2Hasher(h Hasher) bool {
	_, ok := h.(Argon2Hasher)
	return ok
}
