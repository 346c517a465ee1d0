package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2Params are the argon2id cost parameters used for new hashes.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
}

// DefaultArgon2Params is a memory-hard setting suitable for interactive login.
var DefaultArgon2Params = Argon2Params{MemoryKiB: 64 * 1024, Iterations: 3, Parallelism: 2, KeyLength: 32}

const (
	saltLength = 16
	// Upper bounds applied to parameters read back from stored hashes.
	maxVerifyMemoryKiB  = 1 << 20
	maxVerifyIterations = 64
)

// Hasher hashes and verifies passwords with argon2id. Stored bcrypt hashes are still
// accepted by Verify. Callers must not log or persist plaintext passwords.
type Hasher struct {
	params Argon2Params
}

// NewHasher returns a Hasher with the given parameters.
func NewHasher(p Argon2Params) (*Hasher, error) {
	if p.Iterations < 1 {
		return nil, errors.New("argon2: iterations must be at least 1")
	}
	if p.Parallelism < 1 {
		return nil, errors.New("argon2: parallelism must be at least 1")
	}
	if p.MemoryKiB < 8*uint32(p.Parallelism) {
		return nil, errors.New("argon2: memory must be at least 8 KiB per lane")
	}
	if p.KeyLength < 16 {
		return nil, errors.New("argon2: key length must be at least 16 bytes")
	}
	return &Hasher{params: p}, nil
}

// Hash returns a PHC-formatted argon2id hash with a random salt:
// $argon2id$v=19$m=<KiB>,t=<iterations>,p=<parallelism>$<salt>$<key>.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. Malformed or unsupported hashes
// verify as false.
func (h *Hasher) Verify(password, encoded string) bool {
	if isBcrypt(encoded) {
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
	}
	ph, err := parseArgon2id(encoded)
	if err != nil {
		return false
	}
	key := argon2.IDKey([]byte(password), ph.salt, ph.params.Iterations, ph.params.MemoryKiB, ph.params.Parallelism, uint32(len(ph.key)))
	return subtle.ConstantTimeCompare(key, ph.key) == 1
}

// NeedsRehash reports whether encoded was produced by bcrypt or with weaker parameters
// than the hasher's current ones.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	ph, err := parseArgon2id(encoded)
	if err != nil {
		return true
	}
	p := ph.params
	return p.MemoryKiB < h.params.MemoryKiB ||
		p.Iterations < h.params.Iterations ||
		p.Parallelism < h.params.Parallelism ||
		uint32(len(ph.key)) < h.params.KeyLength
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") || strings.HasPrefix(encoded, "$2b$") || strings.HasPrefix(encoded, "$2y$")
}

type phcHash struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

func parseArgon2id(encoded string) (*phcHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, errors.New("argon2: invalid hash format")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("argon2: version: %w", err)
	}
	if version != argon2.Version {
		return nil, errors.New("argon2: unsupported version")
	}
	var p Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Iterations, &p.Parallelism); err != nil {
		return nil, fmt.Errorf("argon2: params: %w", err)
	}
	if p.Iterations < 1 || p.Parallelism < 1 || p.MemoryKiB > maxVerifyMemoryKiB || p.Iterations > maxVerifyIterations {
		return nil, errors.New("argon2: params out of range")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("argon2: salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, errors.New("argon2: invalid key")
	}
	p.KeyLength = uint32(len(key))
	return &phcHash{params: p, salt: salt, key: key}, nil
}
