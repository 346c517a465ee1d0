package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidKey is returned when PEM content or the key type is unusable for signing.
	ErrInvalidKey = errors.New("invalid key")
	// ErrKeyMismatch is returned when the public key does not belong to the private key.
	ErrKeyMismatch = errors.New("public key does not match private key")
)

// KeyPair is the asymmetric pair used by the token codec. The private half signs,
// the public half verifies.
type KeyPair struct {
	Private crypto.Signer
	Public  crypto.PublicKey
	Method  jwt.SigningMethod
}

// LoadKeyPair parses both halves (inline PEM or file paths) and checks they belong together.
func LoadKeyPair(privateSrc, publicSrc string) (*KeyPair, error) {
	priv, err := ParsePrivateKey(privateSrc)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	pub, err := ParsePublicKey(publicSrc)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	return NewKeyPair(priv, pub)
}

// NewKeyPair validates an already-parsed pair and picks its signing method.
func NewKeyPair(priv crypto.Signer, pub crypto.PublicKey) (*KeyPair, error) {
	if priv == nil || pub == nil {
		return nil, ErrInvalidKey
	}
	eq, ok := priv.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !eq.Equal(pub) {
		return nil, ErrKeyMismatch
	}
	method := SigningMethod(pub)
	if method == nil {
		return nil, ErrInvalidKey
	}
	return &KeyPair{Private: priv, Public: pub, Method: method}, nil
}

// LoadPEM reads content from path if s does not look like inline PEM; otherwise returns s as bytes.
// Inline PEM coming from a single-line env var may carry literal "\n" sequences.
func LoadPEM(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(strings.ReplaceAll(s, `\n`, "\n")), nil
	}
	return os.ReadFile(s)
}

// ParsePrivateKey parses a PEM-encoded private key (PKCS#1, PKCS#8 or SEC 1). s may be inline PEM or a file path.
func ParsePrivateKey(s string) (crypto.Signer, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		switch k := key.(type) {
		case *rsa.PrivateKey:
			return k, nil
		case *ecdsa.PrivateKey:
			return k, nil
		default:
			return nil, ErrInvalidKey
		}
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// ParsePublicKey parses a PEM-encoded public key (PKIX or PKCS#1). s may be inline PEM or a file path.
func ParsePublicKey(s string) (crypto.PublicKey, error) {
	pemBytes, err := LoadPEM(s)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, ErrInvalidKey
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		return x509.ParsePKIXPublicKey(block.Bytes)
	default:
		return nil, ErrInvalidKey
	}
}

// SigningMethod returns RS256 for RSA keys and ES256 for P-256 keys; nil otherwise.
func SigningMethod(pub crypto.PublicKey) jwt.SigningMethod {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		if k.Curve == elliptic.P256() {
			return jwt.SigningMethodES256
		}
		return nil
	default:
		return nil
	}
}
