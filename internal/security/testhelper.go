package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"time"
)

// Test fixtures shared by package tests across the module. Keys are generated once
// per test binary and never persisted.
var (
	testKeyOnce sync.Once
	testKeyPair *KeyPair
	testPrivPEM string
	testPubPEM  string
)

func initTestKeys() {
	testKeyOnce.Do(func() {
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic("security: generate test key: " + err.Error())
		}
		testKeyPair, err = NewKeyPair(priv, &priv.PublicKey)
		if err != nil {
			panic("security: test key pair: " + err.Error())
		}
		der, err := x509.MarshalPKCS8PrivateKey(priv)
		if err != nil {
			panic("security: marshal test key: " + err.Error())
		}
		pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
		if err != nil {
			panic("security: marshal test public key: " + err.Error())
		}
		testPrivPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
		testPubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	})
}

// TestKeyPair returns the process-wide RSA test key pair. Tests only.
func TestKeyPair() *KeyPair {
	initTestKeys()
	return testKeyPair
}

// TestKeyPEM returns the PEM encodings of TestKeyPair. Tests only.
func TestKeyPEM() (privatePEM, publicPEM string) {
	initTestKeys()
	return testPrivPEM, testPubPEM
}

// NewTestCodec returns a codec with 60m/24h lifetimes over TestKeyPair.
func NewTestCodec(opts ...CodecOption) *TokenCodec {
	return NewTokenCodec(TestKeyPair(), "test-issuer", "test-audience", 60*time.Minute, 24*time.Hour, opts...)
}

// NewTestHasher returns a cheap argon2id hasher so tests stay fast.
func NewTestHasher() *Hasher {
	h, err := NewHasher(Argon2Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, KeyLength: 32})
	if err != nil {
		panic(err)
	}
	return h
}
