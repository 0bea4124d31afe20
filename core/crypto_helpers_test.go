package core_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
)

func generateEd25519(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	t.Helper()
	return ed25519.GenerateKey(rand.Reader)
}
