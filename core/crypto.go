package core

// Default Signer/Verifier/Hasher implementations. Mirrors core/security.go's
// choice of Ed25519 for node signing and crypto/sha256 for content hashing
// (ComputeMerkleRoot, shardOfAddr) in the teacher repo: this is the same
// primitive, continuing rather than replacing that choice.

import (
	"crypto/ed25519"
	"crypto/sha256"
)

// Ed25519Signer accumulates bytes and produces an Ed25519 signature over
// their concatenation when finalized.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
	buf  []byte
}

// NewEd25519Signer wraps priv for use as a Signer.
func NewEd25519Signer(priv ed25519.PrivateKey) *Ed25519Signer {
	return &Ed25519Signer{priv: priv}
}

func (s *Ed25519Signer) Init()                { s.buf = s.buf[:0] }
func (s *Ed25519Signer) AddBytes(buf []byte)  { s.buf = append(s.buf, buf...) }
func (s *Ed25519Signer) MaxSignatureSize() int { return ed25519.SignatureSize }

// Finalize signs the accumulated bytes and returns the signature.
func (s *Ed25519Signer) Finalize() []byte {
	return ed25519.Sign(s.priv, s.buf)
}

// Ed25519Verifier is the verification counterpart of Ed25519Signer.
type Ed25519Verifier struct {
	pub ed25519.PublicKey
	buf []byte
}

// NewEd25519Verifier wraps pub for use as a Verifier.
func NewEd25519Verifier(pub ed25519.PublicKey) *Ed25519Verifier {
	return &Ed25519Verifier{pub: pub}
}

func (v *Ed25519Verifier) Init()                { v.buf = v.buf[:0] }
func (v *Ed25519Verifier) AddBytes(buf []byte)  { v.buf = append(v.buf, buf...) }
func (v *Ed25519Verifier) MaxSignatureSize() int { return ed25519.SignatureSize }

// Finalize reports whether signature is valid over the accumulated bytes.
func (v *Ed25519Verifier) Finalize(signature []byte) bool {
	return ed25519.Verify(v.pub, v.buf, signature)
}

// SHA256Hasher is the default Hasher, used to derive subgroup prefixes.
type SHA256Hasher struct{}

func (SHA256Hasher) HashBytes(input []byte) [32]byte {
	return sha256.Sum256(input)
}
