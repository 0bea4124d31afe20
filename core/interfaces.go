package core

import "time"

// MessagingSubstrate is the reliable-messaging/RDMA layer this core
// consumes but does not implement. Production wiring plugs in the real
// transport; tests supply an in-memory fake.
type MessagingSubstrate interface {
	// GetNextVersion is called during ordered delivery to stamp an update
	// with a monotonic version number and an HLC timestamp (microseconds).
	GetNextVersion(subgroupID uint32) (version int64, hlcMicros int64, err error)
	// CurrentView returns a snapshot of the presently installed View.
	CurrentView() *View
	// PostSignature publishes a signature for (subgroupID, version) to peers.
	PostSignature(subgroupID uint32, version int64, signature []byte) error
	// PeerSignatures retrieves peers' published signatures for (subgroupID, version).
	PeerSignatures(subgroupID uint32, version int64) (map[NodeID][]byte, error)
}

// DurableStore is the persistence backend this core drives but does not
// implement.
type DurableStore interface {
	Persist(prefix string, version int64, data []byte) error
	Load(prefix string, version int64) ([]byte, error)
	Trim(prefix string, upToVersion int64) error
	Truncate(prefix string, aboveVersion int64) error
}

// Signer produces a signature over a stream of fed bytes.
type Signer interface {
	Init()
	AddBytes(buf []byte)
	Finalize() []byte
	MaxSignatureSize() int
}

// Verifier checks a signature against a stream of fed bytes.
type Verifier interface {
	Init()
	AddBytes(buf []byte)
	Finalize(signature []byte) bool
	MaxSignatureSize() int
}

// Hasher computes a fixed-size digest of arbitrary input, used to derive the
// subgroup prefix (§4.4) deterministically across nodes.
type Hasher interface {
	HashBytes(input []byte) [32]byte
}

// InvalidVersion is the sentinel "no version" value (spec's INVALID_VERSION).
const InvalidVersion int64 = -1

// HLCNow is a seam for producing hybrid-logical-clock timestamps in tests
// without touching the wall clock directly in production code paths;
// production callers get their HLC from MessagingSubstrate.GetNextVersion.
func HLCNow() int64 {
	return time.Now().UnixMicro()
}
