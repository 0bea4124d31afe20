package core_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	core "groupcore/core"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]map[int64][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string]map[int64][]byte)} }

func (s *memStore) Persist(prefix string, version int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[prefix] == nil {
		s.data[prefix] = make(map[int64][]byte)
	}
	s.data[prefix][version] = append([]byte(nil), data...)
	return nil
}
func (s *memStore) Load(prefix string, version int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[prefix][version], nil
}
func (s *memStore) Trim(prefix string, upToVersion int64) error      { return nil }
func (s *memStore) Truncate(prefix string, aboveVersion int64) error { return nil }

// fakeSubstrate is a minimal MessagingSubstrate stub: it hands back a fixed
// set of peer signatures for PeerSignatures and records posted signatures.
type fakeSubstrate struct {
	mu          sync.Mutex
	posted      map[int64][]byte
	peerSigs    map[int64]map[core.NodeID][]byte
	peerSigsErr error
}

func newFakeSubstrate() *fakeSubstrate {
	return &fakeSubstrate{
		posted:   make(map[int64][]byte),
		peerSigs: make(map[int64]map[core.NodeID][]byte),
	}
}

func (f *fakeSubstrate) GetNextVersion(subgroupID uint32) (int64, int64, error) {
	return 0, 0, nil
}
func (f *fakeSubstrate) CurrentView() *core.View { return nil }
func (f *fakeSubstrate) PostSignature(subgroupID uint32, version int64, signature []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted[version] = append([]byte(nil), signature...)
	return nil
}
func (f *fakeSubstrate) PeerSignatures(subgroupID uint32, version int64) (map[core.NodeID][]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.peerSigsErr != nil {
		return nil, f.peerSigsErr
	}
	return f.peerSigs[version], nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// TestPersistenceManagerPersistsAndAdvancesWatermark exercises the basic
// persist path without signing: a posted request should end up durably
// stored and the watermark should advance exactly once per version.
func TestPersistenceManagerPersistsAndAdvancesWatermark(t *testing.T) {
	registry := core.NewPersistentRegistry("sg-0", newMemStore(), 0)
	field := core.NewMemoryField()
	registry.Register("value", field)
	field.SetValue([]byte("v1"))
	registry.MakeVersion(1, 1)

	pm := core.NewPersistenceManager(0, nil)
	pm.RegisterSubgroup(0, registry)

	var calls int
	var callsMu sync.Mutex
	require.NoError(t, pm.AddPersistenceCallback(func(subgroupID uint32, version int64) {
		callsMu.Lock()
		calls++
		callsMu.Unlock()
	}))

	pm.Start()
	defer pm.Shutdown(true)

	pm.PostPersistRequest(0, 1)
	waitFor(t, time.Second, func() bool { return pm.LastPersistedVersion(0) == 1 })

	// Idempotent persist: reposting the same version must not advance the
	// watermark again or invoke the callback again.
	pm.PostPersistRequest(0, 1)
	time.Sleep(20 * time.Millisecond)

	callsMu.Lock()
	got := calls
	callsMu.Unlock()
	require.Equal(t, 1, got, "callback should fire exactly once for one logical persist")
	require.Equal(t, int64(1), registry.MinimumLatestPersistedVersion())
}

// TestPersistenceManagerSigningAndVerification exercises the persist, sign
// and verify path end to end with Ed25519, then checks the ordering
// invariant last_verified_version <= last_persisted_version.
func TestPersistenceManagerSigningAndVerification(t *testing.T) {
	pub, priv, err := generateEd25519(t)
	require.NoError(t, err)

	const sigSize = 64 // ed25519.SignatureSize
	registry := core.NewPersistentRegistry("sg-0", newMemStore(), sigSize)
	field := core.NewMemoryField()
	registry.Register("value", field)
	field.SetValue([]byte("v1"))
	registry.MakeVersion(1, 1)

	substrate := newFakeSubstrate()

	pm := core.NewPersistenceManager(sigSize, nil)
	pm.RegisterSubgroup(0, registry)
	pm.AttachSubstrate(substrate)
	pm.SetCryptoFactories(
		func(subgroupID uint32) core.Signer { return core.NewEd25519Signer(priv) },
		func(subgroupID uint32, peer core.NodeID) core.Verifier { return core.NewEd25519Verifier(pub) },
	)
	pm.Start()
	defer pm.Shutdown(true)

	pm.PostPersistRequest(0, 1)
	waitFor(t, time.Second, func() bool { return pm.LastPersistedVersion(0) == 1 })

	sig, _, ok := registry.GetSignature(1)
	require.True(t, ok)

	substrate.mu.Lock()
	substrate.peerSigs[1] = map[core.NodeID][]byte{core.NodeID(1): sig}
	substrate.mu.Unlock()

	pm.PostVerifyRequest(0, 1)
	waitFor(t, time.Second, func() bool { return pm.LastVerifiedVersion(0) == 1 })

	require.LessOrEqual(t, pm.LastVerifiedVersion(0), pm.LastPersistedVersion(0))
}
