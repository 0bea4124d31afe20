package core

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// PersistRequest asks the persistence worker to durably store version for
// subgroupID.
type PersistRequest struct {
	SubgroupID uint32
	Version    int64
}

// VerifyRequest asks the verification worker to check peers' signatures for
// subgroupID at version.
type VerifyRequest struct {
	SubgroupID uint32
	Version    int64
}

// SignerFactory produces the Signer a subgroup uses to sign its own
// versions. VerifierFactory produces the Verifier used to check a specific
// peer's signature for a subgroup.
type SignerFactory func(subgroupID uint32) Signer
type VerifierFactory func(subgroupID uint32, peer NodeID) Verifier

// PersistenceManager runs the two cooperating background workers of §4.5:
// one persists versions to durable storage (and signs them, if enabled),
// the other verifies peers' signatures and advances the verified-version
// watermark. Both run concurrently with application threads and with each
// other.
//
// Go's buffered channels subsume the original's explicit
// {queue + spinlock + counting semaphore} trio: a channel send is the
// producer-side enqueue, a channel receive is the consumer-side wait+dequeue,
// and the channel's internal lock is the short critical section the spec's
// spin lock guarded. See DESIGN.md for why this is a faithful substitution
// rather than a scope cut.
type PersistenceManager struct {
	log *logrus.Logger

	registriesMu sync.RWMutex
	registries   map[uint32]*PersistentRegistry

	// substrate is attached after construction via AttachSubstrate, breaking
	// the Persistence-Manager/View-Manager construction cycle per §9's
	// redesign note: PersistenceManager only needs the registry map to
	// start, and receives its (non-owning) substrate handle later.
	substrate MessagingSubstrate

	signingEnabled  bool
	signatureSize   int
	signerFactory   SignerFactory
	verifierFactory VerifierFactory

	watermarksMu   sync.RWMutex
	lastPersisted  map[uint32]int64
	lastVerified   map[uint32]int64

	persistQueue chan PersistRequest
	verifyQueue  chan VerifyRequest

	callbacksMu sync.Mutex
	callbacks   []func(subgroupID uint32, version int64)
	started     bool

	wg sync.WaitGroup

	persistedGauge *prometheus.GaugeVec
	verifiedGauge  *prometheus.GaugeVec
}

// NewPersistenceManager constructs a manager with the given signature size
// (0 disables signing/verification). Queue depth of 256 matches the
// "queues are short" assumption in §4.5 -- producers only block under
// sustained contention, which is the intended backpressure signal.
func NewPersistenceManager(signatureSize int, log *logrus.Logger) *PersistenceManager {
	if log == nil {
		log = logrus.New()
	}
	pm := &PersistenceManager{
		log:           log,
		registries:    make(map[uint32]*PersistentRegistry),
		signingEnabled: signatureSize > 0,
		signatureSize: signatureSize,
		lastPersisted: make(map[uint32]int64),
		lastVerified:  make(map[uint32]int64),
		persistQueue:  make(chan PersistRequest, 256),
		verifyQueue:   make(chan VerifyRequest, 256),
		persistedGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "groupcore_last_persisted_version",
			Help: "Highest version persisted locally, per subgroup.",
		}, []string{"subgroup_id"}),
		verifiedGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "groupcore_last_verified_version",
			Help: "Highest version whose peer signatures have all verified, per subgroup.",
		}, []string{"subgroup_id"}),
	}
	return pm
}

// AttachSubstrate sets the messaging substrate reference. Must be called
// before Start.
func (pm *PersistenceManager) AttachSubstrate(substrate MessagingSubstrate) {
	pm.substrate = substrate
}

// SetCryptoFactories configures how the workers obtain Signer/Verifier
// instances per subgroup. Only meaningful when signing is enabled.
func (pm *PersistenceManager) SetCryptoFactories(signer SignerFactory, verifier VerifierFactory) {
	pm.signerFactory = signer
	pm.verifierFactory = verifier
}

// RegisterSubgroup associates a subgroup id with its PersistentRegistry.
// Must be called before that subgroup's requests are posted.
func (pm *PersistenceManager) RegisterSubgroup(subgroupID uint32, registry *PersistentRegistry) {
	pm.registriesMu.Lock()
	defer pm.registriesMu.Unlock()
	pm.registries[subgroupID] = registry
}

func (pm *PersistenceManager) registryFor(subgroupID uint32) *PersistentRegistry {
	pm.registriesMu.RLock()
	defer pm.registriesMu.RUnlock()
	return pm.registries[subgroupID]
}

// AddPersistenceCallback appends f to the list invoked after each persisted
// version. The callback list is append-only once Start has been called, to
// avoid racing with the persistence worker's read of the list (§9's
// redesign note); calling it after Start returns an error instead of
// mutating live state.
func (pm *PersistenceManager) AddPersistenceCallback(f func(subgroupID uint32, version int64)) error {
	pm.callbacksMu.Lock()
	defer pm.callbacksMu.Unlock()
	if pm.started {
		return newErr(ErrEmptyReference, "cannot add a persistence callback after Start", nil)
	}
	pm.callbacks = append(pm.callbacks, f)
	return nil
}

// PostPersistRequest enqueues a persist request. It may block briefly under
// sustained queue contention but never on disk or crypto.
func (pm *PersistenceManager) PostPersistRequest(subgroupID uint32, version int64) {
	pm.persistQueue <- PersistRequest{SubgroupID: subgroupID, Version: version}
}

// PostVerifyRequest enqueues a verify request.
func (pm *PersistenceManager) PostVerifyRequest(subgroupID uint32, version int64) {
	pm.verifyQueue <- VerifyRequest{SubgroupID: subgroupID, Version: version}
}

// LastPersistedVersion returns the cached watermark for subgroupID. Readers
// may observe stale values; the durable store and the substrate's own SST
// field remain the source of truth (§5's shared-resource policy).
func (pm *PersistenceManager) LastPersistedVersion(subgroupID uint32) int64 {
	pm.watermarksMu.RLock()
	defer pm.watermarksMu.RUnlock()
	if v, ok := pm.lastPersisted[subgroupID]; ok {
		return v
	}
	return InvalidVersion
}

// LastVerifiedVersion returns the cached verified watermark for subgroupID.
func (pm *PersistenceManager) LastVerifiedVersion(subgroupID uint32) int64 {
	pm.watermarksMu.RLock()
	defer pm.watermarksMu.RUnlock()
	if v, ok := pm.lastVerified[subgroupID]; ok {
		return v
	}
	return InvalidVersion
}

// Collectors returns the Prometheus collectors for the watermark gauges so
// callers can register them with their own registry, the way
// system_health_logging.go registers its gauges.
func (pm *PersistenceManager) Collectors() []prometheus.Collector {
	return []prometheus.Collector{pm.persistedGauge, pm.verifiedGauge}
}

// Start launches the persistence and verification worker goroutines.
func (pm *PersistenceManager) Start() {
	pm.callbacksMu.Lock()
	pm.started = true
	pm.callbacksMu.Unlock()

	pm.wg.Add(2)
	go pm.persistLoop()
	go pm.verifyLoop()
}

// Shutdown requests both workers to stop once their queues drain. If wait is
// true, it blocks until both goroutines have exited. In-flight persistence
// of a version is never interrupted.
func (pm *PersistenceManager) Shutdown(wait bool) {
	close(pm.persistQueue)
	close(pm.verifyQueue)
	if wait {
		pm.wg.Wait()
	}
}

func (pm *PersistenceManager) persistLoop() {
	defer pm.wg.Done()
	for req := range pm.persistQueue {
		pm.handlePersistRequest(req)
	}
}

func (pm *PersistenceManager) handlePersistRequest(req PersistRequest) {
	if req.Version <= pm.LastPersistedVersion(req.SubgroupID) {
		return // obsolete, drop
	}
	registry := pm.registryFor(req.SubgroupID)
	if registry == nil {
		pm.log.WithField("subgroup_id", req.SubgroupID).Warn("persist request for unregistered subgroup")
		return
	}

	if err := registry.Persist(req.Version); err != nil {
		pm.log.WithFields(logrus.Fields{"subgroup_id": req.SubgroupID, "version": req.Version}).
			WithError(err).Error("persist failed; watermark not advanced")
		return
	}

	if pm.signingEnabled && pm.signerFactory != nil {
		signer := pm.signerFactory(req.SubgroupID)
		if _, err := registry.Sign(req.Version, signer); err != nil {
			pm.log.WithFields(logrus.Fields{"subgroup_id": req.SubgroupID, "version": req.Version}).
				WithError(err).Error("sign failed; watermark not advanced")
			return
		}
		if sig, _, ok := registry.GetSignature(req.Version); ok && pm.substrate != nil {
			if err := pm.substrate.PostSignature(req.SubgroupID, req.Version, sig); err != nil {
				pm.log.WithFields(logrus.Fields{"subgroup_id": req.SubgroupID, "version": req.Version}).
					WithError(err).Error("post signature failed")
			}
		}
	}

	pm.watermarksMu.Lock()
	pm.lastPersisted[req.SubgroupID] = req.Version
	pm.watermarksMu.Unlock()
	pm.persistedGauge.WithLabelValues(fmt.Sprint(req.SubgroupID)).Set(float64(req.Version))

	pm.callbacksMu.Lock()
	callbacks := append([]func(uint32, int64)(nil), pm.callbacks...)
	pm.callbacksMu.Unlock()
	for _, cb := range callbacks {
		cb(req.SubgroupID, req.Version)
	}
}

func (pm *PersistenceManager) verifyLoop() {
	defer pm.wg.Done()
	for req := range pm.verifyQueue {
		pm.handleVerifyRequest(req)
	}
}

func (pm *PersistenceManager) handleVerifyRequest(req VerifyRequest) {
	if !pm.signingEnabled {
		return
	}
	if req.Version <= pm.LastVerifiedVersion(req.SubgroupID) {
		return // obsolete, drop
	}
	registry := pm.registryFor(req.SubgroupID)
	if registry == nil || pm.substrate == nil {
		return
	}

	peerSigs, err := pm.substrate.PeerSignatures(req.SubgroupID, req.Version)
	if err != nil {
		pm.log.WithFields(logrus.Fields{"subgroup_id": req.SubgroupID, "version": req.Version}).
			WithError(err).Error("fetch peer signatures failed")
		return
	}

	for peer, sig := range peerSigs {
		var verifier Verifier
		if pm.verifierFactory != nil {
			verifier = pm.verifierFactory(req.SubgroupID, peer)
		}
		ok, err := registry.Verify(req.Version, verifier, sig)
		if err != nil {
			pm.log.WithFields(logrus.Fields{"subgroup_id": req.SubgroupID, "version": req.Version, "peer": peer}).
				WithError(err).Error("verify errored; watermark not advanced")
			return
		}
		if !ok {
			pm.log.WithFields(logrus.Fields{"subgroup_id": req.SubgroupID, "version": req.Version, "peer": peer}).
				Error("signature verification failed; watermark not advanced")
			return
		}
	}

	pm.watermarksMu.Lock()
	pm.lastVerified[req.SubgroupID] = req.Version
	pm.watermarksMu.Unlock()
	pm.verifiedGauge.WithLabelValues(fmt.Sprint(req.SubgroupID)).Set(float64(req.Version))
}
