package core

import (
	"encoding/hex"
	"fmt"
	"sync"
)

// SubgroupPrefix derives the storage-key prefix uniquely naming a
// (subgroup-type, subgroup-index, shard) tuple's persistent storage:
// hex(sha256(typeName)) + "-" + subgroupIndex + "-" + shard, with the two
// indices written in decimal.
func SubgroupPrefix(hasher Hasher, typeName string, subgroupIndex, shard uint32) string {
	if hasher == nil {
		hasher = SHA256Hasher{}
	}
	digest := hasher.HashBytes([]byte(typeName))
	return fmt.Sprintf("%s-%d-%d", hex.EncodeToString(digest[:]), subgroupIndex, shard)
}

// SerializationContext threads the "earliest version to serialize"
// watermark explicitly through serialization calls, replacing the
// original's process-wide thread-local (§9's redesign note): a scope that
// is set immediately before a top-level serialize call and reset
// immediately after, never outliving that single call.
type SerializationContext struct {
	earliest int64
}

// NewSerializationContext returns a context with no watermark set
// (InvalidVersion), matching the original's default.
func NewSerializationContext() *SerializationContext {
	return &SerializationContext{earliest: InvalidVersion}
}

// SetEarliestVersionToSerialize configures the watermark below which the
// serializer may skip versions.
func (c *SerializationContext) SetEarliestVersionToSerialize(v int64) { c.earliest = v }

// EarliestVersionToSerialize returns the configured watermark.
func (c *SerializationContext) EarliestVersionToSerialize() int64 { return c.earliest }

// Reset clears the watermark back to InvalidVersion. Callers should defer
// Reset immediately after obtaining a context for a single top-level
// serialize operation.
func (c *SerializationContext) Reset() { c.earliest = InvalidVersion }

// PersistentRegistry is the per-(replicated-type, subgroup-index, shard)
// container of persistent fields. It drives version creation, persistence,
// trimming, and signature chaining across every field registered under one
// replicated object.
type PersistentRegistry struct {
	mu sync.Mutex

	prefix string
	store  DurableStore

	fields map[uint64]PersistentField
	// fieldOrder preserves registration order so sign/verify iterate fields
	// deterministically rather than relying on Go's randomized map order --
	// required by §4.1's determinism guarantee extended to the registry.
	fieldOrder []uint64

	signatureSize     int
	lastSignature     []byte
	lastSignedVersion int64
}

// NewPersistentRegistry constructs a registry for the given subgroup prefix
// and durable store. signatureSize is the fixed signature size used for
// this group (0 if signing is disabled for it).
func NewPersistentRegistry(prefix string, store DurableStore, signatureSize int) *PersistentRegistry {
	return &PersistentRegistry{
		prefix:            prefix,
		store:             store,
		fields:            make(map[uint64]PersistentField),
		signatureSize:     signatureSize,
		lastSignature:     make([]byte, signatureSize),
		lastSignedVersion: InvalidVersion,
	}
}

func fieldKey(name string) uint64 {
	// FNV-1a, matching std::hash<std::string>'s role in the original:
	// a fast, deterministic, non-cryptographic key for the registry map.
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= prime64
	}
	return h
}

// Register inserts field keyed by hash(fieldName); on collision the newer
// handle replaces the older, matching the original's overwrite-on-collision
// behavior.
func (r *PersistentRegistry) Register(fieldName string, field PersistentField) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fieldKey(fieldName)
	if _, exists := r.fields[key]; !exists {
		r.fieldOrder = append(r.fieldOrder, key)
	}
	r.fields[key] = field
}

// Unregister removes fieldName from the registry so it no longer
// participates in MakeVersion/Persist/Sign/Verify. It is a no-op if
// fieldName is absent. §9 leaves "whether a true unregister is required for
// correctness" as an Open Question; this repo resolves it in favor of a real
// removal (a departed replicated-object field must stop being fed into the
// signature chain, or Verify would require it forever) -- see DESIGN.md.
func (r *PersistentRegistry) Unregister(fieldName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fieldKey(fieldName)
	delete(r.fields, key)
	for i, k := range r.fieldOrder {
		if k == key {
			r.fieldOrder = append(r.fieldOrder[:i], r.fieldOrder[i+1:]...)
			break
		}
	}
}

func (r *PersistentRegistry) orderedFields() []PersistentField {
	out := make([]PersistentField, 0, len(r.fieldOrder))
	for _, k := range r.fieldOrder {
		if f, ok := r.fields[k]; ok {
			out = append(out, f)
		}
	}
	return out
}

// MakeVersion tells every field to record a new version at hlcMicros.
func (r *PersistentRegistry) MakeVersion(version int64, hlcMicros int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.orderedFields() {
		f.MakeVersion(version, hlcMicros)
	}
}

// Persist tells every field to durably store all versions <= version.
func (r *PersistentRegistry) Persist(version int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.orderedFields() {
		if err := f.Persist(version, r.store, r.prefix); err != nil {
			return err
		}
	}
	return nil
}

// Trim tells every field to drop versions <= version.
func (r *PersistentRegistry) Trim(version int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.orderedFields() {
		f.Trim(version)
	}
}

// Truncate tells every field to discard versions > version (recovery path).
func (r *PersistentRegistry) Truncate(version int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.orderedFields() {
		f.Truncate(version)
	}
}

// MinimumLatestVersion returns the minimum, across fields, of each field's
// latest in-memory version. Returns InvalidVersion if any field is empty
// (mirroring the original: an empty field's getLatestVersion() is -1, which
// always wins the min) or if the registry has no fields.
func (r *PersistentRegistry) MinimumLatestVersion() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	fields := r.orderedFields()
	if len(fields) == 0 {
		return InvalidVersion
	}
	min := fields[0].LatestVersion()
	for _, f := range fields[1:] {
		if v := f.LatestVersion(); v < min {
			min = v
		}
	}
	return min
}

// MinimumLatestPersistedVersion is the persisted-tail analogue of
// MinimumLatestVersion.
func (r *PersistentRegistry) MinimumLatestPersistedVersion() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	fields := r.orderedFields()
	if len(fields) == 0 {
		return InvalidVersion
	}
	min := fields[0].LastPersistedVersion()
	for _, f := range fields[1:] {
		if v := f.LastPersistedVersion(); v < min {
			min = v
		}
	}
	return min
}

// InitializeLastSignature seeds the chain after recovery: an all-zero
// buffer of signatureSize represents the genesis signature for the first
// version. It replaces the stored previous signature only if version is
// strictly greater than the currently recorded lastSignedVersion (or no
// version has been signed yet), matching the original's guard.
func (r *PersistentRegistry) InitializeLastSignature(version int64, signature []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.signatureSize > 0 && version != InvalidVersion &&
		(r.lastSignedVersion == InvalidVersion || r.lastSignedVersion < version) {
		if len(signature) != r.signatureSize {
			r.lastSignature = make([]byte, r.signatureSize)
		}
		copy(r.lastSignature, signature)
		r.lastSignedVersion = version
	}
}

// Sign advances the signature chain from lastSignedVersion+1 through upToV
// inclusive, per the seven-step procedure in §4.4: for each version w, every
// field contributes its bytes at w (tracking total bytes fed); a version
// with zero total bytes is skipped (no object state existed at w); the
// previous signature is fed last; the result is attached to every field and
// becomes the new previous signature.
func (r *PersistentRegistry) Sign(upToV int64, signer Signer) (lastSigned int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if signer == nil {
		return r.lastSignedVersion, newErr(ErrCryptoFailure, "no signer configured", nil)
	}
	fields := r.orderedFields()

	for w := r.lastSignedVersion + 1; w <= upToV; w++ {
		signer.Init()
		bytesFed := 0
		for _, f := range fields {
			b := f.BytesAt(w)
			if len(b) == 0 {
				continue
			}
			signer.AddBytes(b)
			bytesFed += len(b)
		}
		if bytesFed == 0 {
			continue
		}
		signer.AddBytes(r.lastSignature)
		sig := signer.Finalize()

		for _, f := range fields {
			f.AttachSignature(w, sig, r.lastSignedVersion)
		}
		r.lastSignature = append([]byte(nil), sig...)
		r.lastSignedVersion = w
	}
	return r.lastSignedVersion, nil
}

// GetSignature returns the signature attached to version v and the version
// it chains to, or ok=false if no field has a signature at v.
func (r *PersistentRegistry) GetSignature(v int64) (signature []byte, prevSignedVersion int64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.orderedFields() {
		if sig, prev, has := f.GetSignature(v); has {
			return sig, prev, true
		}
	}
	return nil, InvalidVersion, false
}

// Verify checks that sig is a valid signature over version v's object
// state, following §4.4's procedure: if the registry is empty, verification
// trivially succeeds; otherwise every field feeds its bytes at v, the
// previous signature is located via whichever field recorded one at v (all
// zeros if its prevSignedVersion is InvalidVersion, i.e. v is the first
// signed version), and that previous signature is fed last before
// finalizing against sig.
func (r *PersistentRegistry) Verify(v int64, verifier Verifier, sig []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fields := r.orderedFields()
	if len(fields) == 0 {
		return true, nil
	}
	if verifier == nil {
		return false, newErr(ErrCryptoFailure, "no verifier configured", nil)
	}

	verifier.Init()
	for _, f := range fields {
		verifier.AddBytes(f.BytesAt(v))
	}

	var prevSig []byte
	found := false
	for _, f := range fields {
		if _, prev, has := f.GetSignature(v); has {
			if prev == InvalidVersion {
				prevSig = make([]byte, r.signatureSize)
			} else if psig, _, ok := f.GetSignature(prev); ok {
				prevSig = psig
			} else {
				prevSig = make([]byte, r.signatureSize)
			}
			found = true
			break
		}
	}
	if !found {
		prevSig = make([]byte, r.signatureSize)
	}

	verifier.AddBytes(prevSig)
	return verifier.Finalize(sig), nil
}

// LastSignedVersion reports the highest version this registry has signed,
// or InvalidVersion if none.
func (r *PersistentRegistry) LastSignedVersion() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSignedVersion
}
