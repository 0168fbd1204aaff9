package services

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"nft-attribute-registry/internal/core/domain"
	"nft-attribute-registry/internal/core/ports/driven"
	"nft-attribute-registry/internal/core/ports/driving"
)

// AttributeStore orchestrates record initialization, reads, attribute and
// status-bit updates and the emergency-clear escape hatch. Mutations on one
// record key are serialized through a per-key lock; a failed mutation leaves
// the stored record byte-for-byte unchanged.
type AttributeStore struct {
	records   driven.RecordRepository
	versions  driven.VersionPolicyRepository
	platforms driven.PlatformRegistry
	gate      *AuthorizationGate

	mode       domain.ContextMode
	initPolicy domain.InitPolicy
	log        *zap.SugaredLogger

	mu    sync.Mutex
	locks map[domain.RecordKey]*sync.Mutex
}

// NewAttributeStore creates a new AttributeStore.
func NewAttributeStore(
	records driven.RecordRepository,
	versions driven.VersionPolicyRepository,
	platforms driven.PlatformRegistry,
	gate *AuthorizationGate,
	mode domain.ContextMode,
	initPolicy domain.InitPolicy,
	log *zap.SugaredLogger,
) driving.AttributeService {
	return &AttributeStore{
		records:    records,
		versions:   versions,
		platforms:  platforms,
		gate:       gate,
		mode:       mode,
		initPolicy: initPolicy,
		log:        log,
		locks:      make(map[domain.RecordKey]*sync.Mutex),
	}
}

// lockKey returns the mutex serializing mutations for one record key.
func (s *AttributeStore) lockKey(key domain.RecordKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// mutationKey derives the record key for a mutating call. In per-platform
// deployments the context is the calling platform itself.
func (s *AttributeStore) mutationKey(caller string, tokenID *uint256.Int) domain.RecordKey {
	return domain.KeyFor(tokenID, s.mode, caller)
}

func (s *AttributeStore) policyFor(version uint8) (domain.VersionPolicy, error) {
	policy, ok, err := s.versions.Get(version)
	if err != nil {
		return domain.VersionPolicy{}, fmt.Errorf("version lookup: %w", err)
	}
	if !ok {
		return domain.VersionPolicy{}, fmt.Errorf("%w: %d", domain.ErrUnsupportedVersion, version)
	}
	return policy, nil
}

// Initialize creates the record for a token. The whole record is written
// verbatim: initialization may set every attribute slot, mutable or immutable,
// and every status bit. The mutability boundary applies from the next
// mutation onward.
func (s *AttributeStore) Initialize(caller string, tokenID *uint256.Int, version uint8, status uint8, attributes [domain.AttributeSlots]byte) error {
	if _, err := s.policyFor(version); err != nil {
		return err
	}
	if err := s.gate.CanInitialize(s.initPolicy, caller, tokenID); err != nil {
		return err
	}

	key := s.mutationKey(caller, tokenID)
	lock := s.lockKey(key)
	lock.Lock()
	defer lock.Unlock()

	existing, found, err := s.records.Get(key)
	if err != nil {
		return fmt.Errorf("record lookup: %w", err)
	}
	if found && existing.Record.Initialized() {
		return fmt.Errorf("%w: token %s", domain.ErrAlreadyInitialized, tokenID.Hex())
	}

	rec := driven.StoredRecord{
		Record: domain.AttributeRecord{
			Version:    version,
			Status:     status,
			Attributes: attributes,
		},
		Platform: caller,
	}
	if err := s.records.Put(key, rec); err != nil {
		return fmt.Errorf("record write: %w", err)
	}

	s.log.Infow("record initialized",
		"token", tokenID.Hex(), "context", key.Context, "version", version, "platform", caller)
	return nil
}

// Read returns the record for a token. An existing token with no record
// yields the zero record; absence is an observable state, not an error.
func (s *AttributeStore) Read(tokenID *uint256.Int, context string) (domain.AttributeRecord, error) {
	if err := s.gate.CanRead(tokenID); err != nil {
		return domain.AttributeRecord{}, err
	}

	key := domain.KeyFor(tokenID, s.mode, context)
	stored, found, err := s.records.Get(key)
	if err != nil {
		return domain.AttributeRecord{}, fmt.Errorf("record lookup: %w", err)
	}
	if !found {
		return domain.AttributeRecord{}, nil
	}
	return stored.Record, nil
}

// UpdateAttributes applies a batch of writes to the mutable attribute suffix.
// The batch is all-or-nothing: one immutable or out-of-range index aborts the
// whole call with no partial writes.
func (s *AttributeStore) UpdateAttributes(caller string, tokenID *uint256.Int, indices []uint8, values []uint8) error {
	if len(indices) != len(values) {
		return fmt.Errorf("%w: %d indices, %d values", domain.ErrLengthMismatch, len(indices), len(values))
	}

	key := s.mutationKey(caller, tokenID)
	lock := s.lockKey(key)
	lock.Lock()
	defer lock.Unlock()

	stored, found, err := s.records.Get(key)
	if err != nil {
		return fmt.Errorf("record lookup: %w", err)
	}
	if !found || !stored.Record.Initialized() {
		return fmt.Errorf("%w: token %s", domain.ErrNotInitialized, tokenID.Hex())
	}

	if err := s.gate.CanMutate(caller, tokenID); err != nil {
		return err
	}

	policy, err := s.policyFor(stored.Record.Version)
	if err != nil {
		return err
	}

	// Validate the whole batch before touching the record.
	for _, index := range indices {
		if !policy.IsMutable(index) {
			return fmt.Errorf("%w: index %d (version %d mutable range %d..%d)",
				domain.ErrImmutableAttribute, index, stored.Record.Version,
				policy.FirstMutableIndex, policy.LastValidIndex)
		}
	}

	for i, index := range indices {
		stored.Record.Attributes[index] = values[i]
	}
	if err := s.records.Put(key, stored); err != nil {
		return fmt.Errorf("record write: %w", err)
	}

	s.log.Debugw("attributes updated",
		"token", tokenID.Hex(), "context", key.Context, "indices", indices, "caller", caller)
	return nil
}

// UpdateStatusBit sets or clears one status bit, leaving all others untouched.
func (s *AttributeStore) UpdateStatusBit(caller string, tokenID *uint256.Int, position uint8, value bool) error {
	key := s.mutationKey(caller, tokenID)
	lock := s.lockKey(key)
	lock.Lock()
	defer lock.Unlock()

	stored, found, err := s.records.Get(key)
	if err != nil {
		return fmt.Errorf("record lookup: %w", err)
	}
	if !found || !stored.Record.Initialized() {
		return fmt.Errorf("%w: token %s", domain.ErrNotInitialized, tokenID.Hex())
	}

	if err := s.gate.CanMutate(caller, tokenID); err != nil {
		return err
	}

	policy, err := s.policyFor(stored.Record.Version)
	if err != nil {
		return err
	}
	if position > policy.MaxStatusBit {
		return fmt.Errorf("%w: %d (version %d allows 0..%d)",
			domain.ErrPositionOutOfRange, position, stored.Record.Version, policy.MaxStatusBit)
	}

	status, err := domain.SetBit(stored.Record.Status, position, value)
	if err != nil {
		return err
	}
	stored.Record.Status = status
	if err := s.records.Put(key, stored); err != nil {
		return fmt.Errorf("record write: %w", err)
	}

	s.log.Debugw("status bit updated",
		"token", tokenID.Hex(), "context", key.Context, "position", position, "value", value, "caller", caller)
	return nil
}

// EmergencyClear lets the current asset owner set the transferable bit after
// the record's platform has been removed from the allow-list. This is the one
// deliberate bypass of the platform check; it exists so a deregistered
// platform cannot freeze an asset forever.
func (s *AttributeStore) EmergencyClear(caller string, tokenID *uint256.Int, context string) error {
	if err := s.gate.RequireOwner(caller, tokenID); err != nil {
		return err
	}

	key := domain.KeyFor(tokenID, s.mode, context)
	lock := s.lockKey(key)
	lock.Lock()
	defer lock.Unlock()

	stored, found, err := s.records.Get(key)
	if err != nil {
		return fmt.Errorf("record lookup: %w", err)
	}
	if !found || !stored.Record.Initialized() {
		return fmt.Errorf("%w: token %s", domain.ErrNotInitialized, tokenID.Hex())
	}

	registered, err := s.platforms.IsRegistered(stored.Platform)
	if err != nil {
		return fmt.Errorf("platform lookup: %w", err)
	}
	if registered {
		return fmt.Errorf("%w: platform %s is still registered, use the ordinary update path",
			domain.ErrUnauthorized, stored.Platform)
	}

	policy, err := s.policyFor(stored.Record.Version)
	if err != nil {
		return err
	}
	status, err := domain.SetBit(stored.Record.Status, policy.TransferableBit, true)
	if err != nil {
		return err
	}
	stored.Record.Status = status
	if err := s.records.Put(key, stored); err != nil {
		return fmt.Errorf("record write: %w", err)
	}

	s.log.Warnw("emergency clear applied",
		"token", tokenID.Hex(), "context", key.Context, "owner", caller, "defunct_platform", stored.Platform)
	return nil
}

// FirstMutable returns the first mutable attribute index of a version.
func (s *AttributeStore) FirstMutable(version uint8) (uint8, error) {
	policy, err := s.policyFor(version)
	if err != nil {
		return 0, err
	}
	return policy.FirstMutableIndex, nil
}

// LatestAttributeIndex returns the highest valid attribute index of a version.
func (s *AttributeStore) LatestAttributeIndex(version uint8) (uint8, error) {
	policy, err := s.policyFor(version)
	if err != nil {
		return 0, err
	}
	return policy.LastValidIndex, nil
}

// IsMutable reports whether an attribute index of an initialized token record
// is writable.
func (s *AttributeStore) IsMutable(tokenID *uint256.Int, context string, index uint8) (bool, error) {
	rec, err := s.Read(tokenID, context)
	if err != nil {
		return false, err
	}
	if !rec.Initialized() {
		return false, fmt.Errorf("%w: token %s", domain.ErrNotInitialized, tokenID.Hex())
	}
	policy, err := s.policyFor(rec.Version)
	if err != nil {
		return false, err
	}
	return policy.IsMutable(index), nil
}

// VersionPolicy returns the registered policy for a version.
func (s *AttributeStore) VersionPolicy(version uint8) (domain.VersionPolicy, error) {
	return s.policyFor(version)
}

// ListVersions returns every registered version policy.
func (s *AttributeStore) ListVersions() (map[uint8]domain.VersionPolicy, error) {
	return s.versions.List()
}

// RegisterVersion publishes the policy for a new version. Version 0 is
// reserved as the uninitialized marker.
func (s *AttributeStore) RegisterVersion(caller string, version uint8, policy domain.VersionPolicy) error {
	governor, err := s.platforms.IsGovernor(caller)
	if err != nil {
		return fmt.Errorf("governor lookup: %w", err)
	}
	if !governor {
		return fmt.Errorf("%w: caller %s is not the governing owner", domain.ErrUnauthorized, caller)
	}
	if version == 0 {
		return fmt.Errorf("%w: version 0 is reserved", domain.ErrInvalidPolicy)
	}
	if err := policy.Validate(); err != nil {
		return err
	}
	if err := s.versions.Register(version, policy); err != nil {
		return err
	}

	s.log.Infow("version registered",
		"version", version, "first_mutable", policy.FirstMutableIndex, "last_valid", policy.LastValidIndex)
	return nil
}

// RegisterPlatform adds a platform to the allow-list.
func (s *AttributeStore) RegisterPlatform(caller, platform string) error {
	if err := s.platforms.Register(caller, platform); err != nil {
		return err
	}
	s.log.Infow("platform registered", "platform", platform)
	return nil
}

// RemovePlatform removes a platform. Effective immediately for every
// subsequent authorization check, including records it initialized.
func (s *AttributeStore) RemovePlatform(caller, platform string) error {
	if err := s.platforms.Remove(caller, platform); err != nil {
		return err
	}
	s.log.Infow("platform removed", "platform", platform)
	return nil
}

// ListPlatforms returns the current allow-list.
func (s *AttributeStore) ListPlatforms() ([]string, error) {
	return s.platforms.List()
}
