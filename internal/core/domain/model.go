package domain

import (
	"fmt"

	"github.com/holiman/uint256"
)

// AttributeSlots is the fixed size of the attribute vector carried by every record.
const AttributeSlots = 30

// MaxAttributeIndex is the highest addressable attribute index.
const MaxAttributeIndex = AttributeSlots - 1

// MaxStatusBit is the highest addressable status bit position.
const MaxStatusBit = 7

// ContextMode selects how attribute records are keyed.
type ContextMode string

const (
	// ContextSingle keys one record per token, guarded by the platform allow-list.
	ContextSingle ContextMode = "single"
	// ContextPerPlatform keys records by (token, platform) pairs.
	ContextPerPlatform ContextMode = "per-platform"
)

// InitPolicy fixes, per deployment, who may initialize records. The choice is
// configuration, never mixed per call.
type InitPolicy string

const (
	// InitByPlatform routes initialization through the full mutation gate:
	// registered platform plus ownership-ledger approval.
	InitByPlatform InitPolicy = "platform"
	// InitByMinter lets the token owner or an approved operator initialize
	// without platform membership, matching a minting flow.
	InitByMinter InitPolicy = "minter"
)

// AttributeRecord is the per-asset value type: a schema version, an 8-bit
// status register and a fixed attribute vector. Version 0 means the record
// has never been initialized.
type AttributeRecord struct {
	Version    uint8
	Status     uint8
	Attributes [AttributeSlots]byte
}

// Initialized reports whether the record has been initialized.
func (r AttributeRecord) Initialized() bool {
	return r.Version != 0
}

// VersionPolicy defines the mutability boundary and status-bit layout for one
// record version. Policies are registered once per version and never change;
// schema evolution adds a new version instead.
type VersionPolicy struct {
	// FirstMutableIndex is the first attribute index that stays writable
	// after initialization. Everything below it is frozen at init time.
	FirstMutableIndex uint8
	// LastValidIndex is the highest attribute index this version uses.
	// Indices beyond it must remain zero.
	LastValidIndex uint8
	// MaxStatusBit is the highest status bit position this version allows.
	MaxStatusBit uint8
	// Named status bit positions consumed by the transfer gate. Positions
	// outside these three carry caller-defined semantics.
	TransferableBit uint8
	BurnableBit     uint8
	BridgedBit      uint8
}

// Default named-bit layout. Versions that do not override the layout gate
// transfers on bit 1, burns on bit 2, and mark bridge custody on bit 0.
const (
	DefaultBridgedBit      uint8 = 0
	DefaultTransferableBit uint8 = 1
	DefaultBurnableBit     uint8 = 2
)

// NewVersionPolicy returns a policy with the default status-bit layout and the
// full bit range enabled.
func NewVersionPolicy(firstMutable, lastValid uint8) VersionPolicy {
	return VersionPolicy{
		FirstMutableIndex: firstMutable,
		LastValidIndex:    lastValid,
		MaxStatusBit:      MaxStatusBit,
		TransferableBit:   DefaultTransferableBit,
		BurnableBit:       DefaultBurnableBit,
		BridgedBit:        DefaultBridgedBit,
	}
}

// Validate checks the policy invariants.
func (p VersionPolicy) Validate() error {
	if p.FirstMutableIndex > p.LastValidIndex {
		return fmt.Errorf("%w: first mutable index %d exceeds last valid index %d",
			ErrInvalidPolicy, p.FirstMutableIndex, p.LastValidIndex)
	}
	if p.LastValidIndex > MaxAttributeIndex {
		return fmt.Errorf("%w: last valid index %d exceeds %d",
			ErrInvalidPolicy, p.LastValidIndex, MaxAttributeIndex)
	}
	if p.MaxStatusBit > MaxStatusBit {
		return fmt.Errorf("%w: max status bit %d exceeds %d",
			ErrInvalidPolicy, p.MaxStatusBit, MaxStatusBit)
	}
	for _, bit := range []uint8{p.TransferableBit, p.BurnableBit, p.BridgedBit} {
		if bit > p.MaxStatusBit {
			return fmt.Errorf("%w: named bit %d exceeds max status bit %d",
				ErrInvalidPolicy, bit, p.MaxStatusBit)
		}
	}
	return nil
}

// IsValidIndex reports whether index is addressable under this version.
func (p VersionPolicy) IsValidIndex(index uint8) bool {
	return index <= p.LastValidIndex
}

// IsMutable reports whether index stays writable after initialization.
func (p VersionPolicy) IsMutable(index uint8) bool {
	return index >= p.FirstMutableIndex && index <= p.LastValidIndex
}

// RecordKey identifies one attribute record. Context is empty in
// single-context deployments and holds the registered platform identity in
// per-platform deployments.
type RecordKey struct {
	TokenID string
	Context string
}

// KeyFor builds the record key for a token under the given context mode.
func KeyFor(tokenID *uint256.Int, mode ContextMode, context string) RecordKey {
	key := RecordKey{TokenID: tokenID.Hex()}
	if mode == ContextPerPlatform {
		key.Context = context
	}
	return key
}
