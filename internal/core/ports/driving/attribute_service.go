package driving

import (
	"github.com/holiman/uint256"

	"nft-attribute-registry/internal/core/domain"
)

// AttributeService defines the registry operations exposed to platforms, asset
// owners and the governing owner. In per-platform deployments the record
// context for mutating calls is the calling platform itself; Read and
// EmergencyClear take the context explicitly because their callers are not
// platforms.
type AttributeService interface {
	// Initialize creates the attribute record for a token. Status and
	// attributes are written verbatim; the mutability boundary applies only
	// to later updates.
	Initialize(caller string, tokenID *uint256.Int, version uint8, status uint8, attributes [domain.AttributeSlots]byte) error
	// Read returns the record for a token, or the zero record if the token
	// exists but was never initialized.
	Read(tokenID *uint256.Int, context string) (domain.AttributeRecord, error)
	// UpdateAttributes applies a batch of (index, value) writes to the
	// mutable suffix. The batch is all-or-nothing.
	UpdateAttributes(caller string, tokenID *uint256.Int, indices []uint8, values []uint8) error
	// UpdateStatusBit sets or clears one status bit.
	UpdateStatusBit(caller string, tokenID *uint256.Int, position uint8, value bool) error
	// EmergencyClear lets the current asset owner unblock transfers after
	// the record's platform has been removed from the allow-list.
	EmergencyClear(caller string, tokenID *uint256.Int, context string) error

	// Read-only version queries.
	FirstMutable(version uint8) (uint8, error)
	LatestAttributeIndex(version uint8) (uint8, error)
	IsMutable(tokenID *uint256.Int, context string, index uint8) (bool, error)
	VersionPolicy(version uint8) (domain.VersionPolicy, error)
	ListVersions() (map[uint8]domain.VersionPolicy, error)

	// Registry administration, gated to the governing owner.
	RegisterVersion(caller string, version uint8, policy domain.VersionPolicy) error
	RegisterPlatform(caller, platform string) error
	RemovePlatform(caller, platform string) error
	ListPlatforms() ([]string, error)
}

// TransferGate is the predicate the ownership ledger consults inside its
// transfer and burn routines before mutating ownership.
type TransferGate interface {
	// AllowTransfer reports whether the token may change hands.
	// destinationIsZero marks a burn.
	AllowTransfer(tokenID *uint256.Int, destinationIsZero bool) (bool, error)
}
