package driven

import (
	"nft-attribute-registry/internal/core/domain"
)

// VersionPolicyRepository defines the interface for version policy persistence.
// Policies are append-only: a version is registered once and never modified.
type VersionPolicyRepository interface {
	// Register stores the policy for a version. Returns
	// domain.ErrVersionExists if the version is already registered.
	Register(version uint8, policy domain.VersionPolicy) error
	// Get returns the policy for a version. The second result is false when
	// the version is unregistered.
	Get(version uint8) (domain.VersionPolicy, bool, error)
	// List returns all registered versions and their policies.
	List() (map[uint8]domain.VersionPolicy, error)
}
