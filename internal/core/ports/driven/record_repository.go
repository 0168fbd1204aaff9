package driven

import (
	"nft-attribute-registry/internal/core/domain"
)

// StoredRecord is an attribute record together with the platform that
// initialized it. The platform identity is operational metadata consulted by
// the emergency-clear path; it is not part of the caller-visible record.
type StoredRecord struct {
	Record   domain.AttributeRecord
	Platform string
}

// RecordRepository defines the interface for attribute record persistence.
type RecordRepository interface {
	// Get returns the stored record for a key. The second result is false
	// when no record exists for the key.
	Get(key domain.RecordKey) (StoredRecord, bool, error)
	// Put writes the stored record for a key, creating or replacing it.
	Put(key domain.RecordKey, rec StoredRecord) error
	// ListByToken returns all stored records for a token across contexts.
	// Single-context deployments yield at most one record.
	ListByToken(tokenID string) ([]StoredRecord, error)
}
