package domain

import "errors"

// Error taxonomy for the attribute registry. Every operation returns one of
// these (possibly wrapped); a failed mutation leaves the stored record
// byte-for-byte unchanged.
var (
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrAlreadyInitialized = errors.New("record already initialized")
	ErrNotInitialized     = errors.New("record not initialized")
	ErrLengthMismatch     = errors.New("indices and values length mismatch")
	ErrImmutableAttribute = errors.New("attribute index is immutable")
	ErrPositionOutOfRange = errors.New("status bit position out of range")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrAssetNotFound      = errors.New("asset not found")

	// Registry administration errors.
	ErrVersionExists = errors.New("version already registered")
	ErrInvalidPolicy = errors.New("invalid version policy")
)
