package driven

// PlatformRegistry defines the interface for the approved-platform allow-list.
// Registration and removal are restricted to the governing owner; removal
// takes effect immediately for all subsequent authorization checks.
type PlatformRegistry interface {
	// Register adds a platform to the allow-list. Returns
	// domain.ErrUnauthorized when governor does not hold the governing role.
	Register(governor, platform string) error
	// Remove deletes a platform from the allow-list. Same authorization
	// rule as Register.
	Remove(governor, platform string) error
	// IsRegistered reports whether a platform is currently on the allow-list.
	IsRegistered(platform string) (bool, error)
	// IsGovernor reports whether the caller holds the governing role.
	IsGovernor(caller string) (bool, error)
	// List returns all registered platform identities.
	List() ([]string, error)
}
