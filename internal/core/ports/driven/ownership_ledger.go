package driven

import (
	"github.com/holiman/uint256"
)

// OwnershipLedger is the external asset-ownership collaborator. The registry
// queries it on every authorization decision and never caches the answers, so
// a transfer immediately revokes the former owner's mutation rights.
type OwnershipLedger interface {
	// OwnerOf returns the current owner identity of a token, or
	// domain.ErrAssetNotFound if the ledger does not know the token.
	OwnerOf(tokenID *uint256.Int) (string, error)
	// IsApprovedOrOwner reports whether caller owns the token or holds its
	// token-specific approval.
	IsApprovedOrOwner(caller string, tokenID *uint256.Int) (bool, error)
	// IsApprovedForAll reports whether owner has approved operator for all
	// of its tokens.
	IsApprovedForAll(owner, operator string) (bool, error)
}
