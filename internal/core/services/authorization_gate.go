package services

import (
	"fmt"

	"github.com/holiman/uint256"

	"nft-attribute-registry/internal/core/domain"
	"nft-attribute-registry/internal/core/ports/driven"
)

// AuthorizationGate resolves whether a caller may mutate a token's attribute
// record. Every decision queries the ownership ledger and the platform
// allow-list at call time; nothing is cached between calls, so ownership or
// approval changes take effect on the very next check.
type AuthorizationGate struct {
	ledger    driven.OwnershipLedger
	platforms driven.PlatformRegistry
}

// NewAuthorizationGate creates a new AuthorizationGate.
func NewAuthorizationGate(ledger driven.OwnershipLedger, platforms driven.PlatformRegistry) *AuthorizationGate {
	return &AuthorizationGate{ledger: ledger, platforms: platforms}
}

// CanMutate returns nil iff caller is a registered platform, the token exists,
// and caller either holds the token-specific approval or is approved-for-all
// by the token's current owner. Any missing condition yields
// domain.ErrUnauthorized (or domain.ErrAssetNotFound for a missing token).
func (g *AuthorizationGate) CanMutate(caller string, tokenID *uint256.Int) error {
	registered, err := g.platforms.IsRegistered(caller)
	if err != nil {
		return fmt.Errorf("platform lookup: %w", err)
	}
	if !registered {
		return fmt.Errorf("%w: caller %s is not a registered platform", domain.ErrUnauthorized, caller)
	}

	owner, err := g.ledger.OwnerOf(tokenID)
	if err != nil {
		return err
	}

	approved, err := g.ledger.IsApprovedOrOwner(caller, tokenID)
	if err != nil {
		return fmt.Errorf("approval lookup: %w", err)
	}
	if approved {
		return nil
	}

	approvedForAll, err := g.ledger.IsApprovedForAll(owner, caller)
	if err != nil {
		return fmt.Errorf("operator lookup: %w", err)
	}
	if approvedForAll {
		return nil
	}

	return fmt.Errorf("%w: caller %s holds no approval for token %s", domain.ErrUnauthorized, caller, tokenID.Hex())
}

// CanRead returns nil iff the token exists on the ledger. Reads carry no
// further authorization.
func (g *AuthorizationGate) CanRead(tokenID *uint256.Int) error {
	_, err := g.ledger.OwnerOf(tokenID)
	return err
}

// CanInitialize applies the deployment's initialization policy.
func (g *AuthorizationGate) CanInitialize(policy domain.InitPolicy, caller string, tokenID *uint256.Int) error {
	if policy == domain.InitByPlatform {
		return g.CanMutate(caller, tokenID)
	}

	// Minting flow: owner or approved operator, no platform membership needed.
	if _, err := g.ledger.OwnerOf(tokenID); err != nil {
		return err
	}
	approved, err := g.ledger.IsApprovedOrOwner(caller, tokenID)
	if err != nil {
		return fmt.Errorf("approval lookup: %w", err)
	}
	if !approved {
		return fmt.Errorf("%w: caller %s is neither owner nor approved for token %s",
			domain.ErrUnauthorized, caller, tokenID.Hex())
	}
	return nil
}

// RequireOwner returns nil iff caller is the token's current owner. Used by
// the emergency-clear path, which deliberately bypasses the platform check.
func (g *AuthorizationGate) RequireOwner(caller string, tokenID *uint256.Int) error {
	owner, err := g.ledger.OwnerOf(tokenID)
	if err != nil {
		return err
	}
	if caller != owner {
		return fmt.Errorf("%w: caller %s is not the owner of token %s", domain.ErrUnauthorized, caller, tokenID.Hex())
	}
	return nil
}
