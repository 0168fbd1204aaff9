package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"nft-attribute-registry/internal/core/domain"
	"nft-attribute-registry/internal/core/ports/driven"
	"nft-attribute-registry/internal/core/ports/driving"
)

// ErrTransferBlocked is returned when the attribute registry's transfer gate
// vetoes a transfer or burn.
var ErrTransferBlocked = errors.New("transfer blocked by attribute registry")

// MemoryLedger is an in-process reference implementation of the ownership
// ledger: ERC-721 style ownership, per-token approvals and operator
// approvals. It consults the attribute registry's transfer gate inside
// Transfer and Burn and aborts atomically when the gate refuses, which is the
// interception contract a production ledger must honor.
type MemoryLedger struct {
	mu        sync.RWMutex
	owners    map[uint256.Int]string
	approved  map[uint256.Int]string
	operators map[string]map[string]bool

	gate driving.TransferGate
	log  *zap.SugaredLogger
}

// NewMemoryLedger creates an empty ledger. The transfer gate is attached with
// SetTransferGate once the registry services are built, since the gate reads
// records while the ledger feeds the gate's authorization checks.
func NewMemoryLedger(log *zap.SugaredLogger) *MemoryLedger {
	return &MemoryLedger{
		owners:    make(map[uint256.Int]string),
		approved:  make(map[uint256.Int]string),
		operators: make(map[string]map[string]bool),
		log:       log,
	}
}

// SetTransferGate attaches the gating predicate consulted before transfers.
func (l *MemoryLedger) SetTransferGate(gate driving.TransferGate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gate = gate
}

// OwnerOf implements driven.OwnershipLedger.
func (l *MemoryLedger) OwnerOf(tokenID *uint256.Int) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	owner, ok := l.owners[*tokenID]
	if !ok {
		return "", fmt.Errorf("%w: token %s", domain.ErrAssetNotFound, tokenID.Hex())
	}
	return owner, nil
}

// IsApprovedOrOwner implements driven.OwnershipLedger.
func (l *MemoryLedger) IsApprovedOrOwner(caller string, tokenID *uint256.Int) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	owner, ok := l.owners[*tokenID]
	if !ok {
		return false, fmt.Errorf("%w: token %s", domain.ErrAssetNotFound, tokenID.Hex())
	}
	if caller == owner || l.approved[*tokenID] == caller {
		return true, nil
	}
	return l.operators[owner][caller], nil
}

// IsApprovedForAll implements driven.OwnershipLedger.
func (l *MemoryLedger) IsApprovedForAll(owner, operator string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.operators[owner][operator], nil
}

// Mint assigns a fresh token to owner.
func (l *MemoryLedger) Mint(owner string, tokenID *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.owners[*tokenID]; exists {
		return fmt.Errorf("token %s already minted", tokenID.Hex())
	}
	l.owners[*tokenID] = owner
	l.log.Infow("token minted", "token", tokenID.Hex(), "owner", owner)
	return nil
}

// Approve grants operator the token-specific approval. Only the current owner
// or one of its operators may approve.
func (l *MemoryLedger) Approve(caller, operator string, tokenID *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[*tokenID]
	if !ok {
		return fmt.Errorf("%w: token %s", domain.ErrAssetNotFound, tokenID.Hex())
	}
	if caller != owner && !l.operators[owner][caller] {
		return fmt.Errorf("%w: caller %s may not approve for token %s", domain.ErrUnauthorized, caller, tokenID.Hex())
	}
	l.approved[*tokenID] = operator
	return nil
}

// SetApprovalForAll grants or revokes operator status for all of owner's tokens.
func (l *MemoryLedger) SetApprovalForAll(owner, operator string, approve bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.operators[owner] == nil {
		l.operators[owner] = make(map[string]bool)
	}
	l.operators[owner][operator] = approve
}

// Transfer moves a token to a new owner. The attribute registry's gate is
// consulted first; a refusal aborts with no ownership change. A completed
// transfer clears the token-specific approval, so the previous operator's
// rights end with the previous ownership.
func (l *MemoryLedger) Transfer(caller, to string, tokenID *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, ok := l.owners[*tokenID]
	if !ok {
		return fmt.Errorf("%w: token %s", domain.ErrAssetNotFound, tokenID.Hex())
	}
	if caller != owner && l.approved[*tokenID] != caller && !l.operators[owner][caller] {
		return fmt.Errorf("%w: caller %s may not transfer token %s", domain.ErrUnauthorized, caller, tokenID.Hex())
	}

	if l.gate != nil {
		allowed, err := l.gate.AllowTransfer(tokenID, false)
		if err != nil {
			return fmt.Errorf("transfer gate: %w", err)
		}
		if !allowed {
			return fmt.Errorf("%w: token %s", ErrTransferBlocked, tokenID.Hex())
		}
	}

	l.owners[*tokenID] = to
	delete(l.approved, *tokenID)
	l.log.Infow("token transferred", "token", tokenID.Hex(), "from", owner, "to", to)
	return nil
}

// Burn destroys a token. Gated like Transfer, with the burn flag set.
func (l *MemoryLedger) Burn(caller string, tokenID *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	owner, ok := l.owners[*tokenID]
	if !ok {
		return fmt.Errorf("%w: token %s", domain.ErrAssetNotFound, tokenID.Hex())
	}
	if caller != owner && l.approved[*tokenID] != caller && !l.operators[owner][caller] {
		return fmt.Errorf("%w: caller %s may not burn token %s", domain.ErrUnauthorized, caller, tokenID.Hex())
	}

	if l.gate != nil {
		allowed, err := l.gate.AllowTransfer(tokenID, true)
		if err != nil {
			return fmt.Errorf("transfer gate: %w", err)
		}
		if !allowed {
			return fmt.Errorf("%w: token %s", ErrTransferBlocked, tokenID.Hex())
		}
	}

	delete(l.owners, *tokenID)
	delete(l.approved, *tokenID)
	l.log.Infow("token burned", "token", tokenID.Hex(), "owner", owner)
	return nil
}

var _ driven.OwnershipLedger = (*MemoryLedger)(nil)
