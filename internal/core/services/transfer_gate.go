package services

import (
	"fmt"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"nft-attribute-registry/internal/core/domain"
	"nft-attribute-registry/internal/core/ports/driven"
	"nft-attribute-registry/internal/core/ports/driving"
)

// TransferGate evaluates whether the ownership ledger may complete a transfer
// or burn. A token with no attribute record is never gated. The bridge
// exception is a record flag (the bridged bit), not a caller-identity check,
// so the gate stays stateless with respect to who initiated the transfer.
type TransferGate struct {
	records  driven.RecordRepository
	versions driven.VersionPolicyRepository
	log      *zap.SugaredLogger
}

// NewTransferGate creates a new TransferGate.
func NewTransferGate(records driven.RecordRepository, versions driven.VersionPolicyRepository, log *zap.SugaredLogger) driving.TransferGate {
	return &TransferGate{records: records, versions: versions, log: log}
}

// AllowTransfer reports whether the token may change hands. Every initialized
// record attached to the token must allow the move: the transferable bit must
// be set, and a burn additionally requires the burnable bit or the bridged
// bit.
func (g *TransferGate) AllowTransfer(tokenID *uint256.Int, destinationIsZero bool) (bool, error) {
	stored, err := g.records.ListByToken(tokenID.Hex())
	if err != nil {
		return false, fmt.Errorf("record lookup: %w", err)
	}

	for _, rec := range stored {
		if !rec.Record.Initialized() {
			continue
		}
		policy, ok, err := g.versions.Get(rec.Record.Version)
		if err != nil {
			return false, fmt.Errorf("version lookup: %w", err)
		}
		if !ok {
			return false, fmt.Errorf("%w: %d", domain.ErrUnsupportedVersion, rec.Record.Version)
		}

		transferable, err := domain.GetBit(rec.Record.Status, policy.TransferableBit)
		if err != nil {
			return false, err
		}
		if !transferable {
			g.log.Debugw("transfer blocked", "token", tokenID.Hex(), "platform", rec.Platform)
			return false, nil
		}

		if destinationIsZero {
			burnable, err := domain.GetBit(rec.Record.Status, policy.BurnableBit)
			if err != nil {
				return false, err
			}
			bridged, err := domain.GetBit(rec.Record.Status, policy.BridgedBit)
			if err != nil {
				return false, err
			}
			if !burnable && !bridged {
				g.log.Debugw("burn blocked", "token", tokenID.Hex(), "platform", rec.Platform)
				return false, nil
			}
		}
	}

	return true, nil
}
