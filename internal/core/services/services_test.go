package services

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	sqlitedriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"nft-attribute-registry/internal/adapters/driven/ledger"
	persistence "nft-attribute-registry/internal/adapters/driven/persistence/sqlite"
	"nft-attribute-registry/internal/adapters/driven/platforms"
	"nft-attribute-registry/internal/core/domain"
	"nft-attribute-registry/internal/core/ports/driving"
)

const (
	governor  = "governor"
	platformA = "platform.one"
	platformB = "platform.two"
	ownerA    = "alice"
	ownerB    = "bob"
)

type testEnv struct {
	store    driving.AttributeService
	gate     *AuthorizationGate
	transfer driving.TransferGate
	ledger   *ledger.MemoryLedger
	registry *platforms.CasbinPlatformRegistry
}

func newTestEnv(t *testing.T, mode domain.ContextMode, initPolicy domain.InitPolicy) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlitedriver.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	records := persistence.NewRecordRepository(db)
	versions := persistence.NewVersionPolicyRepository(db)
	registry, err := platforms.NewCasbinPlatformRegistry(db, governor)
	require.NoError(t, err)

	log := zap.NewNop().Sugar()
	ownership := ledger.NewMemoryLedger(log)
	gate := NewAuthorizationGate(ownership, registry)
	store := NewAttributeStore(records, versions, registry, gate, mode, initPolicy, log)
	transfer := NewTransferGate(records, versions, log)
	ownership.SetTransferGate(transfer)

	return &testEnv{
		store:    store,
		gate:     gate,
		transfer: transfer,
		ledger:   ownership,
		registry: registry,
	}
}

// registerVersionOne publishes version 1 with the mutability boundary used by
// most tests: indices 16..20 mutable, everything below frozen.
func (e *testEnv) registerVersionOne(t *testing.T) {
	t.Helper()
	require.NoError(t, e.store.RegisterVersion(governor, 1, domain.NewVersionPolicy(16, 20)))
}

// mintWithPlatform mints a token for owner and authorizes platform as an
// operator for all of owner's tokens.
func (e *testEnv) mintWithPlatform(t *testing.T, owner, platform string, tokenID *uint256.Int) {
	t.Helper()
	require.NoError(t, e.store.RegisterPlatform(governor, platform))
	require.NoError(t, e.ledger.Mint(owner, tokenID))
	e.ledger.SetApprovalForAll(owner, platform, true)
}

// addPlatform registers an additional platform and grants it operator rights
// over owner's existing tokens.
func (e *testEnv) addPlatform(t *testing.T, owner, platform string) {
	t.Helper()
	require.NoError(t, e.store.RegisterPlatform(governor, platform))
	e.ledger.SetApprovalForAll(owner, platform, true)
}
