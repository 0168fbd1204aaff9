package services

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-attribute-registry/internal/core/domain"
)

func TestInitializeUnsupportedVersion(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)

	err := env.store.Initialize(platformA, token, 9, 0, [domain.AttributeSlots]byte{})
	assert.ErrorIs(t, err, domain.ErrUnsupportedVersion)
}

func TestInitializeOnce(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)

	require.NoError(t, env.store.Initialize(platformA, token, 1, 0, [domain.AttributeSlots]byte{}))

	err := env.store.Initialize(platformA, token, 1, 0, [domain.AttributeSlots]byte{})
	assert.ErrorIs(t, err, domain.ErrAlreadyInitialized)
}

func TestInitializeWritesVerbatim(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)

	// Initialization may set every slot, including the immutable prefix,
	// and every status bit.
	var attrs [domain.AttributeSlots]byte
	for i := range attrs {
		attrs[i] = byte(i + 1)
	}
	require.NoError(t, env.store.Initialize(platformA, token, 1, 0xFF, attrs))

	rec, err := env.store.Read(token, "")
	require.NoError(t, err)
	assert.Equal(t, uint8(1), rec.Version)
	assert.Equal(t, uint8(0xFF), rec.Status)
	assert.Equal(t, attrs, rec.Attributes)
}

func TestInitializeRequiresPlatformMembership(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	require.NoError(t, env.ledger.Mint(ownerA, token))
	env.ledger.SetApprovalForAll(ownerA, platformA, true)

	// Approved by the owner but never registered as a platform.
	err := env.store.Initialize(platformA, token, 1, 0, [domain.AttributeSlots]byte{})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestInitializeMinterPolicy(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByMinter)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	require.NoError(t, env.ledger.Mint(ownerA, token))

	// The owner initializes directly, no platform membership involved.
	require.NoError(t, env.store.Initialize(ownerA, token, 1, 0, [domain.AttributeSlots]byte{}))

	// A stranger still cannot.
	err := env.store.Initialize(ownerB, uint256.NewInt(2), 1, 0, [domain.AttributeSlots]byte{})
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func TestReadUninitializedReturnsZeroRecord(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	token := uint256.NewInt(7)
	require.NoError(t, env.ledger.Mint(ownerA, token))

	rec, err := env.store.Read(token, "")
	require.NoError(t, err)
	assert.Equal(t, domain.AttributeRecord{}, rec)
	assert.False(t, rec.Initialized())
}

func TestReadUnknownAsset(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)

	_, err := env.store.Read(uint256.NewInt(404), "")
	assert.ErrorIs(t, err, domain.ErrAssetNotFound)
}

func TestUpdateAttributesLengthMismatch(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)
	require.NoError(t, env.store.Initialize(platformA, token, 1, 0, [domain.AttributeSlots]byte{}))

	err := env.store.UpdateAttributes(platformA, token, []uint8{16, 17}, []uint8{1})
	assert.ErrorIs(t, err, domain.ErrLengthMismatch)
}

func TestUpdateAttributesNotInitialized(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)

	err := env.store.UpdateAttributes(platformA, token, []uint8{16}, []uint8{1})
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestUpdateAttributesMutableSuffix(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)

	var attrs [domain.AttributeSlots]byte
	for i := range attrs {
		attrs[i] = byte(100 + i)
	}
	require.NoError(t, env.store.Initialize(platformA, token, 1, 0, attrs))

	require.NoError(t, env.store.UpdateAttributes(platformA, token, []uint8{16, 19}, []uint8{5, 9}))

	rec, err := env.store.Read(token, "")
	require.NoError(t, err)
	assert.Equal(t, uint8(5), rec.Attributes[16])
	assert.Equal(t, uint8(9), rec.Attributes[19])
	// Only the targeted indices changed.
	for i := range rec.Attributes {
		if i == 16 || i == 19 {
			continue
		}
		assert.Equal(t, attrs[i], rec.Attributes[i], "index %d", i)
	}

	// The immutable prefix rejects writes.
	err = env.store.UpdateAttributes(platformA, token, []uint8{15}, []uint8{1})
	assert.ErrorIs(t, err, domain.ErrImmutableAttribute)

	// So do unused indices beyond the version's last valid index.
	err = env.store.UpdateAttributes(platformA, token, []uint8{21}, []uint8{1})
	assert.ErrorIs(t, err, domain.ErrImmutableAttribute)
}

func TestUpdateAttributesBatchAtomicity(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)

	var attrs [domain.AttributeSlots]byte
	require.NoError(t, env.store.Initialize(platformA, token, 1, 0, attrs))

	// One immutable index aborts the whole batch: the mutable index in the
	// same batch must not be written either.
	err := env.store.UpdateAttributes(platformA, token, []uint8{16, 3}, []uint8{42, 42})
	assert.ErrorIs(t, err, domain.ErrImmutableAttribute)

	rec, err := env.store.Read(token, "")
	require.NoError(t, err)
	assert.Equal(t, attrs, rec.Attributes)
}

func TestUpdateStatusBit(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)
	require.NoError(t, env.store.Initialize(platformA, token, 1, 0, [domain.AttributeSlots]byte{}))

	require.NoError(t, env.store.UpdateStatusBit(platformA, token, 1, true))
	require.NoError(t, env.store.UpdateStatusBit(platformA, token, 7, true))

	rec, err := env.store.Read(token, "")
	require.NoError(t, err)
	assert.Equal(t, uint8(0b1000_0010), rec.Status)

	require.NoError(t, env.store.UpdateStatusBit(platformA, token, 1, false))
	rec, err = env.store.Read(token, "")
	require.NoError(t, err)
	assert.Equal(t, uint8(0b1000_0000), rec.Status)
}

func TestUpdateStatusBitVersionCeiling(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)

	// Version 2 restricts meaningful bits to 0..2.
	narrow := domain.NewVersionPolicy(0, 10)
	narrow.MaxStatusBit = 2
	narrow.BurnableBit = 2
	require.NoError(t, env.store.RegisterVersion(governor, 2, narrow))

	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)
	require.NoError(t, env.store.Initialize(platformA, token, 2, 0, [domain.AttributeSlots]byte{}))

	require.NoError(t, env.store.UpdateStatusBit(platformA, token, 2, true))

	err := env.store.UpdateStatusBit(platformA, token, 3, true)
	assert.ErrorIs(t, err, domain.ErrPositionOutOfRange)
}

func TestAuthorizationRevokedByTransfer(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)
	require.NoError(t, env.store.Initialize(platformA, token, 1, 0b10, [domain.AttributeSlots]byte{}))

	require.NoError(t, env.store.UpdateAttributes(platformA, token, []uint8{16}, []uint8{1}))

	// The new owner has not approved the platform; the very next call must
	// see the post-transfer state.
	require.NoError(t, env.ledger.Transfer(ownerA, ownerB, token))

	err := env.store.UpdateAttributes(platformA, token, []uint8{16}, []uint8{2})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	rec, err := env.store.Read(token, "")
	require.NoError(t, err)
	assert.Equal(t, uint8(1), rec.Attributes[16])
}

func TestEmergencyClear(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)

	// Record left with the transferable bit clear: the token is frozen.
	require.NoError(t, env.store.Initialize(platformA, token, 1, 0, [domain.AttributeSlots]byte{}))

	allowed, err := env.transfer.AllowTransfer(token, false)
	require.NoError(t, err)
	require.False(t, allowed)

	// While the platform is registered the ordinary update path applies.
	err = env.store.EmergencyClear(ownerA, token, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, env.store.RemovePlatform(governor, platformA))

	// Only the owner may use the escape hatch.
	err = env.store.EmergencyClear(ownerB, token, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, env.store.EmergencyClear(ownerA, token, ""))

	allowed, err = env.transfer.AllowTransfer(token, false)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRemovedPlatformLosesAccessImmediately(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)
	require.NoError(t, env.store.Initialize(platformA, token, 1, 0, [domain.AttributeSlots]byte{}))

	require.NoError(t, env.store.RemovePlatform(governor, platformA))

	// Removal applies even to records the platform itself initialized.
	err := env.store.UpdateAttributes(platformA, token, []uint8{16}, []uint8{1})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRegisterVersion(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)

	err := env.store.RegisterVersion(platformA, 1, domain.NewVersionPolicy(0, 10))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	err = env.store.RegisterVersion(governor, 0, domain.NewVersionPolicy(0, 10))
	assert.ErrorIs(t, err, domain.ErrInvalidPolicy)

	require.NoError(t, env.store.RegisterVersion(governor, 1, domain.NewVersionPolicy(0, 10)))

	// Versions are immutable once published.
	err = env.store.RegisterVersion(governor, 1, domain.NewVersionPolicy(5, 10))
	assert.ErrorIs(t, err, domain.ErrVersionExists)
}

func TestVersionQueries(t *testing.T) {
	env := newTestEnv(t, domain.ContextSingle, domain.InitByPlatform)
	env.registerVersionOne(t)

	first, err := env.store.FirstMutable(1)
	require.NoError(t, err)
	assert.Equal(t, uint8(16), first)

	last, err := env.store.LatestAttributeIndex(1)
	require.NoError(t, err)
	assert.Equal(t, uint8(20), last)

	_, err = env.store.FirstMutable(9)
	assert.ErrorIs(t, err, domain.ErrUnsupportedVersion)

	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)

	_, err = env.store.IsMutable(token, "", 16)
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	require.NoError(t, env.store.Initialize(platformA, token, 1, 0, [domain.AttributeSlots]byte{}))

	mutable, err := env.store.IsMutable(token, "", 16)
	require.NoError(t, err)
	assert.True(t, mutable)

	mutable, err = env.store.IsMutable(token, "", 15)
	require.NoError(t, err)
	assert.False(t, mutable)
}

func TestPerPlatformContexts(t *testing.T) {
	env := newTestEnv(t, domain.ContextPerPlatform, domain.InitByPlatform)
	env.registerVersionOne(t)
	token := uint256.NewInt(1)
	env.mintWithPlatform(t, ownerA, platformA, token)
	env.addPlatform(t, ownerA, platformB)

	var attrsA, attrsB [domain.AttributeSlots]byte
	attrsA[0] = 1
	attrsB[0] = 2
	require.NoError(t, env.store.Initialize(platformA, token, 1, 0, attrsA))
	require.NoError(t, env.store.Initialize(platformB, token, 1, 0, attrsB))

	recA, err := env.store.Read(token, platformA)
	require.NoError(t, err)
	recB, err := env.store.Read(token, platformB)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), recA.Attributes[0])
	assert.Equal(t, uint8(2), recB.Attributes[0])

	// Each platform mutates only its own record.
	require.NoError(t, env.store.UpdateAttributes(platformA, token, []uint8{16}, []uint8{9}))
	recB, err = env.store.Read(token, platformB)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), recB.Attributes[16])
}
