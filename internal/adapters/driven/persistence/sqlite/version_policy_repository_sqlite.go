package sqlite

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"nft-attribute-registry/internal/core/domain"
	"nft-attribute-registry/internal/core/ports/driven"
)

// VersionPolicyDB represents a row in the version_policies table.
type VersionPolicyDB struct {
	Version           uint8 `gorm:"primaryKey;autoIncrement:false"`
	FirstMutableIndex uint8
	LastValidIndex    uint8
	MaxStatusBit      uint8
	TransferableBit   uint8
	BurnableBit       uint8
	BridgedBit        uint8
	CreatedAt         time.Time
}

// VersionPolicyRepositoryImpl implements driven.VersionPolicyRepository for SQLite.
type VersionPolicyRepositoryImpl struct {
	db *gorm.DB
}

// NewVersionPolicyRepository creates a new VersionPolicyRepositoryImpl.
func NewVersionPolicyRepository(db *gorm.DB) driven.VersionPolicyRepository {
	// Auto-migrate the table
	if err := db.AutoMigrate(&VersionPolicyDB{}); err != nil {
		panic(fmt.Sprintf("failed to migrate version_policies table: %v", err))
	}
	return &VersionPolicyRepositoryImpl{db: db}
}

func (r *VersionPolicyRepositoryImpl) Register(version uint8, policy domain.VersionPolicy) error {
	var existing VersionPolicyDB
	result := r.db.Where("version = ?", version).First(&existing)
	if result.Error == nil {
		return fmt.Errorf("%w: %d", domain.ErrVersionExists, version)
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}

	row := VersionPolicyDB{
		Version:           version,
		FirstMutableIndex: policy.FirstMutableIndex,
		LastValidIndex:    policy.LastValidIndex,
		MaxStatusBit:      policy.MaxStatusBit,
		TransferableBit:   policy.TransferableBit,
		BurnableBit:       policy.BurnableBit,
		BridgedBit:        policy.BridgedBit,
		CreatedAt:         time.Now(),
	}
	return r.db.Create(&row).Error
}

func (r *VersionPolicyRepositoryImpl) Get(version uint8) (domain.VersionPolicy, bool, error) {
	var row VersionPolicyDB
	result := r.db.Where("version = ?", version).First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return domain.VersionPolicy{}, false, nil
	}
	if result.Error != nil {
		return domain.VersionPolicy{}, false, result.Error
	}
	return toPolicy(row), true, nil
}

func (r *VersionPolicyRepositoryImpl) List() (map[uint8]domain.VersionPolicy, error) {
	var rows []VersionPolicyDB
	result := r.db.Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	policies := make(map[uint8]domain.VersionPolicy, len(rows))
	for _, row := range rows {
		policies[row.Version] = toPolicy(row)
	}
	return policies, nil
}

func toPolicy(row VersionPolicyDB) domain.VersionPolicy {
	return domain.VersionPolicy{
		FirstMutableIndex: row.FirstMutableIndex,
		LastValidIndex:    row.LastValidIndex,
		MaxStatusBit:      row.MaxStatusBit,
		TransferableBit:   row.TransferableBit,
		BurnableBit:       row.BurnableBit,
		BridgedBit:        row.BridgedBit,
	}
}
