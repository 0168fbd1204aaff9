package sqlite

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"nft-attribute-registry/internal/core/domain"
	"nft-attribute-registry/internal/core/ports/driven"
)

// AttributeRecordDB represents a row in the attribute_records table.
type AttributeRecordDB struct {
	ID         uint   `gorm:"primaryKey"`
	TokenID    string `gorm:"uniqueIndex:idx_record_key;index"`
	Context    string `gorm:"uniqueIndex:idx_record_key"`
	Version    uint8
	Status     uint8
	Attributes []byte
	Platform   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RecordRepositoryImpl implements driven.RecordRepository for SQLite.
type RecordRepositoryImpl struct {
	db *gorm.DB
}

// NewRecordRepository creates a new RecordRepositoryImpl.
func NewRecordRepository(db *gorm.DB) driven.RecordRepository {
	// Auto-migrate the table
	if err := db.AutoMigrate(&AttributeRecordDB{}); err != nil {
		panic(fmt.Sprintf("failed to migrate attribute_records table: %v", err))
	}
	return &RecordRepositoryImpl{db: db}
}

func (r *RecordRepositoryImpl) Get(key domain.RecordKey) (driven.StoredRecord, bool, error) {
	var row AttributeRecordDB
	result := r.db.Where("token_id = ? AND context = ?", key.TokenID, key.Context).First(&row)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return driven.StoredRecord{}, false, nil
	}
	if result.Error != nil {
		return driven.StoredRecord{}, false, result.Error
	}
	return toStored(row), true, nil
}

func (r *RecordRepositoryImpl) Put(key domain.RecordKey, rec driven.StoredRecord) error {
	attributes := make([]byte, domain.AttributeSlots)
	copy(attributes, rec.Record.Attributes[:])

	var existing AttributeRecordDB
	result := r.db.Where("token_id = ? AND context = ?", key.TokenID, key.Context).First(&existing)
	if result.Error == nil {
		existing.Version = rec.Record.Version
		existing.Status = rec.Record.Status
		existing.Attributes = attributes
		existing.Platform = rec.Platform
		existing.UpdatedAt = time.Now()
		return r.db.Save(&existing).Error
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}

	row := AttributeRecordDB{
		TokenID:    key.TokenID,
		Context:    key.Context,
		Version:    rec.Record.Version,
		Status:     rec.Record.Status,
		Attributes: attributes,
		Platform:   rec.Platform,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	return r.db.Create(&row).Error
}

func (r *RecordRepositoryImpl) ListByToken(tokenID string) ([]driven.StoredRecord, error) {
	var rows []AttributeRecordDB
	result := r.db.Where("token_id = ?", tokenID).Find(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	records := make([]driven.StoredRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, toStored(row))
	}
	return records, nil
}

func toStored(row AttributeRecordDB) driven.StoredRecord {
	rec := driven.StoredRecord{
		Record: domain.AttributeRecord{
			Version: row.Version,
			Status:  row.Status,
		},
		Platform: row.Platform,
	}
	copy(rec.Record.Attributes[:], row.Attributes)
	return rec
}
