package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Gestion-inmobiliaria/gi-firmas/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore persists contracts, tokens and signature records in postgres
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the postgres connection and migrates the schema
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, wrapStoreErr("open database", err)
	}

	if err := db.AutoMigrate(
		&model.Contract{},
		&model.SignatureToken{},
		&model.SignatureRecord{},
	); err != nil {
		return nil, wrapStoreErr("migrate schema", err)
	}

	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveContract(ctx context.Context, c *model.Contract) error {
	err := s.db.WithContext(ctx).Save(c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
			return ErrDuplicateNumber
		}
		return wrapStoreErr("save contract", err)
	}
	return nil
}

func (s *GormStore) GetContract(ctx context.Context, id string) (*model.Contract, error) {
	var c model.Contract
	err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrapStoreErr("get contract", err)
	}
	return &c, nil
}

func (s *GormStore) ListContracts(ctx context.Context) ([]*model.Contract, error) {
	var contracts []*model.Contract
	err := s.db.WithContext(ctx).Order("created_at").Find(&contracts).Error
	if err != nil {
		return nil, wrapStoreErr("list contracts", err)
	}
	return contracts, nil
}

func (s *GormStore) DeleteContract(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&model.Contract{}, "id = ?", id)
	if result.Error != nil {
		return wrapStoreErr("delete contract", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SaveToken(ctx context.Context, t *model.SignatureToken) error {
	if err := s.db.WithContext(ctx).Save(t).Error; err != nil {
		return wrapStoreErr("save token", err)
	}
	return nil
}

func (s *GormStore) GetToken(ctx context.Context, token string) (*model.SignatureToken, error) {
	var t model.SignatureToken
	err := s.db.WithContext(ctx).First(&t, "token = ?", token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, wrapStoreErr("get token", err)
	}
	return &t, nil
}

func (s *GormStore) ActiveTokens(ctx context.Context, contractID string) ([]*model.SignatureToken, error) {
	var tokens []*model.SignatureToken
	err := s.db.WithContext(ctx).
		Where("contract_id = ? AND active", contractID).
		Order("created_at").
		Find(&tokens).Error
	if err != nil {
		return nil, wrapStoreErr("active tokens", err)
	}
	return tokens, nil
}

func (s *GormStore) DeactivateTokens(ctx context.Context, contractID string, signer model.SignerType) error {
	query := s.db.WithContext(ctx).
		Model(&model.SignatureToken{}).
		Where("contract_id = ? AND active", contractID)
	if signer != "" {
		query = query.Where("signer_type = ?", signer)
	}
	if err := query.Update("active", false).Error; err != nil {
		return wrapStoreErr("deactivate tokens", err)
	}
	return nil
}

// ConsumeToken locks the token row, flips it to consumed and inserts the
// signature record in one transaction. A concurrent second signer on the
// same token blocks on the row lock and then fails with ErrTokenConsumed.
func (s *GormStore) ConsumeToken(ctx context.Context, token string, rec *model.SignatureRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var t model.SignatureToken
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&t, "token = ?", token).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return wrapStoreErr("lock token", err)
		}
		if t.Consumed {
			return ErrTokenConsumed
		}

		now := time.Now()
		err = tx.Model(&t).Updates(map[string]any{
			"consumed":    true,
			"consumed_at": now,
		}).Error
		if err != nil {
			return wrapStoreErr("consume token", err)
		}

		if err := tx.Create(rec).Error; err != nil {
			return wrapStoreErr("create signature record", err)
		}
		return nil
	})
}

func (s *GormStore) Records(ctx context.Context, contractID string) ([]*model.SignatureRecord, error) {
	var records []*model.SignatureRecord
	err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("signed_at").
		Find(&records).Error
	if err != nil {
		return nil, wrapStoreErr("signature records", err)
	}
	return records, nil
}

var _ Store = (*GormStore)(nil)
