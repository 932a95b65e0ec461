package repository

import (
	"context"
	"errors"
	"time"

	"situation-room/internal/domain/token"
	situation_errors "situation-room/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostgresTokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &PostgresTokenRepository{db: db}
}

func (r *PostgresTokenRepository) GetByUser(ctx context.Context, tenantID, appUserID string) (token.ProxyTokenMapping, error) {
	var m token.ProxyTokenMapping
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND app_user_id = ?", tenantID, appUserID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return token.ProxyTokenMapping{}, situation_errors.ErrNotFound
		}
		return token.ProxyTokenMapping{}, err
	}
	return m, nil
}

// Create inserts a new mapping. A concurrent insert for the same
// (tenant, user) surfaces as ErrAlreadyExists.
func (r *PostgresTokenRepository) Create(ctx context.Context, m *token.ProxyTokenMapping) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicate(err) {
			return situation_errors.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (r *PostgresTokenRepository) UpdateToken(ctx context.Context, id uuid.UUID, proxyToken string) error {
	res := r.db.WithContext(ctx).
		Model(&token.ProxyTokenMapping{}).
		Where("id = ? AND proxy_token = ?", id, token.PlaceholderToken).
		Updates(map[string]any{"proxy_token": proxyToken, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	var n int64
	if err := r.db.WithContext(ctx).Model(&token.ProxyTokenMapping{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return situation_errors.ErrNotFound
	}
	return situation_errors.ErrStaleWrite
}
