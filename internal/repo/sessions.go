package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/tachyon_hub/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

type GormRepo struct {
	DB *gorm.DB
}

func (r *GormRepo) Migrate() error {
	return r.DB.AutoMigrate(&models.Session{})
}

func (r *GormRepo) CreateSession(ctx context.Context, jti, discordUID string, expiresAt time.Time) error {
	s := models.Session{
		JTI:        jti,
		DiscordUID: discordUID,
		ExpiresAt:  expiresAt.Unix(),
	}
	return r.DB.WithContext(ctx).Create(&s).Error
}

func (r *GormRepo) FindSession(ctx context.Context, jti string) (*models.Session, error) {
	var s models.Session
	if err := r.DB.WithContext(ctx).Where("jti = ?", jti).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

// SessionActive reports false for unknown, revoked or expired sessions.
func (r *GormRepo) SessionActive(ctx context.Context, jti string) (bool, error) {
	s, err := r.FindSession(ctx, jti)
	if errors.Is(err, ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !s.Revoked && s.ExpiresAt > time.Now().Unix(), nil
}

func (r *GormRepo) RevokeSession(ctx context.Context, jti, reason string) error {
	return r.DB.WithContext(ctx).Model(&models.Session{}).
		Where("jti = ?", jti).
		Updates(map[string]any{"revoked": true, "revoked_reason": reason}).Error
}

// RevokeAllForDiscord ends every open session of a user and returns how many were revoked.
func (r *GormRepo) RevokeAllForDiscord(ctx context.Context, discordUID, reason string) (int64, error) {
	res := r.DB.WithContext(ctx).Model(&models.Session{}).
		Where("discord_uid = ? AND revoked = ?", discordUID, false).
		Updates(map[string]any{"revoked": true, "revoked_reason": reason})
	return res.RowsAffected, res.Error
}

// PurgeExpired deletes records whose cookie can no longer be presented.
func (r *GormRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.DB.WithContext(ctx).Where("expires_at < ?", now.Unix()).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}
