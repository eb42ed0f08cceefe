package cache

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/azaruiz94/sse-web/internal/domain"
)

// cachedProfile is the single-row table holding the encrypted user record.
// The profile contains PII (document, phone), so it is sealed at rest.
type cachedProfile struct {
	ID         uint   `gorm:"primaryKey"`
	Nonce      []byte `gorm:"size:24;not null"`
	Ciphertext []byte `gorm:"not null"`
	UpdatedAt  time.Time
}

type SQLite struct {
	db  *gorm.DB
	key []byte
}

// OpenSQLite opens (or creates) the cache database at path. key must be the
// 32-byte cache key from configuration.
func OpenSQLite(path string, key []byte) (*SQLite, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("cache key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if err := db.AutoMigrate(&cachedProfile{}); err != nil {
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &SQLite{db: db, key: key}, nil
}

func (s *SQLite) Load(ctx context.Context) (*domain.User, error) {
	var row cachedProfile
	err := s.db.WithContext(ctx).First(&row, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cached user: %w", err)
	}
	sealer, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, err
	}
	plaintext, err := sealer.Open(nil, row.Nonce, row.Ciphertext, nil)
	if err != nil {
		// Wrong key or tampered row: behave as an empty cache rather than
		// surfacing a start-up error the user cannot act on.
		_ = s.Clear(ctx)
		return nil, nil
	}
	var user domain.User
	if err := json.Unmarshal(plaintext, &user); err != nil {
		_ = s.Clear(ctx)
		return nil, nil
	}
	return &user, nil
}

func (s *SQLite) Save(ctx context.Context, user *domain.User) error {
	if user == nil {
		return s.Clear(ctx)
	}
	plaintext, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode cached user: %w", err)
	}
	sealer, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("cache nonce: %w", err)
	}
	row := cachedProfile{
		ID:         1,
		Nonce:      nonce,
		Ciphertext: sealer.Seal(nil, nonce, plaintext, nil),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *SQLite) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Delete(&cachedProfile{}, 1).Error
}
