package db

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"chatgate/internal/config"
	"chatgate/internal/model"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a credential lookup matches nothing.
var ErrNotFound = errors.New("credential not found")

// Service defines the persistence operations for credentials.
// This allows for mocking in tests and decouples handlers from the
// concrete gorm implementation.
type Service interface {
	CreateCredential(cred *model.Credential) error
	FindCredentialBySecret(secret string) (*model.Credential, error)
	FindCredentialByID(id string) (*model.Credential, error)
	RevokeCredential(id string) error
	ListCredentials(limit int) ([]model.Credential, error)
	UpdateCredentialName(id, name string) error
	TouchCredentialLastUsed(secret string) error
	CountCredentials() (int64, error)
	GetDB() *gorm.DB
}

type gormService struct {
	db *gorm.DB
}

// NewService opens the configured database and migrates the schema.
func NewService(cfg config.DatabaseConfig) (Service, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&model.Credential{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return &gormService{db: db}, nil
}

// GetDB exposes the underlying gorm handle for tests.
func (s *gormService) GetDB() *gorm.DB {
	return s.db
}

// CreateCredential generates the id and secret and persists the record.
// Name, scopes and limit overrides are taken from the passed credential.
func (s *gormService) CreateCredential(cred *model.Credential) error {
	cred.ID = uuid.NewString()
	secret, err := newSecret()
	if err != nil {
		return fmt.Errorf("failed to generate secret: %w", err)
	}
	cred.Secret = secret
	cred.Active = true
	if result := s.db.Create(cred); result.Error != nil {
		return fmt.Errorf("failed to create credential: %w", result.Error)
	}
	return nil
}

func (s *gormService) FindCredentialBySecret(secret string) (*model.Credential, error) {
	var cred model.Credential
	result := s.db.Where("secret = ?", secret).First(&cred)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up credential: %w", result.Error)
	}
	return &cred, nil
}

func (s *gormService) FindCredentialByID(id string) (*model.Credential, error) {
	var cred model.Credential
	result := s.db.Where("id = ?", id).First(&cred)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up credential: %w", result.Error)
	}
	return &cred, nil
}

// RevokeCredential sets active=false. Revocation is terminal: once the
// row is inactive a second revoke reports ErrNotFound, which the API
// surfaces as 404.
func (s *gormService) RevokeCredential(id string) error {
	result := s.db.Model(&model.Credential{}).
		Where("id = ? AND active = ?", id, true).
		Update("active", false)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke credential %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCredentials returns up to limit credentials, newest first. The
// secret never appears in listings; the model hides it from JSON.
func (s *gormService) ListCredentials(limit int) ([]model.Credential, error) {
	var creds []model.Credential
	query := s.db.Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if result := query.Find(&creds); result.Error != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", result.Error)
	}
	return creds, nil
}

func (s *gormService) UpdateCredentialName(id, name string) error {
	result := s.db.Model(&model.Credential{}).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		return fmt.Errorf("failed to update credential %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchCredentialLastUsed updates last_used_at. It is best-effort; a zero
// row count is fine, the credential may have been revoked in the meantime.
func (s *gormService) TouchCredentialLastUsed(secret string) error {
	result := s.db.Model(&model.Credential{}).
		Where("secret = ?", secret).
		UpdateColumn("last_used_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to touch credential: %w", result.Error)
	}
	return nil
}

// CountCredentials counts every credential row, revoked ones included.
// Revocation is soft, so once a credential has existed the count never
// returns to zero; the bootstrap gate relies on that.
func (s *gormService) CountCredentials() (int64, error) {
	var count int64
	result := s.db.Model(&model.Credential{}).Count(&count)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to count credentials: %w", result.Error)
	}
	return count, nil
}

// newSecret returns a high-entropy bearer token. Uniqueness is enforced
// by the unique index on the secret column.
func newSecret() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "sk-" + hex.EncodeToString(buf), nil
}
