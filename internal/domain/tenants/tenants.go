package tenants

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotImplemented = errors.New("tenants repository: not implemented")
	ErrNotFound       = errors.New("tenant not found")
	ErrInvalidAPIKey  = errors.New("invalid api key")
	ErrNameRequired   = errors.New("tenant name is required")
)

// Tenant is an isolated customer account. Only a salted hash of the API key is kept.
type Tenant struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	APIKeyHash string    `json:"-"`
	APIKeySalt string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Repository defines persistence behaviour for tenants.
type Repository interface {
	FindByID(ctx context.Context, id string) (Tenant, error)
	Save(ctx context.Context, tenant Tenant) (Tenant, error)
}

// NullRepository can be used when no storage is configured.
type NullRepository struct{}

func (NullRepository) FindByID(context.Context, string) (Tenant, error) {
	return Tenant{}, ErrNotImplemented
}
func (NullRepository) Save(context.Context, Tenant) (Tenant, error) { return Tenant{}, ErrNotImplemented }

// Service exposes tenant registration and API key authentication.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (Tenant, string, error)
	Authenticate(ctx context.Context, tenantID, apiKey string) (Tenant, error)
}

type service struct {
	repo Repository
}

// RegisterInput captures data required to create a tenant.
type RegisterInput struct {
	Name string
}

// NewService constructs a tenant service.
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Register creates a tenant and returns it along with its raw API key. The raw
// key is not recoverable afterwards.
func (s *service) Register(ctx context.Context, input RegisterInput) (Tenant, string, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Tenant{}, "", ErrNameRequired
	}

	apiKey, err := newAPIKey()
	if err != nil {
		return Tenant{}, "", err
	}

	salt, hash, err := hashKey(apiKey)
	if err != nil {
		return Tenant{}, "", err
	}

	saved, err := s.repo.Save(ctx, Tenant{
		Name:       name,
		APIKeyHash: hash,
		APIKeySalt: salt,
	})
	if err != nil {
		return Tenant{}, "", err
	}
	return saved, apiKey, nil
}

func (s *service) Authenticate(ctx context.Context, tenantID, apiKey string) (Tenant, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return Tenant{}, ErrNotFound
	}

	tenant, err := s.repo.FindByID(ctx, tenantID)
	if err != nil {
		return Tenant{}, err
	}

	if !verifyKey(apiKey, tenant.APIKeySalt, tenant.APIKeyHash) {
		return Tenant{}, ErrInvalidAPIKey
	}
	return tenant, nil
}

func newAPIKey() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("api key generation failed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

func hashKey(apiKey string) (salt, hash string, err error) {
	var buf [16]byte
	if _, err = rand.Read(buf[:]); err != nil {
		return "", "", fmt.Errorf("salt generation failed: %w", err)
	}
	salt = base64.StdEncoding.EncodeToString(buf[:])

	h := sha256.Sum256([]byte(salt + apiKey))
	hash = base64.StdEncoding.EncodeToString(h[:])
	return salt, hash, nil
}

func verifyKey(apiKey, salt, expectedHash string) bool {
	h := sha256.Sum256([]byte(salt + apiKey))
	got := base64.StdEncoding.EncodeToString(h[:])
	return subtle.ConstantTimeCompare([]byte(got), []byte(expectedHash)) == 1
}
