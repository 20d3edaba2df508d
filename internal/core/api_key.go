package core

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/edvin/metering/internal/crypto"
	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/platform"
	"github.com/jackc/pgx/v5"
)

// APIKeyPrefix marks tenant ingestion keys.
const APIKeyPrefix = "sk_live_"

// APIKeyService manages tenant API keys.
type APIKeyService struct {
	db DB
}

// NewAPIKeyService creates a new APIKeyService.
func NewAPIKeyService(db DB) *APIKeyService {
	return &APIKeyService{db: db}
}

// Create generates a new API key, stores its hash, and returns the model along
// with the raw key string. The raw key must be shown to the user exactly once.
func (s *APIKeyService) Create(ctx context.Context, tenantID, name string) (*model.APIKey, string, error) {
	rawBytes := make([]byte, 24)
	if _, err := rand.Read(rawBytes); err != nil {
		return nil, "", fmt.Errorf("generate api key: %w", err)
	}
	rawKey := APIKeyPrefix + hex.EncodeToString(rawBytes)

	key, err := s.CreateWithRawKey(ctx, tenantID, name, rawKey)
	if err != nil {
		return nil, "", err
	}
	return key, rawKey, nil
}

// CreateWithRawKey stores an API key with a caller-provided raw key value.
// Used for well-known dev keys where the raw value must be deterministic.
func (s *APIKeyService) CreateWithRawKey(ctx context.Context, tenantID, name, rawKey string) (*model.APIKey, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrBadRequest)
	}
	if len(rawKey) < len(APIKeyPrefix)+4 {
		return nil, fmt.Errorf("%w: api key too short", ErrBadRequest)
	}

	key := &model.APIKey{
		ID:        platform.NewID(),
		TenantID:  tenantID,
		Name:      name,
		KeyHash:   crypto.HashAPIKey(rawKey),
		KeyPrefix: rawKey[:len(APIKeyPrefix)+4],
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, created_at)
		 VALUES ($1, $2, $3, $4, $5, now()) RETURNING created_at`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix,
	).Scan(&key.CreatedAt)
	if err != nil {
		if isPgError(err, pgForeignKeyViolation) {
			return nil, fmt.Errorf("%w: tenant %s not found", ErrNotFound, tenantID)
		}
		if isPgError(err, pgUniqueViolation) {
			return nil, fmt.Errorf("%w: api key %s already exists", ErrConflict, key.KeyPrefix)
		}
		return nil, fmt.Errorf("insert api key: %w", err)
	}
	return key, nil
}

// Authenticate resolves a raw secret to the owning tenant. Unknown and revoked
// keys are indistinguishable to the caller.
func (s *APIKeyService) Authenticate(ctx context.Context, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: missing API key", ErrBadRequest)
	}

	var tenantID string
	err := s.db.QueryRow(ctx,
		`SELECT tenant_id FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL`,
		crypto.HashAPIKey(secret),
	).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: invalid API key", ErrUnauthorized)
		}
		return "", fmt.Errorf("authenticate api key: %w", err)
	}
	return tenantID, nil
}

// Get returns a key's metadata. Keys of other tenants are not found.
func (s *APIKeyService) Get(ctx context.Context, tenantID, id string) (*model.APIKey, error) {
	var k model.APIKey
	err := s.db.QueryRow(ctx,
		`SELECT id, tenant_id, name, key_prefix, created_at, revoked_at
		 FROM api_keys WHERE tenant_id = $1 AND id = $2`, tenantID, id,
	).Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyPrefix, &k.CreatedAt, &k.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: api key %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get api key %s: %w", id, err)
	}
	return &k, nil
}

// List returns the tenant's keys, newest first, revoked ones included.
func (s *APIKeyService) List(ctx context.Context, tenantID string, limit int, cursor string) ([]model.APIKey, bool, error) {
	query := `SELECT id, tenant_id, name, key_prefix, created_at, revoked_at FROM api_keys WHERE tenant_id = $1`
	args := []any{tenantID}
	query, args = pageCursor(query, args, "api_keys", cursor)
	query, args = pageLimit(query, args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []model.APIKey
	for rows.Next() {
		var k model.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyPrefix, &k.CreatedAt, &k.RevokedAt); err != nil {
			return nil, false, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate api keys: %w", err)
	}

	keys, hasMore := trimPage(keys, limit)
	return keys, hasMore, nil
}

// Revoke disables a key immediately. Lookups are not cached, so the next
// request presenting it is rejected.
func (s *APIKeyService) Revoke(ctx context.Context, tenantID, id string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE api_keys SET revoked_at = now() WHERE tenant_id = $1 AND id = $2 AND revoked_at IS NULL`,
		tenantID, id,
	)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: api key %s", ErrNotFound, id)
	}
	return nil
}
