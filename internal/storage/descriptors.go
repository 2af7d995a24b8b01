package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/KevinKickass/OpenAlpacaCore/internal/devices"
	"github.com/KevinKickass/OpenAlpacaCore/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is the subset of *pgxpool.Pool used by DescriptorStore.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DescriptorStore keeps switch descriptor documents in Postgres.
type DescriptorStore struct {
	db        querier
	validator *devices.Validator
}

func NewDescriptorStore(client *PostgresClient, validator *devices.Validator) *DescriptorStore {
	return &DescriptorStore{db: client.pool, validator: validator}
}

// Load returns the descriptors stored under key.
func (s *DescriptorStore) Load(ctx context.Context, key string) ([]types.SwitchDescriptor, error) {
	var record DescriptorRecord
	err := s.db.QueryRow(ctx, `
		SELECT key, descriptors, updated_at
		FROM switch_descriptors
		WHERE key = $1
	`, key).Scan(&record.Key, &record.Descriptors, &record.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", devices.ErrDescriptorsNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query descriptors: %w", err)
	}

	descriptors, err := s.validator.DecodeDescriptors(record.Descriptors)
	if err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", key, err)
	}
	return descriptors, nil
}

// Save replaces the document stored under key.
func (s *DescriptorStore) Save(ctx context.Context, key string, descriptors []types.SwitchDescriptor) error {
	data, err := json.Marshal(descriptors)
	if err != nil {
		return fmt.Errorf("failed to marshal descriptors: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO switch_descriptors (key, descriptors, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET descriptors = EXCLUDED.descriptors, updated_at = now()
	`, key, data)
	if err != nil {
		return fmt.Errorf("failed to save descriptors: %w", err)
	}
	return nil
}
