// Package archive persists ingested dataset snapshots in Postgres so the
// dashboard's original dataset survives a restart. The service runs fine
// without it; everything here is optional wiring.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mutamap/core-go/internal/provider"
	"mutamap/core-go/internal/record"
)

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	id         UUID PRIMARY KEY,
	provenance TEXT NOT NULL,
	dropped    INTEGER NOT NULL DEFAULT 0,
	records    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Archive struct {
	pool *pgxpool.Pool
}

// Open connects, verifies connectivity and ensures the schema exists.
func Open(ctx context.Context, databaseURL string) (*Archive, error) {
	p, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, err
	}
	if _, err := p.Exec(ctx, schema); err != nil {
		p.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Archive{pool: p}, nil
}

func (a *Archive) Close() {
	if a == nil || a.pool == nil {
		return
	}
	a.pool.Close()
}

func (a *Archive) Ping(ctx context.Context) error {
	if a == nil || a.pool == nil {
		return nil
	}
	return a.pool.Ping(ctx)
}

// SaveDataset stores one dataset snapshot.
func (a *Archive) SaveDataset(ctx context.Context, ds provider.Dataset) error {
	payload, err := json.Marshal(ds.Records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	_, err = a.pool.Exec(ctx,
		`INSERT INTO datasets (id, provenance, dropped, records) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		ds.ID, string(ds.Provenance), ds.Dropped, payload)
	return err
}

// LatestDataset returns the most recently stored snapshot, if any.
func (a *Archive) LatestDataset(ctx context.Context) (provider.Dataset, bool, error) {
	var (
		id      uuid.UUID
		prov    string
		dropped int
		payload []byte
	)
	err := a.pool.QueryRow(ctx,
		`SELECT id, provenance, dropped, records FROM datasets ORDER BY created_at DESC LIMIT 1`).
		Scan(&id, &prov, &dropped, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return provider.Dataset{}, false, nil
	}
	if err != nil {
		return provider.Dataset{}, false, err
	}

	var recs []record.Record
	if err := json.Unmarshal(payload, &recs); err != nil {
		return provider.Dataset{}, false, fmt.Errorf("unmarshal records: %w", err)
	}

	return provider.Dataset{
		ID:         id,
		Provenance: provider.Provenance(prov),
		Records:    recs,
		Dropped:    dropped,
	}, true, nil
}
