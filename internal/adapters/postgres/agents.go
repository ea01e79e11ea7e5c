package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"yarad/internal/domain"
)

// Resolve maps a credential to an agent id. Zero rows and multiple rows both
// come back as domain.ErrNotAuthorized: an ambiguous credential is never
// trusted as an authorization grant.
func (db *DB) Resolve(ctx context.Context, credential string) (int64, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id FROM agents WHERE auth = $1`, credential)
	if err != nil {
		return 0, fmt.Errorf("resolve credential: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("resolve credential: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("resolve credential: %w", err)
	}

	switch len(ids) {
	case 1:
		return ids[0], nil
	case 0:
		return 0, domain.ErrNotAuthorized
	default:
		slog.Warn("credential matched multiple agents, refusing", "matches", len(ids))
		return 0, domain.ErrNotAuthorized
	}
}

func (db *DB) Create(ctx context.Context, name, credential string) (domain.Agent, error) {
	a := domain.Agent{Name: name, Auth: credential}
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO agents (name, auth)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, name, credential).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return domain.Agent{}, fmt.Errorf("create agent: %w", err)
	}
	return a, nil
}
