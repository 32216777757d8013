package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
	"noticeops/pkg/platform/sentinel"
	txcontext "noticeops/pkg/platform/tx"
)

// ListTrackedParties returns parties in any of the given states, or all when none are given.
func (s *Store) ListTrackedParties(ctx context.Context, states ...models.PartyState) ([]*models.TrackedParty, error) {
	query := `SELECT party_id, query_reason, state, last_checked_at FROM tracked_parties`
	var args []any
	if len(states) > 0 {
		raw := make([]string, len(states))
		for i, st := range states {
			raw[i] = string(st)
		}
		query += ` WHERE state = ANY($1)`
		args = append(args, pq.Array(raw))
	}
	query += ` ORDER BY party_id`

	rows, err := txcontext.Pick(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tracked parties: %w", err)
	}
	defer rows.Close()

	var out []*models.TrackedParty
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked party: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tracked parties: %w", err)
	}
	return out, nil
}

func (s *Store) FindTrackedParty(ctx context.Context, partyID id.PartyID) (*models.TrackedParty, error) {
	query := `SELECT party_id, query_reason, state, last_checked_at FROM tracked_parties WHERE party_id = $1`
	p, err := scanParty(txcontext.Pick(ctx, s.db).QueryRowContext(ctx, query, string(partyID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("party %s: %w", partyID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find tracked party: %w", err)
	}
	return p, nil
}

func (s *Store) SaveTrackedParty(ctx context.Context, p *models.TrackedParty) error {
	query := `
		INSERT INTO tracked_parties (party_id, query_reason, state, last_checked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (party_id) DO UPDATE SET
			query_reason = EXCLUDED.query_reason,
			state = EXCLUDED.state,
			last_checked_at = EXCLUDED.last_checked_at
	`
	_, err := txcontext.Pick(ctx, s.db).ExecContext(ctx, query,
		string(p.PartyID), p.QueryReason, string(p.State), timeArg(p.LastCheckedAt),
	)
	if err != nil {
		return fmt.Errorf("save tracked party: %w", err)
	}
	return nil
}

func scanParty(row scanner) (*models.TrackedParty, error) {
	var (
		p       models.TrackedParty
		partyID string
		checked sql.NullTime
	)
	if err := row.Scan(&partyID, &p.QueryReason, &p.State, &checked); err != nil {
		return nil, err
	}
	p.PartyID = id.PartyID(partyID)
	p.LastCheckedAt = nullTime(checked)
	return &p, nil
}
