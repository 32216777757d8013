package addressvalidation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"noticeops/internal/notice/models"
	id "noticeops/pkg/domain"
)

// PostgresSource reads the latest snapshot per (party, reason) from
// address_validation_snapshots. The table is populated by the agency exchange.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Lookup(ctx context.Context, partyID id.PartyID, queryReason string) (models.AddressValidationSnapshot, error) {
	query := `
		SELECT validity, checked_at
		FROM address_validation_snapshots
		WHERE party_id = $1 AND query_reason = $2
		ORDER BY checked_at DESC
		LIMIT 1
	`
	snap := models.AddressValidationSnapshot{PartyID: partyID, QueryReason: queryReason}
	var validity string
	err := s.db.QueryRowContext(ctx, query, partyID.String(), queryReason).Scan(&validity, &snap.CheckedAt)
	if errors.Is(err, sql.ErrNoRows) {
		snap.Validity = models.ValidityUnknown
		return snap, nil
	}
	if err != nil {
		return models.AddressValidationSnapshot{}, fmt.Errorf("lookup address validation: %w", err)
	}
	switch v := models.Validity(validity); v {
	case models.ValidityValid, models.ValidityInvalid:
		snap.Validity = v
	default:
		snap.Validity = models.ValidityUnknown
	}
	return snap, nil
}
