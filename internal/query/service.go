package query

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
)

// Service provides read-only access to the projection tables and the event
// log. The live ledger answers authoritative balance queries; this service
// serves history and reporting, which tolerate projection lag.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// GetBalance returns a principal's projected balance. Unknown principals
// report zero.
func (s *Service) GetBalance(ctx context.Context, principal string) (*BalanceResponse, error) {
	resp := &BalanceResponse{Principal: principal, Balance: "0"}
	err := s.db.QueryRowContext(ctx, `
		SELECT balance, sequence FROM projections.balances WHERE principal = $1
	`, principal).Scan(&resp.Balance, &resp.AsOfSequence)
	if err == sql.ErrNoRows {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetStats returns the projected totals row.
func (s *Service) GetStats(ctx context.Context) (*StatsResponse, error) {
	resp := &StatsResponse{TotalHeld: "0"}
	err := s.db.QueryRowContext(ctx, `
		SELECT total_held, deposit_count, withdrawal_count, sequence
		FROM projections.totals WHERE id = 1
	`).Scan(&resp.TotalHeld, &resp.DepositCount, &resp.WithdrawalCount, &resp.AsOfSequence)
	if err == sql.ErrNoRows {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// GetEventHistory returns events for a principal, newest first, with
// cursor-based pagination on sequence. A nil principal returns all events.
func (s *Service) GetEventHistory(ctx context.Context, principal *string, limit int, beforeSequence *int64) ([]EventHistoryEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT sequence, event_id, event_type, payload, timestamp
		FROM vault_log.events
		WHERE 1=1
	`
	args := []any{}
	argIdx := 1

	if principal != nil {
		query += fmt.Sprintf(" AND payload->>'principal' = $%d", argIdx)
		args = append(args, *principal)
		argIdx++
	}
	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EventHistoryEntry
	for rows.Next() {
		var e EventHistoryEntry
		if err := rows.Scan(&e.Sequence, &e.EventID, &e.EventType, &e.Payload, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// VerifyIntegrity checks hash chain continuity in the event log and the
// conservation invariant across the projections.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM vault_log.events e1
		JOIN vault_log.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Sum of projected balances must equal the projected total. Both sides
	// are NUMERIC; compare as strings through big.Int to avoid float drift.
	var sumStr, totalStr string
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT SUM(balance)::TEXT FROM projections.balances), '0'),
		       COALESCE((SELECT total_held::TEXT FROM projections.totals WHERE id = 1), '0')
	`).Scan(&sumStr, &totalStr)
	if err != nil {
		return nil, err
	}

	sum, ok1 := new(big.Int).SetString(sumStr, 10)
	total, ok2 := new(big.Int).SetString(totalStr, 10)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("unparseable projection totals: %q vs %q", sumStr, totalStr)
	}
	if sum.Cmp(total) != 0 {
		msg := fmt.Sprintf("balance sum %s != total held %s", sum, total)
		report.BalanceMismatch = &msg
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && report.BalanceMismatch == nil
	return report, nil
}
