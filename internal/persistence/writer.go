package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"VaultLedger/internal/vault"
)

// EventRow is a row in vault_log.events. Amounts inside the payload are
// decimal strings; the columns that carry amounts use NUMERIC(78,0).
type EventRow struct {
	Sequence  int64
	EventID   string
	EventType string
	Payload   []byte
	StateHash []byte
	PrevHash  []byte
	Timestamp time.Time
}

// BalanceRow is an upsert into projections.balances.
type BalanceRow struct {
	Principal string
	Balance   string
	Sequence  int64
}

// TotalsRow is the single-row upsert into projections.totals.
type TotalsRow struct {
	TotalHeld       string
	DepositCount    int64
	WithdrawalCount int64
	Sequence        int64
}

// EventLogWriter batch-writes ledger output to Postgres using multi-row
// INSERTs and keyed upserts. Inserts conflict-skip on sequence so a retried
// batch is idempotent.
type EventLogWriter struct {
	db *sql.DB
}

func NewEventLogWriter(db *sql.DB) *EventLogWriter {
	return &EventLogWriter{db: db}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// WriteEventBatch appends events to vault_log.events.
func (w *EventLogWriter) WriteEventBatch(ctx context.Context, ex execer, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO vault_log.events
		(sequence, event_id, event_type, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]any, 0, len(events)*7)
	for i, e := range events {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args, e.Sequence, e.EventID, e.EventType, e.Payload, e.StateHash, e.PrevHash, e.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteBalanceBatch upserts the latest balance per principal. Rows carry
// the sequence they were derived from; stale writes lose on the sequence
// guard.
func (w *EventLogWriter) WriteBalanceBatch(ctx context.Context, ex execer, balances []BalanceRow) error {
	if len(balances) == 0 {
		return nil
	}

	query := `INSERT INTO projections.balances (principal, balance, sequence) VALUES `

	values := make([]string, 0, len(balances))
	args := make([]any, 0, len(balances)*3)
	for i, b := range balances {
		base := i * 3
		values = append(values, fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3))
		args = append(args, b.Principal, b.Balance, b.Sequence)
	}

	query += strings.Join(values, ", ")
	query += ` ON CONFLICT (principal) DO UPDATE
		SET balance = EXCLUDED.balance, sequence = EXCLUDED.sequence
		WHERE projections.balances.sequence < EXCLUDED.sequence`

	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// WriteTotals upserts the aggregate row.
func (w *EventLogWriter) WriteTotals(ctx context.Context, ex execer, totals TotalsRow) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO projections.totals (id, total_held, deposit_count, withdrawal_count, sequence)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
			SET total_held = EXCLUDED.total_held,
			    deposit_count = EXCLUDED.deposit_count,
			    withdrawal_count = EXCLUDED.withdrawal_count,
			    sequence = EXCLUDED.sequence
			WHERE projections.totals.sequence < EXCLUDED.sequence
	`, totals.TotalHeld, totals.DepositCount, totals.WithdrawalCount, totals.Sequence)
	return err
}

// RowsFromOutput converts a committed ledger output into its storage rows.
func RowsFromOutput(out vault.Output) (EventRow, []BalanceRow, TotalsRow) {
	ev := EventRow{
		Sequence:  out.Envelope.Sequence,
		EventID:   out.Envelope.EventID.String(),
		EventType: out.Envelope.Type.String(),
		Payload:   MarshalPayload(out.Envelope.Payload),
		StateHash: append([]byte(nil), out.Envelope.StateHash[:]...),
		PrevHash:  append([]byte(nil), out.Envelope.PrevHash[:]...),
		Timestamp: out.Envelope.Timestamp,
	}

	balances := make([]BalanceRow, 0, len(out.Balances))
	for _, b := range out.Balances {
		balances = append(balances, BalanceRow{
			Principal: b.Principal,
			Balance:   b.Balance.String(),
			Sequence:  out.Envelope.Sequence,
		})
	}

	totals := TotalsRow{
		TotalHeld:       out.Totals.TotalHeld.String(),
		DepositCount:    out.Totals.DepositCount,
		WithdrawalCount: out.Totals.WithdrawalCount,
		Sequence:        out.Envelope.Sequence,
	}

	return ev, balances, totals
}

// MarshalPayload JSON-encodes an event payload for storage.
func MarshalPayload(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal payload: %v", err)
		return []byte("{}")
	}
	return data
}
