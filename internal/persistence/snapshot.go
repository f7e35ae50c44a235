package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"VaultLedger/internal/event"
	"VaultLedger/internal/vault"

	"github.com/google/uuid"
)

// SnapshotManager stores and loads ledger state snapshots for warm
// restarts: load the latest verified snapshot, then replay events from
// snapshot.sequence+1.
type SnapshotManager struct {
	db *sql.DB
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// SaveSnapshot persists a captured ledger state. Snapshots start
// unverified; MarkVerified flips the flag once a replay check passes.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, state vault.State, createdAt time.Time) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO vault_log.snapshots
			(snapshot_id, sequence, data, state_hash, format_version, size_bytes, verified, created_at)
		VALUES ($1, $2, $3, $4, 1, $5, FALSE, $6)
		ON CONFLICT (sequence) DO UPDATE SET data = $3, state_hash = $4, size_bytes = $5
	`, uuid.New(), state.Sequence, data, state.StateHash, len(data), createdAt)
	return err
}

// LoadLatestSnapshot returns the most recent verified snapshot, or nil on
// a cold start.
func (sm *SnapshotManager) LoadLatestSnapshot(ctx context.Context) (*vault.State, error) {
	row := sm.db.QueryRowContext(ctx, `
		SELECT data FROM vault_log.snapshots
		WHERE verified = TRUE
		ORDER BY sequence DESC
		LIMIT 1
	`)

	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var state vault.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &state, nil
}

// MarkVerified marks a snapshot as verified after an integrity check.
func (sm *SnapshotManager) MarkVerified(ctx context.Context, sequence int64) error {
	_, err := sm.db.ExecContext(ctx, `
		UPDATE vault_log.snapshots SET verified = TRUE WHERE sequence = $1
	`, sequence)
	return err
}

// LoadEventsFrom loads events from a given sequence for replay.
func (sm *SnapshotManager) LoadEventsFrom(ctx context.Context, fromSequence int64, limit int) ([]EventRow, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT sequence, event_id, event_type, payload, state_hash, prev_hash, timestamp
		FROM vault_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
		LIMIT $2
	`, fromSequence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRow
	for rows.Next() {
		var e EventRow
		if err := rows.Scan(
			&e.Sequence, &e.EventID, &e.EventType, &e.Payload,
			&e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLatestSequence returns the highest sequence in the event log.
func (sm *SnapshotManager) GetLatestSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := sm.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM vault_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// DecodeEnvelope turns a stored event row back into a replayable envelope.
// The payload JSON is decoded into the concrete type named by event_type.
func DecodeEnvelope(row EventRow) (event.Envelope, error) {
	t := event.TypeFromString(row.EventType)

	var payload any
	switch t {
	case event.TypeDeposited:
		var p event.Deposited
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return event.Envelope{}, fmt.Errorf("decode deposited at %d: %w", row.Sequence, err)
		}
		payload = p
	case event.TypeWithdrawn:
		var p event.Withdrawn
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return event.Envelope{}, fmt.Errorf("decode withdrawn at %d: %w", row.Sequence, err)
		}
		payload = p
	case event.TypeSwapped:
		var p event.Swapped
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return event.Envelope{}, fmt.Errorf("decode swapped at %d: %w", row.Sequence, err)
		}
		payload = p
	case event.TypeAssetRegistered:
		var p event.AssetRegistered
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return event.Envelope{}, fmt.Errorf("decode asset registration at %d: %w", row.Sequence, err)
		}
		payload = p
	case event.TypeSlippageUpdated:
		var p event.SlippageUpdated
		if err := json.Unmarshal(row.Payload, &p); err != nil {
			return event.Envelope{}, fmt.Errorf("decode slippage update at %d: %w", row.Sequence, err)
		}
		payload = p
	default:
		return event.Envelope{}, fmt.Errorf("unknown event type %q at %d", row.EventType, row.Sequence)
	}

	id, err := uuid.Parse(row.EventID)
	if err != nil {
		return event.Envelope{}, fmt.Errorf("bad event id at %d: %w", row.Sequence, err)
	}

	env := event.Envelope{
		Sequence:  row.Sequence,
		EventID:   id,
		Type:      t,
		Timestamp: row.Timestamp,
		Payload:   payload,
	}
	copy(env.StateHash[:], row.StateHash)
	copy(env.PrevHash[:], row.PrevHash)
	return env, nil
}
