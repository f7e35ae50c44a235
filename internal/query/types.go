package query

import "time"

// BalanceResponse is a principal's projected balance. Amounts are decimal
// strings in accounting units. AsOfSequence is the sequence the projection
// row was derived from; the live ledger may be ahead of it.
type BalanceResponse struct {
	Principal    string `json:"principal"`
	Balance      string `json:"balance"`
	AsOfSequence int64  `json:"as_of_sequence"`
}

// StatsResponse mirrors the projected totals row.
type StatsResponse struct {
	TotalHeld       string `json:"total_held"`
	DepositCount    int64  `json:"deposit_count"`
	WithdrawalCount int64  `json:"withdrawal_count"`
	AsOfSequence    int64  `json:"as_of_sequence"`
}

// EventHistoryEntry is one row of the event log, payload included.
type EventHistoryEntry struct {
	Sequence  int64     `json:"sequence"`
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Payload   []byte    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	BalanceMismatch *string `json:"balance_mismatch,omitempty"`
}
