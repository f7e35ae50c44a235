package event

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminator for event payloads
type Type int32

const (
	TypeUnknown Type = iota
	TypeDeposited
	TypeWithdrawn
	TypeSwapped
	TypeAssetRegistered
	TypeSlippageUpdated
)

// Envelope wraps every event appended to the ledger's log
type Envelope struct {
	// Global monotonic sequence assigned by the ledger
	Sequence int64

	// Unique event identifier
	EventID uuid.UUID

	// Event type discriminator
	Type Type

	// Wall-clock time the ledger committed the operation
	Timestamp time.Time

	// Typed event payload (JSON-encoded at the persistence boundary)
	Payload any

	// SHA-256 of ledger state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

func (t Type) String() string {
	switch t {
	case TypeDeposited:
		return "Deposited"
	case TypeWithdrawn:
		return "Withdrawn"
	case TypeSwapped:
		return "Swapped"
	case TypeAssetRegistered:
		return "AssetRegistered"
	case TypeSlippageUpdated:
		return "SlippageUpdated"
	default:
		return "Unknown"
	}
}

// TypeFromString parses the stored event_type column back into a Type.
func TypeFromString(s string) Type {
	switch s {
	case "Deposited":
		return TypeDeposited
	case "Withdrawn":
		return TypeWithdrawn
	case "Swapped":
		return TypeSwapped
	case "AssetRegistered":
		return TypeAssetRegistered
	case "SlippageUpdated":
		return TypeSlippageUpdated
	default:
		return TypeUnknown
	}
}
