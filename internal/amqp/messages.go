package amqp

import (
	"encoding/json"
	"time"
)

// Event kinds published on the ledger exchange.
const (
	EventTransactionApplied  = "transaction_applied"
	EventTransactionReversed = "transaction_reversed"
	EventAccountEdited       = "account_edited"
	EventAccountDeleted      = "account_deleted"
)

// LedgerEvent announces a completed ledger mutation. It carries identifiers
// only; consumers reload current state from the store, so a stale or
// redelivered event is harmless.
type LedgerEvent struct {
	Kind      string    `json:"kind"`
	Namespace string    `json:"namespace"`
	Accounts  []string  `json:"accounts"`
	TxnID     string    `json:"txn_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(kind, namespace string, accounts []string, txnID string) *LedgerEvent {
	return &LedgerEvent{
		Kind:      kind,
		Namespace: namespace,
		Accounts:  accounts,
		TxnID:     txnID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes.
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event from JSON bytes.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
