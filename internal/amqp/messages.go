package amqp

import (
	"encoding/json"
	"time"
)

// Entities and operations carried by LedgerChangedMessage.
const (
	EntityQuote     = "quote"
	EntityQuoteFile = "quote_file"
	EntityExpense   = "expense"
	EntityIncome    = "income"
	EntityTag       = "tag"
	EntityPayer     = "payer"

	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
	OpAccept = "accept"
)

// LedgerChangedMessage is a lightweight change notification. It carries no
// amounts; consumers reload the ledger to see the new state.
type LedgerChangedMessage struct {
	Entity    string    `json:"entity"`
	Op        string    `json:"op"`
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(entity, op string, id int64) *LedgerChangedMessage {
	return &LedgerChangedMessage{
		Entity:    entity,
		Op:        op,
		ID:        id,
		Timestamp: time.Now(),
	}
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
