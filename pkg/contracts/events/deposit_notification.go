package events

import (
	"encoding/json"
	"time"
)

// DepositNotification é o push "receive" do ledger externo de tokens.
// Token identifica o contrato que enviou; Sender é o depositante declarado por ele.
type DepositNotification struct {
	ID      string          `json:"id"` // único por notificação, usado para deduplicar
	Token   string          `json:"token"`
	Sender  string          `json:"sender"`
	Amount  string          `json:"amount"` // decimal
	Msg     json.RawMessage `json:"msg"`    // ex: {"deposit":{}}
	Height  uint64          `json:"height"`
	Time    uint64          `json:"time"`
	Emitted time.Time       `json:"emitted"`
}
