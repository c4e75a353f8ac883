package events

// TransferInstruction é a ordem de saída que o vault emite para o ledger de tokens
// Executada pelo ledger externo; o vault nunca move tokens por conta própria
type TransferInstruction struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	From      string `json:"from"` // endereço do vault
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"` // decimal
	Height    uint64 `json:"height"`
	Time      uint64 `json:"time"`
}
