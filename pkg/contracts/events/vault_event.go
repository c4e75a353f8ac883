package events

// VaultEvent é publicado no tópico "vault_events" e no canal Redis do feed
type VaultEvent struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"` // ex: "coinflip.bet_created"
	BetID      uint64            `json:"bet_id,omitempty"`
	Attributes map[string]string `json:"attributes"`
	Height     uint64            `json:"height"`
	Time       uint64            `json:"time"`
}
