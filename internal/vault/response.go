package vault

import "strconv"

// Attribute é um par chave/valor de um evento
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event é um evento de ciclo de vida emitido por uma operação
type Event struct {
	Type       string      `json:"type"`
	BetID      uint64      `json:"bet_id,omitempty"`
	Attributes []Attribute `json:"attributes"`
}

// Transfer é uma instrução de saída para o ledger externo de tokens
type Transfer struct {
	Token     string `json:"token"`
	Recipient string `json:"recipient"`
	Amount    Amount `json:"amount"`
}

// Response é o que uma operação devolve: instruções externas e eventos.
// Ambos são gravados no outbox na mesma transação.
type Response struct {
	Transfers []Transfer `json:"transfers,omitempty"`
	Events    []Event    `json:"events,omitempty"`
	BetID     uint64     `json:"bet_id,omitempty"`
	Duplicate bool       `json:"duplicate,omitempty"`

	settled *settlement
}

// settlement é a aposta resolvida pela operação, logada só depois do commit
type settlement struct {
	BetID  uint64
	Winner string
	Payout
}

// event inicia um novo evento na resposta e devolve um builder de atributos
func (r *Response) event(typ string, betID uint64) *eventBuilder {
	r.Events = append(r.Events, Event{Type: typ, BetID: betID})
	return &eventBuilder{ev: &r.Events[len(r.Events)-1]}
}

func (r *Response) transfer(t Transfer) { r.Transfers = append(r.Transfers, t) }

type eventBuilder struct{ ev *Event }

func (b *eventBuilder) attr(k, v string) *eventBuilder {
	b.ev.Attributes = append(b.ev.Attributes, Attribute{Key: k, Value: v})
	return b
}

func (b *eventBuilder) id(k string, v uint64) *eventBuilder {
	return b.attr(k, strconv.FormatUint(v, 10))
}

// Attr busca o valor de um atributo pelo nome
func (e Event) Attr(key string) (string, bool) {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// Event types, mesmos nomes de ação do contrato on-chain
const (
	EventInstantiate     = "instantiate"
	EventDeposit         = "deposit"
	EventWithdraw        = "withdraw"
	EventBetCreated      = "coinflip.bet_created"
	EventBetCanceled     = "coinflip.bet_canceled"
	EventBetAccepted     = "coinflip.bet_accepted"
	EventBetRevealed     = "coinflip.bet_revealed"
	EventAcceptAndReveal = "coinflip.accept_and_reveal"
	EventCommissionPaid  = "coinflip.commission_paid"
	EventTimeoutClaimed  = "coinflip.bet_timeout_claimed"
	EventUpdateConfig    = "update_config"
	EventTransferAdmin   = "transfer_admin"
	EventAcceptAdmin     = "accept_admin"
	EventAdminSweep      = "admin_sweep"
	EventMigrate         = "migrate"
)
