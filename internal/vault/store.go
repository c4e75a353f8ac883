package vault

import (
	"context"
	"time"
)

// BetFilter seleciona apostas numa listagem paginada.
// Status nil e Account vazio significam "qualquer".
type BetFilter struct {
	Status     *BetStatus
	Account    string // maker ou acceptor
	StartAfter uint64 // exclusivo
	Limit      int
}

// Match indica se a aposta passa pelo filtro (ignora paginação)
func (f BetFilter) Match(b Bet) bool {
	if f.Status != nil && b.Status != *f.Status {
		return false
	}
	if f.Account != "" && !b.Involves(f.Account) {
		return false
	}
	return true
}

// OutboxKind distingue instruções de transferência de eventos de ciclo de vida
type OutboxKind string

const (
	OutboxTransfer OutboxKind = "transfer"
	OutboxEvent    OutboxKind = "event"
)

// OutboxRecord é uma mensagem de saída gravada na mesma transação da operação
type OutboxRecord struct {
	ID        string     `json:"id"`
	Kind      OutboxKind `json:"kind"`
	Key       string     `json:"key"`
	Payload   []byte     `json:"payload"`
	CreatedAt time.Time  `json:"created_at"`
}

// Flows acumula, por token, o que o vault já creditou em depósitos e o que já
// instruiu de saída. Nunca diminui; é a metade do vault na conciliação do sweep.
type Flows struct {
	Credited   Amount `json:"credited"`
	Instructed Amount `json:"instructed"`
}

// ResetCounts reporta quantas entradas um reset completo removeu
type ResetCounts struct {
	Balances     uint64
	Bets         uint64
	OpenCounters uint64
	DailyUsage   uint64
}

// Total soma todas as entradas removidas
func (c ResetCounts) Total() uint64 {
	return c.Balances + c.Bets + c.OpenCounters + c.DailyUsage
}

// ReadTx é a visão somente-leitura do estado persistente
type ReadTx interface {
	// Config retorna ErrNotInstantiated antes do instantiate
	Config(ctx context.Context) (Config, error)
	ContractInfo(ctx context.Context) (ContractInfo, error)
	NextBetID(ctx context.Context) (uint64, error)

	// Balance retorna saldo zerado para contas desconhecidas
	Balance(ctx context.Context, account string) (VaultBalance, error)
	// TotalTracked soma available+locked de todas as contas
	TotalTracked(ctx context.Context) (Amount, error)

	// Bet retorna ErrBetNotFound se o id não existir
	Bet(ctx context.Context, id uint64) (Bet, error)
	// ListBets percorre apostas em ordem crescente de id
	ListBets(ctx context.Context, f BetFilter) ([]Bet, error)

	OpenBetCount(ctx context.Context, account string) (uint16, error)
	DailyUsage(ctx context.Context, account string, day uint64) (Amount, error)

	// LastBlock é o maior Env já gravado; zero antes da primeira operação
	LastBlock(ctx context.Context) (Env, error)
	// Flows retorna os acumulados do token; zero para token desconhecido
	Flows(ctx context.Context, token string) (Flows, error)
}

// Tx é uma transação de leitura e escrita; nada persiste se a função retornar erro
type Tx interface {
	ReadTx

	SaveConfig(ctx context.Context, c Config) error
	SaveContractInfo(ctx context.Context, info ContractInfo) error
	SetNextBetID(ctx context.Context, id uint64) error
	SaveBalance(ctx context.Context, account string, b VaultBalance) error
	SaveBet(ctx context.Context, b Bet) error
	SetOpenBetCount(ctx context.Context, account string, n uint16) error
	SetDailyUsage(ctx context.Context, account string, day uint64, used Amount) error

	// MarkNotification registra o id de uma notificação de depósito.
	// Retorna false se o id já tinha sido processado.
	MarkNotification(ctx context.Context, id string) (bool, error)

	Enqueue(ctx context.Context, rec OutboxRecord) error

	SaveLastBlock(ctx context.Context, env Env) error
	SaveFlows(ctx context.Context, token string, f Flows) error

	// Reset apaga saldos, apostas, contadores e uso diário.
	// LastBlock e Flows sobrevivem.
	Reset(ctx context.Context) (ResetCounts, error)
}

// Store executa cada operação pública numa única transação atômica
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx ReadTx) error) error
}

// Outbox é usado pelo relay para drenar mensagens de saída
type Outbox interface {
	PendingOutbox(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkOutboxSent(ctx context.Context, id string, at time.Time) error
}
