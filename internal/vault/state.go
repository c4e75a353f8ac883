package vault

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const (
	ContractName    = "coinflip-pvp-vault"
	ContractVersion = "v0.5.1"

	MaxCommissionBps = 5000
	BpsDenominator   = 10_000

	MinRevealTimeoutSecs = 60
	MaxRevealTimeoutSecs = 86_400

	MinBetTTLSecs     = 300
	MaxBetTTLSecs     = 604_800
	DefaultBetTTLSecs = 43_200

	CommitmentLen = 32

	secondsPerDay = 86_400
)

// Env carrega a altura e o horário do bloco fornecidos pelo ledger hospedeiro
// Nunca usamos relógio local para política de tempo
type Env struct {
	Height uint64 `json:"height"`
	Time   uint64 `json:"time"` // segundos unix
}

// atLeast devolve o Env com cada campo no máximo entre e e o
func (e Env) atLeast(o Env) Env {
	return Env{Height: max(e.Height, o.Height), Time: max(e.Time, o.Time)}
}

// Config é a configuração administrável do vault
type Config struct {
	Admin                 string  `json:"admin"`
	Token                 string  `json:"token"`
	Treasury              string  `json:"treasury"`
	CommissionBps         uint16  `json:"commission_bps"`
	MinBet                Amount  `json:"min_bet"`
	RevealTimeoutSecs     uint64  `json:"reveal_timeout_secs"`
	MaxOpenPerUser        uint16  `json:"max_open_per_user"`
	MaxDailyAmountPerUser Amount  `json:"max_daily_amount_per_user"`
	BetTTLSecs            uint64  `json:"bet_ttl_secs"`
	PendingAdmin          *string `json:"pending_admin,omitempty"`
}

// ContractInfo registra nome/versão gravados no instantiate e checados no migrate
type ContractInfo struct {
	Contract string `json:"contract"`
	Version  string `json:"version"`
}

// VaultBalance é o saldo interno de uma conta
type VaultBalance struct {
	Available Amount `json:"available"`
	Locked    Amount `json:"locked"`
}

// Total retorna available + locked
func (b VaultBalance) Total() (Amount, error) { return b.Available.Add(b.Locked) }

// Side é a face da moeda
type Side uint8

const (
	Heads Side = iota + 1
	Tails
)

func (s Side) String() string {
	switch s {
	case Heads:
		return "heads"
	case Tails:
		return "tails"
	default:
		return fmt.Sprintf("side(%d)", uint8(s))
	}
}

// ParseSide aceita "heads" | "tails" (case-insensitive)
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "heads":
		return Heads, nil
	case "tails":
		return Tails, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

func (s Side) valid() bool { return s == Heads || s == Tails }

func (s Side) MarshalJSON() ([]byte, error) {
	if !s.valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, uint8(s))
	}
	return json.Marshal(s.String())
}

func (s *Side) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSide, string(b))
	}
	parsed, err := ParseSide(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// BetStatus é o conjunto fechado de estados de uma aposta
type BetStatus uint8

const (
	StatusOpen BetStatus = iota + 1
	StatusAccepted
	StatusRevealed
	StatusCanceled
	StatusTimeoutClaimed
)

func (s BetStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusAccepted:
		return "accepted"
	case StatusRevealed:
		return "revealed"
	case StatusCanceled:
		return "canceled"
	case StatusTimeoutClaimed:
		return "timeoutclaimed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseBetStatus é o inverso de String
func ParseBetStatus(s string) (BetStatus, error) {
	for _, st := range []BetStatus{StatusOpen, StatusAccepted, StatusRevealed, StatusCanceled, StatusTimeoutClaimed} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown bet status %q", s)
}

// Terminal indica se nenhuma transição sai deste estado
func (s BetStatus) Terminal() bool {
	switch s {
	case StatusRevealed, StatusCanceled, StatusTimeoutClaimed:
		return true
	case StatusOpen, StatusAccepted:
		return false
	default:
		return false
	}
}

func (s BetStatus) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *BetStatus) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	parsed, err := ParseBetStatus(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Bet é o registro persistido de uma aposta; nunca removido fora de um reset
type Bet struct {
	ID              uint64    `json:"id"`
	Maker           string    `json:"maker"`
	Amount          Amount    `json:"amount"`
	Commitment      []byte    `json:"commitment"`
	Status          BetStatus `json:"status"`
	CreatedAtHeight uint64    `json:"created_at_height"`
	CreatedAtTime   uint64    `json:"created_at_time"`

	// preenchidos no accept
	Acceptor         *string `json:"acceptor,omitempty"`
	AcceptorGuess    *Side   `json:"acceptor_guess,omitempty"`
	AcceptedAtHeight *uint64 `json:"accepted_at_height,omitempty"`
	AcceptedAtTime   *uint64 `json:"accepted_at_time,omitempty"`

	// preenchidos na resolução
	RevealSecret     []byte  `json:"reveal_secret,omitempty"`
	RevealSide       *Side   `json:"reveal_side,omitempty"`
	ResolvedAtHeight *uint64 `json:"resolved_at_height,omitempty"`
	Winner           *string `json:"winner,omitempty"`
	CommissionPaid   Amount  `json:"commission_paid"`
	PayoutAmount     Amount  `json:"payout_amount"`
}

// Involves indica se a conta é maker ou acceptor da aposta
func (b Bet) Involves(account string) bool {
	return b.Maker == account || (b.Acceptor != nil && *b.Acceptor == account)
}

// RevealDeadline é accepted_at + timeout; estoura com ErrOverflow
func (b Bet) RevealDeadline(timeoutSecs uint64) (uint64, error) {
	if b.AcceptedAtTime == nil {
		return 0, fmt.Errorf("bet %d has no acceptance time", b.ID)
	}
	return addSecs(*b.AcceptedAtTime, timeoutSecs, "reveal deadline")
}

// ExpiresAt é created_at + ttl; false quando o ttl está desligado
func (b Bet) ExpiresAt(ttlSecs uint64) (uint64, bool, error) {
	if ttlSecs == 0 {
		return 0, false, nil
	}
	at, err := addSecs(b.CreatedAtTime, ttlSecs, "bet expiry")
	return at, err == nil, err
}

func addSecs(t, secs uint64, what string) (uint64, error) {
	if t > math.MaxUint64-secs {
		return 0, fmt.Errorf("%w: %s %d + %d", ErrOverflow, what, t, secs)
	}
	return t + secs, nil
}

// ValidateAddress aplica as regras mínimas de identificador de conta
func ValidateAddress(addr string) error {
	if addr == "" || len(addr) > 128 || strings.TrimSpace(addr) != addr || strings.ContainsAny(addr, " \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return nil
}

func dayBucket(t uint64) uint64 { return t / secondsPerDay }

func ptr[T any](v T) *T { return &v }
