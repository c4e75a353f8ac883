package dto

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/radieske/coinflip-vault/internal/vault"
)

// Hex são bytes codificados em hexadecimal no JSON (commitment, secret)
type Hex []byte

func (h Hex) MarshalJSON() ([]byte, error) { return json.Marshal(hex.EncodeToString(h)) }

func (h *Hex) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	*h = raw
	return nil
}

// ExecuteRequest é o envelope de escrita: quem assina, o bloco e uma única mensagem
type ExecuteRequest struct {
	Sender string     `json:"sender"`
	Block  vault.Env  `json:"block"`
	Msg    ExecuteMsg `json:"msg"`
}

// ExecuteMsg é uma união: exatamente um campo deve vir preenchido
type ExecuteMsg struct {
	Receive         *ReceiveMsg            `json:"receive,omitempty"`
	Withdraw        *WithdrawMsg           `json:"withdraw,omitempty"`
	CreateBet       *CreateBetMsg          `json:"create_bet,omitempty"`
	CancelBet       *BetRef                `json:"cancel_bet,omitempty"`
	AcceptBet       *AcceptBetMsg          `json:"accept_bet,omitempty"`
	AcceptAndReveal *AcceptAndRevealMsg    `json:"accept_and_reveal,omitempty"`
	Reveal          *RevealMsg             `json:"reveal,omitempty"`
	ClaimTimeout    *BetRef                `json:"claim_timeout,omitempty"`
	UpdateConfig    *vault.UpdateConfigMsg `json:"update_config,omitempty"`
	TransferAdmin   *TransferAdminMsg      `json:"transfer_admin,omitempty"`
	AcceptAdmin     *struct{}              `json:"accept_admin,omitempty"`
	AdminSweep      *AdminSweepMsg         `json:"admin_sweep,omitempty"`
}

// ReceiveMsg é a notificação do ledger de tokens; o sender do envelope é o token
type ReceiveMsg struct {
	ID     string          `json:"id,omitempty"`
	Sender string          `json:"sender"`
	Amount vault.Amount    `json:"amount"`
	Msg    json.RawMessage `json:"msg"`
}

type WithdrawMsg struct {
	Amount vault.Amount `json:"amount"`
}

type CreateBetMsg struct {
	Amount     vault.Amount `json:"amount"`
	Commitment Hex          `json:"commitment"`
}

type BetRef struct {
	BetID uint64 `json:"bet_id"`
}

type AcceptBetMsg struct {
	BetID uint64     `json:"bet_id"`
	Guess vault.Side `json:"guess"`
}

type AcceptAndRevealMsg struct {
	BetID  uint64     `json:"bet_id"`
	Guess  vault.Side `json:"guess"`
	Side   vault.Side `json:"side"`
	Secret Hex        `json:"secret"`
}

type RevealMsg struct {
	BetID  uint64     `json:"bet_id"`
	Side   vault.Side `json:"side"`
	Secret Hex        `json:"secret"`
}

type TransferAdminMsg struct {
	NewAdmin string `json:"new_admin"`
}

type AdminSweepMsg struct {
	Recipient *string `json:"recipient,omitempty"`
}

var ErrBadVariant = errors.New("msg must carry exactly one variant")

// Variant devolve o nome da única variante preenchida
func (m ExecuteMsg) Variant() (string, error) {
	set := map[string]bool{
		"receive":           m.Receive != nil,
		"withdraw":          m.Withdraw != nil,
		"create_bet":        m.CreateBet != nil,
		"cancel_bet":        m.CancelBet != nil,
		"accept_bet":        m.AcceptBet != nil,
		"accept_and_reveal": m.AcceptAndReveal != nil,
		"reveal":            m.Reveal != nil,
		"claim_timeout":     m.ClaimTimeout != nil,
		"update_config":     m.UpdateConfig != nil,
		"transfer_admin":    m.TransferAdmin != nil,
		"accept_admin":      m.AcceptAdmin != nil,
		"admin_sweep":       m.AdminSweep != nil,
	}
	variant := ""
	for name, ok := range set {
		if !ok {
			continue
		}
		if variant != "" {
			return "", ErrBadVariant
		}
		variant = name
	}
	if variant == "" {
		return "", ErrBadVariant
	}
	return variant, nil
}

// InstantiateRequest inicializa o vault; sender vira admin
type InstantiateRequest struct {
	Sender string               `json:"sender"`
	Block  vault.Env            `json:"block"`
	Msg    vault.InstantiateMsg `json:"msg"`
}

// ErrorResponse é o corpo de toda resposta de erro
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
