package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// DepositNotification é o push do ledger de tokens quando alguém envia tokens ao vault
type DepositNotification struct {
	ID     string          `json:"id"`
	Sender string          `json:"sender"`
	Amount Amount          `json:"amount"`
	Msg    json.RawMessage `json:"msg"`
}

type receiveHook struct {
	Deposit *struct{} `json:"deposit"`
}

// parseReceiveHook aceita somente {"deposit":{}}
func parseReceiveHook(raw json.RawMessage) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("%w: empty message", ErrInvalidReceiveMsg)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var hook receiveHook
	if err := dec.Decode(&hook); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReceiveMsg, err)
	}
	if hook.Deposit == nil {
		return fmt.Errorf("%w: expected deposit", ErrInvalidReceiveMsg)
	}
	return nil
}

// Receive credita o depositante. tokenSender é quem entregou a notificação e
// precisa ser o token configurado. Um id repetido não credita de novo.
// O depósito já aconteceu no ledger, então um Env atrasado é adiantado até o
// último bloco em vez de rejeitado.
func (e *Engine) Receive(ctx context.Context, env Env, tokenSender string, n DepositNotification) (Response, error) {
	return e.run(ctx, "receive", env, true, func(tx Tx, res *Response) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		if tokenSender != cfg.Token {
			return fmt.Errorf("%w: %s", ErrInvalidToken, tokenSender)
		}
		if err := parseReceiveHook(n.Msg); err != nil {
			return err
		}
		if err := ValidateAddress(n.Sender); err != nil {
			return err
		}
		if n.Amount.IsZero() {
			return ErrInvalidZeroAmount
		}
		if n.ID != "" {
			first, err := tx.MarkNotification(ctx, n.ID)
			if err != nil {
				return err
			}
			if !first {
				res.Duplicate = true
				return nil
			}
		}

		bal, err := NewLedger(tx).Credit(ctx, n.Sender, n.Amount)
		if err != nil {
			return err
		}
		if err := addFlows(ctx, tx, cfg.Token, Flows{Credited: n.Amount}); err != nil {
			return err
		}
		res.event(EventDeposit, 0).
			attr("depositor", n.Sender).
			attr("amount", n.Amount.String()).
			attr("new_available", bal.Available.String())
		return nil
	})
}

// Withdraw debita o available do chamador e emite token.transfer(caller, amount)
func (e *Engine) Withdraw(ctx context.Context, env Env, sender string, amount Amount) (Response, error) {
	return e.exec(ctx, "withdraw", env, func(tx Tx, res *Response) error {
		if err := ValidateAddress(sender); err != nil {
			return err
		}
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		if amount.IsZero() {
			return ErrInvalidZeroAmount
		}
		bal, err := NewLedger(tx).Debit(ctx, sender, amount)
		if err != nil {
			return err
		}
		res.transfer(Transfer{Token: cfg.Token, Recipient: sender, Amount: amount})
		res.event(EventWithdraw, 0).
			attr("user", sender).
			attr("amount", amount.String()).
			attr("new_available", bal.Available.String())
		return nil
	})
}
