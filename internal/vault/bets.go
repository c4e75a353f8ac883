package vault

import (
	"context"
	"fmt"
)

// CreateBet trava amount do maker e registra uma aposta Open com o commitment
func (e *Engine) CreateBet(ctx context.Context, env Env, sender string, amount Amount, commitment []byte) (Response, error) {
	return e.exec(ctx, "create_bet", env, func(tx Tx, res *Response) error {
		if err := ValidateAddress(sender); err != nil {
			return err
		}
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		if len(commitment) != CommitmentLen {
			return fmt.Errorf("%w, got %d", ErrInvalidCommitmentLength, len(commitment))
		}
		if amount.LessThan(cfg.MinBet) {
			return fmt.Errorf("%w: min %s", ErrBetAmountBelowMinimum, cfg.MinBet)
		}

		reg, led := NewRegistry(tx), NewLedger(tx)
		if err := reg.IncrementOpen(ctx, sender, cfg.MaxOpenPerUser); err != nil {
			return err
		}
		if err := reg.ChargeDaily(ctx, sender, env.Time, amount, cfg.MaxDailyAmountPerUser); err != nil {
			return err
		}
		if err := led.Lock(ctx, sender, amount); err != nil {
			return err
		}
		id, err := reg.NextID(ctx)
		if err != nil {
			return err
		}
		bet := Bet{
			ID:              id,
			Maker:           sender,
			Amount:          amount,
			Commitment:      append([]byte(nil), commitment...),
			Status:          StatusOpen,
			CreatedAtHeight: env.Height,
			CreatedAtTime:   env.Time,
		}
		if err := reg.Save(ctx, bet); err != nil {
			return err
		}

		res.BetID = id
		res.event(EventBetCreated, id).
			id("bet_id", id).
			attr("maker", sender).
			attr("amount", amount.String())
		return nil
	})
}

// CancelBet devolve o valor travado ao maker; só vale para apostas Open
func (e *Engine) CancelBet(ctx context.Context, env Env, sender string, betID uint64) (Response, error) {
	return e.exec(ctx, "cancel_bet", env, func(tx Tx, res *Response) error {
		if _, err := tx.Config(ctx); err != nil {
			return err
		}
		reg := NewRegistry(tx)
		bet, err := reg.Load(ctx, betID)
		if err != nil {
			return err
		}
		next, err := transition(bet.Status, actionCancel)
		if err != nil {
			return err
		}
		if bet.Maker != sender {
			return ErrUnauthorized
		}
		if err := NewLedger(tx).Unlock(ctx, bet.Maker, bet.Amount); err != nil {
			return err
		}
		if err := reg.DecrementOpen(ctx, bet.Maker); err != nil {
			return err
		}
		bet.Status = next
		if err := reg.Save(ctx, bet); err != nil {
			return err
		}

		res.BetID = betID
		res.event(EventBetCanceled, betID).
			id("bet_id", betID).
			attr("maker", bet.Maker).
			attr("amount", bet.Amount.String())
		return nil
	})
}

// AcceptBet trava o mesmo valor do acceptor e grava o palpite
func (e *Engine) AcceptBet(ctx context.Context, env Env, sender string, betID uint64, guess Side) (Response, error) {
	return e.exec(ctx, "accept_bet", env, func(tx Tx, res *Response) error {
		if err := ValidateAddress(sender); err != nil {
			return err
		}
		if !guess.valid() {
			return ErrInvalidSide
		}
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		reg := NewRegistry(tx)
		bet, err := reg.Load(ctx, betID)
		if err != nil {
			return err
		}
		next, err := transition(bet.Status, actionAccept)
		if err != nil {
			return err
		}
		if err := e.takeSeat(ctx, tx, cfg, &bet, env, sender, guess); err != nil {
			return err
		}
		bet.Status = next
		if err := reg.Save(ctx, bet); err != nil {
			return err
		}

		res.BetID = betID
		res.event(EventBetAccepted, betID).
			id("bet_id", betID).
			attr("acceptor", sender).
			attr("guess", guess.String())
		return nil
	})
}

// Reveal resolve uma aposta Accepted. O maker ganha se o lado revelado for diferente do palpite.
func (e *Engine) Reveal(ctx context.Context, env Env, sender string, betID uint64, side Side, secret []byte) (Response, error) {
	return e.exec(ctx, "reveal", env, func(tx Tx, res *Response) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		reg := NewRegistry(tx)
		bet, err := reg.Load(ctx, betID)
		if err != nil {
			return err
		}
		next, err := transition(bet.Status, actionReveal)
		if err != nil {
			return err
		}
		if bet.Maker != sender {
			return ErrUnauthorized
		}
		deadline, err := bet.RevealDeadline(cfg.RevealTimeoutSecs)
		if err != nil {
			return err
		}
		if env.Time > deadline {
			return fmt.Errorf("%w: deadline %d", ErrRevealTimeoutExpired, deadline)
		}
		if err := VerifyCommitment(bet.Commitment, bet.Maker, side, secret); err != nil {
			return err
		}

		winner := pickWinner(bet, side)
		p, err := e.settle(ctx, tx, cfg, &bet, env, winner)
		if err != nil {
			return err
		}
		bet.Status = next
		bet.RevealSide = ptr(side)
		bet.RevealSecret = append([]byte(nil), secret...)
		if err := reg.Save(ctx, bet); err != nil {
			return err
		}
		res.settled = &settlement{BetID: betID, Winner: winner, Payout: p}

		res.BetID = betID
		res.event(EventBetRevealed, betID).
			id("bet_id", betID).
			attr("side", side.String()).
			attr("winner", winner).
			attr("payout", p.Payout.String())
		res.event(EventCommissionPaid, betID).
			id("bet_id", betID).
			attr("treasury", cfg.Treasury).
			attr("amount", p.Commission.String())
		return nil
	})
}

// AcceptAndReveal aceita e resolve numa única operação.
// Qualquer conta que não seja o maker pode chamar, o chamador vira o acceptor.
func (e *Engine) AcceptAndReveal(ctx context.Context, env Env, sender string, betID uint64, guess, side Side, secret []byte) (Response, error) {
	return e.exec(ctx, "accept_and_reveal", env, func(tx Tx, res *Response) error {
		if err := ValidateAddress(sender); err != nil {
			return err
		}
		if !guess.valid() {
			return ErrInvalidSide
		}
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		reg := NewRegistry(tx)
		bet, err := reg.Load(ctx, betID)
		if err != nil {
			return err
		}
		next, err := transition(bet.Status, actionAcceptAndReveal)
		if err != nil {
			return err
		}
		if err := e.takeSeat(ctx, tx, cfg, &bet, env, sender, guess); err != nil {
			return err
		}
		if err := VerifyCommitment(bet.Commitment, bet.Maker, side, secret); err != nil {
			return err
		}

		winner := pickWinner(bet, side)
		p, err := e.settle(ctx, tx, cfg, &bet, env, winner)
		if err != nil {
			return err
		}
		bet.Status = next
		bet.RevealSide = ptr(side)
		bet.RevealSecret = append([]byte(nil), secret...)
		if err := reg.Save(ctx, bet); err != nil {
			return err
		}
		res.settled = &settlement{BetID: betID, Winner: winner, Payout: p}

		res.BetID = betID
		res.event(EventAcceptAndReveal, betID).
			id("bet_id", betID).
			attr("acceptor", sender).
			attr("guess", guess.String()).
			attr("side", side.String()).
			attr("winner", winner).
			attr("payout", p.Payout.String())
		res.event(EventCommissionPaid, betID).
			id("bet_id", betID).
			attr("treasury", cfg.Treasury).
			attr("amount", p.Commission.String())
		return nil
	})
}

// ClaimTimeout dá o pote ao acceptor quando o maker não revelou no prazo
func (e *Engine) ClaimTimeout(ctx context.Context, env Env, sender string, betID uint64) (Response, error) {
	return e.exec(ctx, "claim_timeout", env, func(tx Tx, res *Response) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		reg := NewRegistry(tx)
		bet, err := reg.Load(ctx, betID)
		if err != nil {
			return err
		}
		next, err := transition(bet.Status, actionClaimTimeout)
		if err != nil {
			return err
		}
		if bet.Acceptor == nil || *bet.Acceptor != sender {
			return ErrUnauthorized
		}
		deadline, err := bet.RevealDeadline(cfg.RevealTimeoutSecs)
		if err != nil {
			return err
		}
		if env.Time <= deadline {
			return fmt.Errorf("%w: deadline %d", ErrRevealNotYetExpired, deadline)
		}

		p, err := e.settle(ctx, tx, cfg, &bet, env, sender)
		if err != nil {
			return err
		}
		bet.Status = next
		if err := reg.Save(ctx, bet); err != nil {
			return err
		}
		res.settled = &settlement{BetID: betID, Winner: sender, Payout: p}

		res.BetID = betID
		res.event(EventTimeoutClaimed, betID).
			id("bet_id", betID).
			attr("winner", sender).
			attr("payout", p.Payout.String())
		res.event(EventCommissionPaid, betID).
			id("bet_id", betID).
			attr("treasury", cfg.Treasury).
			attr("amount", p.Commission.String())
		return nil
	})
}

// takeSeat aplica as regras de aceite (ttl, self-accept, limite diário, saldo)
// e preenche os campos do acceptor na aposta
func (e *Engine) takeSeat(ctx context.Context, tx Tx, cfg Config, bet *Bet, env Env, acceptor string, guess Side) error {
	expiry, expires, err := bet.ExpiresAt(cfg.BetTTLSecs)
	if err != nil {
		return err
	}
	if expires && env.Time > expiry {
		return fmt.Errorf("%w: bet %d expired at %d", ErrBetExpired, bet.ID, expiry)
	}
	// o prazo de reveal precisa caber em 64 bits já no aceite
	if _, err := addSecs(env.Time, cfg.RevealTimeoutSecs, "reveal deadline"); err != nil {
		return err
	}
	if acceptor == bet.Maker {
		return ErrSelfAcceptNotAllowed
	}
	if err := NewRegistry(tx).ChargeDaily(ctx, acceptor, env.Time, bet.Amount, cfg.MaxDailyAmountPerUser); err != nil {
		return err
	}
	if err := NewLedger(tx).Lock(ctx, acceptor, bet.Amount); err != nil {
		return err
	}
	bet.Acceptor = ptr(acceptor)
	bet.AcceptorGuess = ptr(guess)
	bet.AcceptedAtHeight = ptr(env.Height)
	bet.AcceptedAtTime = ptr(env.Time)
	return nil
}

// settle paga o vencedor e a tesouraria e fecha a aposta do lado do maker
func (e *Engine) settle(ctx context.Context, tx Tx, cfg Config, bet *Bet, env Env, winner string) (Payout, error) {
	p, err := ComputePayout(bet.Amount, cfg.CommissionBps)
	if err != nil {
		return Payout{}, err
	}
	if err := NewLedger(tx).Settle(ctx, bet.Maker, *bet.Acceptor, winner, bet.Amount, cfg.Treasury, p); err != nil {
		return Payout{}, err
	}
	if err := NewRegistry(tx).DecrementOpen(ctx, bet.Maker); err != nil {
		return Payout{}, err
	}
	bet.ResolvedAtHeight = ptr(env.Height)
	bet.Winner = ptr(winner)
	bet.CommissionPaid = p.Commission
	bet.PayoutAmount = p.Payout
	return p, nil
}

func pickWinner(bet Bet, revealed Side) string {
	if revealed != *bet.AcceptorGuess {
		return bet.Maker
	}
	return *bet.Acceptor
}
