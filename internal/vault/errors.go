package vault

import (
	"errors"
	"fmt"
)

// Kind agrupa os erros do vault por categoria
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindValidation    Kind = "validation"
	KindState         Kind = "state"
	KindResource      Kind = "resource"
	KindArithmetic    Kind = "arithmetic"
	KindInternal      Kind = "internal"
)

// Error é um erro de domínio com código estável (exposto na API)
type Error struct {
	Code string
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

func newError(kind Kind, code, msg string) *Error {
	return &Error{Code: code, Kind: kind, msg: msg}
}

var (
	// autorização
	ErrUnauthorized         = newError(KindAuthorization, "unauthorized", "unauthorized")
	ErrSelfAcceptNotAllowed = newError(KindAuthorization, "self_accept_not_allowed", "self-accept not allowed")

	// validação
	ErrInvalidCommission       = newError(KindValidation, "invalid_commission", "invalid commission")
	ErrInvalidTimeout          = newError(KindValidation, "invalid_timeout", "invalid timeout")
	ErrInvalidCommitmentLength = newError(KindValidation, "invalid_commitment_length", "invalid commitment: must be exactly 32 bytes")
	ErrBetAmountBelowMinimum   = newError(KindValidation, "bet_amount_below_minimum", "bet amount below minimum")
	ErrInvalidAddress          = newError(KindValidation, "invalid_address", "invalid address")
	ErrInvalidAmount           = newError(KindValidation, "invalid_amount", "invalid amount")
	ErrInvalidZeroAmount       = newError(KindValidation, "invalid_zero_amount", "amount must be greater than zero")
	ErrInvalidToken            = newError(KindValidation, "invalid_token", "invalid token")
	ErrInvalidReceiveMsg       = newError(KindValidation, "invalid_receive_msg", "invalid receive message")
	ErrInvalidSide             = newError(KindValidation, "invalid_side", "invalid side")

	// estado
	ErrInvalidStateTransition = newError(KindState, "invalid_state_transition", "invalid state transition")
	ErrBetNotFound            = newError(KindState, "bet_not_found", "bet not found")
	ErrBetExpired             = newError(KindState, "bet_expired", "bet expired")
	ErrCommitmentMismatch     = newError(KindState, "commitment_mismatch", "commitment mismatch: reveal does not match stored commitment")
	ErrRevealTimeoutExpired   = newError(KindState, "reveal_timeout_expired", "reveal timeout expired")
	ErrRevealNotYetExpired    = newError(KindState, "reveal_not_yet_expired", "reveal timeout not yet expired")
	ErrAlreadyInstantiated    = newError(KindState, "already_instantiated", "vault already instantiated")
	ErrNotInstantiated        = newError(KindState, "not_instantiated", "vault not instantiated")
	ErrInvalidMigration       = newError(KindState, "invalid_migration", "invalid migration")
	ErrBlockRegression        = newError(KindState, "block_regression", "block height or time went backwards")

	// recursos
	ErrInsufficientAvailableBalance = newError(KindResource, "insufficient_available_balance", "insufficient available balance")
	ErrTooManyOpenBets              = newError(KindResource, "too_many_open_bets", "too many open bets")
	ErrDailyLimitExceeded           = newError(KindResource, "daily_limit_exceeded", "daily limit exceeded")
	ErrNothingToSweep               = newError(KindResource, "nothing_to_sweep", "nothing to sweep")

	// aritmética
	ErrOverflow     = newError(KindArithmetic, "overflow", "arithmetic overflow")
	ErrDivideByZero = newError(KindArithmetic, "divide_by_zero", "divide by zero")
)

// KindOf retorna a categoria do erro; erros desconhecidos são internos
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindInternal
}

// CodeOf retorna o código estável do erro, "internal" para falhas de infraestrutura
func CodeOf(err error) string {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Code
	}
	return "internal"
}

func insufficient(need, have Amount) error {
	return fmt.Errorf("%w: need %s, have %s", ErrInsufficientAvailableBalance, need, have)
}

func invalidTransition(action string, current BetStatus) error {
	return fmt.Errorf("%w: cannot %s bet in %s state", ErrInvalidStateTransition, action, current)
}

// BetNotFound é o erro que os stores devolvem para um id inexistente
func BetNotFound(id uint64) error {
	return fmt.Errorf("%w: %d", ErrBetNotFound, id)
}

func blockRegression(env, last Env) error {
	return fmt.Errorf("%w: got height %d time %d, last height %d time %d",
		ErrBlockRegression, env.Height, env.Time, last.Height, last.Time)
}

func invalidTimeout(min, max uint64) error {
	return fmt.Errorf("%w: must be between %d and %d seconds", ErrInvalidTimeout, min, max)
}

func invalidCommission() error {
	return fmt.Errorf("%w: max %d bps", ErrInvalidCommission, MaxCommissionBps)
}
