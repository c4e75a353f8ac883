package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/radieske/coinflip-vault/internal/token-ledger/ledger"
	"github.com/radieske/coinflip-vault/internal/vault"
	"github.com/radieske/coinflip-vault/pkg/contracts/events"
)

// Ledger define as operações usadas pelo handler HTTP
type Ledger interface {
	BalanceOf(ctx context.Context, token, account string) (vault.Amount, error)
	Holdings(ctx context.Context, token, account string) (vault.Holdings, error)
	Mint(token, account string, amount vault.Amount) (vault.Amount, error)
	Transfer(token, from, to string, amount vault.Amount) error
	Send(ctx context.Context, token, from, contract string, amount vault.Amount, msg json.RawMessage) (events.DepositNotification, error)
}

// MintRequest credita saldo de teste
type MintRequest struct {
	Token   string       `json:"token"`
	Account string       `json:"account"`
	Amount  vault.Amount `json:"amount"`
}

// TransferRequest é a transferência simples (sem hook)
type TransferRequest struct {
	Token     string       `json:"token"`
	From      string       `json:"from"`
	Recipient string       `json:"recipient"`
	Amount    vault.Amount `json:"amount"`
}

// SendRequest transfere para um contrato e dispara o hook de recebimento
type SendRequest struct {
	Token    string          `json:"token"`
	From     string          `json:"from"`
	Contract string          `json:"contract"`
	Amount   vault.Amount    `json:"amount"`
	Msg      json.RawMessage `json:"msg"`
}

type BalanceResponse struct {
	Token   string       `json:"token"`
	Account string       `json:"account"`
	Balance vault.Amount `json:"balance"`
}

// HoldingsResponse é o saldo mais os acumulados usados pelo admin_sweep
type HoldingsResponse struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	vault.Holdings
}

// Server expõe o ledger de tokens simulado
type Server struct {
	log    *zap.Logger
	ledger Ledger
}

func NewServer(log *zap.Logger, l Ledger) *Server { return &Server{log: log, ledger: l} }

// Router retorna o mux HTTP com as rotas do ledger
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /token/balance", s.balance)    // ?token=&account=
	mux.HandleFunc("GET /token/holdings", s.holdings)  // ?token=&account=
	mux.HandleFunc("POST /token/mint", s.mint)         // faucet
	mux.HandleFunc("POST /token/transfer", s.transfer) // sem notificação
	mux.HandleFunc("POST /token/send", s.send)         // com notificação ao vault
	return mux
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	token, account := r.URL.Query().Get("token"), r.URL.Query().Get("account")
	if token == "" || account == "" {
		http.Error(w, "token and account required", http.StatusBadRequest)
		return
	}
	b, err := s.ledger.BalanceOf(r.Context(), token, account)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, BalanceResponse{Token: token, Account: account, Balance: b})
}

func (s *Server) holdings(w http.ResponseWriter, r *http.Request) {
	token, account := r.URL.Query().Get("token"), r.URL.Query().Get("account")
	if token == "" || account == "" {
		http.Error(w, "token and account required", http.StatusBadRequest)
		return
	}
	h, err := s.ledger.Holdings(r.Context(), token, account)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, HoldingsResponse{Token: token, Account: account, Holdings: h})
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Token == "" || req.Account == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	b, err := s.ledger.Mint(req.Token, req.Account, req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, BalanceResponse{Token: req.Token, Account: req.Account, Balance: b})
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Token == "" || req.From == "" || req.Recipient == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := s.ledger.Transfer(req.Token, req.From, req.Recipient, req.Amount); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "TRANSFERRED"})
}

func (s *Server) send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Token == "" || req.From == "" || req.Contract == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	n, err := s.ledger.Send(r.Context(), req.Token, req.From, req.Contract, req.Amount, req.Msg)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	s.log.Info("token send", zap.String("notification_id", n.ID), zap.String("from", req.From), zap.String("contract", req.Contract), zap.String("amount", n.Amount))
	writeJSON(w, n)
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrZeroAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
