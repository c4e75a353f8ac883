package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-vault/internal/vault"
	"github.com/radieske/coinflip-vault/internal/vault-service/dto"
)

// BetCache é o cache opcional de apostas terminais (Redis em produção)
type BetCache interface {
	Get(ctx context.Context, id uint64) (vault.BetResponse, bool, error)
	Put(ctx context.Context, bet vault.BetResponse) error
}

// API expõe a escrita (execute/instantiate) e as consultas do vault
type API struct {
	Engine *vault.Engine
	Query  *vault.QueryService
	Log    *zap.Logger

	// opcionais
	Cache BetCache
	WS    http.Handler
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Post("/v1/instantiate", a.instantiate)
	r.Post("/v1/execute", a.execute)

	r.Get("/v1/config", a.getConfig)
	r.Get("/v1/contract-info", a.getContractInfo)
	r.Get("/v1/block", a.getBlock)
	r.Get("/v1/balances/{account}", a.getBalance)
	r.Get("/v1/bets", a.listOpenBets)
	r.Get("/v1/bets/{id}", a.getBet)
	r.Get("/v1/accounts/{account}/bets", a.listUserBets)

	if a.WS != nil {
		r.Get("/ws", a.WS.ServeHTTP)
	}
	return r
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad_request", Message: msg})
}

// statusFor traduz a categoria do erro de domínio em status HTTP
func statusFor(err error) int {
	if errors.Is(err, vault.ErrBetNotFound) {
		return http.StatusNotFound
	}
	switch vault.KindOf(err) {
	case vault.KindAuthorization:
		return http.StatusForbidden
	case vault.KindValidation:
		return http.StatusBadRequest
	case vault.KindState:
		return http.StatusConflict
	case vault.KindResource:
		return http.StatusUnprocessableEntity
	case vault.KindArithmetic, vault.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if vault.KindOf(err) == vault.KindInternal {
		a.Log.Error("request failed", zap.String("path", r.URL.Path), zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, dto.ErrorResponse{Error: vault.CodeOf(err), Message: msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (a *API) instantiate(w http.ResponseWriter, r *http.Request) {
	var req dto.InstantiateRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	res, err := a.Engine.Instantiate(r.Context(), req.Block, req.Sender, req.Msg)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) execute(w http.ResponseWriter, r *http.Request) {
	var req dto.ExecuteRequest
	if err := decode(r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	variant, err := req.Msg.Variant()
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := a.dispatch(r.Context(), variant, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) dispatch(ctx context.Context, variant string, req dto.ExecuteRequest) (vault.Response, error) {
	e, env, sender, m := a.Engine, req.Block, req.Sender, req.Msg
	switch variant {
	case "receive":
		return e.Receive(ctx, env, sender, vault.DepositNotification{
			ID: m.Receive.ID, Sender: m.Receive.Sender, Amount: m.Receive.Amount, Msg: m.Receive.Msg,
		})
	case "withdraw":
		return e.Withdraw(ctx, env, sender, m.Withdraw.Amount)
	case "create_bet":
		return e.CreateBet(ctx, env, sender, m.CreateBet.Amount, m.CreateBet.Commitment)
	case "cancel_bet":
		return e.CancelBet(ctx, env, sender, m.CancelBet.BetID)
	case "accept_bet":
		return e.AcceptBet(ctx, env, sender, m.AcceptBet.BetID, m.AcceptBet.Guess)
	case "accept_and_reveal":
		x := m.AcceptAndReveal
		return e.AcceptAndReveal(ctx, env, sender, x.BetID, x.Guess, x.Side, x.Secret)
	case "reveal":
		return e.Reveal(ctx, env, sender, m.Reveal.BetID, m.Reveal.Side, m.Reveal.Secret)
	case "claim_timeout":
		return e.ClaimTimeout(ctx, env, sender, m.ClaimTimeout.BetID)
	case "update_config":
		return e.UpdateConfig(ctx, env, sender, *m.UpdateConfig)
	case "transfer_admin":
		return e.TransferAdmin(ctx, env, sender, m.TransferAdmin.NewAdmin)
	case "accept_admin":
		return e.AcceptAdmin(ctx, env, sender)
	case "admin_sweep":
		return e.AdminSweep(ctx, env, sender, m.AdminSweep.Recipient)
	default:
		return vault.Response{}, dto.ErrBadVariant
	}
}

func (a *API) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.Query.Config(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (a *API) getContractInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.Query.ContractInfo(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (a *API) getBlock(w http.ResponseWriter, r *http.Request) {
	env, err := a.Query.Block(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, env)
}

func (a *API) getBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := a.Query.VaultBalance(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

// getBet consulta o cache primeiro; só apostas terminais entram nele
func (a *API) getBet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid bet id")
		return
	}

	if a.Cache != nil {
		if bet, ok, err := a.Cache.Get(r.Context(), id); err != nil {
			a.Log.Warn("bet cache get", zap.Uint64("bet_id", id), zap.Error(err))
		} else if ok {
			writeJSON(w, http.StatusOK, bet)
			return
		}
	}

	bet, err := a.Query.Bet(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if a.Cache != nil {
		if err := a.Cache.Put(r.Context(), bet); err != nil {
			a.Log.Warn("bet cache put", zap.Uint64("bet_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, bet)
}

func (a *API) listOpenBets(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	bets, err := a.Query.OpenBets(r.Context(), page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": nonNil(bets)})
}

func (a *API) listUserBets(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	bets, err := a.Query.UserBets(r.Context(), chi.URLParam(r, "account"), page)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": nonNil(bets)})
}

func parsePage(r *http.Request) (vault.Page, error) {
	var p vault.Page
	q := r.URL.Query()
	if s := q.Get("start_after"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return p, errors.New("invalid start_after")
		}
		p.StartAfter = &v
	}
	if s := q.Get("limit"); s != "" {
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return p, errors.New("invalid limit")
		}
		l := uint32(v)
		p.Limit = &l
	}
	return p, nil
}

func nonNil(b []vault.BetResponse) []vault.BetResponse {
	if b == nil {
		return []vault.BetResponse{}
	}
	return b
}
