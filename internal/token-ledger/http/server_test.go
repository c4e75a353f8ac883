package http

import (
	"bytes"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-vault/internal/token-ledger/ledger"
)

func post(t *testing.T, h nethttp.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodPost, path, bytes.NewBufferString(body)))
	return rec
}

func TestTokenRoutes(t *testing.T) {
	h := NewServer(zap.NewNop(), ledger.New("vault", nil)).Router()

	rec := post(t, h, "/token/mint", `{"token":"tok","account":"alice","amount":"100"}`)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	rec = post(t, h, "/token/send", `{"token":"tok","from":"alice","contract":"vault","amount":"30","msg":{"deposit":{}}}`)
	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())

	rec = post(t, h, "/token/transfer", `{"token":"tok","from":"alice","recipient":"bob","amount":"100"}`)
	assert.Equal(t, nethttp.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/token/balance?token=tok&account=vault", nil))
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var out BalanceResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "30", out.Balance.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/token/balance", nil))
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)

	// sem notifier o send não conta como notificado
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/token/holdings?token=tok&account=vault", nil))
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var held HoldingsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&held))
	assert.Equal(t, "30", held.Balance.String())
	assert.True(t, held.Notified.IsZero())
	assert.True(t, held.Applied.IsZero())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/token/holdings?token=tok", nil))
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}
