package tokenledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/radieske/coinflip-vault/internal/vault"
)

// Client consulta saldos e acumulados no ledger de tokens via HTTP
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: base,
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

// HoldingsResponse é o corpo de GET /token/holdings
type HoldingsResponse struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	vault.Holdings
}

// Holdings implementa vault.TokenLedger
func (c *Client) Holdings(ctx context.Context, token, account string) (vault.Holdings, error) {
	q := url.Values{"token": {token}, "account": {account}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/token/holdings?"+q.Encode(), nil)
	if err != nil {
		return vault.Holdings{}, err
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return vault.Holdings{}, err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		return vault.Holdings{}, fmt.Errorf("token holdings http %d", res.StatusCode)
	}
	var out HoldingsResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return vault.Holdings{}, err
	}
	return out.Holdings, nil
}
