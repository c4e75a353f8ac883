package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/radieske/coinflip-vault/internal/vault"
)

// Vault agrupa os contadores das operações do engine
type Vault struct {
	ops        *prometheus.CounterVec
	settled    *prometheus.CounterVec
	commission prometheus.Counter
}

// NewVault cria e registra os coletores no registerer informado
func NewVault(reg prometheus.Registerer) *Vault {
	v := &Vault{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_ops_total",
			Help: "operações executadas por tipo e resultado",
		}, []string{"op", "result"}),
		settled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vault_bets_settled_total",
			Help: "apostas liquidadas por operação",
		}, []string{"op"}),
		commission: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vault_commission_paid_total",
			Help: "comissão paga à tesouraria (unidades do token, pode perder precisão)",
		}),
	}
	reg.MustRegister(v.ops, v.settled, v.commission)
	return v
}

// Instrument liga os callbacks do engine aos contadores
func (v *Vault) Instrument(e *vault.Engine) {
	e.OnExecuted = v.Executed
	e.OnSettled = v.Settled
}

func (v *Vault) Executed(op string, err error) {
	result := "ok"
	if err != nil {
		result = vault.CodeOf(err)
	}
	v.ops.WithLabelValues(op, result).Inc()
}

func (v *Vault) Settled(op string, p vault.Payout) {
	v.settled.WithLabelValues(op).Inc()
	if f, err := strconv.ParseFloat(p.Commission.String(), 64); err == nil {
		v.commission.Add(f)
	}
}
